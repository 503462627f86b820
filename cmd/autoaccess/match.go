package main

import (
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/CanhCl92/AutoAccess/internal/config"
	"github.com/CanhCl92/AutoAccess/internal/debugview"
	"github.com/CanhCl92/AutoAccess/internal/imaging"
	"github.com/CanhCl92/AutoAccess/internal/matcher"
)

var matchOpts struct {
	minScore int
	roi      string
	overlay  string
}

var matchCmd = &cobra.Command{
	Use:   "match <frame> <template>",
	Short: "Match a template image against a saved screenshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runMatch(args[0], args[1])
	},
}

func init() {
	matchCmd.Flags().IntVarP(&matchOpts.minScore, "min-score", "s", 850, "minimum score (0-1000)")
	matchCmd.Flags().StringVar(&matchOpts.roi, "roi", "", "search region as x,y,w,h")
	matchCmd.Flags().StringVarP(&matchOpts.overlay, "overlay", "o", "", "write an annotated PNG of the match here")
	rootCmd.AddCommand(matchCmd)
}

func loadFrame(path string) (*imaging.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return imaging.FromImage(img, time.Now()), nil
}

func runMatch(framePath, tplPath string) error {
	var roi image.Rectangle
	if matchOpts.roi != "" {
		r, err := config.ParseRect(matchOpts.roi)
		if err != nil {
			return fmt.Errorf("--roi: %w", err)
		}
		roi = r
	}

	frame, err := loadFrame(framePath)
	if err != nil {
		return err
	}
	tplImg, err := loadFrame(tplPath)
	if err != nil {
		return err
	}
	id := strings.TrimSuffix(filepath.Base(tplPath), filepath.Ext(tplPath))
	tpl := matcher.Prepare(id, tplImg)

	start := time.Now()
	res, ok := matcher.Match(frame, tpl, matchOpts.minScore, roi)
	elapsed := time.Since(start)
	if !ok {
		return fmt.Errorf("no match for %s at min score %d (%s)", id, matchOpts.minScore, elapsed.Round(time.Millisecond))
	}

	out, _ := json.Marshal(struct {
		ID string `json:"id"`
		matcher.Result
		Millis int64 `json:"ms"`
	}{id, res, elapsed.Milliseconds()})
	fmt.Println(string(out))

	if matchOpts.overlay != "" {
		rec := debugview.NewRecorder(frame.Width)
		rec.RecordMatch(id, res, frame)
		png, err := rec.Overlay()
		if err != nil {
			return err
		}
		if err := os.WriteFile(matchOpts.overlay, png, 0o644); err != nil {
			return err
		}
	}
	return nil
}
