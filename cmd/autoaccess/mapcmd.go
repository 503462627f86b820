package main

import (
	"encoding/json"
	"fmt"
	"image"

	"github.com/spf13/cobra"

	"github.com/CanhCl92/AutoAccess/internal/config"
	"github.com/CanhCl92/AutoAccess/internal/mapping"
)

var mapOpts struct {
	phys    string
	capture string
	content string
	insets  string
	x, y    float64
	inverse bool
}

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Convert a point between capture and dispatch space for a given geometry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		s, err := mapSpaces()
		if err != nil {
			return err
		}
		params, err := s.Params()
		if err != nil {
			return err
		}

		in := mapping.Point{X: mapOpts.x, Y: mapOpts.y}
		var out mapping.Point
		if mapOpts.inverse {
			out, err = s.ToCapture(in)
		} else {
			out, err = s.ToDispatch(in)
		}
		if err != nil {
			return err
		}

		b, _ := json.MarshalIndent(map[string]any{
			"spaces": s,
			"params": params,
			"in":     in,
			"out":    out,
		}, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	},
}

func init() {
	f := mapCmd.Flags()
	f.StringVar(&mapOpts.phys, "phys", "", "physical display size WxH (required)")
	f.StringVar(&mapOpts.capture, "capture", "", "capture size WxH (defaults to --phys)")
	f.StringVar(&mapOpts.content, "content", "", "content rect x,y,w,h (defaults to the whole capture)")
	f.StringVar(&mapOpts.insets, "insets", "0,0,0,0", "gesture insets left,top,right,bottom")
	f.Float64Var(&mapOpts.x, "x", 0, "point x")
	f.Float64Var(&mapOpts.y, "y", 0, "point y")
	f.BoolVar(&mapOpts.inverse, "inverse", false, "map dispatch to capture instead of capture to dispatch")
	_ = mapCmd.MarkFlagRequired("phys")
	rootCmd.AddCommand(mapCmd)
}

func mapSpaces() (mapping.Spaces, error) {
	phys, err := config.ParseSize(mapOpts.phys)
	if err != nil {
		return mapping.Spaces{}, fmt.Errorf("--phys: %w", err)
	}
	capSize := phys
	if mapOpts.capture != "" {
		if capSize, err = config.ParseSize(mapOpts.capture); err != nil {
			return mapping.Spaces{}, fmt.Errorf("--capture: %w", err)
		}
	}
	content := image.Rect(0, 0, capSize.Width, capSize.Height)
	if mapOpts.content != "" {
		if content, err = config.ParseRect(mapOpts.content); err != nil {
			return mapping.Spaces{}, fmt.Errorf("--content: %w", err)
		}
	}
	insets, err := config.ParseInsets(mapOpts.insets)
	if err != nil {
		return mapping.Spaces{}, fmt.Errorf("--insets: %w", err)
	}
	return mapping.Spaces{Capture: capSize, Content: content, Phys: phys, Insets: insets}, nil
}
