package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/CanhCl92/AutoAccess/internal/macro"
)

var parseCmd = &cobra.Command{
	Use:   "parse <macro.json|->",
	Short: "Validate a macro and print its normalized form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		var data []byte
		var err error
		if args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return err
		}

		m, err := macro.Parse(data)
		if err != nil {
			return err
		}
		out, err := macro.Encode(m)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		for i, s := range m.Steps {
			fmt.Fprintf(cmd.ErrOrStderr(), "%3d  %s\n", i, macro.Describe(s))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
}
