package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"autoposter/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check directories, time zone, uploader, and database before running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, r := range results {
				t := toneOK
				if !r.Passed {
					t = toneError
					if r.Optional {
						t = toneWarn
					}
				}
				fmt.Fprintln(out, checkLine(r.Name, t, r.Detail, colorize))
			}
			if preflight.Failed(results) {
				return errors.New("preflight failed")
			}
			return nil
		},
	}
}
