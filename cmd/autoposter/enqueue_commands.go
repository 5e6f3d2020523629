package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"autoposter/internal/config"
	"autoposter/internal/daemonrun"
	"autoposter/internal/ingest"
	"autoposter/internal/queue"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var caption string
	var now bool
	cmd := &cobra.Command{
		Use:   "enqueue <file>",
		Short: "Queue a media file under the content directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			info, err := os.Stat(absPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("file does not exist: %s", absPath)
				}
				return fmt.Errorf("inspect file: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory; use backfill for trees", absPath)
			}

			return ctx.withRuntime(false, func(cfg *config.Config, rt *daemonrun.Runtime) error {
				outcome, err := rt.Enqueuer.Enqueue(cmd.Context(), absPath, ingest.Options{
					Source:  queue.SourceManual,
					Caption: caption,
					Now:     now,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case outcome.Rejected != "":
					return fmt.Errorf("not queued: %s", outcome.Rejected)
				case !outcome.Created:
					fmt.Fprintf(out, "Already queued as job #%d\n", outcome.JobID)
				default:
					fmt.Fprintf(out, "Queued job #%d for %s/%s at %s\n",
						outcome.JobID, outcome.Client, outcome.ContentType, formatLocal(outcome.ETA, cfg.Location()))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&caption, "caption", "", "Caption to post with the media")
	cmd.Flags().BoolVar(&now, "now", false, "Make the job due immediately")
	return cmd
}

func newBackfillCommand(ctx *commandContext) *cobra.Command {
	var client string
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Queue every existing media file under the content directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(false, func(_ *config.Config, rt *daemonrun.Runtime) error {
				report, err := rt.Enqueuer.Backfill(cmd.Context(), client)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d file(s): %d added, %d already queued, %d rejected\n",
					report.Scanned, report.Added, report.Duplicates, report.Rejected)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&client, "client", "", "Limit the scan to one client directory")
	return cmd
}
