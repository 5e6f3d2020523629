package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"autoposter/internal/config"
	"autoposter/internal/daemonrun"
)

func newRunCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newLoopCommand(ctx, "run", "Run the watcher and the dispatcher", true, true),
		newLoopCommand(ctx, "watch", "Run only the filesystem watcher", true, false),
		newDispatchCommand(ctx),
	}
}

func newLoopCommand(ctx *commandContext, use, short string, watch, dispatch bool) *cobra.Command {
	var dryRun bool
	var development bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.logLevel(),
				Development: development,
				Watch:       watch,
				Dispatch:    dispatch,
				ForceDryRun: dryRun,
			})
		},
	}
	if dispatch {
		cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Export every job even for clients in live mode")
	}
	cmd.Flags().BoolVar(&development, "dev", false, "Enable development logging")
	return cmd
}

func newDispatchCommand(ctx *commandContext) *cobra.Command {
	var once bool
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run the dispatcher loop, or a single tick with --once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !once {
				return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
					LogLevel:    ctx.logLevel(),
					Dispatch:    true,
					ForceDryRun: dryRun,
				})
			}
			return ctx.withRuntime(dryRun, func(_ *config.Config, rt *daemonrun.Runtime) error {
				res, err := rt.Dispatcher.RunOnce(cmd.Context())
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Fetched %d due job(s): %d delivered, %d deferred, %d retried, %d failed, %d skipped\n",
					res.Fetched, res.Delivered, res.Deferred, res.Retried, res.Failed, res.Skipped)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Process due jobs once and exit")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Export every job even for clients in live mode")
	return cmd
}
