package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"autoposter/internal/config"
	"autoposter/internal/daemonrun"
	"autoposter/internal/liveness"
	"autoposter/internal/queue"
)

const recentWindow = 24 * time.Hour

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var recent int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show loop liveness, queue totals, and recent activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				loc := cfg.Location()

				fmt.Fprintln(out, sectionHeader("Loops", colorize))
				for _, name := range []string{liveness.Watcher, liveness.Dispatcher} {
					state := liveness.Check(name, cfg.MarkerPath(name))
					fmt.Fprintln(out, checkLine(name, livenessTone(state), livenessDetail(state, loc), colorize))
				}
				fmt.Fprintln(out)

				summaries, err := store.ClientSummaries(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, sectionHeader("Clients", colorize))
				fmt.Fprintln(out, clientSummaryTable(summaries, loc))
				fmt.Fprintln(out)

				jobs, err := store.RecentActivity(cmd.Context(), time.Now().Add(-recentWindow), recent)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, sectionHeader("Last 24h", colorize))
				renderJobs(cmd, cfg, jobs, "No activity.")
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&recent, "recent", "n", 10, "Number of recent jobs to show")
	return cmd
}

func livenessTone(state liveness.State) tone {
	switch {
	case state.Running:
		return toneOK
	case state.Present:
		return toneWarn
	default:
		return toneInfo
	}
}

func livenessDetail(state liveness.State, loc *time.Location) string {
	switch {
	case state.Running:
		return fmt.Sprintf("%s (pid %d since %s)", state.Label(), state.Info.PID, formatLocal(state.Info.StartedAt, loc))
	case state.Present:
		return fmt.Sprintf("%s (pid %d is gone; marker %s)", state.Label(), state.Info.PID, state.Path)
	default:
		return state.Label()
	}
}

func newQuotasCommand(ctx *commandContext) *cobra.Command {
	var client string
	cmd := &cobra.Command{
		Use:   "quotas",
		Short: "Show today's quota usage per client and content type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(false, func(cfg *config.Config, rt *daemonrun.Runtime) error {
				clients := []string{client}
				if client == "" {
					var err error
					if clients, err = knownClients(cmd, cfg, rt.Store); err != nil {
						return err
					}
				}
				out := cmd.OutOrStdout()
				if len(clients) == 0 {
					fmt.Fprintln(out, "No clients found.")
					return nil
				}
				usage, err := rt.Quota.Report(cmd.Context(), clients)
				if err != nil {
					return err
				}
				start, _ := rt.Zone.Today()
				fmt.Fprintf(out, "Local day %s (%s)\n", start.In(cfg.Location()).Format("2006-01-02"), cfg.Location())
				view := tableView{
					headers: []string{"Client", "Type", "Used", "Limit", "Mode", "Policy"},
					numeric: map[int]bool{2: true, 3: true},
				}
				for _, u := range usage {
					mode := "dry-run"
					if u.Live {
						mode = "live"
					}
					source := "file"
					if u.Defaulted {
						source = "default"
					}
					view.rows = append(view.rows, []string{
						u.Client, string(u.ContentType), strconv.Itoa(u.Used), strconv.Itoa(u.Limit), mode, source,
					})
				}
				fmt.Fprintln(out, view.render())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&client, "client", "", "Only report this client")
	return cmd
}

// knownClients merges clients with jobs, policy directories, and content
// directories.
func knownClients(cmd *cobra.Command, cfg *config.Config, store *queue.Store) ([]string, error) {
	set := make(map[string]struct{})
	summaries, err := store.ClientSummaries(cmd.Context())
	if err != nil {
		return nil, err
	}
	for _, s := range summaries {
		set[s.Client] = struct{}{}
	}
	for _, dir := range []string{cfg.Paths.ClientsDir, cfg.Paths.ContentDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() && e.Name()[0] != '.' {
				set[e.Name()] = struct{}{}
			}
		}
	}
	clients := make([]string, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	sort.Strings(clients)
	return clients, nil
}
