package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"autoposter/internal/config"
	"autoposter/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the job queue",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueDueCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueForceNowCommand(ctx))
	queueCmd.AddCommand(newQueuePurgeCommand(ctx))
	queueCmd.AddCommand(newQueueResetStuckCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var client string
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs ordered by ETA",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := queue.ListFilter{Client: client, Limit: limit}
			for _, raw := range statuses {
				status, ok := queue.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				jobs, err := store.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, jobViews(jobs))
				}
				renderJobs(cmd, cfg, jobs, "No jobs match.")
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (queued, in_progress, done, failed)")
	cmd.Flags().StringVar(&client, "client", "", "Filter by client")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of jobs to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func newQueueDueCommand(ctx *commandContext) *cobra.Command {
	var client string
	cmd := &cobra.Command{
		Use:   "due",
		Short: "List queued jobs whose ETA has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				jobs, err := store.DueJobs(cmd.Context(), queue.DueQuery{Client: client, AsOf: time.Now()})
				if err != nil {
					return err
				}
				renderJobs(cmd, cfg, jobs, "Nothing is due.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&client, "client", "", "Filter by client")
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts per client and status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				summaries, err := store.ClientSummaries(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), clientSummaryTable(summaries, cfg.Location()))
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Re-queue failed jobs (all of them when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				n, err := store.RetryFailed(cmd.Context(), time.Now(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d failed job(s)\n", n)
				return nil
			})
		},
	}
}

func newQueueForceNowCommand(ctx *commandContext) *cobra.Command {
	var client string
	cmd := &cobra.Command{
		Use:   "force-now",
		Short: "Make a client's queued jobs due now (quotas still apply)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				n, err := store.ForceDue(cmd.Context(), client, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Made %d job(s) for %s due now\n", n, client)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&client, "client", "", "Client whose jobs to force")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func newQueuePurgeCommand(ctx *commandContext) *cobra.Command {
	var olderThan string
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete done jobs posted before a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			age, err := parseAge(olderThan)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				n, err := store.PurgeDone(cmd.Context(), time.Now().Add(-age))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d done job(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&olderThan, "older-than", "30d", "Age cutoff, in days (30d) or a Go duration (72h)")
	return cmd
}

func newQueueResetStuckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-stuck",
		Short: "Return in-progress jobs to the queue",
		Long:  "Return in-progress jobs to the queue. Only run this while no dispatcher is running; the dispatcher does it on startup.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				n, err := store.ResetStuckInProgress(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d in-progress job(s)\n", n)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>...",
		Short: "Delete jobs by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				for _, id := range ids {
					removed, err := store.Remove(cmd.Context(), id)
					if err != nil {
						return err
					}
					if removed {
						fmt.Fprintf(out, "Removed job #%d\n", id)
					} else {
						fmt.Fprintf(out, "Job #%d not found\n", id)
					}
				}
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the queue database schema and integrity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				health, err := store.CheckHealth(cmd.Context())
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database:       %s\n", health.DBPath)
				fmt.Fprintf(out, "Exists:         %s\n", yesNo(health.DatabaseExists))
				fmt.Fprintf(out, "Readable:       %s\n", yesNo(health.DatabaseReadable))
				fmt.Fprintf(out, "Schema version: %d\n", health.SchemaVersion)
				fmt.Fprintf(out, "Jobs table:     %s\n", yesNo(health.TableExists))
				if len(health.MissingColumns) > 0 {
					fmt.Fprintf(out, "Missing:        %s\n", strings.Join(health.MissingColumns, ", "))
				}
				fmt.Fprintf(out, "Integrity:      %s\n", yesNo(health.IntegrityCheck))
				fmt.Fprintf(out, "Total jobs:     %d\n", health.TotalJobs)
				return err
			})
		},
	}
}

type jobView struct {
	ID          int64      `json:"id"`
	Client      string     `json:"client"`
	ContentType string     `json:"content_type"`
	Path        string     `json:"path"`
	Status      string     `json:"status"`
	ETA         time.Time  `json:"eta"`
	Attempts    int        `json:"attempts"`
	Source      string     `json:"source"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
	MediaID     string     `json:"media_id,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	Reason      string     `json:"reschedule_reason,omitempty"`
}

func jobViews(jobs []*queue.Job) []jobView {
	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, jobView{
			ID:          j.ID,
			Client:      j.Client,
			ContentType: string(j.ContentType),
			Path:        j.Path,
			Status:      string(j.Status),
			ETA:         j.ETA,
			Attempts:    j.Attempts,
			Source:      string(j.Source),
			PostedAt:    j.PostedAt,
			MediaID:     j.MediaID,
			LastError:   j.LastError,
			Reason:      j.RescheduleReason,
		})
	}
	return views
}

func renderJobs(cmd *cobra.Command, cfg *config.Config, jobs []*queue.Job, empty string) {
	out := cmd.OutOrStdout()
	if len(jobs) == 0 {
		fmt.Fprintln(out, empty)
		return
	}
	loc := cfg.Location()
	view := tableView{
		headers: []string{"ID", "Client", "Type", "File", "Status", "ETA", "Tries", "Note"},
		numeric: map[int]bool{0: true, 6: true},
	}
	for _, j := range jobs {
		note := j.RescheduleReason
		if j.Status == queue.StatusFailed || (note == "" && j.LastError != "") {
			note = j.LastError
		}
		if j.Status == queue.StatusDone {
			note = j.MediaID
		}
		view.rows = append(view.rows, []string{
			strconv.FormatInt(j.ID, 10),
			j.Client,
			string(j.ContentType),
			filepath.Base(j.Path),
			string(j.Status),
			formatLocal(j.ETA, loc),
			strconv.Itoa(j.Attempts),
			truncate(note, 48),
		})
	}
	fmt.Fprintln(out, view.render())
}

func clientSummaryTable(summaries []queue.ClientSummary, loc *time.Location) string {
	if len(summaries) == 0 {
		return "Queue is empty."
	}
	view := tableView{
		headers: []string{"Client", "Queued", "In progress", "Done", "Failed", "Next ETA"},
		numeric: map[int]bool{1: true, 2: true, 3: true, 4: true},
	}
	var total queue.ClientSummary
	for _, s := range summaries {
		view.rows = append(view.rows, []string{
			s.Client,
			strconv.Itoa(s.Queued),
			strconv.Itoa(s.InProgress),
			strconv.Itoa(s.Done),
			strconv.Itoa(s.Failed),
			formatLocalPtr(s.NextETA, loc),
		})
		total.Queued += s.Queued
		total.InProgress += s.InProgress
		total.Done += s.Done
		total.Failed += s.Failed
	}
	view.footer = []string{
		"Total",
		strconv.Itoa(total.Queued),
		strconv.Itoa(total.InProgress),
		strconv.Itoa(total.Done),
		strconv.Itoa(total.Failed),
		"",
	}
	return view.render()
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(arg), "#"), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid job id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseAge accepts "30d" style day counts in addition to time.ParseDuration.
func parseAge(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid age %q", value)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid age %q", value)
	}
	return d, nil
}

func truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
