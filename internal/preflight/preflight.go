package preflight

import (
	"context"

	"autoposter/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Optional failures are reported but do not fail the run.
	Optional bool
}

// MinFreeBytes is the free space required in the state and export directories.
const MinFreeBytes = 256 << 20

// RunAll executes every preflight check for cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Content directory", cfg.Paths.ContentDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Export directory", cfg.Paths.ExportDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	clients := CheckDirectoryAccess("Clients directory", cfg.Paths.ClientsDir)
	if !clients.Passed {
		clients.Optional = true
		clients.Detail += "; every client uses the default policy"
	}
	results = append(results,
		clients,
		CheckFreeSpace("State free space", cfg.Paths.StateDir, MinFreeBytes),
		CheckFreeSpace("Export free space", cfg.Paths.ExportDir, MinFreeBytes),
		CheckTimezone(cfg.Schedule.Timezone),
		CheckDeliveryCommand(cfg.Delivery.Command),
		CheckQueueDatabase(ctx, cfg),
	)
	return results
}

// Failed reports whether any non-optional check failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return true
		}
	}
	return false
}
