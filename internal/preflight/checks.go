package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"autoposter/internal/config"
	"autoposter/internal/queue"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies the filesystem holding path has at least minBytes available.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := st.Bavail * uint64(st.Bsize)
	detail := fmt.Sprintf("%s (%s free)", path, humanBytes(free))
	if free < minBytes {
		return Result{Name: name, Detail: detail + fmt.Sprintf("; need %s", humanBytes(minBytes))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckTimezone verifies the reference time zone can be loaded.
func CheckTimezone(name string) Result {
	const label = "Time zone"
	name = strings.TrimSpace(name)
	if name == "" {
		return Result{Name: label, Detail: "not configured"}
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Result{Name: label, Detail: fmt.Sprintf("%s (error: %v)", name, err)}
	}
	return Result{Name: label, Passed: true, Detail: fmt.Sprintf("%s (now %s)", name, time.Now().In(loc).Format("2006-01-02 15:04 MST"))}
}

// CheckDeliveryCommand verifies the live uploader resolves. Without one every
// client runs in dry-run, so a missing command is optional.
func CheckDeliveryCommand(command string) Result {
	const name = "Live uploader"
	command = strings.TrimSpace(command)
	if command == "" {
		return Result{Name: name, Optional: true, Detail: "not configured; live clients will retry until one is set"}
	}
	resolved, err := exec.LookPath(command)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("binary %q not found", command)}
	}
	return Result{Name: name, Passed: true, Detail: resolved}
}

// CheckQueueDatabase opens the queue and runs its health check.
func CheckQueueDatabase(ctx context.Context, cfg *config.Config) Result {
	const name = "Queue database"
	store, err := queue.Open(cfg)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("open failed: %v", err)}
	}
	defer store.Close()

	health, err := store.CheckHealth(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", health.DBPath, err)}
	}
	if !health.IntegrityCheck || len(health.MissingColumns) > 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (integrity=%t missing columns=%v)", health.DBPath, health.IntegrityCheck, health.MissingColumns)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (schema v%d, %d jobs)", health.DBPath, health.SchemaVersion, health.TotalJobs)}
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
