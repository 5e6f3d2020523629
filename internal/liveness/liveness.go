// Package liveness manages the pid marker files each loop writes at start
// so an out-of-process status command can tell whether it is running.
// Markers are advisory; mutual exclusion is handled by file locks.
package liveness

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"autoposter/internal/fileutil"
)

// Marker names used by the runtime.
const (
	Watcher    = "watcher"
	Dispatcher = "dispatcher"
)

// Info is the content of a marker file.
type Info struct {
	PID       int
	RunID     string
	StartedAt time.Time
}

// State describes a marker as seen by a status reader.
type State struct {
	Name    string
	Path    string
	Info    Info
	Present bool
	Running bool
}

// Label renders the state for humans.
func (s State) Label() string {
	switch {
	case s.Running:
		return "RUNNING"
	case s.Present:
		return "STALE"
	default:
		return "STOPPED"
	}
}

// Write records the current process under path. The first line is the bare
// pid so shell tooling can read it.
func Write(path, runID string) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d\n%s\n%s\n", os.Getpid(), strings.TrimSpace(runID), time.Now().UTC().Format(time.RFC3339))
	if err := fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write liveness marker: %w", err)
	}
	return nil
}

// Remove deletes path if it still names the current process.
func Remove(path string) error {
	info, err := Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.PID != os.Getpid() {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Read parses a marker file. Only the pid line is required.
func Read(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, err
	}
	var info Info
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for line := 0; scanner.Scan(); line++ {
		value := strings.TrimSpace(scanner.Text())
		switch line {
		case 0:
			pid, err := strconv.Atoi(value)
			if err != nil || pid <= 0 {
				return Info{}, fmt.Errorf("liveness marker %s: invalid pid %q", path, value)
			}
			info.PID = pid
		case 1:
			info.RunID = value
		case 2:
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				info.StartedAt = ts
			}
		}
	}
	if info.PID == 0 {
		return Info{}, fmt.Errorf("liveness marker %s: empty", path)
	}
	return info, nil
}

// Check reads the marker for name at path and probes the process table.
func Check(name, path string) State {
	state := State{Name: name, Path: path}
	info, err := Read(path)
	if err != nil {
		return state
	}
	state.Present = true
	state.Info = info
	alive, err := process.PidExists(int32(info.PID))
	state.Running = err == nil && alive
	return state
}
