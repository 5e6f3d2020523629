// Package policy reads per-client posting policy (live flag and daily quotas)
// from the clients directory and caches it by file modification time.
//
// A missing, unreadable, or invalid policy file never stops the dispatcher:
// the loader falls back to dry-run with the configured default quotas and
// reports Defaulted=true so callers can surface it.
package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"autoposter/internal/config"
	"autoposter/internal/logging"
	"autoposter/internal/queue"
)

// File names probed in each client directory, in order.
var policyFileNames = []string{"client.yaml", "client.yml", "client.json"}

// ClientPolicy is the effective policy for one client.
type ClientPolicy struct {
	Client          string
	LiveModeEnabled bool
	Quotas          map[queue.ContentType]int
	Defaulted       bool
	Source          string
}

// Limit returns the daily quota for a content type.
func (p ClientPolicy) Limit(contentType queue.ContentType) int {
	return p.Quotas[contentType]
}

type quotaFields struct {
	Feed          *int `yaml:"feed" json:"feed" validate:"omitempty,gte=0"`
	Reels         *int `yaml:"reels" json:"reels" validate:"omitempty,gte=0"`
	Stories       *int `yaml:"stories" json:"stories" validate:"omitempty,gte=0"`
	Weekly        *int `yaml:"weekly" json:"weekly" validate:"omitempty,gte=0"`
	FeedPerDay    *int `yaml:"feed_per_day" json:"feed_per_day" validate:"omitempty,gte=0"`
	ReelsPerDay   *int `yaml:"reels_per_day" json:"reels_per_day" validate:"omitempty,gte=0"`
	StoriesPerDay *int `yaml:"stories_per_day" json:"stories_per_day" validate:"omitempty,gte=0"`
	WeeklyPerDay  *int `yaml:"weekly_per_day" json:"weekly_per_day" validate:"omitempty,gte=0"`
}

type policyFile struct {
	Live            *bool       `yaml:"live" json:"live"`
	LiveModeEnabled *bool       `yaml:"live_mode_enabled" json:"live_mode_enabled"`
	Quotas          quotaFields `yaml:"quotas" json:"quotas"`
}

type cacheEntry struct {
	path    string
	modTime time.Time
	size    int64
	policy  ClientPolicy
}

// Loader resolves client policies. It is created once per process and shared
// by reference; it is safe for concurrent use.
type Loader struct {
	dir      string
	defaults config.Policy
	logger   *zap.Logger
	validate *validator.Validate

	mu    sync.Mutex
	cache map[string]cacheEntry
	reads int
}

// NewLoader builds a Loader over cfg.Paths.ClientsDir.
func NewLoader(cfg *config.Config, logger *zap.Logger) *Loader {
	return &Loader{
		dir:      cfg.Paths.ClientsDir,
		defaults: cfg.Policy,
		logger:   logging.NewComponentLogger(logger, "policy"),
		validate: validator.New(),
		cache:    make(map[string]cacheEntry),
	}
}

// Load returns the policy for client. It only re-reads the file when its
// modification time or size changed since the last call.
func (l *Loader) Load(client string) ClientPolicy {
	client = strings.TrimSpace(client)
	if !validClientName(client) {
		l.logger.Warn("invalid client name; using default policy",
			zap.String(logging.FieldClient, client),
			zap.String(logging.FieldEventType, "policy_invalid_client"),
		)
		return l.defaultPolicy(client, "")
	}

	path, info, err := l.locate(client)
	if err != nil {
		l.mu.Lock()
		delete(l.cache, client)
		l.mu.Unlock()
		if !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(l.logger, "policy file unreadable; using default policy", "policy_unreadable",
				zap.String(logging.FieldClient, client),
				zap.Error(err),
				zap.String(logging.FieldErrorHint, "check permissions on the clients directory"),
				zap.String(logging.FieldImpact, "client runs in dry-run with default quotas"),
			)
		}
		return l.defaultPolicy(client, "")
	}

	l.mu.Lock()
	entry, ok := l.cache[client]
	l.mu.Unlock()
	if ok && entry.path == path && entry.modTime.Equal(info.ModTime()) && entry.size == info.Size() {
		return clonePolicy(entry.policy)
	}

	policy := l.read(client, path)

	l.mu.Lock()
	l.reads++
	l.cache[client] = cacheEntry{path: path, modTime: info.ModTime(), size: info.Size(), policy: policy}
	l.mu.Unlock()
	return clonePolicy(policy)
}

// Invalidate drops any cached policy for client.
func (l *Loader) Invalidate(client string) {
	l.mu.Lock()
	delete(l.cache, strings.TrimSpace(client))
	l.mu.Unlock()
}

func (l *Loader) locate(client string) (string, os.FileInfo, error) {
	for _, name := range policyFileNames {
		path := filepath.Join(l.dir, client, name)
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return "", nil, fmt.Errorf("%s is a directory", path)
			}
			return path, info, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", nil, err
		}
	}
	return "", nil, os.ErrNotExist
}

func (l *Loader) read(client, path string) ClientPolicy {
	data, err := os.ReadFile(path)
	if err != nil {
		logging.WarnWithContext(l.logger, "policy file unreadable; using default policy", "policy_unreadable",
			zap.String(logging.FieldClient, client),
			zap.String(logging.FieldPath, path),
			zap.Error(err),
		)
		return l.defaultPolicy(client, path)
	}

	parsed, err := l.parse(data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		logging.WarnWithContext(l.logger, "policy file invalid; using default policy", "policy_invalid",
			zap.String(logging.FieldClient, client),
			zap.String(logging.FieldPath, path),
			zap.Error(err),
			zap.String(logging.FieldErrorHint, "fix the file; quotas must be non-negative integers"),
			zap.String(logging.FieldImpact, "client runs in dry-run with default quotas"),
		)
		return l.defaultPolicy(client, path)
	}

	policy := ClientPolicy{
		Client: client,
		Quotas: l.defaultQuotas(),
		Source: path,
	}
	switch {
	case parsed.LiveModeEnabled != nil:
		policy.LiveModeEnabled = *parsed.LiveModeEnabled
	case parsed.Live != nil:
		policy.LiveModeEnabled = *parsed.Live
	}
	q := parsed.Quotas
	applyQuota(policy.Quotas, queue.ContentFeed, q.Feed, q.FeedPerDay)
	applyQuota(policy.Quotas, queue.ContentReels, q.Reels, q.ReelsPerDay)
	applyQuota(policy.Quotas, queue.ContentStories, q.Stories, q.StoriesPerDay)
	applyQuota(policy.Quotas, queue.ContentWeekly, q.Weekly, q.WeeklyPerDay)

	l.logger.Debug("policy loaded",
		zap.String(logging.FieldClient, client),
		zap.String(logging.FieldPath, path),
		zap.Bool("live", policy.LiveModeEnabled),
	)
	return policy
}

func (l *Loader) parse(data []byte, isJSON bool) (policyFile, error) {
	var parsed policyFile
	if len(bytes.TrimSpace(data)) == 0 {
		return parsed, errors.New("policy file is empty")
	}
	// Tab-indented JSON is not valid YAML, so .json files use the JSON decoder.
	if isJSON {
		if err := json.Unmarshal(data, &parsed); err != nil {
			return parsed, fmt.Errorf("decode policy: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &parsed); err != nil {
		return parsed, fmt.Errorf("decode policy: %w", err)
	}
	if err := l.validate.Struct(parsed); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, ve := range verrs {
				fields = append(fields, ve.Field()+" "+ve.Tag())
			}
			return parsed, fmt.Errorf("validate policy: %s", strings.Join(fields, ", "))
		}
		return parsed, fmt.Errorf("validate policy: %w", err)
	}
	return parsed, nil
}

func (l *Loader) defaultPolicy(client, source string) ClientPolicy {
	return ClientPolicy{
		Client:          client,
		LiveModeEnabled: false,
		Quotas:          l.defaultQuotas(),
		Defaulted:       true,
		Source:          source,
	}
}

func (l *Loader) defaultQuotas() map[queue.ContentType]int {
	quotas := make(map[queue.ContentType]int, 4)
	for _, ct := range queue.AllContentTypes() {
		quotas[ct] = l.defaults.DefaultQuota(string(ct))
	}
	return quotas
}

func applyQuota(quotas map[queue.ContentType]int, ct queue.ContentType, primary, legacy *int) {
	switch {
	case primary != nil:
		quotas[ct] = *primary
	case legacy != nil:
		quotas[ct] = *legacy
	}
}

func clonePolicy(p ClientPolicy) ClientPolicy {
	quotas := make(map[queue.ContentType]int, len(p.Quotas))
	for k, v := range p.Quotas {
		quotas[k] = v
	}
	p.Quotas = quotas
	return p
}

func validClientName(client string) bool {
	if client == "" || client == "." || client == ".." {
		return false
	}
	return !strings.ContainsAny(client, `/\`)
}
