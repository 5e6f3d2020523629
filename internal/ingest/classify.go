package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"autoposter/internal/queue"
)

// ErrUnclassifiable is returned for files outside the <client>/<type>/<file> layout.
var ErrUnclassifiable = errors.New("unclassifiable path")

// Target is where a settled file belongs.
type Target struct {
	Client      string
	ContentType queue.ContentType
	Path        string
	Fallback    bool
}

// Classifier maps absolute paths under root to a client and content type.
type Classifier struct {
	root     string
	fallback queue.ContentType
}

// NewClassifier builds a Classifier. An empty fallback rejects unknown type folders.
func NewClassifier(root string, fallback queue.ContentType) (*Classifier, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve content root: %w", err)
	}
	return &Classifier{root: filepath.Clean(abs), fallback: fallback}, nil
}

// Root returns the cleaned absolute content root.
func (c *Classifier) Root() string { return c.root }

// Classify resolves path. The returned Target.Path is absolute and clean.
func (c *Classifier) Classify(path string) (Target, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrUnclassifiable, err)
	}
	abs = filepath.Clean(abs)
	rel, err := filepath.Rel(c.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return Target{}, fmt.Errorf("%w: %s is outside the content root", ErrUnclassifiable, abs)
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch {
	case len(parts) < 3:
		return Target{}, fmt.Errorf("%w: %s has no client/content type folders", ErrUnclassifiable, rel)
	case len(parts) > 3:
		return Target{}, fmt.Errorf("%w: %s is nested too deep", ErrUnclassifiable, rel)
	}

	client := strings.TrimSpace(parts[0])
	if client == "" || strings.HasPrefix(client, ".") {
		return Target{}, fmt.Errorf("%w: %s has no client folder", ErrUnclassifiable, rel)
	}
	target := Target{Client: client, Path: abs}
	if ct, ok := queue.ParseContentType(parts[1]); ok {
		target.ContentType = ct
		return target, nil
	}
	if c.fallback == "" {
		return Target{}, fmt.Errorf("%w: unknown content type folder %q", ErrUnclassifiable, parts[1])
	}
	target.ContentType = c.fallback
	target.Fallback = true
	return target, nil
}
