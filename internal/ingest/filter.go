package ingest

import (
	"path/filepath"
	"strings"
)

var junkNames = map[string]struct{}{
	"thumbs.db":   {},
	"desktop.ini": {},
	".ds_store":   {},
}

var partialSuffixes = []string{".part", ".partial", ".crdownload", ".download", ".tmp"}

// Filter decides whether a file name is worth enqueuing.
type Filter struct {
	extensions map[string]struct{}
}

// NewFilter accepts the given extensions (lower-case, leading dot).
func NewFilter(extensions map[string]struct{}) *Filter {
	return &Filter{extensions: extensions}
}

// Accept returns "" when path is an acceptable media file, otherwise a short
// rejection reason.
func (f *Filter) Accept(path string) string {
	name := filepath.Base(path)
	lower := strings.ToLower(name)
	switch {
	case name == "" || name == "." || name == string(filepath.Separator):
		return "empty name"
	case strings.HasPrefix(name, "."):
		return "hidden file"
	case strings.HasPrefix(name, "~$"):
		return "lock file"
	case strings.HasSuffix(name, "~"):
		return "backup file"
	}
	if _, ok := junkNames[lower]; ok {
		return "system file"
	}
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return "partial download"
		}
	}
	if _, ok := f.extensions[filepath.Ext(lower)]; !ok {
		return "unsupported extension"
	}
	return ""
}
