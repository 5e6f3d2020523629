// Package captions derives a default caption from a media file name.
package captions

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxTags caps the number of hashtags taken from a file name.
const MaxTags = 6

var (
	separators = regexp.MustCompile(`[-_ ]+`)
	lower      = cases.Lower(language.Und)

	// Editing leftovers that make poor hashtags.
	ignoredWords = map[string]struct{}{
		"final":  {},
		"export": {},
		"edit":   {},
		"clip":   {},
		"image":  {},
		"video":  {},
		"vid":    {},
		"img":    {},
	}
)

// Keywords returns up to MaxTags lowercase words from the file's base name,
// with accents folded and editing leftovers removed.
func Keywords(path string) []string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = fold(base)

	var words []string
	for _, part := range separators.Split(base, -1) {
		word := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, lower.String(part))
		if word == "" {
			continue
		}
		if _, skip := ignoredWords[word]; skip {
			continue
		}
		words = append(words, word)
		if len(words) == MaxTags {
			break
		}
	}
	return words
}

// Hashtags renders keywords as space separated tags, skipping single letters.
func Hashtags(words []string) string {
	tags := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) < 2 {
			continue
		}
		tags = append(tags, "#"+w)
	}
	return strings.Join(tags, " ")
}

// FromFilename builds the default caption for path, dated in now's zone.
func FromFilename(path, client string, now time.Time) string {
	lines := []string{"New drop • " + now.Format("Jan 02")}
	if tags := Hashtags(Keywords(path)); tags != "" {
		lines = append(lines, tags)
	}
	if client = strings.TrimSpace(client); client != "" {
		lines = append(lines, "Follow @"+client+" for daily drops.")
	}
	return strings.Join(lines, "\n")
}

func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
