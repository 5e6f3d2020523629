package captions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeywords(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"content/acme/feed/Summer_Sale-final.jpg", []string{"summer", "sale"}},
		{"Café Opening EDIT.mp4", []string{"cafe", "opening"}},
		{"a-b-c-d-e-f-g-h.png", []string{"a", "b", "c", "d", "e", "f"}},
		{"img_video_clip.jpg", nil},
		{"launch!!_day.jpg", []string{"launch", "day"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Keywords(tt.path), tt.path)
	}
}

func TestHashtagsSkipsSingleLetters(t *testing.T) {
	assert.Equal(t, "#sale #go", Hashtags([]string{"sale", "x", "go"}))
	assert.Equal(t, "", Hashtags(nil))
}

func TestFromFilename(t *testing.T) {
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

	got := FromFilename("/x/acme/feed/spring_menu.jpg", "acme", now)
	assert.Equal(t, "New drop • Mar 09\n#spring #menu\nFollow @acme for daily drops.", got)

	got = FromFilename("/x/acme/feed/IMG.jpg", "", now)
	assert.Equal(t, "New drop • Mar 09", got)
}
