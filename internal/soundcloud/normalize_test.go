package soundcloud

import (
	"testing"
	"time"

	"github.com/goccy/go-json"

	"scqueue/internal/core"
)

func TestNormalizeLike(t *testing.T) {
	raw := `{"created_at":"2023-03-04T05:06:07Z","track":{"id":123,"title":"Set","duration":3726000,
		"permalink_url":"https://m.soundcloud.com/dj/set?in=x","created_at":"2019/06/01 10:00:00 +0000",
		"genre":null,"likes_count":9,"streamable":true,"policy":"ALLOW",
		"media":{"transcodings":[{"url":"u1","format":{"protocol":"hls","mime_type":"audio/mpeg"},"quality":"sq"},
		{"url":"u2","format":{"protocol":"progressive","mime_type":"audio/mpeg"}}]}}}`

	var item likeItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, ok := NormalizeLike(item)
	if !ok {
		t.Fatal("NormalizeLike() rejected a valid item")
	}

	if got.TrackID != "123" {
		t.Errorf("TrackID = %q, want 123", got.TrackID)
	}
	if got.Artist != core.UnknownArtist {
		t.Errorf("Artist = %q, want %q", got.Artist, core.UnknownArtist)
	}
	if got.DurationMin != 62.1 {
		t.Errorf("DurationMin = %v, want 62.1", got.DurationMin)
	}
	if got.Genre != "" {
		t.Errorf("Genre = %q, want empty", got.Genre)
	}
	if got.PermalinkURL != "https://soundcloud.com/dj/set" {
		t.Errorf("PermalinkURL = %q", got.PermalinkURL)
	}
	if got.Year() != 2019 {
		t.Errorf("Year() = %d, want 2019", got.Year())
	}
	if !got.LikedAt.Equal(time.Date(2023, 3, 4, 5, 6, 7, 0, time.UTC)) {
		t.Errorf("LikedAt = %v", got.LikedAt)
	}
	if len(got.Transcodings) != 2 || got.Transcodings[1].Protocol != core.ProtocolProgressive {
		t.Errorf("Transcodings = %+v", got.Transcodings)
	}
}

func TestNormalizeLike_NoTrack(t *testing.T) {
	if _, ok := NormalizeLike(likeItem{CreatedAt: "2023-03-04T05:06:07Z"}); ok {
		t.Error("NormalizeLike() accepted an item without track")
	}
}

func TestNormalizeFeedItem(t *testing.T) {
	track := &apiTrack{ID: 1, Title: "x", User: &apiUser{Username: "up"}, PermalinkURL: "https://soundcloud.com/up/x"}

	tests := []struct {
		name         string
		item         feedItem
		wantOK       bool
		wantReposter string
	}{
		{"track post", feedItem{Type: "track", Track: track, User: &apiUser{Username: "up"}}, true, ""},
		{"repost", feedItem{Type: "track-repost", Track: track, User: &apiUser{Username: "friend"}}, true, "friend"},
		{"playlist", feedItem{Type: "playlist", Track: track}, false, ""},
		{"missing track", feedItem{Type: "track"}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeFeedItem(tt.item)
			if ok != tt.wantOK {
				t.Fatalf("NormalizeFeedItem() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.RepostedBy != tt.wantReposter {
				t.Errorf("RepostedBy = %q, want %q", got.RepostedBy, tt.wantReposter)
			}
			if ok && len(got.Transcodings) != 0 {
				t.Errorf("Transcodings = %v, want empty", got.Transcodings)
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2020-01-02T03:04:05Z", time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2020/01/02 03:04:05 +0100", time.Date(2020, 1, 2, 2, 4, 5, 0, time.UTC)},
		{"garbage", time.Time{}},
	}

	for _, tt := range tests {
		if got := parseTime(tt.in); !got.Equal(tt.want) {
			t.Errorf("parseTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
