package soundcloud

import (
	"strconv"
	"time"

	"scqueue/internal/core"
	"scqueue/pkg/permalink"
)

// apiUser is the subset of a user object the queue needs.
type apiUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type apiFormat struct {
	Protocol string `json:"protocol"`
	MimeType string `json:"mime_type"`
}

type apiTranscoding struct {
	URL     string    `json:"url"`
	Format  apiFormat `json:"format"`
	Quality string    `json:"quality"`
}

type apiMedia struct {
	Transcodings []apiTranscoding `json:"transcodings"`
}

type apiTrack struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	User         *apiUser  `json:"user"`
	Duration     int64     `json:"duration"`
	PermalinkURL string    `json:"permalink_url"`
	CreatedAt    string    `json:"created_at"`
	DisplayDate  string    `json:"display_date"`
	Genre        *string   `json:"genre"`
	LikesCount   int       `json:"likes_count"`
	Streamable   bool      `json:"streamable"`
	Policy       string    `json:"policy"`
	Media        *apiMedia `json:"media"`
}

// likeItem is one entry of the favorites collection.
type likeItem struct {
	CreatedAt string    `json:"created_at"`
	Track     *apiTrack `json:"track"`
}

// feedItem is one entry of the activity stream.
type feedItem struct {
	Type      string    `json:"type"`
	CreatedAt string    `json:"created_at"`
	Track     *apiTrack `json:"track"`
	User      *apiUser  `json:"user"`
}

type page[T any] struct {
	Collection []T    `json:"collection"`
	NextHref   string `json:"next_href"`
}

// timeLayouts lists the timestamp formats seen in API responses.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006/01/02 15:04:05 -0700",
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// NormalizeLike maps a favorites item onto a Track. Items without a track are rejected.
func NormalizeLike(item likeItem) (core.Track, bool) {
	if item.Track == nil {
		return core.Track{}, false
	}
	t := normalizeTrack(item.Track)
	t.LikedAt = parseTime(item.CreatedAt)
	return t, true
}

// NormalizeFeedItem maps a feed item onto a Track. Only track posts and
// reposts that carry a track are accepted.
func NormalizeFeedItem(item feedItem) (core.Track, bool) {
	if item.Track == nil || (item.Type != core.FeedKindTrack && item.Type != core.FeedKindRepost) {
		return core.Track{}, false
	}
	t := normalizeTrack(item.Track)
	t.FeedKind = item.Type
	t.FeedPostedAt = parseTime(item.CreatedAt)
	if item.Type == core.FeedKindRepost && item.User != nil {
		t.RepostedBy = item.User.Username
	}
	return t, true
}

func normalizeTrack(src *apiTrack) core.Track {
	artist := core.UnknownArtist
	if src.User != nil && src.User.Username != "" {
		artist = src.User.Username
	}

	var genre string
	if src.Genre != nil {
		genre = *src.Genre
	}

	duration := src.Duration
	if duration < 0 {
		duration = 0
	}

	t := core.Track{
		TrackID:      strconv.FormatInt(src.ID, 10),
		Title:        src.Title,
		Artist:       artist,
		DurationMs:   duration,
		DurationMin:  core.DurationMinutes(duration),
		PermalinkURL: permalink.Key(src.PermalinkURL),
		CreatedAt:    parseTime(src.CreatedAt),
		DisplayDate:  parseTime(src.DisplayDate),
		Genre:        genre,
		LikesCount:   src.LikesCount,
		Streamable:   src.Streamable,
		Policy:       src.Policy,
		Transcodings: []core.TranscodingDescriptor{},
	}

	if src.Media != nil {
		for _, tc := range src.Media.Transcodings {
			t.Transcodings = append(t.Transcodings, core.TranscodingDescriptor{
				URL:      tc.URL,
				Protocol: tc.Format.Protocol,
				MimeType: tc.Format.MimeType,
				Quality:  tc.Quality,
			})
		}
	}

	return t
}
