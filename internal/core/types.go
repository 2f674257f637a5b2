package core

import (
	"context"
	"math"
	"time"
)

// Source tags where a queue entry came from
type Source string

const (
	// SourceLikes marks entries picked from the favorites collection
	SourceLikes Source = "likes"
	// SourceFeed marks entries picked from the feed collection
	SourceFeed Source = "feed"
)

const (
	// ProtocolHLS is the segmented streaming protocol
	ProtocolHLS = "hls"
	// ProtocolProgressive is a direct, non-segmented download
	ProtocolProgressive = "progressive"

	// UnknownArtist is used when the catalog has no uploader name
	UnknownArtist = "Unknown"

	// FeedKindTrack is a feed item posted by a followed account
	FeedKindTrack = "track"
	// FeedKindRepost is a feed item reposted by a followed account
	FeedKindRepost = "track-repost"
)

// TranscodingDescriptor points at an endpoint that resolves to a playable URL.
// The URL itself is never directly playable.
type TranscodingDescriptor struct {
	URL      string `json:"url"`
	Protocol string `json:"protocol"`
	MimeType string `json:"mime_type"`
	Quality  string `json:"quality,omitempty"`
}

// Track is the normalized view of a catalog item.
type Track struct {
	TrackID      string                  `json:"track_id"`
	Title        string                  `json:"title"`
	Artist       string                  `json:"artist"`
	DurationMs   int64                   `json:"duration_ms"`
	DurationMin  float64                 `json:"duration_min"`
	PermalinkURL string                  `json:"permalink_url"`
	CreatedAt    time.Time               `json:"created_at"`
	DisplayDate  time.Time               `json:"display_date"`
	Genre        string                  `json:"genre,omitempty"`
	LikesCount   int                     `json:"likes_count"`
	Streamable   bool                    `json:"streamable"`
	Policy       string                  `json:"policy,omitempty"`
	Transcodings []TranscodingDescriptor `json:"media_transcodings"`

	// Favorites provenance
	LikedAt time.Time `json:"liked_at"`

	// Feed provenance
	FeedPostedAt time.Time `json:"feed_posted_at"`
	FeedKind     string    `json:"feed_type,omitempty"`
	RepostedBy   string    `json:"reposted_by,omitempty"`
}

// DurationMinutes converts milliseconds to minutes rounded to one decimal.
func DurationMinutes(ms int64) float64 {
	return math.Round(float64(ms)/60000*10) / 10
}

// Playable reports whether the track has at least one transcoding.
func (t *Track) Playable() bool {
	return len(t.Transcodings) > 0
}

// Year returns the calendar year the track was uploaded or released.
func (t *Track) Year() int {
	return t.CreatedAt.UTC().Year()
}

// Duration returns the track length.
func (t *Track) Duration() time.Duration {
	return time.Duration(t.DurationMs) * time.Millisecond
}

// QueueEntry is a track tagged with the collection it was picked from.
type QueueEntry struct {
	Track
	Source Source `json:"source"`
}

// Queue is an ordered list of entries owned by the caller once generated.
type Queue []QueueEntry

// IndexOf returns the position of the entry with the given permalink, or -1.
func (q Queue) IndexOf(permalinkURL string) int {
	for i := range q {
		if q[i].PermalinkURL == permalinkURL {
			return i
		}
	}
	return -1
}

// Auth is the credential pair used for API and resolve requests.
// Empty fields mean "not authenticated".
type Auth struct {
	OAuthToken string
	ClientID   string
}

// Valid reports whether both credential parts are present.
func (a Auth) Valid() bool {
	return a.OAuthToken != "" && a.ClientID != ""
}

// CredentialSource provides credentials. Implementations own caching and refresh.
type CredentialSource interface {
	Auth(ctx context.Context) (Auth, error)
}

// ProgressFunc receives human readable progress messages. It may be nil.
type ProgressFunc func(msg string)

// TrackSource retrieves the raw collections a queue is generated from.
type TrackSource interface {
	FetchFavorites(ctx context.Context, progress ProgressFunc) ([]Track, error)
	FetchFeed(ctx context.Context, progress ProgressFunc) ([]Track, error)
}

// Collection names a cached track collection
type Collection string

const (
	// CollectionLikes holds the favorites collection
	CollectionLikes Collection = "likes"
	// CollectionFeed holds the feed collection
	CollectionFeed Collection = "feed"
)

// State is the persisted deck state.
type State struct {
	Queue        Queue       `json:"queue"`
	CurrentIndex int         `json:"current_index"`
	Settings     QueueConfig `json:"settings"`
	SavedAt      time.Time   `json:"saved_at"`
}

// Validate rejects states written by older schemas. Every entry must carry transcodings.
func (s *State) Validate() error {
	if len(s.Queue) == 0 {
		return ErrIncompatibleState
	}
	for i := range s.Queue {
		if !s.Queue[i].Playable() {
			return ErrIncompatibleState
		}
	}
	if s.CurrentIndex < -1 || s.CurrentIndex >= len(s.Queue) {
		s.CurrentIndex = -1
	}
	return nil
}

// StateStore persists deck state and caches fetched collections.
type StateStore interface {
	SaveState(ctx context.Context, state *State) error
	// LoadState returns nil without error when nothing was saved yet
	LoadState(ctx context.Context) (*State, error)
	SaveCollection(ctx context.Context, name Collection, tracks []Track) error
	// LoadCollection reports false when the collection is not cached
	LoadCollection(ctx context.Context, name Collection) ([]Track, bool, error)
	ClearCollections(ctx context.Context) error
}

// PlaybackEventType enumerates events emitted by the playback controller
type PlaybackEventType string

const (
	// EventStarted is emitted when a loaded stream starts playing
	EventStarted PlaybackEventType = "started"
	// EventProgress carries position and duration updates
	EventProgress PlaybackEventType = "progress"
	// EventBuffering reports transient stalls
	EventBuffering PlaybackEventType = "buffering"
	// EventPlayState reports play/pause changes
	EventPlayState PlaybackEventType = "play_state"
	// EventRecovering is emitted before a stream URL is re-resolved
	EventRecovering PlaybackEventType = "recovering"
	// EventEnded is emitted when a track finished playing
	EventEnded PlaybackEventType = "ended"
	// EventFailed is emitted on terminal failure of the current track
	EventFailed PlaybackEventType = "failed"
)

// PlaybackEvent is a discrete notification from the playback controller.
type PlaybackEvent struct {
	Type      PlaybackEventType
	SessionID string
	TrackID   string
	Position  time.Duration
	Duration  time.Duration
	Buffering bool
	Playing   bool
	Attempt   int
	Err       error
}

// Player is the playback surface the deck drives.
type Player interface {
	LoadTrack(ctx context.Context, track Track, autoplay bool) error
	Play()
	Pause()
	Toggle()
	SeekTo(fraction float64)
	Subscribe() (<-chan PlaybackEvent, func())
}

// Metrics records operational counters. Implemented by the HTTP server.
type Metrics interface {
	RecordGeneration(likes, feed int, duration time.Duration)
	RecordResolve(status string)
	RecordRecovery(outcome string)
	RecordPlaybackFailure(kind string)
	SetQueueLength(n int)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) RecordGeneration(int, int, time.Duration) {}
func (NopMetrics) RecordResolve(string)                     {}
func (NopMetrics) RecordRecovery(string)                    {}
func (NopMetrics) RecordPlaybackFailure(string)             {}
func (NopMetrics) SetQueueLength(int)                       {}
