package core

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Configuration constants
const (
	// DefaultAPIBaseURL is the public API root of the catalog
	DefaultAPIBaseURL = "https://api-v2.soundcloud.com"

	// DefaultPageSize is the number of items requested per collection page
	DefaultPageSize = 200

	// DefaultFeedMaxItems caps the number of feed items fetched
	DefaultFeedMaxItems = 1000

	// DefaultRequestsPerSecond paces collection pagination
	DefaultRequestsPerSecond = 4.0

	// DefaultMinDurationMin drops tracks shorter than this many minutes
	DefaultMinDurationMin = 30

	// DefaultFeedRatio is the number of feed entries per interleave cycle
	DefaultFeedRatio = 1

	// DefaultLikesRatio is the number of likes entries per interleave cycle
	DefaultLikesRatio = 3

	// MaxRatio is the upper bound for both interleave ratios
	MaxRatio = 10

	// MaxRecoveryAttempts bounds stream URL re-resolutions per playback session
	MaxRecoveryAttempts = 2

	// DefaultResolveTimeout bounds a single stream resolve request
	DefaultResolveTimeout = 15 * time.Second

	// DefaultServerPort is the default HTTP port
	DefaultServerPort = 8080

	// DefaultFloodLimitPerMinute bounds queue generations per client and minute
	DefaultFloodLimitPerMinute = 6

	// DefaultLanguage is the default language for user-facing messages
	DefaultLanguage = "en"
)

type Config struct {
	SoundCloud SoundCloudConfig
	Queue      QueueConfig
	Playback   PlaybackConfig
	Store      StoreConfig
	Server     ServerConfig
	Log        LogConfig
	App        AppConfig
}

type SoundCloudConfig struct {
	APIBaseURL        string
	ClientID          string
	OAuthToken        string
	TokenPath         string
	PageSize          int
	FeedMaxItems      int
	RequestsPerSecond float64
}

// QueueConfig holds the user-tunable generation settings.
type QueueConfig struct {
	MinDurationMin float64 `json:"min_duration"`
	FeedRatio      int     `json:"feed_ratio"`
	LikesRatio     int     `json:"likes_ratio"`
	// Seed fixes the generator RNG when non-zero
	Seed int64 `json:"-"`
}

// Coerced returns a copy with every field clamped into its valid range.
func (c QueueConfig) Coerced() QueueConfig {
	out := c
	if math.IsNaN(out.MinDurationMin) || math.IsInf(out.MinDurationMin, 0) || out.MinDurationMin < 0 {
		out.MinDurationMin = 0
	}
	if out.LikesRatio < 1 {
		out.LikesRatio = 1
	}
	if out.LikesRatio > MaxRatio {
		out.LikesRatio = MaxRatio
	}
	if out.FeedRatio < 0 {
		out.FeedRatio = 0
	}
	if out.FeedRatio > MaxRatio {
		out.FeedRatio = MaxRatio
	}
	return out
}

type PlaybackConfig struct {
	MaxRecoveryAttempts int
	Autoplay            bool
	ResolveTimeout      time.Duration
}

type StoreConfig struct {
	Path string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	Language            string
	FloodLimitPerMinute int
}

func DefaultConfig() *Config {
	return &Config{
		SoundCloud: SoundCloudConfig{
			APIBaseURL:        DefaultAPIBaseURL,
			TokenPath:         "./soundcloud_token.json",
			PageSize:          DefaultPageSize,
			FeedMaxItems:      DefaultFeedMaxItems,
			RequestsPerSecond: DefaultRequestsPerSecond,
		},
		Queue: QueueConfig{
			MinDurationMin: DefaultMinDurationMin,
			FeedRatio:      DefaultFeedRatio,
			LikesRatio:     DefaultLikesRatio,
		},
		Playback: PlaybackConfig{
			MaxRecoveryAttempts: MaxRecoveryAttempts,
			Autoplay:            true,
			ResolveTimeout:      DefaultResolveTimeout,
		},
		Store: StoreConfig{
			Path: "./scqueue.db",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         DefaultServerPort,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			Language:            DefaultLanguage,
			FloodLimitPerMinute: DefaultFloodLimitPerMinute,
		},
	}
}

// Validate reports settings that would prevent the service from running.
func (c *Config) Validate() error {
	var errs []error

	if c.SoundCloud.APIBaseURL == "" {
		errs = append(errs, errors.New("soundcloud api base url is required"))
	}
	if c.SoundCloud.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("page size must be positive, got %d", c.SoundCloud.PageSize))
	}
	if c.SoundCloud.FeedMaxItems <= 0 {
		errs = append(errs, fmt.Errorf("feed max items must be positive, got %d", c.SoundCloud.FeedMaxItems))
	}
	if c.SoundCloud.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("requests per second must be positive, got %v", c.SoundCloud.RequestsPerSecond))
	}
	if c.Playback.MaxRecoveryAttempts < 0 {
		errs = append(errs, fmt.Errorf("max recovery attempts must not be negative, got %d", c.Playback.MaxRecoveryAttempts))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port %d", c.Server.Port))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store path is required"))
	}

	return errors.Join(errs...)
}
