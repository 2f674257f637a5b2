package core

import (
	"math"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.App.Language != DefaultLanguage {
		t.Errorf("Expected default language to be %s, got %s", DefaultLanguage, config.App.Language)
	}

	if config.Queue.MinDurationMin != DefaultMinDurationMin {
		t.Errorf("Expected default min duration %d, got %v", DefaultMinDurationMin, config.Queue.MinDurationMin)
	}

	if config.Queue.FeedRatio != 1 || config.Queue.LikesRatio != 3 {
		t.Errorf("Expected default ratio 1:3, got %d:%d", config.Queue.FeedRatio, config.Queue.LikesRatio)
	}

	if config.SoundCloud.FeedMaxItems != 1000 {
		t.Errorf("Expected feed cap 1000, got %d", config.SoundCloud.FeedMaxItems)
	}

	if config.Playback.MaxRecoveryAttempts != 2 {
		t.Errorf("Expected 2 recovery attempts, got %d", config.Playback.MaxRecoveryAttempts)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero page size", func(c *Config) { c.SoundCloud.PageSize = 0 }, true},
		{"zero feed cap", func(c *Config) { c.SoundCloud.FeedMaxItems = 0 }, true},
		{"no rate", func(c *Config) { c.SoundCloud.RequestsPerSecond = 0 }, true},
		{"negative recovery", func(c *Config) { c.Playback.MaxRecoveryAttempts = -1 }, true},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, true},
		{"no store", func(c *Config) { c.Store.Path = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestQueueConfigCoerced(t *testing.T) {
	tests := []struct {
		name string
		in   QueueConfig
		want QueueConfig
	}{
		{"valid", QueueConfig{MinDurationMin: 30, FeedRatio: 1, LikesRatio: 3}, QueueConfig{MinDurationMin: 30, FeedRatio: 1, LikesRatio: 3}},
		{"negative min", QueueConfig{MinDurationMin: -5, FeedRatio: 1, LikesRatio: 1}, QueueConfig{MinDurationMin: 0, FeedRatio: 1, LikesRatio: 1}},
		{"nan min", QueueConfig{MinDurationMin: math.NaN(), FeedRatio: 1, LikesRatio: 1}, QueueConfig{MinDurationMin: 0, FeedRatio: 1, LikesRatio: 1}},
		{"inf min", QueueConfig{MinDurationMin: math.Inf(1), FeedRatio: 1, LikesRatio: 1}, QueueConfig{MinDurationMin: 0, FeedRatio: 1, LikesRatio: 1}},
		{"zero likes", QueueConfig{FeedRatio: 0, LikesRatio: 0}, QueueConfig{FeedRatio: 0, LikesRatio: 1}},
		{"negative feed", QueueConfig{FeedRatio: -2, LikesRatio: 2}, QueueConfig{FeedRatio: 0, LikesRatio: 2}},
		{"above max", QueueConfig{FeedRatio: 50, LikesRatio: 11}, QueueConfig{FeedRatio: MaxRatio, LikesRatio: MaxRatio}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Coerced(); got != tt.want {
				t.Errorf("Coerced() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
