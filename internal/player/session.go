package player

import (
	"time"

	"github.com/google/uuid"

	"scqueue/internal/core"
)

// Session is the state of one LoadTrack call. It is replaced wholesale by the
// next LoadTrack, which makes every callback and recovery bound to the old one stale.
type Session struct {
	ID                string
	Track             core.Track
	RecoveryAttempts  int
	MediaRepairs      int
	LastKnownPosition time.Duration
	Duration          time.Duration

	media      Media
	generation uint64
	autoplay   bool
	ready      bool
	started    bool
	recovering bool
	resumeAt   time.Duration

	// pendingReady holds an OnReady that arrived before Open returned
	pendingReady    bool
	pendingDuration time.Duration
}

func newSession(track core.Track, autoplay bool) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Track:    track,
		Duration: track.Duration(),
		autoplay: autoplay,
	}
}

// detach closes the current media and bumps the generation so its callbacks go stale.
func (s *Session) detach() {
	s.generation++
	s.ready = false
	s.pendingReady = false
	if s.media != nil {
		_ = s.media.Close()
		s.media = nil
	}
}
