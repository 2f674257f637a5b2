package player

import (
	"context"
	"time"
)

// ErrorClass groups media errors by how they can be recovered.
type ErrorClass int

const (
	// ErrorNetwork covers fetch failures such as expired signed URLs
	ErrorNetwork ErrorClass = iota
	// ErrorMedia covers decoder failures
	ErrorMedia
	// ErrorOther covers everything that cannot be recovered
	ErrorOther
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorNetwork:
		return "network"
	case ErrorMedia:
		return "media"
	default:
		return "other"
	}
}

// Source describes a resolved stream to open.
type Source struct {
	URL      string
	Protocol string
	MimeType string
	// Duration is the catalog length, used when the stream does not report one
	Duration time.Duration
}

// Listener receives callbacks for one opened media. Callbacks from media that
// has been superseded are ignored by the controller.
type Listener interface {
	OnReady(duration time.Duration)
	OnProgress(position, duration time.Duration)
	OnBuffering(buffering bool)
	OnEnded()
	OnError(class ErrorClass, fatal bool, err error)
}

// Media is a single opened stream. Implementations must not invoke the
// Listener synchronously from these methods.
type Media interface {
	Play() error
	Pause()
	Seek(position time.Duration)
	Position() time.Duration
	RecoverMediaError() error
	// Close is idempotent
	Close() error
}

// MediaHost opens streams. ctx bounds the lifetime of the returned media.
type MediaHost interface {
	Open(ctx context.Context, src Source, listener Listener) (Media, error)
}
