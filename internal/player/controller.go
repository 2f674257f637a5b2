package player

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"scqueue/internal/core"
	"scqueue/internal/stream"
)

// Resolver turns a track into a playable stream.
type Resolver interface {
	Resolve(ctx context.Context, track *core.Track) (*stream.Stream, error)
}

// Status is a read-only snapshot of the controller.
type Status struct {
	State            State         `json:"state"`
	SessionID        string        `json:"session_id,omitempty"`
	Track            *core.Track   `json:"track,omitempty"`
	Position         time.Duration `json:"position"`
	Duration         time.Duration `json:"duration"`
	RecoveryAttempts int           `json:"recovery_attempts"`
}

// Controller owns the active playback session. All state is guarded by mu;
// stream resolution runs unlocked and re-validates the session afterwards.
type Controller struct {
	mu          sync.Mutex
	resolver    Resolver
	host        MediaHost
	bus         *Bus
	metrics     core.Metrics
	logger      *zap.Logger
	maxAttempts int

	ctx    context.Context
	cancel context.CancelFunc

	state   State
	session *Session
}

// NewController creates an idle controller.
func NewController(
	cfg core.PlaybackConfig,
	resolver Resolver,
	host MediaHost,
	metrics core.Metrics,
	logger *zap.Logger,
) *Controller {
	if metrics == nil {
		metrics = core.NopMetrics{}
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		resolver:    resolver,
		host:        host,
		bus:         NewBus(),
		metrics:     metrics,
		logger:      logger,
		maxAttempts: cfg.MaxRecoveryAttempts,
		ctx:         ctx,
		cancel:      cancel,
		state:       StateIdle,
	}
}

// Subscribe returns a channel of playback events and a func to stop receiving them.
func (c *Controller) Subscribe() (<-chan core.PlaybackEvent, func()) {
	return c.bus.Subscribe()
}

// LoadTrack starts a new session for track. The previous media is torn down
// and any in-flight recovery for it is discarded. Resolution errors are
// returned and also reported as a Failed event.
func (c *Controller) LoadTrack(ctx context.Context, track core.Track, autoplay bool) error {
	c.mu.Lock()
	if c.session != nil {
		c.session.detach()
	}
	sess := newSession(track, autoplay)
	c.session = sess
	c.setStateLocked(StateLoading)
	c.mu.Unlock()

	c.logger.Info("Loading track",
		zap.String("session_id", sess.ID),
		zap.String("track_id", track.TrackID),
		zap.String("title", track.Title))

	resolved, err := c.resolver.Resolve(ctx, &track)
	if err != nil {
		c.fail(sess, err)
		return err
	}

	return c.open(sess, resolved)
}

// open attaches new media for sess unless sess was superseded in the meantime.
func (c *Controller) open(sess *Session, resolved *stream.Stream) error {
	c.mu.Lock()
	if c.session != sess {
		c.mu.Unlock()
		c.logger.Debug("Discarding stream for superseded session", zap.String("session_id", sess.ID))
		return nil
	}
	sess.generation++
	gen := sess.generation
	c.mu.Unlock()

	src := Source{
		URL:      resolved.URL,
		Protocol: resolved.Protocol,
		MimeType: resolved.MimeType,
		Duration: sess.Track.Duration(),
	}
	media, err := c.host.Open(c.ctx, src, &mediaListener{c: c, sessionID: sess.ID, generation: gen})
	if err != nil {
		c.fail(sess, err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != sess || sess.generation != gen {
		_ = media.Close()
		return nil
	}
	sess.media = media
	if sess.pendingReady {
		sess.pendingReady = false
		c.handleReadyLocked(sess, sess.pendingDuration)
	}
	return nil
}

// Play starts or resumes playback. No-op without an active media session.
func (c *Controller) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.session
	if sess == nil || sess.media == nil {
		return
	}
	sess.autoplay = true
	if !sess.ready {
		return
	}
	c.startLocked(sess)
}

// Pause pauses playback. No-op without an active media session.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.session
	if sess == nil || sess.media == nil {
		return
	}
	sess.autoplay = false
	if !sess.ready {
		return
	}
	sess.media.Pause()
	c.setStateLocked(StatePaused)
	c.publishLocked(core.PlaybackEvent{Type: core.EventPlayState, Playing: false})
}

// Toggle flips between playing and paused.
func (c *Controller) Toggle() {
	c.mu.Lock()
	playing := c.state.active()
	c.mu.Unlock()

	if playing {
		c.Pause()
	} else {
		c.Play()
	}
}

// SeekTo jumps to fraction of the known duration. Fractions are clamped to
// [0, 1]. No-op without an active media session or a known duration.
func (c *Controller) SeekTo(fraction float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.session
	if sess == nil || sess.media == nil || sess.Duration <= 0 {
		return
	}
	if math.IsNaN(fraction) || fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	pos := time.Duration(float64(sess.Duration) * fraction)
	sess.media.Seek(pos)
	sess.LastKnownPosition = pos
	c.publishLocked(core.PlaybackEvent{Type: core.EventProgress, Position: pos, Duration: sess.Duration})
}

// Snapshot returns the current controller status.
func (c *Controller) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: c.state}
	if sess := c.session; sess != nil {
		track := sess.Track
		st.SessionID = sess.ID
		st.Track = &track
		st.Position = sess.LastKnownPosition
		st.Duration = sess.Duration
		st.RecoveryAttempts = sess.RecoveryAttempts
	}
	return st
}

// Close tears down the active media and closes all subscriptions.
func (c *Controller) Close() {
	c.cancel()

	c.mu.Lock()
	if c.session != nil {
		c.session.detach()
	}
	c.setStateLocked(StateIdle)
	c.mu.Unlock()

	c.bus.Close()
}

func (c *Controller) startLocked(sess *Session) {
	if err := sess.media.Play(); err != nil {
		c.logger.Warn("Media refused to play", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}
	c.setStateLocked(StatePlaying)
	if !sess.started {
		sess.started = true
		c.publishLocked(core.PlaybackEvent{Type: core.EventStarted, Duration: sess.Duration})
	}
	c.publishLocked(core.PlaybackEvent{Type: core.EventPlayState, Playing: true})
}

func (c *Controller) handleReadyLocked(sess *Session, duration time.Duration) {
	sess.ready = true
	if duration > 0 {
		sess.Duration = duration
	}

	wasRecovering := sess.recovering
	if wasRecovering {
		sess.recovering = false
		if sess.resumeAt > 0 {
			sess.media.Seek(sess.resumeAt)
			sess.LastKnownPosition = sess.resumeAt
		}
		c.metrics.RecordRecovery("recovered")
		c.logger.Info("Stream recovered",
			zap.String("session_id", sess.ID),
			zap.Int("attempt", sess.RecoveryAttempts),
			zap.Duration("position", sess.resumeAt))
	}

	switch {
	case sess.autoplay:
		c.startLocked(sess)
	case wasRecovering:
		c.setStateLocked(StatePaused)
	}
}

func (c *Controller) handleErrorLocked(sess *Session, class ErrorClass, err error) {
	switch class {
	case ErrorNetwork:
		next, action := OnNetworkFatal(RecoveryState{
			Attempts:    sess.RecoveryAttempts,
			MaxAttempts: c.maxAttempts,
			HasTrack:    sess.Track.Playable(),
		})
		sess.RecoveryAttempts = next.Attempts

		if action == ActionGiveUp {
			c.metrics.RecordRecovery("exhausted")
			c.failLocked(sess, fmt.Errorf("%w: %w: %w", core.ErrRecoveryExhausted, core.ErrStreamNetworkFatal, err))
			return
		}

		if sess.media != nil {
			sess.resumeAt = sess.media.Position()
		}
		if sess.resumeAt == 0 {
			sess.resumeAt = sess.LastKnownPosition
		}
		sess.autoplay = sess.autoplay || c.state.active()
		sess.recovering = true
		sess.detach()

		c.setStateLocked(StateRecovering)
		c.publishLocked(core.PlaybackEvent{Type: core.EventRecovering, Attempt: sess.RecoveryAttempts, Position: sess.resumeAt})
		c.logger.Warn("Stream network error, re-resolving",
			zap.String("session_id", sess.ID),
			zap.Int("attempt", sess.RecoveryAttempts),
			zap.Int("max_attempts", c.maxAttempts),
			zap.Duration("position", sess.resumeAt),
			zap.Error(err))

		go c.recover(sess)

	case ErrorMedia:
		next, action := OnMediaFatal(sess.MediaRepairs)
		sess.MediaRepairs = next
		// without attached media there is nothing to repair in place
		if action == ActionGiveUp || sess.media == nil {
			c.metrics.RecordRecovery("exhausted")
			c.failLocked(sess, fmt.Errorf("%w: %w: %w", core.ErrRecoveryExhausted, core.ErrStreamMediaFatal, err))
			return
		}
		c.logger.Warn("Stream media error, repairing decoder", zap.String("session_id", sess.ID), zap.Error(err))
		if repairErr := sess.media.RecoverMediaError(); repairErr != nil {
			c.metrics.RecordRecovery("exhausted")
			c.failLocked(sess, fmt.Errorf("%w: %w: %w", core.ErrRecoveryExhausted, core.ErrStreamMediaFatal, repairErr))
		}

	default:
		c.failLocked(sess, err)
	}
}

// recover re-resolves the stream for sess and reopens media at the saved position.
func (c *Controller) recover(sess *Session) {
	track := sess.Track
	resolved, err := c.resolver.Resolve(c.ctx, &track)

	c.mu.Lock()
	superseded := c.session != sess
	c.mu.Unlock()
	if superseded {
		c.logger.Debug("Discarding recovery for superseded session", zap.String("session_id", sess.ID))
		return
	}

	if err != nil {
		c.metrics.RecordRecovery("resolve_failed")
		c.fail(sess, fmt.Errorf("%w: %w", core.ErrRecoveryExhausted, err))
		return
	}

	if err := c.open(sess, resolved); err != nil {
		c.logger.Warn("Failed to reopen recovered stream", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

func (c *Controller) fail(sess *Session, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != sess {
		return
	}
	c.failLocked(sess, err)
}

func (c *Controller) failLocked(sess *Session, err error) {
	sess.detach()
	c.setStateLocked(StateFailed)
	c.metrics.RecordPlaybackFailure(core.ErrorKind(err))
	c.publishLocked(core.PlaybackEvent{Type: core.EventFailed, Err: err})
	c.logger.Error("Playback failed",
		zap.String("session_id", sess.ID),
		zap.String("track_id", sess.Track.TrackID),
		zap.String("kind", core.ErrorKind(err)),
		zap.Error(err))
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("Playback state change", zap.Stringer("from", c.state), zap.Stringer("to", s))
	c.state = s
}

func (c *Controller) publishLocked(ev core.PlaybackEvent) {
	if c.session != nil {
		ev.SessionID = c.session.ID
		ev.TrackID = c.session.Track.TrackID
	}
	c.bus.Publish(ev)
}

// current returns the session a listener belongs to, or nil when it went stale.
func (c *Controller) current(sessionID string, generation uint64) *Session {
	sess := c.session
	if sess == nil || sess.ID != sessionID || sess.generation != generation {
		return nil
	}
	return sess
}

// mediaListener binds host callbacks to one (session, media generation) pair.
type mediaListener struct {
	c          *Controller
	sessionID  string
	generation uint64
}

func (l *mediaListener) OnReady(duration time.Duration) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.current(l.sessionID, l.generation)
	if sess == nil {
		return
	}
	if sess.media == nil {
		sess.pendingReady = true
		sess.pendingDuration = duration
		return
	}
	c.handleReadyLocked(sess, duration)
}

func (l *mediaListener) OnProgress(position, duration time.Duration) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.current(l.sessionID, l.generation)
	if sess == nil {
		return
	}
	sess.LastKnownPosition = position
	if duration > 0 {
		sess.Duration = duration
	}
	c.publishLocked(core.PlaybackEvent{Type: core.EventProgress, Position: position, Duration: sess.Duration})
}

func (l *mediaListener) OnBuffering(buffering bool) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current(l.sessionID, l.generation) == nil {
		return
	}
	switch {
	case buffering && c.state == StatePlaying:
		c.setStateLocked(StateBuffering)
	case !buffering && c.state == StateBuffering:
		c.setStateLocked(StatePlaying)
	}
	c.publishLocked(core.PlaybackEvent{Type: core.EventBuffering, Buffering: buffering})
}

func (l *mediaListener) OnEnded() {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.current(l.sessionID, l.generation)
	if sess == nil {
		return
	}
	sess.detach()
	c.setStateLocked(StateEnded)
	c.publishLocked(core.PlaybackEvent{Type: core.EventEnded, Position: sess.LastKnownPosition, Duration: sess.Duration})
}

func (l *mediaListener) OnError(class ErrorClass, fatal bool, err error) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.current(l.sessionID, l.generation)
	if sess == nil {
		return
	}
	if err == nil {
		err = errors.New("unspecified media error")
	}
	if !fatal {
		c.logger.Debug("Non-fatal media error", zap.Stringer("class", class), zap.Error(err))
		return
	}
	c.handleErrorLocked(sess, class, err)
}
