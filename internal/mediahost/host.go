// Package mediahost plays resolved streams without an audio device. Segments
// and bytes are fetched and discarded at playback pace, so expired or revoked
// URLs surface as network errors exactly when a real player would hit them.
package mediahost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"scqueue/internal/core"
	"scqueue/internal/player"
)

const (
	defaultTick           = time.Second
	defaultBufferingAfter = 2 * time.Second
	maxPlaylistBody       = 1 << 20
	// unknownLengthChunk is read per tick when the stream length is unknown
	unknownLengthChunk = 64 << 10
)

var errMediaClosed = errors.New("media closed")

// FetchError reports a non-success answer for a playlist, segment or file.
type FetchError struct {
	Status int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("media fetch failed: %d", e.Status)
}

// Config tunes pacing. Zero values pick the defaults.
type Config struct {
	// Tick is the progress reporting interval
	Tick time.Duration
	// Speed multiplies the playback clock
	Speed float64
	// BufferingAfter reports buffering for fetches that take longer than this
	BufferingAfter time.Duration
	Client         *http.Client
}

// Host implements player.MediaHost.
type Host struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates a headless media host.
func New(cfg Config, logger *zap.Logger) *Host {
	if cfg.Tick <= 0 {
		cfg.Tick = defaultTick
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}
	if cfg.BufferingAfter <= 0 {
		cfg.BufferingAfter = defaultBufferingAfter
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Host{cfg: cfg, client: client, logger: logger}
}

// Open starts loading src in the background. Load failures are reported
// through listener, never returned, so they can be recovered like any other
// stream error.
func (h *Host) Open(ctx context.Context, src player.Source, listener player.Listener) (player.Media, error) {
	if src.Protocol != core.ProtocolHLS && src.Protocol != core.ProtocolProgressive {
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedProtocol, src.Protocol)
	}

	ctx, cancel := context.WithCancel(ctx)
	m := &media{
		host:     h,
		src:      src,
		listener: listener,
		ctx:      ctx,
		cancel:   cancel,
		wake:     make(chan struct{}, 1),
		duration: src.Duration,
		reopenAt: -1,
		running:  true,
	}
	go m.run()
	return m, nil
}

type media struct {
	host     *Host
	src      player.Source
	listener player.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wake     chan struct{}

	mu       sync.Mutex
	closed   bool
	running  bool
	playing  bool
	position time.Duration
	duration time.Duration
	lastTick time.Time

	// hls
	list *playlist
	next int

	// progressive, owned by the run goroutine except reopenAt
	body     io.ReadCloser
	size     int64
	read     int64
	reopenAt int64
}

func (m *media) Play() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errMediaClosed
	}
	if !m.playing {
		m.playing = true
		m.lastTick = time.Now()
	}
	m.mu.Unlock()
	m.signal()
	return nil
}

func (m *media) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = m.positionLocked(time.Now())
	m.playing = false
}

func (m *media) Seek(position time.Duration) {
	m.mu.Lock()
	if position < 0 {
		position = 0
	}
	if m.duration > 0 && position > m.duration {
		position = m.duration
	}
	m.position = position
	m.lastTick = time.Now()
	if m.list != nil {
		m.next = m.list.segmentAt(position)
	}
	if m.size > 0 && m.duration > 0 {
		m.reopenAt = int64(float64(m.size) * float64(position) / float64(m.duration))
	}
	m.mu.Unlock()
	m.signal()
}

func (m *media) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positionLocked(time.Now())
}

// RecoverMediaError refetches from the segment at the playhead. A stream that
// stopped on a fatal error is loaded again and reports OnReady once more.
func (m *media) RecoverMediaError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errMediaClosed
	}

	now := time.Now()
	m.position = m.positionLocked(now)
	m.lastTick = now
	if m.list != nil {
		m.next = m.list.segmentAt(m.position)
	}
	if m.running {
		return nil
	}

	if m.size > 0 && m.duration > 0 {
		m.reopenAt = int64(float64(m.size) * float64(m.position) / float64(m.duration))
	}
	m.running = true
	go m.run()
	return nil
}

func (m *media) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.playing = false
	m.mu.Unlock()
	m.cancel()
	return nil
}

func (m *media) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *media) positionLocked(now time.Time) time.Duration {
	pos := m.position
	if m.playing {
		pos += time.Duration(float64(now.Sub(m.lastTick)) * m.host.cfg.Speed)
	}
	if m.duration > 0 && pos > m.duration {
		pos = m.duration
	}
	return pos
}

type tick struct {
	position time.Duration
	duration time.Duration
	playing  bool
	ended    bool
}

// advance moves the clock forward and reports where playback stands.
func (m *media) advance() tick {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.position = m.positionLocked(now)
	m.lastTick = now

	t := tick{position: m.position, duration: m.duration, playing: m.playing}
	if m.playing && m.duration > 0 && m.position >= m.duration {
		m.playing = false
		t.ended = true
	}
	return t
}

// run owns the stream until it ends, fails or the media is closed. Ownership
// is released before a fatal error is reported so the listener may restart it.
func (m *media) run() {
	err := m.stream(m.ctx)

	if m.body != nil {
		_ = m.body.Close()
		m.body = nil
	}
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	if err != nil && m.ctx.Err() == nil {
		m.listener.OnError(classify(err), true, err)
	}
}

func (m *media) stream(ctx context.Context) error {
	if err := m.load(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	duration := m.duration
	m.mu.Unlock()
	m.listener.OnReady(duration)

	ticker := time.NewTicker(m.host.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-m.wake:
		}

		t := m.advance()
		if !t.playing {
			continue
		}

		if err := m.fetchUpTo(ctx, t.position); err != nil {
			return err
		}

		if t.ended {
			m.listener.OnProgress(t.duration, t.duration)
			m.listener.OnEnded()
			return nil
		}
		m.listener.OnProgress(t.position, t.duration)
	}
}

func (m *media) load(ctx context.Context) error {
	if m.src.Protocol == core.ProtocolHLS {
		list, err := m.loadPlaylist(ctx, m.src.URL, true)
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.list = list
		if list.Total > 0 {
			m.duration = list.Total
		}
		m.mu.Unlock()
		m.host.logger.Debug("Loaded playlist",
			zap.Int("segments", len(list.Segments)),
			zap.Duration("duration", list.Total))
		return nil
	}

	m.mu.Lock()
	offset := max(m.reopenAt, 0)
	m.reopenAt = -1
	m.mu.Unlock()
	return m.openProgressive(ctx, offset)
}

func (m *media) loadPlaylist(ctx context.Context, rawURL string, followVariant bool) (*playlist, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid playlist url: %w", err)
	}

	resp, err := m.get(ctx, rawURL, "")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist: %w", err)
	}

	list, err := parsePlaylist(bytes.NewReader(body), base)
	if err != nil {
		return nil, err
	}
	if len(list.Segments) == 0 {
		if !followVariant {
			return nil, fmt.Errorf("%w: nested master playlist", ErrInvalidPlaylist)
		}
		return m.loadPlaylist(ctx, list.Variants[0], false)
	}
	return list, nil
}

func (m *media) openProgressive(ctx context.Context, offset int64) error {
	rangeHeader := ""
	if offset > 0 {
		rangeHeader = fmt.Sprintf("bytes=%d-", offset)
	}
	resp, err := m.get(ctx, m.src.URL, rangeHeader)
	if err != nil {
		return err
	}

	if m.body != nil {
		_ = m.body.Close()
	}
	m.body = resp.Body
	m.read = offset

	if offset == 0 && resp.ContentLength > 0 {
		m.mu.Lock()
		m.size = resp.ContentLength
		m.mu.Unlock()
	}
	return nil
}

func (m *media) fetchUpTo(ctx context.Context, position time.Duration) error {
	m.mu.Lock()
	list := m.list
	m.mu.Unlock()

	if list != nil {
		return m.fetchSegments(ctx, list, position)
	}
	return m.readProgressive(ctx, position)
}

func (m *media) fetchSegments(ctx context.Context, list *playlist, position time.Duration) error {
	for {
		m.mu.Lock()
		target := list.segmentAt(position)
		i := m.next
		m.mu.Unlock()

		if i > target || i >= len(list.Segments) {
			return nil
		}

		if err := m.withBuffering(func() error { return m.discard(ctx, list.Segments[i].URL) }); err != nil {
			return err
		}

		m.mu.Lock()
		if m.next == i {
			m.next = i + 1
		}
		m.mu.Unlock()
	}
}

func (m *media) readProgressive(ctx context.Context, position time.Duration) error {
	m.mu.Lock()
	reopenAt := m.reopenAt
	m.reopenAt = -1
	size, duration := m.size, m.duration
	m.mu.Unlock()

	if reopenAt >= 0 {
		if err := m.withBuffering(func() error { return m.openProgressive(ctx, reopenAt) }); err != nil {
			return err
		}
	}

	want := int64(unknownLengthChunk)
	if size > 0 && duration > 0 {
		want = int64(float64(size)*float64(position)/float64(duration)) - m.read
	}
	if want <= 0 {
		return nil
	}

	n, err := io.CopyN(io.Discard, m.body, want)
	m.read += n
	if errors.Is(err, io.EOF) {
		// streams without a known length end with their body
		m.mu.Lock()
		if m.duration == 0 {
			m.duration = max(m.positionLocked(time.Now()), time.Millisecond)
		}
		m.mu.Unlock()
		return nil
	}
	return err
}

// withBuffering runs fetch and reports buffering while it takes longer than
// the configured threshold.
func (m *media) withBuffering(fetch func() error) error {
	done := make(chan error, 1)
	go func() { done <- fetch() }()

	timer := time.NewTimer(m.host.cfg.BufferingAfter)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
	}

	m.listener.OnBuffering(true)
	err := <-done
	m.listener.OnBuffering(false)
	return err
}

func (m *media) discard(ctx context.Context, rawURL string) error {
	resp, err := m.get(ctx, rawURL, "")
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

// get returns a response with a 2xx status. The caller closes the body.
func (m *media) get(ctx context.Context, rawURL, rangeHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build media request: %w", err)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := m.host.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, &FetchError{Status: resp.StatusCode}
	}
	return resp, nil
}

func classify(err error) player.ErrorClass {
	if errors.Is(err, ErrInvalidPlaylist) {
		return player.ErrorMedia
	}
	return player.ErrorNetwork
}
