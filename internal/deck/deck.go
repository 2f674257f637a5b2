// Package deck coordinates the track collections, the generated queue and the player.
package deck

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"scqueue/internal/core"
	"scqueue/internal/queue"
)

var (
	// ErrIndexOutOfRange is returned for queue positions that do not exist
	ErrIndexOutOfRange = errors.New("queue index out of range")
	// ErrEndOfQueue is returned by Next on the last entry
	ErrEndOfQueue = errors.New("end of queue")
	// ErrStartOfQueue is returned by Prev on the first entry
	ErrStartOfQueue = errors.New("start of queue")
	// ErrGenerateInProgress is returned when a generation is already running
	ErrGenerateInProgress = errors.New("queue generation already in progress")
)

// Snapshot is a copy of the deck state safe to hand out.
type Snapshot struct {
	Queue          core.Queue       `json:"queue"`
	CurrentIndex   int              `json:"current_index"`
	Settings       core.QueueConfig `json:"settings"`
	FavoritesCount int              `json:"favorites_count"`
	FeedCount      int              `json:"feed_count"`
	Generating     bool             `json:"generating"`
}

// Current returns the entry at CurrentIndex, or nil.
func (s *Snapshot) Current() *core.QueueEntry {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Queue) {
		return nil
	}
	return &s.Queue[s.CurrentIndex]
}

type userIDClearer interface {
	ClearUserID()
}

// Deck owns the queue and drives the player through it.
type Deck struct {
	source   core.TrackSource
	store    core.StateStore
	player   core.Player
	metrics  core.Metrics
	logger   *zap.Logger
	autoplay bool

	mu        sync.Mutex
	rng       *rand.Rand
	favorites []core.Track
	feed      []core.Track
	queue     core.Queue
	current   int
	settings  core.QueueConfig

	generating sync.Mutex
	busy       bool
}

// New creates a deck with settings as the initial queue settings.
func New(
	source core.TrackSource,
	store core.StateStore,
	player core.Player,
	metrics core.Metrics,
	settings core.QueueConfig,
	autoplay bool,
	logger *zap.Logger,
) *Deck {
	if metrics == nil {
		metrics = core.NopMetrics{}
	}
	return &Deck{
		source:   source,
		store:    store,
		player:   player,
		metrics:  metrics,
		logger:   logger,
		autoplay: autoplay,
		rng:      queue.NewRand(settings.Seed),
		current:  -1,
		settings: settings.Coerced(),
	}
}

// Restore loads the persisted queue and cached collections. It reports whether a
// queue was restored. Incompatible saved states are discarded.
func (d *Deck) Restore(ctx context.Context) (bool, error) {
	state, err := d.store.LoadState(ctx)
	switch {
	case errors.Is(err, core.ErrIncompatibleState):
		d.logger.Warn("Discarding incompatible saved state", zap.Error(err))
		state = nil
	case err != nil:
		return false, fmt.Errorf("failed to restore state: %w", err)
	}

	favorites, _, err := d.store.LoadCollection(ctx, core.CollectionLikes)
	if err != nil {
		d.logger.Warn("Failed to load cached favorites", zap.Error(err))
	}
	feed, _, err := d.store.LoadCollection(ctx, core.CollectionFeed)
	if err != nil {
		d.logger.Warn("Failed to load cached feed", zap.Error(err))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.favorites = favorites
	d.feed = feed
	if state == nil {
		return false, nil
	}

	d.queue = state.Queue
	d.current = state.CurrentIndex
	d.settings = state.Settings.Coerced()
	d.settings.Seed = 0
	d.metrics.SetQueueLength(len(d.queue))

	d.logger.Info("Restored queue",
		zap.Int("entries", len(d.queue)),
		zap.Int("current_index", d.current))
	return true, nil
}

// Generate builds a new queue from the collections, fetching whatever is not
// cached. force drops the caches first. The playing track keeps its position
// when it is part of the new queue; otherwise the current index resets to -1.
// Both collections are fetched concurrently, so progress may be called from
// two goroutines at once.
func (d *Deck) Generate(ctx context.Context, force bool, progress core.ProgressFunc) (Snapshot, error) {
	if !d.generating.TryLock() {
		return Snapshot{}, ErrGenerateInProgress
	}
	defer d.generating.Unlock()

	d.setBusy(true)
	defer d.setBusy(false)

	start := time.Now()

	if force {
		if err := d.ClearCache(ctx); err != nil {
			return Snapshot{}, err
		}
	}

	d.mu.Lock()
	favorites, feed := d.favorites, d.feed
	d.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	if len(favorites) == 0 {
		g.Go(func() error {
			tracks, err := d.loadCollection(gctx, core.CollectionLikes, d.source.FetchFavorites, progress)
			favorites = tracks
			return err
		})
	}
	if len(feed) == 0 {
		g.Go(func() error {
			tracks, err := d.loadCollection(gctx, core.CollectionFeed, d.source.FetchFeed, progress)
			feed = tracks
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	d.mu.Lock()
	d.favorites = favorites
	d.feed = feed

	var playing string
	if d.current >= 0 && d.current < len(d.queue) {
		playing = d.queue[d.current].PermalinkURL
	}

	q := queue.Generate(d.rng, favorites, feed, d.settings)
	d.queue = q
	d.current = -1
	if playing != "" {
		d.current = q.IndexOf(playing)
	}

	likes, fromFeed := countSources(q)
	d.metrics.RecordGeneration(likes, fromFeed, time.Since(start))
	d.metrics.SetQueueLength(len(q))
	d.logger.Info("Generated queue",
		zap.Int("entries", len(q)),
		zap.Int("likes", likes),
		zap.Int("feed", fromFeed),
		zap.Int("current_index", d.current),
		zap.Duration("took", time.Since(start)))

	snap := d.snapshotLocked()
	d.mu.Unlock()

	d.persist(ctx, snap)
	return snap, nil
}

// ClearCache drops the cached collections in memory and in the store.
func (d *Deck) ClearCache(ctx context.Context) error {
	d.mu.Lock()
	d.favorites = nil
	d.feed = nil
	d.mu.Unlock()

	if c, ok := d.source.(userIDClearer); ok {
		c.ClearUserID()
	}
	if err := d.store.ClearCollections(ctx); err != nil {
		return fmt.Errorf("failed to clear collection cache: %w", err)
	}
	d.logger.Info("Cleared collection cache")
	return nil
}

// PlayAt makes index the current entry and loads it into the player.
func (d *Deck) PlayAt(ctx context.Context, index int) error {
	d.mu.Lock()
	if index < 0 || index >= len(d.queue) {
		d.mu.Unlock()
		return ErrIndexOutOfRange
	}
	d.current = index
	track := d.queue[index].Track
	snap := d.snapshotLocked()
	d.mu.Unlock()

	d.persist(ctx, snap)

	d.logger.Info("Playing queue entry",
		zap.Int("index", index),
		zap.String("track_id", track.TrackID),
		zap.String("title", track.Title))
	return d.player.LoadTrack(ctx, track, d.autoplay)
}

// Next plays the entry after the current one.
func (d *Deck) Next(ctx context.Context) error {
	d.mu.Lock()
	next := d.current + 1
	size := len(d.queue)
	d.mu.Unlock()

	if next >= size {
		return ErrEndOfQueue
	}
	return d.PlayAt(ctx, next)
}

// Prev plays the entry before the current one.
func (d *Deck) Prev(ctx context.Context) error {
	d.mu.Lock()
	prev := d.current - 1
	d.mu.Unlock()

	if prev < 0 {
		return ErrStartOfQueue
	}
	return d.PlayAt(ctx, prev)
}

// SkipAfter plays the entry following index.
func (d *Deck) SkipAfter(ctx context.Context, index int) error {
	d.mu.Lock()
	size := len(d.queue)
	d.mu.Unlock()

	if index < -1 || index+1 >= size {
		return ErrIndexOutOfRange
	}
	return d.PlayAt(ctx, index+1)
}

// Remove deletes the entry at index. Removing the current entry loads the
// entry that takes its place, or the new last entry.
func (d *Deck) Remove(ctx context.Context, index int) error {
	d.mu.Lock()
	if index < 0 || index >= len(d.queue) {
		d.mu.Unlock()
		return ErrIndexOutOfRange
	}

	q := make(core.Queue, 0, len(d.queue)-1)
	q = append(q, d.queue[:index]...)
	q = append(q, d.queue[index+1:]...)
	d.queue = q

	var load *core.Track
	switch {
	case index < d.current:
		d.current--
	case index == d.current:
		if d.current >= len(q) {
			d.current = len(q) - 1
		}
		if d.current >= 0 {
			t := q[d.current].Track
			load = &t
		}
	}

	d.metrics.SetQueueLength(len(q))
	snap := d.snapshotLocked()
	d.mu.Unlock()

	d.persist(ctx, snap)

	if load != nil {
		return d.player.LoadTrack(ctx, *load, d.autoplay)
	}
	return nil
}

// Shuffle reorders the queue. The current entry moves to the front.
func (d *Deck) Shuffle(ctx context.Context) Snapshot {
	d.mu.Lock()
	if len(d.queue) == 0 {
		snap := d.snapshotLocked()
		d.mu.Unlock()
		return snap
	}
	d.queue, d.current = queue.ShuffleQueue(d.rng, d.queue, d.current)
	snap := d.snapshotLocked()
	d.mu.Unlock()

	d.persist(ctx, snap)
	return snap
}

// UpdateSettings replaces the queue settings. Values are clamped into range and
// take effect on the next Generate.
func (d *Deck) UpdateSettings(ctx context.Context, settings core.QueueConfig) core.QueueConfig {
	d.mu.Lock()
	d.settings = settings.Coerced()
	d.settings.Seed = 0
	out := d.settings
	snap := d.snapshotLocked()
	d.mu.Unlock()

	if len(snap.Queue) > 0 {
		d.persist(ctx, snap)
	}
	return out
}

// SeekTo moves the playhead to fraction of the current track.
func (d *Deck) SeekTo(fraction float64) {
	d.player.SeekTo(fraction)
}

// Toggle switches between play and pause.
func (d *Deck) Toggle() {
	d.player.Toggle()
}

// Favorites returns a copy of the favorites collection.
func (d *Deck) Favorites() []core.Track {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]core.Track(nil), d.favorites...)
}

// Snapshot returns a copy of the deck state.
func (d *Deck) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// Run advances through the queue on player events until ctx is done. Tracks
// that end or fail terminally move playback to the next entry. Credential
// failures stop the advance since every following track would fail as well,
// except after an exhausted recovery, which always moves on.
func (d *Deck) Run(ctx context.Context) error {
	events, cancel := d.player.Subscribe()
	defer cancel()

	d.logger.Info("Deck started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Deck stopped")
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			d.handleEvent(ctx, ev)
		}
	}
}

func (d *Deck) handleEvent(ctx context.Context, ev core.PlaybackEvent) {
	switch ev.Type {
	case core.EventEnded:
	case core.EventFailed:
		if errors.Is(ev.Err, core.ErrRecoveryExhausted) {
			break
		}
		if errors.Is(ev.Err, core.ErrAuthMissing) || errors.Is(ev.Err, core.ErrAuthExpired) {
			d.logger.Warn("Playback stopped on credential failure", zap.Error(ev.Err))
			return
		}
	default:
		return
	}

	d.mu.Lock()
	isCurrent := d.current >= 0 && d.current < len(d.queue) && d.queue[d.current].TrackID == ev.TrackID
	d.mu.Unlock()
	if !isCurrent {
		return
	}

	if err := d.Next(ctx); err != nil {
		if errors.Is(err, ErrEndOfQueue) {
			d.logger.Info("Reached end of queue")
			return
		}
		d.logger.Warn("Failed to advance queue", zap.Error(err))
	}
}

func (d *Deck) loadCollection(
	ctx context.Context,
	name core.Collection,
	fetch func(context.Context, core.ProgressFunc) ([]core.Track, error),
	progress core.ProgressFunc,
) ([]core.Track, error) {
	if cached, ok, err := d.store.LoadCollection(ctx, name); err == nil && ok && len(cached) > 0 {
		d.logger.Debug("Using cached collection", zap.String("collection", string(name)), zap.Int("tracks", len(cached)))
		return cached, nil
	}

	tracks, err := fetch(ctx, progress)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", name, err)
	}
	if err := d.store.SaveCollection(ctx, name, tracks); err != nil {
		d.logger.Warn("Failed to cache collection", zap.String("collection", string(name)), zap.Error(err))
	}
	return tracks, nil
}

func (d *Deck) persist(ctx context.Context, snap Snapshot) {
	state := &core.State{
		Queue:        snap.Queue,
		CurrentIndex: snap.CurrentIndex,
		Settings:     snap.Settings,
	}
	if err := d.store.SaveState(ctx, state); err != nil {
		d.logger.Warn("Failed to persist state", zap.Error(err))
	}
}

func (d *Deck) setBusy(busy bool) {
	d.mu.Lock()
	d.busy = busy
	d.mu.Unlock()
}

func (d *Deck) snapshotLocked() Snapshot {
	q := make(core.Queue, len(d.queue))
	copy(q, d.queue)
	return Snapshot{
		Queue:          q,
		CurrentIndex:   d.current,
		Settings:       d.settings,
		FavoritesCount: len(d.favorites),
		FeedCount:      len(d.feed),
		Generating:     d.busy,
	}
}

func countSources(q core.Queue) (likes, feed int) {
	for i := range q {
		if q[i].Source == core.SourceFeed {
			feed++
		} else {
			likes++
		}
	}
	return likes, feed
}
