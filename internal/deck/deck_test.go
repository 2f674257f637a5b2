package deck

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"scqueue/internal/core"
)

type fakeSource struct {
	mu           sync.Mutex
	favorites    []core.Track
	feed         []core.Track
	err          error
	gate         chan struct{}
	favCalls     int
	feedCalls    int
	clearedUsers int
}

func (s *fakeSource) FetchFavorites(ctx context.Context, progress core.ProgressFunc) ([]core.Track, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.favCalls++
	if progress != nil {
		progress("Fetching likes page 1...")
	}
	return s.favorites, s.err
}

func (s *fakeSource) FetchFeed(_ context.Context, _ core.ProgressFunc) ([]core.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedCalls++
	return s.feed, s.err
}

func (s *fakeSource) ClearUserID() {
	s.mu.Lock()
	s.clearedUsers++
	s.mu.Unlock()
}

type memStore struct {
	mu          sync.Mutex
	state       *core.State
	collections map[core.Collection][]core.Track
	saves       int
}

func newMemStore() *memStore {
	return &memStore{collections: map[core.Collection][]core.Track{}}
}

func (m *memStore) SaveState(_ context.Context, state *core.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	m.state = &cp
	m.saves++
	return nil
}

func (m *memStore) LoadState(_ context.Context) (*core.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil, nil
	}
	cp := *m.state
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (m *memStore) SaveCollection(_ context.Context, name core.Collection, tracks []core.Track) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[name] = tracks
	return nil
}

func (m *memStore) LoadCollection(_ context.Context, name core.Collection) ([]core.Track, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.collections[name]
	return t, ok, nil
}

func (m *memStore) ClearCollections(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections = map[core.Collection][]core.Track{}
	return nil
}

type fakePlayer struct {
	mu      sync.Mutex
	loads   []string
	loadErr error
	toggles int
	seeks   []float64
	events  chan core.PlaybackEvent
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{events: make(chan core.PlaybackEvent, 8)}
}

func (p *fakePlayer) LoadTrack(_ context.Context, track core.Track, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads = append(p.loads, track.TrackID)
	return p.loadErr
}

func (p *fakePlayer) Play()  {}
func (p *fakePlayer) Pause() {}

func (p *fakePlayer) Toggle() {
	p.mu.Lock()
	p.toggles++
	p.mu.Unlock()
}

func (p *fakePlayer) SeekTo(fraction float64) {
	p.mu.Lock()
	p.seeks = append(p.seeks, fraction)
	p.mu.Unlock()
}

func (p *fakePlayer) Subscribe() (<-chan core.PlaybackEvent, func()) {
	return p.events, func() {}
}

func (p *fakePlayer) loaded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.loads...)
}

func track(id string, year int) core.Track {
	return core.Track{
		TrackID:      id,
		Title:        "Track " + id,
		PermalinkURL: "https://soundcloud.com/u/" + id,
		DurationMs:   40 * 60000,
		DurationMin:  40,
		CreatedAt:    time.Date(year, 6, 1, 0, 0, 0, 0, time.UTC),
		Transcodings: []core.TranscodingDescriptor{{URL: "https://api/" + id, Protocol: core.ProtocolHLS, MimeType: "audio/mpeg"}},
	}
}

func tracks(prefix string, n int) []core.Track {
	out := make([]core.Track, n)
	for i := range out {
		out[i] = track(fmt.Sprintf("%s%d", prefix, i), 2015+i%4)
	}
	return out
}

func settings() core.QueueConfig {
	return core.QueueConfig{MinDurationMin: 30, FeedRatio: 1, LikesRatio: 3, Seed: 7}
}

func newTestDeck(src *fakeSource, st *memStore, pl *fakePlayer) *Deck {
	return New(src, st, pl, nil, settings(), true, zap.NewNop())
}

// restoreQueue seeds the deck with ids in order and current as the current index.
func restoreQueue(t *testing.T, d *Deck, st *memStore, current int, ids ...string) {
	t.Helper()
	q := make(core.Queue, len(ids))
	for i, id := range ids {
		q[i] = core.QueueEntry{Track: track(id, 2020), Source: core.SourceLikes}
	}
	st.state = &core.State{Queue: q, CurrentIndex: current, Settings: settings()}
	ok, err := d.Restore(context.Background())
	if err != nil || !ok {
		t.Fatalf("Restore() = %v, %v", ok, err)
	}
}

func queueIDs(q core.Queue) []string {
	out := make([]string, len(q))
	for i := range q {
		out[i] = q[i].TrackID
	}
	return out
}

func TestGenerate_FetchesOnceAndCaches(t *testing.T) {
	src := &fakeSource{favorites: tracks("l", 6), feed: tracks("f", 2)}
	st := newMemStore()
	d := newTestDeck(src, st, newFakePlayer())
	ctx := context.Background()

	var progress []string
	var mu sync.Mutex
	snap, err := d.Generate(ctx, false, func(msg string) {
		mu.Lock()
		progress = append(progress, msg)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(snap.Queue) != 8 {
		t.Errorf("queue length = %d, want 8", len(snap.Queue))
	}
	if snap.CurrentIndex != -1 {
		t.Errorf("CurrentIndex = %d, want -1", snap.CurrentIndex)
	}
	if len(progress) == 0 {
		t.Error("progress was never reported")
	}
	if len(st.collections[core.CollectionLikes]) != 6 || len(st.collections[core.CollectionFeed]) != 2 {
		t.Error("collections were not cached in the store")
	}
	if st.state == nil || len(st.state.Queue) != 8 {
		t.Error("generated queue was not persisted")
	}

	if _, err := d.Generate(ctx, false, nil); err != nil {
		t.Fatalf("second Generate() error = %v", err)
	}
	if src.favCalls != 1 || src.feedCalls != 1 {
		t.Errorf("fetch calls = %d/%d, want 1/1", src.favCalls, src.feedCalls)
	}

	if _, err := d.Generate(ctx, true, nil); err != nil {
		t.Fatalf("forced Generate() error = %v", err)
	}
	if src.favCalls != 2 || src.feedCalls != 2 {
		t.Errorf("fetch calls after force = %d/%d, want 2/2", src.favCalls, src.feedCalls)
	}
	if src.clearedUsers != 1 {
		t.Errorf("ClearUserID calls = %d, want 1", src.clearedUsers)
	}
}

func TestGenerate_UsesStoreCacheAfterRestart(t *testing.T) {
	st := newMemStore()
	st.collections[core.CollectionLikes] = tracks("l", 3)
	st.collections[core.CollectionFeed] = tracks("f", 1)
	src := &fakeSource{}

	d := newTestDeck(src, st, newFakePlayer())
	snap, err := d.Generate(context.Background(), false, nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(snap.Queue) != 4 {
		t.Errorf("queue length = %d, want 4", len(snap.Queue))
	}
	if src.favCalls != 0 || src.feedCalls != 0 {
		t.Errorf("source was called %d/%d times, want cache hit", src.favCalls, src.feedCalls)
	}
}

func TestGenerate_KeepsPlayingTrack(t *testing.T) {
	src := &fakeSource{favorites: tracks("l", 9), feed: tracks("f", 3)}
	st := newMemStore()
	pl := newFakePlayer()
	d := newTestDeck(src, st, pl)
	ctx := context.Background()

	first, err := d.Generate(ctx, false, nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if err := d.PlayAt(ctx, 4); err != nil {
		t.Fatalf("PlayAt() error = %v", err)
	}
	playing := first.Queue[4].PermalinkURL

	snap, err := d.Generate(ctx, false, nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if cur := snap.Current(); cur == nil || cur.PermalinkURL != playing {
		t.Errorf("current entry after regenerate = %v, want %s", cur, playing)
	}

	src.favorites = tracks("x", 4)
	src.feed = nil
	snap, err = d.Generate(ctx, true, nil)
	if err != nil {
		t.Fatalf("forced Generate() error = %v", err)
	}
	if snap.CurrentIndex != -1 {
		t.Errorf("CurrentIndex = %d, want -1 when the playing track is gone", snap.CurrentIndex)
	}
}

func TestGenerate_Errors(t *testing.T) {
	src := &fakeSource{err: core.ErrAuthExpired}
	d := newTestDeck(src, newMemStore(), newFakePlayer())

	if _, err := d.Generate(context.Background(), false, nil); !errors.Is(err, core.ErrAuthExpired) {
		t.Errorf("Generate() error = %v, want ErrAuthExpired", err)
	}
}

func TestGenerate_InProgress(t *testing.T) {
	src := &fakeSource{favorites: tracks("l", 2), gate: make(chan struct{})}
	d := newTestDeck(src, newMemStore(), newFakePlayer())

	done := make(chan error, 1)
	go func() {
		_, err := d.Generate(context.Background(), false, nil)
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !d.Snapshot().Generating {
		if time.Now().After(deadline) {
			t.Fatal("generation never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := d.Generate(context.Background(), false, nil); !errors.Is(err, ErrGenerateInProgress) {
		t.Errorf("concurrent Generate() error = %v, want ErrGenerateInProgress", err)
	}

	close(src.gate)
	if err := <-done; err != nil {
		t.Errorf("first Generate() error = %v", err)
	}
}

func TestPlayAtNextPrev(t *testing.T) {
	st := newMemStore()
	pl := newFakePlayer()
	d := newTestDeck(&fakeSource{}, st, pl)
	restoreQueue(t, d, st, -1, "a", "b", "c")
	ctx := context.Background()

	if err := d.PlayAt(ctx, 3); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("PlayAt(3) error = %v, want ErrIndexOutOfRange", err)
	}
	if err := d.Prev(ctx); !errors.Is(err, ErrStartOfQueue) {
		t.Errorf("Prev() at -1 error = %v, want ErrStartOfQueue", err)
	}
	if err := d.Next(ctx); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if err := d.Next(ctx); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if err := d.Prev(ctx); err != nil {
		t.Fatalf("Prev() error = %v", err)
	}
	if err := d.SkipAfter(ctx, 1); err != nil {
		t.Fatalf("SkipAfter(1) error = %v", err)
	}
	if err := d.Next(ctx); !errors.Is(err, ErrEndOfQueue) {
		t.Errorf("Next() at end error = %v, want ErrEndOfQueue", err)
	}
	if err := d.SkipAfter(ctx, 2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("SkipAfter(last) error = %v, want ErrIndexOutOfRange", err)
	}

	want := []string{"a", "b", "a", "c"}
	if got := pl.loaded(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("loaded tracks = %v, want %v", got, want)
	}
	if st.state.CurrentIndex != 2 {
		t.Errorf("persisted CurrentIndex = %d, want 2", st.state.CurrentIndex)
	}
}

func TestRemove(t *testing.T) {
	tests := []struct {
		name        string
		ids         []string
		current     int
		remove      int
		wantQueue   []string
		wantCurrent int
		wantLoad    []string
	}{
		{"before current", []string{"a", "b", "c", "d"}, 2, 0, []string{"b", "c", "d"}, 1, nil},
		{"after current", []string{"a", "b", "c", "d"}, 2, 3, []string{"a", "b", "c"}, 2, nil},
		{"current loads successor", []string{"a", "b", "c", "d"}, 2, 2, []string{"a", "b", "d"}, 2, []string{"d"}},
		{"current last clamps", []string{"a", "b", "c", "d"}, 3, 3, []string{"a", "b", "c"}, 2, []string{"c"}},
		{"only entry", []string{"a"}, 0, 0, []string{}, -1, nil},
		{"nothing playing", []string{"a", "b"}, -1, 0, []string{"b"}, -1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newMemStore()
			pl := newFakePlayer()
			d := newTestDeck(&fakeSource{}, st, pl)
			restoreQueue(t, d, st, tt.current, tt.ids...)

			if err := d.Remove(context.Background(), tt.remove); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}

			snap := d.Snapshot()
			if fmt.Sprint(queueIDs(snap.Queue)) != fmt.Sprint(tt.wantQueue) {
				t.Errorf("queue = %v, want %v", queueIDs(snap.Queue), tt.wantQueue)
			}
			if snap.CurrentIndex != tt.wantCurrent {
				t.Errorf("CurrentIndex = %d, want %d", snap.CurrentIndex, tt.wantCurrent)
			}
			if fmt.Sprint(pl.loaded()) != fmt.Sprint(tt.wantLoad) {
				t.Errorf("loaded = %v, want %v", pl.loaded(), tt.wantLoad)
			}
		})
	}
}

func TestRemove_OutOfRange(t *testing.T) {
	st := newMemStore()
	d := newTestDeck(&fakeSource{}, st, newFakePlayer())
	restoreQueue(t, d, st, 0, "a")

	if err := d.Remove(context.Background(), 1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Remove(1) error = %v, want ErrIndexOutOfRange", err)
	}
}

func TestShuffle_PinsCurrent(t *testing.T) {
	st := newMemStore()
	d := newTestDeck(&fakeSource{}, st, newFakePlayer())
	restoreQueue(t, d, st, 3, "a", "b", "c", "d", "e")

	snap := d.Shuffle(context.Background())
	if snap.CurrentIndex != 0 || snap.Queue[0].TrackID != "d" {
		t.Errorf("Shuffle() current = %d (%s), want 0 (d)", snap.CurrentIndex, snap.Queue[0].TrackID)
	}
	if len(snap.Queue) != 5 {
		t.Errorf("queue length = %d, want 5", len(snap.Queue))
	}
	if st.state.CurrentIndex != 0 {
		t.Errorf("persisted CurrentIndex = %d, want 0", st.state.CurrentIndex)
	}

	empty := newTestDeck(&fakeSource{}, newMemStore(), newFakePlayer())
	if snap := empty.Shuffle(context.Background()); len(snap.Queue) != 0 || snap.CurrentIndex != -1 {
		t.Errorf("Shuffle() on empty deck = %+v", snap)
	}
}

func TestRestore(t *testing.T) {
	st := newMemStore()
	d := newTestDeck(&fakeSource{}, st, newFakePlayer())

	ok, err := d.Restore(context.Background())
	if err != nil || ok {
		t.Errorf("Restore() on empty store = %v, %v, want false, nil", ok, err)
	}

	legacy := track("a", 2020)
	legacy.Transcodings = nil
	st.state = &core.State{Queue: core.Queue{{Track: legacy}}, CurrentIndex: 0}
	ok, err = d.Restore(context.Background())
	if err != nil || ok {
		t.Errorf("Restore() with incompatible state = %v, %v, want false, nil", ok, err)
	}

	st.collections[core.CollectionLikes] = tracks("l", 2)
	restoreQueue(t, d, st, 7, "a", "b")
	snap := d.Snapshot()
	if snap.CurrentIndex != -1 {
		t.Errorf("out of range index restored as %d, want -1", snap.CurrentIndex)
	}
	if snap.FavoritesCount != 2 || len(d.Favorites()) != 2 {
		t.Errorf("favorites not restored from cache: %d", snap.FavoritesCount)
	}
}

func TestUpdateSettings(t *testing.T) {
	d := newTestDeck(&fakeSource{}, newMemStore(), newFakePlayer())

	got := d.UpdateSettings(context.Background(), core.QueueConfig{MinDurationMin: -5, FeedRatio: 42, LikesRatio: 0})
	want := core.QueueConfig{MinDurationMin: 0, FeedRatio: core.MaxRatio, LikesRatio: 1}
	if got != want {
		t.Errorf("UpdateSettings() = %+v, want %+v", got, want)
	}
	if d.Snapshot().Settings != want {
		t.Errorf("Snapshot().Settings = %+v", d.Snapshot().Settings)
	}
}

func TestSeekAndToggle(t *testing.T) {
	pl := newFakePlayer()
	d := newTestDeck(&fakeSource{}, newMemStore(), pl)

	d.SeekTo(0.25)
	d.Toggle()

	if len(pl.seeks) != 1 || pl.seeks[0] != 0.25 {
		t.Errorf("seeks = %v", pl.seeks)
	}
	if pl.toggles != 1 {
		t.Errorf("toggles = %d, want 1", pl.toggles)
	}
}

func waitLoads(t *testing.T, pl *fakePlayer, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		got := pl.loaded()
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("loads = %v, want %d", got, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRun_AdvancesOnEndAndFailure(t *testing.T) {
	st := newMemStore()
	pl := newFakePlayer()
	d := newTestDeck(&fakeSource{}, st, pl)
	restoreQueue(t, d, st, 0, "a", "b", "c", "d")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	pl.events <- core.PlaybackEvent{Type: core.EventProgress, TrackID: "a"}
	pl.events <- core.PlaybackEvent{Type: core.EventEnded, TrackID: "a"}
	waitLoads(t, pl, 1)

	// stale event for a track that is no longer current
	pl.events <- core.PlaybackEvent{Type: core.EventEnded, TrackID: "a"}
	pl.events <- core.PlaybackEvent{Type: core.EventFailed, TrackID: "b", Err: core.ErrRecoveryExhausted}
	got := waitLoads(t, pl, 2)
	if fmt.Sprint(got) != fmt.Sprint([]string{"b", "c"}) {
		t.Errorf("loads = %v, want [b c]", got)
	}

	pl.events <- core.PlaybackEvent{Type: core.EventFailed, TrackID: "c", Err: fmt.Errorf("resolve: %w", core.ErrAuthExpired)}
	pl.events <- core.PlaybackEvent{Type: core.EventEnded, TrackID: "x"}
	time.Sleep(50 * time.Millisecond)
	if got := pl.loaded(); len(got) != 2 {
		t.Errorf("loads after credential failure = %v, want no advance", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestRun_ExhaustedRecoveryAdvancesOnCredentialCause(t *testing.T) {
	st := newMemStore()
	pl := newFakePlayer()
	d := newTestDeck(&fakeSource{}, st, pl)
	restoreQueue(t, d, st, 0, "a", "b")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	pl.events <- core.PlaybackEvent{
		Type:    core.EventFailed,
		TrackID: "a",
		Err:     fmt.Errorf("%w: %w", core.ErrRecoveryExhausted, core.ErrAuthExpired),
	}
	if got := waitLoads(t, pl, 1); fmt.Sprint(got) != "[b]" {
		t.Errorf("loads = %v, want [b]", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}
