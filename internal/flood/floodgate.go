// Package flood limits how often a client may trigger expensive operations.
package flood

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// Window is the span a limit counts calls over
	Window = time.Minute
	// maxClients bounds tracked windows, the least recently seen client goes first
	maxClients = 4096
)

// Floodgate admits at most a fixed number of calls per client and scope
// within any sliding Window.
type Floodgate struct {
	limit int
	now   func() time.Time

	mu      sync.Mutex
	windows *lru.Cache[string, []time.Time]
}

// New creates a Floodgate allowing limitPerMinute calls per client and scope.
// A limit below 1 disables limiting.
func New(limitPerMinute int) *Floodgate {
	return newFloodgate(limitPerMinute, maxClients)
}

func newFloodgate(limit, capacity int) *Floodgate {
	// lru.New only fails for a non-positive size
	windows, _ := lru.New[string, []time.Time](capacity)
	return &Floodgate{limit: limit, now: time.Now, windows: windows}
}

// Allow records a call of client in scope. A rejected call is not recorded and
// retryAfter is the time until the oldest recorded call leaves the window.
func (fg *Floodgate) Allow(scope, client string) (allowed bool, retryAfter time.Duration) {
	if fg.limit < 1 {
		return true, 0
	}

	key := scope + "\x00" + client
	now := fg.now()

	fg.mu.Lock()
	defer fg.mu.Unlock()

	calls, _ := fg.windows.Get(key)
	calls = since(calls, now.Add(-Window))

	if len(calls) >= fg.limit {
		fg.windows.Add(key, calls)
		return false, calls[0].Add(Window).Sub(now)
	}
	fg.windows.Add(key, append(calls, now))
	return true, 0
}

// since drops the calls at or before cutoff. calls is ordered oldest first.
func since(calls []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(calls) && !calls[i].After(cutoff) {
		i++
	}
	return calls[i:]
}
