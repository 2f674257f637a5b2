// Package queue blends the favorites and feed collections into a playable queue.
//
// Every function is pure and synchronous. Randomness comes from the caller's
// *rand.Rand so that a fixed seed reproduces the same queue.
package queue

import (
	"math/rand"
	"sort"
	"time"

	"scqueue/internal/core"
	"scqueue/internal/store"
)

// NewRand returns a generator seeded with seed, or with the clock when seed is 0.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed)) //nolint:gosec // Queue order doesn't require crypto-secure randomness
}

// FilterByDuration keeps tracks whose rounded length is at least minMinutes.
func FilterByDuration(tracks []core.Track, minMinutes float64) []core.Track {
	out := make([]core.Track, 0, len(tracks))
	for i := range tracks {
		if tracks[i].DurationMin >= minMinutes {
			out = append(out, tracks[i])
		}
	}
	return out
}

// DeduplicateByURL removes repeated permalinks. The first occurrence wins.
func DeduplicateByURL(tracks []core.Track) []core.Track {
	seen := store.NewDedupStore(len(tracks), store.DefaultFalsePositiveRate)
	out := make([]core.Track, 0, len(tracks))
	for i := range tracks {
		if seen.CheckAndAdd(tracks[i].PermalinkURL) {
			out = append(out, tracks[i])
		}
	}
	return out
}

// DeduplicateFeed drops feed tracks whose permalink already appears in likes.
func DeduplicateFeed(feed, likes []core.Track) []core.Track {
	liked := store.NewDedupStore(len(likes), store.DefaultFalsePositiveRate)
	for i := range likes {
		liked.Add(likes[i].PermalinkURL)
	}

	out := make([]core.Track, 0, len(feed))
	for i := range feed {
		if !liked.Has(feed[i].PermalinkURL) {
			out = append(out, feed[i])
		}
	}
	return out
}

// SelectLikesSpread picks up to n tracks spread evenly across upload years.
// Tracks are bucketed by UTC year, each bucket is shuffled, and one track is
// popped per bucket in ascending year order until n are taken or all buckets are empty.
func SelectLikesSpread(rng *rand.Rand, tracks []core.Track, n int) []core.Track {
	if n <= 0 || len(tracks) == 0 {
		return []core.Track{}
	}

	buckets := make(map[int][]core.Track)
	for i := range tracks {
		year := tracks[i].Year()
		buckets[year] = append(buckets[year], tracks[i])
	}

	years := make([]int, 0, len(buckets))
	for year := range buckets {
		years = append(years, year)
	}
	sort.Ints(years)

	for _, year := range years {
		shuffleInPlace(rng, buckets[year])
	}

	if n > len(tracks) {
		n = len(tracks)
	}
	selected := make([]core.Track, 0, n)
	for len(selected) < n {
		for _, year := range years {
			bucket := buckets[year]
			if len(bucket) == 0 {
				continue
			}
			selected = append(selected, bucket[len(bucket)-1])
			buckets[year] = bucket[:len(bucket)-1]
			if len(selected) == n {
				break
			}
		}
	}

	return selected
}

// Shuffle returns a uniformly shuffled copy of tracks.
func Shuffle(rng *rand.Rand, tracks []core.Track) []core.Track {
	out := make([]core.Track, len(tracks))
	copy(out, tracks)
	shuffleInPlace(rng, out)
	return out
}

// Interleave emits up to likesRatio likes followed by up to feedRatio feed
// tracks per cycle until both lists are consumed. The output always holds
// every input track: a side with ratio 0 is appended once the cycle stalls.
func Interleave(feed, likes []core.Track, feedRatio, likesRatio int) core.Queue {
	q := make(core.Queue, 0, len(feed)+len(likes))
	fi, li := 0, 0

	for fi < len(feed) || li < len(likes) {
		before := len(q)
		for i := 0; i < likesRatio && li < len(likes); i++ {
			q = append(q, core.QueueEntry{Track: likes[li], Source: core.SourceLikes})
			li++
		}
		for i := 0; i < feedRatio && fi < len(feed); i++ {
			q = append(q, core.QueueEntry{Track: feed[fi], Source: core.SourceFeed})
			fi++
		}
		if len(q) == before {
			break
		}
	}

	for ; li < len(likes); li++ {
		q = append(q, core.QueueEntry{Track: likes[li], Source: core.SourceLikes})
	}
	for ; fi < len(feed); fi++ {
		q = append(q, core.QueueEntry{Track: feed[fi], Source: core.SourceFeed})
	}

	return q
}

// Generate runs the full pipeline: filter both collections, dedup the feed
// against itself and the favorites, spread all favorites across years,
// shuffle the feed, and interleave under the configured ratio.
func Generate(rng *rand.Rand, favorites, feed []core.Track, cfg core.QueueConfig) core.Queue {
	cfg = cfg.Coerced()

	likes := DeduplicateByURL(FilterByDuration(favorites, cfg.MinDurationMin))
	longFeed := FilterByDuration(feed, cfg.MinDurationMin)
	longFeed = DeduplicateFeed(DeduplicateByURL(longFeed), likes)

	selected := SelectLikesSpread(rng, likes, len(likes))
	shuffled := Shuffle(rng, longFeed)

	return Interleave(shuffled, selected, cfg.FeedRatio, cfg.LikesRatio)
}

// ShuffleQueue reshuffles a copy of q. When currentIndex points at an entry,
// that entry is moved to the front and 0 is returned as the new index.
// Otherwise the index is returned unchanged.
func ShuffleQueue(rng *rand.Rand, q core.Queue, currentIndex int) (core.Queue, int) {
	out := make(core.Queue, len(q))
	copy(out, q)

	var current *core.QueueEntry
	if currentIndex >= 0 && currentIndex < len(q) {
		entry := q[currentIndex]
		current = &entry
	}

	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })

	if current == nil {
		return out, currentIndex
	}

	if idx := out.IndexOf(current.PermalinkURL); idx > 0 {
		pinned := out[idx]
		copy(out[1:idx+1], out[:idx])
		out[0] = pinned
	}
	return out, 0
}

func shuffleInPlace(rng *rand.Rand, tracks []core.Track) {
	rng.Shuffle(len(tracks), func(i, j int) { tracks[i], tracks[j] = tracks[j], tracks[i] })
}
