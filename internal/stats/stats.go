// Package stats summarizes the favorites collection.
package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"scqueue/internal/core"
	"scqueue/pkg/fuzzy"
)

const (
	topN         = 5
	maxBarLength = 20
	nameWidth    = 28
	msPerMinute  = 60000
	msPerHour    = 3600000
)

// Bucket counts tracks within a duration range.
type Bucket struct {
	Label   string `json:"label"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
}

// YearCount counts tracks uploaded in one calendar year.
type YearCount struct {
	Year    int `json:"year"`
	Count   int `json:"count"`
	Percent int `json:"percent"`
}

// Ranked is a genre or artist with its track count.
type Ranked struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats is the summary of a track collection.
type Stats struct {
	Total        int         `json:"total"`
	TotalHours   int         `json:"total_hours"`
	AvgMinutes   int         `json:"avg_minutes"`
	LongestLabel string      `json:"longest_label"`
	LongestTitle string      `json:"longest_title"`
	Buckets      []Bucket    `json:"buckets"`
	Years        []YearCount `json:"years"`
	TopGenres    []Ranked    `json:"top_genres"`
	TopArtists   []Ranked    `json:"top_artists"`
}

var bucketBounds = []struct {
	label string
	maxMs int64
}{
	{"Under 5m", 5 * msPerMinute},
	{"5–30m", 30 * msPerMinute},
	{"30m–1h", 60 * msPerMinute},
	{"Over 1h", math.MaxInt64},
}

// Compute summarizes tracks. Genres and artists are grouped by their
// normalized key and shown with the first spelling seen.
func Compute(tracks []core.Track) Stats {
	s := Stats{Total: len(tracks)}

	var totalMs int64
	var longest *core.Track
	for i := range tracks {
		totalMs += tracks[i].DurationMs
		if longest == nil || tracks[i].DurationMs > longest.DurationMs {
			longest = &tracks[i]
		}
	}

	s.TotalHours = int(math.Round(float64(totalMs) / msPerHour))
	if s.Total > 0 {
		s.AvgMinutes = int(math.Round(float64(totalMs) / float64(s.Total) / msPerMinute))
	}

	s.LongestLabel = "0m"
	s.LongestTitle = core.UnknownArtist + " - " + core.UnknownArtist
	if longest != nil {
		s.LongestLabel = DurationLabel(longest.DurationMs)
		s.LongestTitle = orUnknown(longest.Artist) + " - " + orUnknown(longest.Title)
	}

	s.Buckets = buckets(tracks)
	s.Years = years(tracks)

	normalizer := fuzzy.NewNormalizer()
	s.TopGenres = top(tracks, func(t *core.Track) string { return t.Genre }, normalizer.GenreKey)
	s.TopArtists = top(tracks, func(t *core.Track) string { return t.Artist }, normalizer.ArtistKey)

	return s
}

// DurationLabel formats ms as "1h 5m" or "42m".
func DurationLabel(ms int64) string {
	h := ms / msPerHour
	m := (ms % msPerHour) / msPerMinute
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

func buckets(tracks []core.Track) []Bucket {
	out := make([]Bucket, len(bucketBounds))
	for i, b := range bucketBounds {
		out[i].Label = b.label
	}
	for i := range tracks {
		for j, b := range bucketBounds {
			if tracks[i].DurationMs < b.maxMs {
				out[j].Count++
				break
			}
		}
	}
	for i := range out {
		out[i].Percent = percent(out[i].Count, len(tracks))
	}
	return out
}

func years(tracks []core.Track) []YearCount {
	counts := make(map[int]int)
	for i := range tracks {
		if tracks[i].CreatedAt.IsZero() {
			continue
		}
		counts[tracks[i].Year()]++
	}

	out := make([]YearCount, 0, len(counts))
	for year, n := range counts {
		out = append(out, YearCount{Year: year, Count: n, Percent: percent(n, len(tracks))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

func top(tracks []core.Track, field func(*core.Track) string, key func(string) string) []Ranked {
	index := make(map[string]int)
	var ranked []Ranked

	for i := range tracks {
		name := strings.TrimSpace(field(&tracks[i]))
		if name == "" {
			continue
		}
		k := key(name)
		if k == "" {
			k = name
		}
		if pos, ok := index[k]; ok {
			ranked[pos].Count++
			continue
		}
		index[k] = len(ranked)
		ranked = append(ranked, Ranked{Name: name, Count: 1})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Count > ranked[j].Count })
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) / float64(total) * 100))
}

func orUnknown(s string) string {
	if s == "" {
		return core.UnknownArtist
	}
	return s
}

func fmtPercent(p int) string {
	if p < 1 {
		return "<1%"
	}
	return fmt.Sprintf("%d%%", p)
}

// Render formats s as a plain-text summary with a year bar chart.
func Render(s Stats) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	b.WriteString("Your SoundCloud Likes\n")
	b.WriteString(strings.Repeat("─", maxBarLength) + "\n")
	b.WriteString(p.Sprintf("%d tracks  ·  %d hours  ·  %d min avg\n", s.Total, s.TotalHours, s.AvgMinutes))
	fmt.Fprintf(&b, "Longest: %s - %s\n\n", s.LongestTitle, s.LongestLabel)

	b.WriteString("Track lengths\n")
	parts := make([]string, len(s.Buckets))
	for i, bk := range s.Buckets {
		parts[i] = fmt.Sprintf("%s: %d (%s)", bk.Label, bk.Count, fmtPercent(bk.Percent))
	}
	b.WriteString(strings.Join(parts, "  ·  "))
	b.WriteString("\n\n")

	b.WriteString("Tracks by year released\n")
	maxCount := 1
	for _, y := range s.Years {
		maxCount = max(maxCount, y.Count)
	}
	for _, y := range s.Years {
		barLen := max(1, int(math.Round(float64(y.Count)/float64(maxCount)*maxBarLength)))
		fmt.Fprintf(&b, "%d  %s%s%3d (%3s)\n",
			y.Year,
			strings.Repeat("█", barLen),
			strings.Repeat(" ", maxBarLength-barLen+4),
			y.Count,
			fmtPercent(y.Percent))
	}

	b.WriteString("\nTop genres\n")
	for i, g := range s.TopGenres {
		fmt.Fprintf(&b, "%d. %-*s%4d\n", i+1, nameWidth, g.Name, g.Count)
	}
	b.WriteString("\nTop artists\n")
	for i, a := range s.TopArtists {
		fmt.Fprintf(&b, "%d. %-*s%4d\n", i+1, nameWidth, a.Name, a.Count)
	}

	return strings.TrimRight(b.String(), "\n ")
}
