// Package fuzzy builds grouping keys that collapse spelling variants of artist and genre names.
package fuzzy

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	featRegex       = regexp.MustCompile(`(?i)\s*[\(\[]?\s*\b(?:feat\.?|ft\.?|featuring)\s+[^\)\]]*[\)\]]?\s*$`)
	punctRegex      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// ArtistKey groups uploader names. Featured artists are dropped so
// "DJ X feat. Y" and "DJ X" count as one artist.
func (n *Normalizer) ArtistKey(artist string) string {
	artist = featRegex.ReplaceAllString(artist, "")
	return n.joinWords(n.basicNormalize(artist))
}

// GenreKey groups free-form genre tags: "Drum & Bass", "drum and bass"
// and "Drum-n-Bass" share one key.
func (n *Normalizer) GenreKey(genre string) string {
	key := n.joinWords(n.basicNormalize(genre))
	key = strings.ReplaceAll(key, " n ", " ")
	return key
}

// joinWords drops connector words that vary between spellings.
func (n *Normalizer) joinWords(text string) string {
	words := strings.Fields(text)
	out := words[:0]
	for _, w := range words {
		if w == "and" {
			continue
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

func (n *Normalizer) basicNormalize(text string) string {
	text = norm.NFKD.String(text)

	var result strings.Builder
	for _, r := range text {
		if !unicode.IsMark(r) {
			result.WriteRune(r)
		}
	}
	text = result.String()

	text = punctRegex.ReplaceAllString(text, " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	text = strings.ToLower(text)
	text = strings.TrimSpace(text)

	return text
}
