package mediahost

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/grafov/m3u8"
)

// ErrInvalidPlaylist is returned for documents that do not decode as an m3u8
// playlist or that list neither segments nor variants.
var ErrInvalidPlaylist = errors.New("invalid m3u8 playlist")

// segment is one media chunk and the playback offset it starts at.
type segment struct {
	URL      string
	Duration time.Duration
	Start    time.Duration
}

// playlist is either a media playlist (segments) or a master playlist (variants).
type playlist struct {
	Segments []segment
	Variants []string
	Total    time.Duration
}

// parsePlaylist decodes an m3u8 document. Relative URIs are resolved against base.
func parsePlaylist(r io.Reader, base *url.URL) (*playlist, error) {
	decoded, listType, err := m3u8.DecodeFrom(r, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlaylist, err)
	}

	p := &playlist{}
	switch listType {
	case m3u8.MEDIA:
		media, ok := decoded.(*m3u8.MediaPlaylist)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected media playlist type %T", ErrInvalidPlaylist, decoded)
		}
		for _, seg := range media.Segments {
			// the decoder preallocates, unused slots stay nil
			if seg == nil {
				continue
			}
			uri, err := resolveURI(base, seg.URI)
			if err != nil {
				return nil, err
			}
			d := time.Duration(seg.Duration * float64(time.Second))
			p.Segments = append(p.Segments, segment{URL: uri, Duration: d, Start: p.Total})
			p.Total += d
		}
	case m3u8.MASTER:
		master, ok := decoded.(*m3u8.MasterPlaylist)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected master playlist type %T", ErrInvalidPlaylist, decoded)
		}
		for _, v := range master.Variants {
			if v == nil || v.URI == "" {
				continue
			}
			uri, err := resolveURI(base, v.URI)
			if err != nil {
				return nil, err
			}
			p.Variants = append(p.Variants, uri)
		}
	}

	if len(p.Segments) == 0 && len(p.Variants) == 0 {
		return nil, fmt.Errorf("%w: no segments", ErrInvalidPlaylist)
	}
	return p, nil
}

func resolveURI(base *url.URL, raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: bad uri %q", ErrInvalidPlaylist, raw)
	}
	return base.ResolveReference(ref).String(), nil
}

// segmentAt returns the index of the segment playing at position.
func (p *playlist) segmentAt(position time.Duration) int {
	for i := len(p.Segments) - 1; i >= 0; i-- {
		if position >= p.Segments[i].Start {
			return i
		}
	}
	return 0
}
