// Package stream turns a track's transcoding descriptors into a playable stream URL.
package stream

import (
	"mime"
	"strings"

	"scqueue/internal/core"
)

// variantRule matches one preference tier.
type variantRule func(v core.TranscodingDescriptor) bool

// preference lists the tiers in priority order. The first tier with a match wins,
// and within a tier the first matching descriptor wins.
var preference = []variantRule{
	func(v core.TranscodingDescriptor) bool {
		return v.Protocol == core.ProtocolHLS && mediaType(v.MimeType) == "audio/mpeg"
	},
	func(v core.TranscodingDescriptor) bool {
		mt := mediaType(v.MimeType)
		return v.Protocol == core.ProtocolHLS && (mt == "audio/mp4" || mt == "audio/aac")
	},
	func(v core.TranscodingDescriptor) bool {
		return v.Protocol == core.ProtocolHLS
	},
	func(v core.TranscodingDescriptor) bool {
		return v.Protocol == core.ProtocolProgressive
	},
}

// SelectTranscoding picks the preferred variant: HLS MP3, then HLS AAC/MP4,
// then any HLS, then progressive.
func SelectTranscoding(variants []core.TranscodingDescriptor) (core.TranscodingDescriptor, error) {
	if len(variants) == 0 {
		return core.TranscodingDescriptor{}, core.ErrNoPlayableVariant
	}

	for _, matches := range preference {
		for _, v := range variants {
			if matches(v) {
				return v, nil
			}
		}
	}

	return core.TranscodingDescriptor{}, core.ErrNoCompatibleVariant
}

// mediaType strips parameters such as codecs from a mime type.
func mediaType(mimeType string) string {
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mt
	}
	mt, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
