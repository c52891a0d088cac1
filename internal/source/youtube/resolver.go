package youtube

import (
	"net/url"
	"strings"

	"notify_relay/internal/domain"
)

// DefaultShortsMarker is the path segment YouTube uses for short-form clips.
const DefaultShortsMarker = "/shorts/"

// Resolver maps feed entry links to stable video identifiers.
type Resolver struct {
	shortsMarker string
}

func NewResolver(shortsMarker string) *Resolver {
	if shortsMarker == "" {
		shortsMarker = DefaultShortsMarker
	}
	return &Resolver{shortsMarker: shortsMarker}
}

// Resolve classifies a link. It performs no I/O.
func (r *Resolver) Resolve(raw string) domain.Classification {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return domain.Classification{Kind: domain.Malformed, Reason: "unparseable url"}
	}

	if strings.Contains(u.Path, r.shortsMarker) {
		return domain.Classification{Kind: domain.Excluded, Reason: "short-form content"}
	}

	switch strings.ToLower(u.Hostname()) {
	case "youtube.com", "www.youtube.com", "m.youtube.com":
		id := strings.TrimSpace(u.Query().Get("v"))
		if id == "" {
			return domain.Classification{Kind: domain.Malformed, Reason: "missing v parameter"}
		}
		return domain.Classification{Kind: domain.Qualifying, VideoID: id}
	case "youtu.be":
		id := strings.Trim(u.Path, "/")
		if i := strings.Index(id, "/"); i >= 0 {
			id = id[:i]
		}
		if id == "" {
			return domain.Classification{Kind: domain.Malformed, Reason: "missing id path segment"}
		}
		return domain.Classification{Kind: domain.Qualifying, VideoID: id}
	default:
		return domain.Classification{Kind: domain.Malformed, Reason: "unrecognized host"}
	}
}
