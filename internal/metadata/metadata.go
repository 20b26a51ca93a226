// Package metadata talks to the external song search / audio resolver
// services. Lookup failures fall back to hardcoded values rather than
// propagating: playability matters more than precision.
package metadata

import "context"

const (
	FallbackDurationSec = 180
	FallbackPeakSec     = 30

	minPeakSec = 10
	maxPeakSec = 120
)

type SearchResult struct {
	VideoID   string
	Title     string
	Thumbnail string
}

type Details struct {
	DurationSec int
	PeakSec     int
}

// Resolver is the external audio/metadata service. Search finds
// candidates for free text; Details returns duration and an estimated
// peak offset; ResolveURL turns a video id into a playable reference
// (stream URL or local file path — the core is agnostic to the scheme).
type Resolver interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
	Details(ctx context.Context, videoID string) (Details, error)
	ResolveURL(ctx context.Context, videoID string) (string, error)
}

// PeakStart estimates where the most engaging segment of a track begins:
// ~30% in, clamped to [10s, 120s].
func PeakStart(durationSec int) int {
	if durationSec <= 0 {
		return FallbackPeakSec
	}
	peak := durationSec * 3 / 10
	if peak < minPeakSec {
		peak = minPeakSec
	}
	if peak > maxPeakSec {
		peak = maxPeakSec
	}
	return peak
}

// SafeDetails wraps Details with the fallback policy.
func SafeDetails(ctx context.Context, r Resolver, videoID string) Details {
	if r == nil {
		return Details{DurationSec: FallbackDurationSec, PeakSec: FallbackPeakSec}
	}
	d, err := r.Details(ctx, videoID)
	if err != nil || d.DurationSec <= 0 {
		return Details{DurationSec: FallbackDurationSec, PeakSec: FallbackPeakSec}
	}
	if d.PeakSec <= 0 {
		d.PeakSec = PeakStart(d.DurationSec)
	}
	return d
}
