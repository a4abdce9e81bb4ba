// Package chunk splits source media into bounded, overlapping windows and
// extracts each window as a normalized audio unit for transcription.
package chunk

import "math"

// Window is one planned slice of the source media, in seconds.
type Window struct {
	Index int
	Start float64
	End   float64
}

// Duration returns the window length in seconds.
func (w Window) Duration() float64 {
	return w.End - w.Start
}

// Planner produces ordered windows covering [0, duration]. Consecutive
// windows overlap by Overlap seconds so that a word cut at one boundary is
// intact in the neighbouring chunk; window ends snap to detected silence
// points within SnapWindow of the nominal cut.
type Planner struct {
	Length     float64
	Overlap    float64
	SnapWindow float64
}

// Plan lays out windows from zero until one reaches the media duration.
// Zero-duration media yields no windows.
func (p Planner) Plan(duration float64, silences []float64) []Window {
	if duration <= 0 {
		return nil
	}

	var windows []Window
	start := 0.0
	for index := 0; ; index++ {
		end := start + p.Length
		if end < duration {
			if snapped, ok := p.snapEnd(start, end, silences); ok {
				end = snapped
			}
		}
		if end >= duration {
			end = duration
		}

		windows = append(windows, Window{Index: index, Start: start, End: end})
		if end >= duration {
			return windows
		}
		start = end - p.Overlap
	}
}

// snapEnd picks the silence point closest to the proposed cut. A candidate
// must lie past start+Overlap so the next window always advances.
func (p Planner) snapEnd(start, proposed float64, silences []float64) (float64, bool) {
	var (
		best  float64
		found bool
	)
	for _, point := range silences {
		if point <= start+p.Overlap {
			continue
		}
		distance := math.Abs(point - proposed)
		if distance > p.SnapWindow {
			continue
		}
		if !found || distance < math.Abs(best-proposed) {
			best = point
			found = true
		}
	}
	return best, found
}
