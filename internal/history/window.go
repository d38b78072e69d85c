package history

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultLookback is the retention span used when none is configured.
const DefaultLookback = 6 * time.Hour

// Sample is a single observed BTC/USD price.
type Sample struct {
	Time  time.Time
	Price decimal.Decimal
}

// Window keeps samples in ascending time order, bounded by a lookback duration
// measured from the newest sample.
type Window struct {
	lookback time.Duration
	samples  []Sample
}

// NewWindow constructs an empty window.
func NewWindow(lookback time.Duration) *Window {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Window{lookback: lookback}
}

// FromSamples rebuilds a window from persisted samples. Samples must already be
// in ascending order; no pruning is applied until the next Append.
func FromSamples(lookback time.Duration, samples []Sample) *Window {
	w := NewWindow(lookback)
	w.samples = append(make([]Sample, 0, len(samples)), samples...)
	return w
}

// Append adds sample at the end and drops every sample older than
// sample.Time - lookback.
func (w *Window) Append(sample Sample) {
	w.samples = append(w.samples, sample)

	cutoff := sample.Time.Add(-w.lookback)
	kept := w.samples[:0]
	for _, s := range w.samples {
		if s.Time.Before(cutoff) {
			continue
		}
		kept = append(kept, s)
	}
	w.samples = kept
}

// Low returns the minimum retained price; ok is false when the window is empty.
func (w *Window) Low() (low decimal.Decimal, ok bool) {
	if len(w.samples) == 0 {
		return decimal.Decimal{}, false
	}
	low = w.samples[0].Price
	for _, s := range w.samples[1:] {
		if s.Price.LessThan(low) {
			low = s.Price
		}
	}
	return low, true
}

// Len reports the number of retained samples.
func (w *Window) Len() int {
	return len(w.samples)
}

// Lookback returns the configured retention span.
func (w *Window) Lookback() time.Duration {
	return w.lookback
}

// Samples returns a copy of the retained samples.
func (w *Window) Samples() []Sample {
	out := make([]Sample, len(w.samples))
	copy(out, w.samples)
	return out
}

// Oldest returns the first retained sample.
func (w *Window) Oldest() (Sample, bool) {
	if len(w.samples) == 0 {
		return Sample{}, false
	}
	return w.samples[0], true
}

// Newest returns the last retained sample.
func (w *Window) Newest() (Sample, bool) {
	if len(w.samples) == 0 {
		return Sample{}, false
	}
	return w.samples[len(w.samples)-1], true
}

// Span is the time covered between the oldest and newest samples.
func (w *Window) Span() time.Duration {
	oldest, ok := w.Oldest()
	if !ok {
		return 0
	}
	newest, _ := w.Newest()
	return newest.Time.Sub(oldest.Time)
}
