package toys

import (
	"fmt"
	"time"
)

// Frame budget defaults.
const (
	DefaultLowThreshold  = 75 * time.Millisecond
	DefaultHighThreshold = 100 * time.Millisecond
	DefaultSmoothing     = 0.1
	DefaultMaxPasses     = 256

	// FixedSmoothing is the smoothing factor of single-dispatch toys.
	FixedSmoothing = 0.05
)

// BudgetConfig tunes the adaptive pass-count controller.
type BudgetConfig struct {
	// LowThreshold is the frame time under which one more pass is added.
	LowThreshold time.Duration

	// HighThreshold is the frame time over which one pass is removed.
	// The band between the thresholds holds the pass count steady.
	HighThreshold time.Duration

	// Smoothing is the weight of the newest sample in the throughput
	// moving average, in (0, 1].
	Smoothing float64

	// MaxPasses caps the pass count. 0 means unbounded.
	MaxPasses int

	// Fixed disables adaptation: every frame issues exactly one pass.
	Fixed bool
}

// DefaultBudgetConfig returns the controller settings of progressive toys.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		LowThreshold:  DefaultLowThreshold,
		HighThreshold: DefaultHighThreshold,
		Smoothing:     DefaultSmoothing,
		MaxPasses:     DefaultMaxPasses,
	}
}

// FixedBudgetConfig returns the settings of single-dispatch toys.
func FixedBudgetConfig() BudgetConfig {
	c := DefaultBudgetConfig()
	c.Smoothing = FixedSmoothing
	c.Fixed = true
	return c
}

// Validate reports an error for a config without a dead band or with a
// smoothing factor outside (0, 1].
func (c BudgetConfig) Validate() error {
	switch {
	case c.LowThreshold <= 0:
		return fmt.Errorf("toys: budget low threshold %v must be positive", c.LowThreshold)
	case c.HighThreshold <= c.LowThreshold:
		return fmt.Errorf("toys: budget high threshold %v must exceed low threshold %v", c.HighThreshold, c.LowThreshold)
	case c.Smoothing <= 0 || c.Smoothing > 1:
		return fmt.Errorf("toys: budget smoothing %v outside (0, 1]", c.Smoothing)
	case c.MaxPasses < 0:
		return fmt.Errorf("toys: budget max passes %d is negative", c.MaxPasses)
	}
	return nil
}

// Budget is the frame budget state: the pass count for the next frame and
// the smoothed throughput in samples per second.
type Budget struct {
	cfg        BudgetConfig
	passes     int
	throughput float64
	last       time.Duration
}

// NewBudget returns a budget starting at one pass per frame.
func NewBudget(cfg BudgetConfig) *Budget {
	return &Budget{cfg: cfg, passes: 1}
}

// Passes returns the number of passes to issue next frame. It is never
// below 1.
func (b *Budget) Passes() int { return b.passes }

// Throughput returns the smoothed samples per second.
func (b *Budget) Throughput() float64 { return b.throughput }

// LastElapsed returns the duration of the last observed frame.
func (b *Budget) LastElapsed() time.Duration { return b.last }

// Reset returns to one pass per frame. The throughput average is kept.
func (b *Budget) Reset() { b.passes = 1 }

// Observe feeds the duration of a frame that issued Passes() passes over
// pixels samples each, then adapts the pass count.
//
// A non-positive elapsed time is treated as a fast frame and leaves the
// throughput untouched.
func (b *Budget) Observe(elapsed time.Duration, pixels int) {
	b.last = elapsed

	if elapsed > 0 {
		rate := float64(b.passes) * float64(pixels) / elapsed.Seconds()
		k := b.cfg.Smoothing
		b.throughput = b.throughput*(1-k) + k*rate
	}

	if b.cfg.Fixed {
		return
	}
	switch {
	case elapsed < b.cfg.LowThreshold:
		if b.cfg.MaxPasses == 0 || b.passes < b.cfg.MaxPasses {
			b.passes++
		}
	case elapsed > b.cfg.HighThreshold:
		b.passes = max(b.passes-1, 1)
	}
}
