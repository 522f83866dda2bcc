package toys

import (
	"testing"
	"time"
)

// budgetAt returns a default budget advanced to n passes.
func budgetAt(t *testing.T, n int) *Budget {
	t.Helper()
	b := NewBudget(DefaultBudgetConfig())
	for b.Passes() < n {
		b.Observe(time.Millisecond, 1)
	}
	if b.Passes() != n {
		t.Fatalf("Passes() = %d, want %d", b.Passes(), n)
	}
	return b
}

func TestBudgetObserve(t *testing.T) {
	tests := []struct {
		name    string
		start   int
		elapsed time.Duration
		want    int
	}{
		{"fast frame adds a pass", 4, 50 * time.Millisecond, 5},
		{"slow frame floor", 1, 120 * time.Millisecond, 1},
		{"slow frame removes a pass", 3, 120 * time.Millisecond, 2},
		{"low edge is in band", 4, DefaultLowThreshold, 4},
		{"high edge is in band", 4, DefaultHighThreshold, 4},
		{"zero elapsed is fast", 2, 0, 3},
		{"negative elapsed is fast", 2, -time.Millisecond, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := budgetAt(t, tt.start)
			b.Observe(tt.elapsed, 100)
			if got := b.Passes(); got != tt.want {
				t.Errorf("Passes() = %d, want %d", got, tt.want)
			}
			if b.LastElapsed() != tt.elapsed {
				t.Errorf("LastElapsed() = %v, want %v", b.LastElapsed(), tt.elapsed)
			}
		})
	}
}

func TestBudgetFloor(t *testing.T) {
	b := budgetAt(t, 5)
	for range 1000 {
		b.Observe(time.Second, 100)
		if b.Passes() < 1 {
			t.Fatalf("Passes() = %d", b.Passes())
		}
	}
	if b.Passes() != 1 {
		t.Errorf("Passes() = %d, want 1", b.Passes())
	}
}

func TestBudgetDeadBand(t *testing.T) {
	b := budgetAt(t, 7)
	for i := range 10000 {
		d := DefaultLowThreshold + (DefaultHighThreshold-DefaultLowThreshold)*time.Duration(i)/9999
		b.Observe(d, 640*480)
		if b.Passes() != 7 {
			t.Fatalf("frame %d (%v): Passes() = %d, want 7", i, d, b.Passes())
		}
	}
}

func TestBudgetCeiling(t *testing.T) {
	cfg := DefaultBudgetConfig()
	cfg.MaxPasses = 3
	b := NewBudget(cfg)
	for range 10 {
		b.Observe(time.Millisecond, 1)
	}
	if b.Passes() != 3 {
		t.Errorf("Passes() = %d, want 3", b.Passes())
	}

	cfg.MaxPasses = 0
	b = NewBudget(cfg)
	for range 1000 {
		b.Observe(time.Millisecond, 1)
	}
	if b.Passes() != 1001 {
		t.Errorf("unbounded Passes() = %d, want 1001", b.Passes())
	}
}

func TestBudgetThroughput(t *testing.T) {
	b := NewBudget(DefaultBudgetConfig())
	b.Observe(80*time.Millisecond, 1000) // in band: 1 pass stays
	// 0.9*0 + 0.1*(1*1000/0.08)
	if got, want := b.Throughput(), 1250.0; !near(got, want) {
		t.Errorf("Throughput() = %v, want %v", got, want)
	}
	b.Observe(0, 1000)
	if got, want := b.Throughput(), 1250.0; !near(got, want) {
		t.Errorf("Throughput() after zero elapsed = %v, want %v", got, want)
	}
	b.Reset()
	if b.Passes() != 1 || !near(b.Throughput(), 1250) {
		t.Errorf("Reset() left passes %d, throughput %v", b.Passes(), b.Throughput())
	}
}

func TestBudgetFixed(t *testing.T) {
	b := NewBudget(FixedBudgetConfig())
	for range 5 {
		b.Observe(time.Millisecond, 100)
	}
	if b.Passes() != 1 {
		t.Errorf("Passes() = %d, want 1", b.Passes())
	}
	// 1 - 0.95^5 of the 100000 samples/sec rate.
	if got := b.Throughput(); got < 22000 || got > 23000 {
		t.Errorf("Throughput() = %v", got)
	}
}

func TestBudgetConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BudgetConfig)
		ok     bool
	}{
		{"default", func(*BudgetConfig) {}, true},
		{"no dead band", func(c *BudgetConfig) { c.HighThreshold = c.LowThreshold }, false},
		{"inverted", func(c *BudgetConfig) { c.HighThreshold = c.LowThreshold / 2 }, false},
		{"zero low", func(c *BudgetConfig) { c.LowThreshold = 0 }, false},
		{"zero smoothing", func(c *BudgetConfig) { c.Smoothing = 0 }, false},
		{"smoothing above one", func(c *BudgetConfig) { c.Smoothing = 1.5 }, false},
		{"negative ceiling", func(c *BudgetConfig) { c.MaxPasses = -1 }, false},
	}
	for _, tt := range tests {
		c := DefaultBudgetConfig()
		tt.mutate(&c)
		if err := c.Validate(); (err == nil) != tt.ok {
			t.Errorf("%s: Validate() = %v, want ok=%v", tt.name, err, tt.ok)
		}
	}
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-6*b+1e-9 && d > -1e-6*b-1e-9
}
