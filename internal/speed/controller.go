package speed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

var (
	ErrNoVariants     = errors.New("no speed variants")
	ErrUnknownVariant = errors.New("unknown speed variant")
)

// Stats is the running tally of one variant.
type Stats struct {
	Name        string  `json:"name"`
	Assigned    int     `json:"assigned"`
	Attempts    int     `json:"attempts"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_rate"`
}

// Recommendation is the controller's pick for the next run.
type Recommendation struct {
	Variant    string  `json:"variant"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	SampleSize int     `json:"sample_size"`
}

type entry struct {
	variant   Variant
	limiter   *rate.Limiter
	assigned  int
	attempts  int
	successes int
}

// Controller assigns variants to actors, keeps their tallies and paces
// admissions to each variant's target throughput.
type Controller struct {
	mu      sync.Mutex
	entries []*entry
	byName  map[string]int
	actors  map[string]int
	def     int
}

// NewController creates a controller over variants in declaration order.
// def names the conservative fallback.
func NewController(variants []Variant, def string) (*Controller, error) {
	if len(variants) == 0 {
		return nil, ErrNoVariants
	}
	c := &Controller{byName: make(map[string]int), actors: make(map[string]int), def: -1}
	for i, v := range variants {
		if _, dup := c.byName[v.Name]; dup {
			return nil, fmt.Errorf("duplicate speed variant %q", v.Name)
		}
		c.byName[v.Name] = i
		c.entries = append(c.entries, &entry{variant: v, limiter: newLimiter(v)})
		if v.Name == def {
			c.def = i
		}
	}
	if c.def < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, def)
	}
	return c, nil
}

// newLimiter spaces admissions by the variant's Interval, falling back to
// the spacing implied by TargetPerMinute.
func newLimiter(v Variant) *rate.Limiter {
	burst := max(v.BurstSize, 1)
	switch {
	case v.Interval > 0:
		return rate.NewLimiter(rate.Every(v.Interval), burst)
	case v.TargetPerMinute > 0:
		return rate.NewLimiter(rate.Limit(float64(v.TargetPerMinute)/60), burst)
	}
	return rate.NewLimiter(rate.Inf, 1)
}

// Assign returns the variant bound to actor, binding the least-assigned
// variant on first sight. Ties go to the earliest declared variant.
func (c *Controller) Assign(actor string) Variant {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.actors[actor]; ok {
		return c.entries[i].variant
	}
	best := 0
	for i, e := range c.entries {
		if e.assigned < c.entries[best].assigned {
			best = i
		}
	}
	c.entries[best].assigned++
	c.actors[actor] = best
	return c.entries[best].variant
}

// Variant looks up a variant by name.
func (c *Controller) Variant(name string) (Variant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.byName[name]
	if !ok {
		return Variant{}, false
	}
	return c.entries[i].variant, true
}

// Record adds one result to the variant's tally.
func (c *Controller) Record(name string, success bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
	c.entries[i].attempts++
	if success {
		c.entries[i].successes++
	}
	return nil
}

// Wait blocks until the named variant's pacing allows another admission.
func (c *Controller) Wait(ctx context.Context, name string) error {
	c.mu.Lock()
	i, ok := c.byName[name]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
	return c.entries[i].limiter.Wait(ctx)
}

// Winner returns the variant with the best success ratio among those with
// at least minSamples attempts. Ties go to the earliest declared variant.
func (c *Controller) Winner(minSamples int) (Variant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.winner(minSamples)
	if i < 0 {
		return Variant{}, false
	}
	return c.entries[i].variant, true
}

func (c *Controller) winner(minSamples int) int {
	best, bestRate := -1, -1.0
	for i, e := range c.entries {
		if e.attempts == 0 || e.attempts < minSamples {
			continue
		}
		r := float64(e.successes) / float64(e.attempts)
		if r > bestRate {
			best, bestRate = i, r
		}
	}
	return best
}

// Recommend returns the winner, or the default variant when no variant
// has minSamples attempts yet.
func (c *Controller) Recommend(minSamples int) Recommendation {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.winner(minSamples)
	if i < 0 {
		return Recommendation{
			Variant: c.entries[c.def].variant.Name,
			Reason:  "insufficient data, using safe default",
		}
	}
	e := c.entries[i]
	pct := float64(e.successes) / float64(e.attempts) * 100
	return Recommendation{
		Variant:    e.variant.Name,
		Reason:     fmt.Sprintf("highest success rate at %.1f%%", pct),
		Confidence: min(100, float64(e.attempts)/10),
		SampleSize: e.attempts,
	}
}

// Stats returns the tallies in declaration order.
func (c *Controller) Stats() []Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Stats, len(c.entries))
	for i, e := range c.entries {
		s := Stats{Name: e.variant.Name, Assigned: e.assigned, Attempts: e.attempts, Successes: e.successes}
		if e.attempts > 0 {
			s.SuccessRate = float64(e.successes) / float64(e.attempts)
		}
		out[i] = s
	}
	return out
}
