package speed

import (
	"math/rand/v2"
	"time"
)

// DefaultVariant is the conservative variant used until a winner emerges.
const DefaultVariant = "moderate"

// Range is an inclusive interval of delays.
type Range struct {
	Min time.Duration `json:"min" toml:"min"`
	Max time.Duration `json:"max" toml:"max"`
}

// Sample returns a uniformly random delay in the range.
func (r Range) Sample() time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rand.N(r.Max-r.Min+1)
}

// Behavior names a randomized human-like delay.
type Behavior string

const (
	BehaviorClick  Behavior = "click"
	BehaviorScroll Behavior = "scroll"
	BehaviorMouse  Behavior = "mouse"
	BehaviorTyping Behavior = "typing"
)

// Variant is a named pacing bundle.
type Variant struct {
	Name            string `json:"name"`
	TargetPerMinute int    `json:"target_per_minute"`
	// Interval is the gap between two admissions; it drives the pacing limiter.
	Interval  time.Duration `json:"interval"`
	TypingWPM int           `json:"typing_wpm"`
	Click     Range         `json:"click"`
	Scroll    Range         `json:"scroll"`
	Mouse     Range         `json:"mouse"`
	BurstSize int           `json:"burst_size"`
}

// Catalog returns the built-in variants, slowest first.
func Catalog() []Variant {
	return []Variant{
		variant("slow", 18, 3333, 40, 300, 800, 500, 3),
		variant("moderate", 25, 2400, 50, 200, 600, 350, 5),
		variant("fast", 35, 1714, 65, 150, 400, 200, 8),
		variant("very_fast", 50, 1200, 80, 100, 250, 100, 10),
	}
}

// Each range spans half to one and a half times its nominal value.
func variant(name string, perMinute, intervalMS, wpm, clickMS, scrollMS, mouseMS, burst int) Variant {
	spread := func(ms int) Range {
		d := time.Duration(ms) * time.Millisecond
		return Range{Min: d / 2, Max: d + d/2}
	}
	return Variant{
		Name:            name,
		TargetPerMinute: perMinute,
		Interval:        time.Duration(intervalMS) * time.Millisecond,
		TypingWPM:       wpm,
		Click:           spread(clickMS),
		Scroll:          spread(scrollMS),
		Mouse:           spread(mouseMS),
		BurstSize:       burst,
	}
}

// StepDelay returns the randomized pause between two steps of a flow.
func (v Variant) StepDelay() time.Duration {
	return v.Mouse.Sample() + v.Click.Sample()
}

// BehaviorDelay returns a randomized delay for b. Typing delays are per
// character, derived from TypingWPM at five characters per word.
func (v Variant) BehaviorDelay(b Behavior) time.Duration {
	switch b {
	case BehaviorClick:
		return v.Click.Sample()
	case BehaviorScroll:
		return v.Scroll.Sample()
	case BehaviorMouse:
		return v.Mouse.Sample()
	case BehaviorTyping:
		if v.TypingWPM <= 0 {
			return 0
		}
		perChar := time.Minute / time.Duration(v.TypingWPM*5)
		return Range{Min: perChar / 2, Max: perChar + perChar/2}.Sample()
	}
	return 0
}
