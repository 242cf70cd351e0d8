//go:build property
// +build property

package schedule

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/luxfi/dax/pkg/entropy"
)

// TestScheduleGenerationProperties drives the generator with arbitrary
// entropy and price spreads and checks the structural invariants hold for
// every draw.
func TestScheduleGenerationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	cfg := DefaultConfig()

	properties.Property("durations sum to the drawn total", prop.ForAll(
		func(d1, d2, spread uint64) bool {
			g, err := NewGenerator(cfg, entropy.NewSequence(d1, d2))
			if err != nil {
				return false
			}
			min := uint64(100)
			s, err := g.Generate(min+spread, min)
			if err != nil {
				return false
			}
			want := uint64(120) + d1%300
			return s.TotalDuration() == want
		},
		gen.UInt64(),
		gen.UInt64(),
		gen.UInt64Range(1, 1_000_000_000),
	))

	properties.Property("every step has positive duration and step count is in band", prop.ForAll(
		func(d1, d2 uint64) bool {
			g, err := NewGenerator(cfg, entropy.NewSequence(d1, d2))
			if err != nil {
				return false
			}
			s, err := g.Generate(10_000, 10)
			if err != nil {
				return false
			}
			if len(s) < cfg.MinSteps || len(s) > cfg.MaxSteps {
				return false
			}
			for _, step := range s {
				if step.Duration == 0 {
					return false
				}
			}
			return true
		},
		gen.UInt64(),
		gen.UInt64(),
	))

	properties.Property("total discount never exceeds the price spread", prop.ForAll(
		func(d1, d2, spread uint64) bool {
			g, err := NewGenerator(cfg, entropy.NewSequence(d1, d2))
			if err != nil {
				return false
			}
			min := uint64(500)
			s, err := g.Generate(min+spread, min)
			if err != nil {
				return false
			}
			return s.TotalDiscount() <= spread
		},
		gen.UInt64(),
		gen.UInt64(),
		gen.UInt64Range(1, 1_000_000_000),
	))

	properties.TestingRun(t)
}

// TestPriceCurveProperties checks the curve stays monotone and bounded for
// generated schedules at arbitrary sample times.
func TestPriceCurveProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	cfg := DefaultConfig()

	properties.Property("price is bounded by [minimum, start]", prop.ForAll(
		func(d1, d2, spread, elapsed uint64) bool {
			g, err := NewGenerator(cfg, entropy.NewSequence(d1, d2))
			if err != nil {
				return false
			}
			min := uint64(1_000)
			start := min + spread
			s, err := g.Generate(start, min)
			if err != nil {
				return false
			}
			p := PriceAt(s, start, min, elapsed)
			return p >= min && p <= start
		},
		gen.UInt64(),
		gen.UInt64(),
		gen.UInt64Range(1, 1_000_000_000),
		gen.UInt64Range(0, 1_000),
	))

	properties.Property("price never increases with elapsed time", prop.ForAll(
		func(d1, d2, spread uint64) bool {
			g, err := NewGenerator(cfg, entropy.NewSequence(d1, d2))
			if err != nil {
				return false
			}
			min := uint64(1_000)
			start := min + spread
			s, err := g.Generate(start, min)
			if err != nil {
				return false
			}
			prev := start
			for elapsed := uint64(0); elapsed <= s.TotalDuration()+5; elapsed++ {
				p := PriceAt(s, start, min, elapsed)
				if p > prev {
					return false
				}
				prev = p
			}
			return true
		},
		gen.UInt64(),
		gen.UInt64(),
		gen.UInt64Range(1, 1_000_000_000),
	))

	properties.TestingRun(t)
}
