// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/dax/pkg/entropy"
)

var (
	ErrPriceOrder       = errors.New("start price must exceed minimum price")
	ErrZeroDurationStep = errors.New("schedule step would have zero duration")
	ErrBadConfig        = errors.New("invalid generator config")
)

// Config bounds the schedules a Generator may draw. Durations are rounded
// down to whole seconds.
type Config struct {
	MinDuration time.Duration
	MaxDuration time.Duration
	MinSteps    int
	MaxSteps    int
}

// DefaultConfig returns the production bounds: total duration drawn from
// [2m, 7m), step count from [3, 5].
func DefaultConfig() Config {
	return Config{
		MinDuration: 2 * time.Minute,
		MaxDuration: 7 * time.Minute,
		MinSteps:    3,
		MaxSteps:    5,
	}
}

// Validate checks the config is internally consistent.
func (c Config) Validate() error {
	if c.MinDuration < time.Second {
		return fmt.Errorf("%w: min duration %s below one second", ErrBadConfig, c.MinDuration)
	}
	if c.MaxDuration/time.Second <= c.MinDuration/time.Second {
		return fmt.Errorf("%w: max duration %s not above min %s in whole seconds", ErrBadConfig, c.MaxDuration, c.MinDuration)
	}
	if c.MinSteps < 1 {
		return fmt.Errorf("%w: min steps %d below one", ErrBadConfig, c.MinSteps)
	}
	if c.MaxSteps < c.MinSteps {
		return fmt.Errorf("%w: max steps %d below min steps %d", ErrBadConfig, c.MaxSteps, c.MinSteps)
	}
	return nil
}

// Generator draws stepped decay schedules from an entropy source. It is
// deterministic given the source, so tests inject entropy.Sequence.
type Generator struct {
	cfg Config
	src entropy.Source
}

// NewGenerator builds a generator. A nil source falls back to the weak
// time-derived default.
func NewGenerator(cfg Config, src entropy.Source) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		src = entropy.NewWeak()
	}
	return &Generator{cfg: cfg, src: src}, nil
}

// Generate draws a schedule taking startPrice down toward minimumPrice.
//
// The total duration D lands in [MinDuration, MaxDuration) and is split
// into N positive parts by repeatedly taking remaining/stepsLeft, the last
// part absorbing the remainder so the parts sum to D exactly. The total
// discount startPrice-minimumPrice is split the same way, with the
// remaining pool reduced by the amount each step's truncated rate actually
// consumes; the final step's rate is computed from the true residual.
func (g *Generator) Generate(startPrice, minimumPrice uint64) (Schedule, error) {
	if startPrice <= minimumPrice {
		return nil, fmt.Errorf("%w: start %d, minimum %d", ErrPriceOrder, startPrice, minimumPrice)
	}

	minSec := uint64(g.cfg.MinDuration / time.Second)
	maxSec := uint64(g.cfg.MaxDuration / time.Second)
	total := minSec + g.src.Draw()%(maxSec-minSec)

	span := uint64(g.cfg.MaxSteps - g.cfg.MinSteps + 1)
	n := g.cfg.MinSteps + int(g.src.Draw()%span)

	durations := make([]uint64, n)
	remainingDur := total
	for i := 0; i < n-1; i++ {
		d := remainingDur / uint64(n-i)
		durations[i] = d
		remainingDur -= d
	}
	durations[n-1] = remainingDur
	for i, d := range durations {
		if d == 0 {
			return nil, fmt.Errorf("%w: step %d of %d over %d seconds", ErrZeroDurationStep, i, n, total)
		}
	}

	steps := make(Schedule, n)
	remainingDiscount := startPrice - minimumPrice
	for i := 0; i < n; i++ {
		var rate uint64
		if i == n-1 {
			rate = remainingDiscount / durations[i]
		} else {
			share := remainingDiscount / uint64(n-i)
			rate = share / durations[i]
			remainingDiscount -= rate * durations[i]
		}
		steps[i] = DiscountStep{Rate: rate, Duration: durations[i]}
	}

	return steps, nil
}
