// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package schedule produces and evaluates the stepped price-decay
// schedules that drive a Dutch sale.
package schedule

// DiscountStep is one leg of a decay schedule. Rate is the price decrease
// in base units per second while the leg runs; Duration is the leg length
// in seconds. Steps are immutable once created.
type DiscountStep struct {
	Rate     uint64 `json:"rate"`
	Duration uint64 `json:"duration"`
}

// Schedule is an ordered sequence of discount steps applied from auction
// start. Generated schedules keep sum(Duration) equal to the auction
// duration exactly.
type Schedule []DiscountStep

// TotalDuration returns the summed step durations in seconds.
func (s Schedule) TotalDuration() uint64 {
	var total uint64
	for _, step := range s {
		total += step.Duration
	}
	return total
}

// TotalDiscount returns the price decrease applied by running every step
// to completion.
func (s Schedule) TotalDiscount() uint64 {
	var total uint64
	for _, step := range s {
		total += step.Rate * step.Duration
	}
	return total
}

// PriceAt returns the asking price elapsed seconds after activation.
//
// The walk applies each fully-elapsed step's whole discount and the
// in-progress step's pro-rata discount against the running price, with
// saturating subtraction so no intermediate drops below minimumPrice.
// Past the final step the last running price stands. The result is
// monotonically non-increasing in elapsed and always within
// [minimumPrice, startPrice].
func PriceAt(s Schedule, startPrice, minimumPrice, elapsed uint64) uint64 {
	price := startPrice
	var stepStart uint64
	for _, step := range s {
		if elapsed < stepStart+step.Duration {
			discount := step.Rate * (elapsed - stepStart)
			if price > discount {
				price -= discount
			} else {
				price = minimumPrice
			}
			break
		}
		discount := step.Rate * step.Duration
		if price > discount {
			price -= discount
		} else {
			price = minimumPrice
		}
		stepStart += step.Duration
	}
	if price < minimumPrice {
		price = minimumPrice
	}
	return price
}
