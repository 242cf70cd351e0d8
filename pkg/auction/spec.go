// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auction

import (
	"fmt"

	"github.com/luxfi/dax/pkg/ids"
	"github.com/luxfi/dax/pkg/schedule"
)

// Platform fee band in basis points (5% to 15%).
const (
	FeeBpsMin = 500
	FeeBpsMax = 1500
)

// Spec fixes the immutable terms of a sale at creation time. The
// reference valuation is a benchmark used only for profit reporting and
// never enters pricing.
type Spec struct {
	ID                 ids.ID            `json:"id"`
	ItemName           string            `json:"item_name"`
	DescriptorHash     ids.ID            `json:"descriptor_hash"`
	Seller             ids.ID            `json:"seller"`
	FeeRecipient       ids.ID            `json:"fee_recipient"`
	StartPrice         uint64            `json:"start_price"`
	MinimumPrice       uint64            `json:"minimum_price"`
	PlatformFeeBps     uint32            `json:"platform_fee_bps"`
	ReferenceValuation uint64            `json:"reference_valuation"`
	Schedule           schedule.Schedule `json:"schedule"`
	Duration           uint64            `json:"duration"`
}

// Validate checks the construction invariants.
func (s *Spec) Validate() error {
	if s.ID.IsZero() {
		return fmt.Errorf("%w: auction id required", ErrConfiguration)
	}
	if s.ItemName == "" {
		return fmt.Errorf("%w: item name required", ErrConfiguration)
	}
	if s.Seller.IsZero() || s.FeeRecipient.IsZero() {
		return fmt.Errorf("%w: seller and fee recipient accounts required", ErrConfiguration)
	}
	if s.StartPrice < s.MinimumPrice {
		return ErrPriceOrder
	}
	if s.PlatformFeeBps < FeeBpsMin || s.PlatformFeeBps > FeeBpsMax {
		return ErrFeeOutOfRange
	}
	if len(s.Schedule) == 0 {
		return ErrEmptySchedule
	}
	if s.Schedule.TotalDuration() != s.Duration {
		return ErrScheduleSum
	}
	if s.ReferenceValuation < s.MinimumPrice || s.ReferenceValuation > s.StartPrice {
		return fmt.Errorf("%w: reference valuation outside price band", ErrConfiguration)
	}
	return nil
}
