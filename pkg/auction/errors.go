// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auction

import (
	"errors"
	"fmt"
)

// Category sentinels. Every failure the engine reports wraps exactly one
// of these, so callers can branch on the failure class with errors.Is.
var (
	// ErrConfiguration rejects an invalid spec at construction. Fatal for
	// the creation attempt.
	ErrConfiguration = errors.New("configuration rejected")

	// ErrState rejects an operation invalid for the current status.
	// Recoverable; the caller should re-read state.
	ErrState = errors.New("state precondition failed")

	// ErrFunds rejects a purchase whose payment or transfers cannot
	// complete. The purchase rolls back fully; no partial effect remains.
	ErrFunds = errors.New("funds precondition failed")

	// ErrInternal marks an invariant violation that correct construction
	// rules out.
	ErrInternal = errors.New("internal consistency fault")
)

var (
	ErrPriceOrder    = fmt.Errorf("%w: start price below minimum price", ErrConfiguration)
	ErrFeeOutOfRange = fmt.Errorf("%w: platform fee outside permitted band", ErrConfiguration)
	ErrEmptySchedule = fmt.Errorf("%w: schedule has no steps", ErrConfiguration)
	ErrScheduleSum   = fmt.Errorf("%w: schedule durations do not sum to auction duration", ErrConfiguration)

	ErrNotApproved      = fmt.Errorf("%w: auction not approved", ErrState)
	ErrInvalidState     = fmt.Errorf("%w: operation not allowed in current status", ErrState)
	ErrAuctionNotActive = fmt.Errorf("%w: auction not active", ErrState)

	ErrInsufficientPayment = fmt.Errorf("%w: payment below current price", ErrFunds)

	ErrZeroPrice = fmt.Errorf("%w: active auction priced at zero", ErrInternal)
)
