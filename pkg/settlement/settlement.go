// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/luxfi/dax/pkg/ids"
)

var (
	ErrNoTransferer = errors.New("no transferer configured")

	// ErrUnwindFailed marks a settlement whose compensating reversals did
	// not all apply; balances must be reconciled manually.
	ErrUnwindFailed = errors.New("settlement unwind failed")
)

// Transferer moves value between accounts. Implementations must be safe
// for concurrent use and must either apply a transfer fully or not at all.
type Transferer interface {
	Transfer(ctx context.Context, from, to ids.ID, amount uint64, memo string) (uuid.UUID, error)
}

// Leg is one executed transfer of a settlement.
type Leg struct {
	From   ids.ID    `json:"from"`
	To     ids.ID    `json:"to"`
	Amount uint64    `json:"amount"`
	Ref    uuid.UUID `json:"ref"`
}

// Plan stages the transfers that settle one purchase: collect the full
// payment into escrow, then pay out the fee, the seller proceeds and any
// overpayment refund, in that order.
type Plan struct {
	Payer        ids.ID
	Escrow       ids.ID
	Seller       ids.ID
	FeeRecipient ids.ID
	Split        Split
	Memo         string
}

// Receipt records a completed settlement.
type Receipt struct {
	Memo           string    `json:"memo"`
	Payer          ids.ID    `json:"payer"`
	Price          uint64    `json:"price"`
	Fee            uint64    `json:"fee"`
	SellerProceeds uint64    `json:"seller_proceeds"`
	Refund         uint64    `json:"refund"`
	Legs           []Leg     `json:"legs"`
	SettledAt      time.Time `json:"settled_at"`
}

// Execute runs the plan all-or-nothing. When a leg fails, every completed
// leg is reversed most-recent-first before the error returns, leaving all
// balances at their pre-call values. Zero-amount legs are skipped.
func Execute(ctx context.Context, t Transferer, p Plan, now func() time.Time) (*Receipt, error) {
	if t == nil {
		return nil, ErrNoTransferer
	}
	if now == nil {
		now = time.Now
	}

	type staged struct {
		from, to ids.ID
		amount   uint64
	}
	pending := []staged{
		{p.Payer, p.Escrow, p.Split.Price + p.Split.Refund},
		{p.Escrow, p.FeeRecipient, p.Split.Fee},
		{p.Escrow, p.Seller, p.Split.SellerProceeds},
		{p.Escrow, p.Payer, p.Split.Refund},
	}

	legs := make([]Leg, 0, len(pending))
	for _, s := range pending {
		if s.amount == 0 {
			continue
		}
		ref, err := t.Transfer(ctx, s.from, s.to, s.amount, p.Memo)
		if err != nil {
			err = fmt.Errorf("settlement leg %s for %d: %w", p.Memo, s.amount, err)
			if uerr := unwindLegs(ctx, t, legs, p.Memo); uerr != nil {
				return nil, errors.Join(err, fmt.Errorf("%w: %w", ErrUnwindFailed, uerr))
			}
			return nil, err
		}
		legs = append(legs, Leg{From: s.from, To: s.to, Amount: s.amount, Ref: ref})
	}

	return &Receipt{
		Memo:           p.Memo,
		Payer:          p.Payer,
		Price:          p.Split.Price,
		Fee:            p.Split.Fee,
		SellerProceeds: p.Split.SellerProceeds,
		Refund:         p.Split.Refund,
		Legs:           legs,
		SettledAt:      now(),
	}, nil
}

// Unwind reverses a completed settlement's legs, most recent first. Used
// when a step after fund movement fails and the movement must not stand.
func Unwind(ctx context.Context, t Transferer, r *Receipt) error {
	if t == nil {
		return ErrNoTransferer
	}
	return unwindLegs(ctx, t, r.Legs, r.Memo)
}

func unwindLegs(ctx context.Context, t Transferer, legs []Leg, memo string) error {
	var errs []error
	for i := len(legs) - 1; i >= 0; i-- {
		l := legs[i]
		if _, err := t.Transfer(ctx, l.To, l.From, l.Amount, memo+" reversal"); err != nil {
			errs = append(errs, fmt.Errorf("reverse leg for %d: %w", l.Amount, err))
		}
	}
	return errors.Join(errs...)
}
