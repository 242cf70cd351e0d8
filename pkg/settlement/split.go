// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package settlement computes and executes the atomic three-way division
// of an accepted payment into platform fee, seller proceeds and buyer
// refund.
package settlement

import "errors"

// BpsDenominator converts basis points to a fraction.
const BpsDenominator = 10_000

var (
	ErrPaymentBelowPrice = errors.New("payment below clearing price")
	ErrFeeBand           = errors.New("fee basis points exceed denominator")
	ErrSplitMismatch     = errors.New("settlement split does not conserve payment")
)

// Split is the exact division of one clearing payment.
type Split struct {
	Price          uint64 `json:"price"`
	Fee            uint64 `json:"fee"`
	SellerProceeds uint64 `json:"seller_proceeds"`
	Refund         uint64 `json:"refund"`
}

// ComputeSplit divides payment at the given price under feeBps.
//
// The fee is floor(price*feeBps/10000), computed in two terms so the
// product cannot overflow for any realistic price. Fee, proceeds and
// refund sum to payment exactly; no value is created or destroyed.
func ComputeSplit(price, payment uint64, feeBps uint32) (Split, error) {
	if payment < price {
		return Split{}, ErrPaymentBelowPrice
	}
	bps := uint64(feeBps)
	if bps > BpsDenominator {
		return Split{}, ErrFeeBand
	}

	fee := (price/BpsDenominator)*bps + (price%BpsDenominator)*bps/BpsDenominator
	s := Split{
		Price:          price,
		Fee:            fee,
		SellerProceeds: price - fee,
		Refund:         payment - price,
	}
	if s.Fee+s.SellerProceeds+s.Refund != payment {
		return Split{}, ErrSplitMismatch
	}
	return s, nil
}
