// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package auction implements the single-item stepped Dutch sale: a state
// machine over pending -> active -> {ended, unsold} whose asking price
// decays along an immutable schedule until a buyer settles or the
// schedule expires.
package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/dax/pkg/ids"
	"github.com/luxfi/dax/pkg/log"
	"github.com/luxfi/dax/pkg/schedule"
	"github.com/luxfi/dax/pkg/settlement"
)

// Status is an auction's lifecycle position.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
	StatusUnsold  Status = "unsold"
)

// Terminal reports whether no further transition can occur.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusUnsold
}

// ApprovalOracle reports whether the registry has approved an auction for
// activation.
type ApprovalOracle interface {
	IsApproved(ids.ID) bool
}

// RecordSaver durably stores auction snapshots. Save runs inside the
// instance lock; a transition only commits if it returns nil.
type RecordSaver interface {
	Save(Snapshot) error
}

// Deps wires an instance to its host services. Approvals gates
// activation and Funds moves purchase money; Clock, Events, Log and
// Escrow default when unset.
type Deps struct {
	Approvals ApprovalOracle
	Funds     settlement.Transferer
	Escrow    ids.ID
	Clock     func() time.Time
	Saver     RecordSaver
	Events    Sink
	Log       log.Logger
}

// Snapshot is a consistent view of an auction's spec and state.
type Snapshot struct {
	Spec         Spec      `json:"spec"`
	Status       Status    `json:"status"`
	StartTime    time.Time `json:"start_time"`
	Winner       ids.ID    `json:"winner"`
	FinalPrice   uint64    `json:"final_price"`
	Profit       int64     `json:"profit"`
	CurrentPrice uint64    `json:"current_price"`
}

// Auction is one sale instance. All state-changing operations serialize
// on the instance lock; reads take consistent snapshots under the read
// lock.
type Auction struct {
	spec Spec

	mu         sync.RWMutex
	status     Status
	startTime  time.Time
	winner     ids.ID
	finalPrice uint64
	profit     int64

	approvals ApprovalOracle
	funds     settlement.Transferer
	escrow    ids.ID
	clock     func() time.Time
	saver     RecordSaver
	events    Sink
	log       log.Logger
}

// New constructs a pending auction from a validated spec.
func New(spec Spec, deps Deps) (*Auction, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	a := &Auction{
		spec:      spec,
		status:    StatusPending,
		approvals: deps.Approvals,
		funds:     deps.Funds,
		escrow:    deps.Escrow,
		clock:     deps.Clock,
		saver:     deps.Saver,
		events:    deps.Events,
		log:       deps.Log,
	}
	if a.clock == nil {
		a.clock = time.Now
	}
	if a.events == nil {
		a.events = SinkFunc(func(Event) {})
	}
	if a.log == nil {
		a.log = log.NoLog
	}
	if a.escrow.IsZero() {
		a.escrow = ids.NewID(spec.ID[:], []byte("escrow"))
	}
	return a, nil
}

// Restore rebuilds an instance from a stored snapshot without emitting
// events or re-running transitions.
func Restore(snap Snapshot, deps Deps) (*Auction, error) {
	a, err := New(snap.Spec, deps)
	if err != nil {
		return nil, err
	}
	switch snap.Status {
	case StatusPending, StatusActive, StatusEnded, StatusUnsold:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrConfiguration, snap.Status)
	}
	a.status = snap.Status
	a.startTime = snap.StartTime
	a.winner = snap.Winner
	a.finalPrice = snap.FinalPrice
	a.profit = snap.Profit
	return a, nil
}

// ID returns the instance identifier.
func (a *Auction) ID() ids.ID {
	return a.spec.ID
}

// Spec returns a copy of the immutable sale terms.
func (a *Auction) Spec() Spec {
	return a.spec
}

// Escrow returns the account that briefly custodies a settling payment.
func (a *Auction) Escrow() ids.ID {
	return a.escrow
}

// Status returns the current lifecycle position.
func (a *Auction) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// CurrentPrice returns the asking price now: zero unless the auction is
// active, otherwise the curve price for the elapsed time, bounded by
// [minimum, start].
func (a *Auction) CurrentPrice() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.priceLocked()
}

// Snapshot returns spec and full state in one consistent read.
func (a *Auction) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshotLocked()
}

// Activate moves a pending, approved auction to active and stamps its
// start time from the clock.
func (a *Auction) Activate(ctx context.Context) error {
	ev, err := a.activate()
	if err != nil {
		return err
	}
	a.events.OnEvent(ev)
	a.log.Info("auction activated",
		"auction", a.spec.ID,
		"start_price", a.spec.StartPrice,
		"minimum_price", a.spec.MinimumPrice,
		"duration", a.spec.Duration)
	return nil
}

// CheckExpiry closes an active auction as unsold once its duration has
// fully elapsed. Anyone may call it, repeatedly; only the first call past
// expiry transitions and signals. The returned bool reports whether this
// call performed the transition.
func (a *Auction) CheckExpiry(ctx context.Context) (bool, error) {
	ev, expired, err := a.checkExpiry()
	if err != nil {
		return false, err
	}
	if !expired {
		return false, nil
	}
	a.events.OnEvent(ev)
	a.log.Info("auction expired unsold", "auction", a.spec.ID)
	return true, nil
}

// Purchase settles the sale to payer at the current price.
//
// The terminal state is staged before any value moves so reentrant and
// concurrent callers observe a non-active auction and are rejected. If a
// transfer leg or the durable commit fails, the staged state is rolled
// back and every completed leg reversed; no partial effect survives.
func (a *Auction) Purchase(ctx context.Context, payer ids.ID, payment uint64) (*settlement.Receipt, error) {
	a.mu.Lock()
	if a.status != StatusActive {
		a.mu.Unlock()
		return nil, ErrAuctionNotActive
	}
	if payer.IsZero() {
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: payer account required", ErrConfiguration)
	}
	if a.funds == nil {
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: no transferer configured", ErrConfiguration)
	}
	price := a.priceLocked()
	if price == 0 {
		a.mu.Unlock()
		return nil, ErrZeroPrice
	}
	if payment < price {
		a.mu.Unlock()
		return nil, ErrInsufficientPayment
	}
	split, err := settlement.ComputeSplit(price, payment, a.spec.PlatformFeeBps)
	if err != nil {
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrInternal, err)
	}

	a.status = StatusEnded
	a.winner = payer
	a.finalPrice = price
	a.profit = int64(price) - int64(a.spec.ReferenceValuation)
	plan := settlement.Plan{
		Payer:        payer,
		Escrow:       a.escrow,
		Seller:       a.spec.Seller,
		FeeRecipient: a.spec.FeeRecipient,
		Split:        split,
		Memo:         a.spec.ID.String(),
	}
	a.mu.Unlock()

	receipt, err := settlement.Execute(ctx, a.funds, plan, a.clock)

	a.mu.Lock()
	if err != nil {
		a.rollbackLocked()
		a.mu.Unlock()
		if errors.Is(err, settlement.ErrUnwindFailed) {
			return nil, fmt.Errorf("%w: %w", ErrInternal, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrFunds, err)
	}
	if err := a.saveLocked(); err != nil {
		uerr := settlement.Unwind(ctx, a.funds, receipt)
		a.rollbackLocked()
		a.mu.Unlock()
		if uerr != nil {
			return nil, fmt.Errorf("%w: persisting sale: %w; unwind: %w", ErrInternal, err, uerr)
		}
		return nil, fmt.Errorf("%w: persisting sale: %w", ErrInternal, err)
	}
	ev := EndedEvent{
		BaseEvent:  BaseEvent{Type: EventEnded, AuctionID: a.spec.ID, Timestamp: receipt.SettledAt},
		Winner:     payer,
		FinalPrice: price,
	}
	a.mu.Unlock()

	a.events.OnEvent(ev)
	a.log.Info("auction ended",
		"auction", a.spec.ID,
		"winner", payer,
		"price", price,
		"fee", split.Fee,
		"refund", split.Refund)
	return receipt, nil
}

func (a *Auction) activate() (Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != StatusPending {
		return nil, ErrInvalidState
	}
	if a.approvals == nil || !a.approvals.IsApproved(a.spec.ID) {
		return nil, ErrNotApproved
	}
	now := a.clock()
	a.status = StatusActive
	a.startTime = now
	if err := a.saveLocked(); err != nil {
		a.status = StatusPending
		a.startTime = time.Time{}
		return nil, fmt.Errorf("%w: persisting activation: %w", ErrInternal, err)
	}
	return ActivatedEvent{
		BaseEvent: BaseEvent{Type: EventActivated, AuctionID: a.spec.ID, Timestamp: now},
		StartTime: now,
	}, nil
}

func (a *Auction) checkExpiry() (Event, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != StatusActive {
		return nil, false, ErrInvalidState
	}
	if a.elapsedLocked() < a.spec.Duration {
		return nil, false, nil
	}
	a.status = StatusUnsold
	if err := a.saveLocked(); err != nil {
		a.status = StatusActive
		return nil, false, fmt.Errorf("%w: persisting expiry: %w", ErrInternal, err)
	}
	return UnsoldEvent{BaseEvent{
		Type:      EventUnsold,
		AuctionID: a.spec.ID,
		Timestamp: a.clock(),
	}}, true, nil
}

func (a *Auction) rollbackLocked() {
	a.status = StatusActive
	a.winner = ids.Empty
	a.finalPrice = 0
	a.profit = 0
}

func (a *Auction) saveLocked() error {
	if a.saver == nil {
		return nil
	}
	return a.saver.Save(a.snapshotLocked())
}

func (a *Auction) snapshotLocked() Snapshot {
	return Snapshot{
		Spec:         a.spec,
		Status:       a.status,
		StartTime:    a.startTime,
		Winner:       a.winner,
		FinalPrice:   a.finalPrice,
		Profit:       a.profit,
		CurrentPrice: a.priceLocked(),
	}
}

func (a *Auction) priceLocked() uint64 {
	if a.status != StatusActive {
		return 0
	}
	return schedule.PriceAt(a.spec.Schedule, a.spec.StartPrice, a.spec.MinimumPrice, a.elapsedLocked())
}

func (a *Auction) elapsedLocked() uint64 {
	d := a.clock().Sub(a.startTime)
	if d < 0 {
		return 0
	}
	return uint64(d / time.Second)
}
