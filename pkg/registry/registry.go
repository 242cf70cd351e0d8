// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry hosts the auction fleet. It creates auctions with
// generated schedules, gates activation behind owner approval, routes
// purchases, sweeps expired sales and accrues platform fees into a
// custody account.
package registry

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/luxfi/dax/pkg/analytics"
	"github.com/luxfi/dax/pkg/auction"
	"github.com/luxfi/dax/pkg/descriptor"
	"github.com/luxfi/dax/pkg/entropy"
	"github.com/luxfi/dax/pkg/ids"
	"github.com/luxfi/dax/pkg/ledger"
	"github.com/luxfi/dax/pkg/log"
	"github.com/luxfi/dax/pkg/metric"
	"github.com/luxfi/dax/pkg/schedule"
	"github.com/luxfi/dax/pkg/settlement"
	"github.com/luxfi/dax/pkg/storage"
)

var (
	ErrNotFound          = errors.New("auction not found")
	ErrUnauthorized      = errors.New("caller is not the registry owner")
	ErrUnknownDescriptor = errors.New("descriptor not stored")
)

// Config fixes the registry's operating parameters.
type Config struct {
	// Owner may approve auctions and withdraw fees.
	Owner ids.ID
	// FeeAccount is the custody account platform fees accrue into.
	FeeAccount ids.ID
	// FeeBps is applied to every created auction. Defaults to 1000.
	FeeBps uint32
	// Schedule bounds for generated price curves. Zero means defaults.
	Schedule schedule.Config
	// Entropy drives schedule generation and reference valuations.
	// Defaults to the weak time-seeded source.
	Entropy entropy.Source
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Deps wires the registry to its host services. Ledger is required;
// everything else is optional.
type Deps struct {
	Ledger      *ledger.Ledger
	Store       *storage.Store
	Descriptors *descriptor.Store
	Metrics     *metric.Metrics
	Tracker     *analytics.Tracker
	Events      auction.Sink
	Log         log.Logger
}

// CreateParams are the caller-supplied terms of a new auction.
type CreateParams struct {
	ItemName       string `json:"item_name"`
	Seller         ids.ID `json:"seller"`
	StartPrice     uint64 `json:"start_price"`
	MinimumPrice   uint64 `json:"minimum_price"`
	DescriptorHash ids.ID `json:"descriptor_hash,omitempty"`
}

// Registry is the auction fleet manager.
type Registry struct {
	mu       sync.RWMutex
	auctions map[ids.ID]*auction.Auction
	approved map[ids.ID]bool

	owner      ids.ID
	feeAccount ids.ID
	feeBps     uint32
	entropy    entropy.Source
	clock      func() time.Time
	generator  *schedule.Generator
	seq        atomic.Uint64

	funds       *ledger.Ledger
	store       *storage.Store
	descriptors *descriptor.Store
	metrics     *metric.Metrics
	tracker     *analytics.Tracker
	sink        auction.Sink
	log         log.Logger
}

// New creates a registry and rehydrates any auctions found in the store.
func New(cfg Config, deps Deps) (*Registry, error) {
	if cfg.Owner.IsZero() {
		return nil, fmt.Errorf("%w: registry owner required", auction.ErrConfiguration)
	}
	if cfg.FeeAccount.IsZero() {
		return nil, fmt.Errorf("%w: fee account required", auction.ErrConfiguration)
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("%w: ledger required", auction.ErrConfiguration)
	}
	if cfg.FeeBps == 0 {
		cfg.FeeBps = 1000
	}
	if cfg.FeeBps < auction.FeeBpsMin || cfg.FeeBps > auction.FeeBpsMax {
		return nil, auction.ErrFeeOutOfRange
	}
	if cfg.Entropy == nil {
		cfg.Entropy = entropy.NewWeak()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Schedule == (schedule.Config{}) {
		cfg.Schedule = schedule.DefaultConfig()
	}

	gen, err := schedule.NewGenerator(cfg.Schedule, cfg.Entropy)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		auctions:    make(map[ids.ID]*auction.Auction),
		approved:    make(map[ids.ID]bool),
		owner:       cfg.Owner,
		feeAccount:  cfg.FeeAccount,
		feeBps:      cfg.FeeBps,
		entropy:     cfg.Entropy,
		clock:       cfg.Clock,
		generator:   gen,
		funds:       deps.Ledger,
		store:       deps.Store,
		descriptors: deps.Descriptors,
		metrics:     deps.Metrics,
		tracker:     deps.Tracker,
		log:         deps.Log,
	}
	if r.log == nil {
		r.log = log.NoLog
	}
	r.sink = auction.MultiSink(auction.SinkFunc(r.onEvent), deps.Events)

	if r.store != nil {
		if err := r.rehydrate(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Create builds a pending auction with a generated price schedule and a
// reference valuation drawn strictly inside the price band.
func (r *Registry) Create(ctx context.Context, p CreateParams) (*auction.Auction, error) {
	if !p.DescriptorHash.IsZero() && r.descriptors != nil {
		ok, err := r.descriptors.Has(p.DescriptorHash)
		if err != nil {
			return nil, fmt.Errorf("%w: checking descriptor: %w", auction.ErrInternal, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %w: %s", auction.ErrConfiguration, ErrUnknownDescriptor, p.DescriptorHash)
		}
	}

	sched, err := r.generator.Generate(p.StartPrice, p.MinimumPrice)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", auction.ErrConfiguration, err)
	}

	spec := auction.Spec{
		ID:                 r.newAuctionID(p),
		ItemName:           p.ItemName,
		DescriptorHash:     p.DescriptorHash,
		Seller:             p.Seller,
		FeeRecipient:       r.feeAccount,
		StartPrice:         p.StartPrice,
		MinimumPrice:       p.MinimumPrice,
		PlatformFeeBps:     r.feeBps,
		ReferenceValuation: r.drawReference(p.StartPrice, p.MinimumPrice),
		Schedule:           sched,
		Duration:           sched.TotalDuration(),
	}

	a, err := auction.New(spec, r.auctionDeps())
	if err != nil {
		return nil, err
	}
	if r.store != nil {
		if err := r.store.Save(a.Snapshot()); err != nil {
			return nil, fmt.Errorf("%w: persisting auction: %w", auction.ErrInternal, err)
		}
	}

	r.mu.Lock()
	r.auctions[spec.ID] = a
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.AuctionsCreated.Inc()
	}
	if r.tracker != nil {
		r.tracker.ObserveCreated()
	}
	r.log.Info("auction created",
		"auction", spec.ID,
		"item", spec.ItemName,
		"seller", spec.Seller,
		"startPrice", spec.StartPrice,
		"minimumPrice", spec.MinimumPrice,
		"duration", spec.Duration,
		"steps", len(spec.Schedule))
	return a, nil
}

// Approve marks an auction eligible for activation. Owner only;
// idempotent.
func (r *Registry) Approve(ctx context.Context, caller, id ids.ID) error {
	if caller != r.owner {
		return ErrUnauthorized
	}
	if _, err := r.Get(id); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.approved[id] {
		return nil
	}
	if r.store != nil {
		if err := r.store.SaveApproval(id); err != nil {
			return fmt.Errorf("%w: persisting approval: %w", auction.ErrInternal, err)
		}
	}
	r.approved[id] = true
	r.log.Info("auction approved", "auction", id)
	return nil
}

// IsApproved reports whether an auction may activate.
func (r *Registry) IsApproved(id ids.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.approved[id]
}

// Get returns an auction by id.
func (r *Registry) Get(id ids.ID) (*auction.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.auctions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a, nil
}

// List returns every hosted auction.
func (r *Registry) List() []*auction.Auction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*auction.Auction, 0, len(r.auctions))
	for _, a := range r.auctions {
		out = append(out, a)
	}
	return out
}

// Activate starts an approved pending auction.
func (r *Registry) Activate(ctx context.Context, id ids.ID) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	return a.Activate(ctx)
}

// Purchase settles an active auction at its current price.
func (r *Registry) Purchase(ctx context.Context, id, payer ids.ID, payment uint64) (*settlement.Receipt, error) {
	a, err := r.Get(id)
	if err != nil {
		if r.metrics != nil {
			r.metrics.PurchasesRejected.WithLabelValues("not_found").Inc()
		}
		return nil, err
	}

	began := time.Now()
	receipt, err := a.Purchase(ctx, payer, payment)
	if err != nil {
		if r.metrics != nil {
			r.metrics.PurchasesRejected.WithLabelValues(reasonLabel(err)).Inc()
		}
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.SettlementDuration.Observe(time.Since(began).Seconds())
	}
	return receipt, nil
}

// CheckExpiry runs the expiry watchdog on one auction.
func (r *Registry) CheckExpiry(ctx context.Context, id ids.ID) (bool, error) {
	a, err := r.Get(id)
	if err != nil {
		return false, err
	}
	return a.CheckExpiry(ctx)
}

// SweepExpiry runs the watchdog over every active auction and returns
// how many expired. Per-auction races with concurrent purchases are
// logged and skipped.
func (r *Registry) SweepExpiry(ctx context.Context) (int, error) {
	var actives []*auction.Auction
	r.mu.RLock()
	for _, a := range r.auctions {
		if a.Status() == auction.StatusActive {
			actives = append(actives, a)
		}
	}
	r.mu.RUnlock()

	expired := 0
	for _, a := range actives {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		done, err := a.CheckExpiry(ctx)
		if err != nil {
			if !errors.Is(err, auction.ErrState) {
				r.log.Warn("expiry check failed", "auction", a.ID(), "error", err)
			}
			continue
		}
		if done {
			expired++
		}
	}
	return expired, nil
}

// FeeBalance reports the accrued platform fees.
func (r *Registry) FeeBalance() uint64 {
	bal, err := r.funds.Balance(r.feeAccount)
	if err != nil {
		return 0
	}
	return bal
}

// WithdrawFees moves accrued fees to a destination account. Owner only;
// amount zero withdraws the full balance.
func (r *Registry) WithdrawFees(ctx context.Context, caller, to ids.ID, amount uint64) (uuid.UUID, uint64, error) {
	if caller != r.owner {
		return uuid.Nil, 0, ErrUnauthorized
	}
	if amount == 0 {
		amount = r.FeeBalance()
		if amount == 0 {
			return uuid.Nil, 0, fmt.Errorf("%w: no fees accrued", auction.ErrFunds)
		}
	}
	entry, err := r.funds.Transfer(ctx, r.feeAccount, to, amount, "fee withdrawal")
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("%w: %w", auction.ErrFunds, err)
	}
	r.log.Info("fees withdrawn", "to", to, "amount", amount, "entry", entry)
	return entry, amount, nil
}

func (r *Registry) auctionDeps() auction.Deps {
	deps := auction.Deps{
		Approvals: r,
		Funds:     r.funds,
		Clock:     r.clock,
		Events:    r.sink,
		Log:       r.log,
	}
	if r.store != nil {
		deps.Saver = r.store
	}
	return deps
}

// onEvent folds lifecycle signals into metrics and analytics. Events
// arrive outside the auction's lock, so reading its snapshot is safe.
func (r *Registry) onEvent(e auction.Event) {
	a, err := r.Get(e.Base().AuctionID)
	if err != nil {
		return
	}
	snap := a.Snapshot()

	switch evt := e.(type) {
	case auction.ActivatedEvent:
		if r.metrics != nil {
			r.metrics.AuctionsActivated.Inc()
			r.metrics.ActiveAuctions.Inc()
		}
		if r.tracker != nil {
			r.tracker.ObserveActivated()
		}
	case auction.EndedEvent:
		if r.metrics != nil {
			r.metrics.ActiveAuctions.Dec()
			r.metrics.AuctionsSold.Inc()
			r.metrics.SalesVolume.Add(float64(evt.FinalPrice))
			if split, err := settlement.ComputeSplit(evt.FinalPrice, evt.FinalPrice, snap.Spec.PlatformFeeBps); err == nil {
				r.metrics.FeesAccrued.Add(float64(split.Fee))
			}
			if snap.Spec.StartPrice > 0 {
				r.metrics.ClearingRatio.Observe(float64(evt.FinalPrice) / float64(snap.Spec.StartPrice))
			}
		}
		if r.tracker != nil {
			r.tracker.ObserveOutcome(snap)
		}
	case auction.UnsoldEvent:
		if r.metrics != nil {
			r.metrics.ActiveAuctions.Dec()
			r.metrics.AuctionsUnsold.Inc()
		}
		if r.tracker != nil {
			r.tracker.ObserveOutcome(snap)
		}
	}
}

// rehydrate rebuilds the fleet from the store. Analytics refolds stored
// outcomes so business stats survive restarts; process counters do not.
func (r *Registry) rehydrate() error {
	approved, err := r.store.LoadApprovals()
	if err != nil {
		return fmt.Errorf("%w: loading approvals: %w", auction.ErrInternal, err)
	}
	for _, id := range approved {
		r.approved[id] = true
	}

	snaps, err := r.store.LoadAuctions()
	if err != nil {
		return fmt.Errorf("%w: loading auctions: %w", auction.ErrInternal, err)
	}
	for _, snap := range snaps {
		a, err := auction.Restore(snap, r.auctionDeps())
		if err != nil {
			return fmt.Errorf("restoring auction %s: %w", snap.Spec.ID, err)
		}
		r.auctions[snap.Spec.ID] = a

		if r.tracker != nil {
			r.tracker.ObserveCreated()
			if snap.Status != auction.StatusPending {
				r.tracker.ObserveActivated()
			}
			r.tracker.ObserveOutcome(snap)
		}
		if r.metrics != nil && snap.Status == auction.StatusActive {
			r.metrics.ActiveAuctions.Inc()
		}
	}
	if len(snaps) > 0 || len(approved) > 0 {
		r.log.Info("registry rehydrated", "auctions", len(snaps), "approvals", len(approved))
	}
	return nil
}

// newAuctionID derives a fresh id from the item terms, an entropy draw
// and a process-local sequence number.
func (r *Registry) newAuctionID(p CreateParams) ids.ID {
	var nonce [24]byte
	binary.BigEndian.PutUint64(nonce[0:8], r.entropy.Draw())
	binary.BigEndian.PutUint64(nonce[8:16], uint64(r.clock().UnixNano()))
	binary.BigEndian.PutUint64(nonce[16:24], r.seq.Add(1))
	return ids.NewID([]byte(p.ItemName), p.Seller[:], nonce[:])
}

// drawReference picks a benchmark valuation strictly between the minimum
// and start price. A band too narrow for an interior point degrades to
// the minimum.
func (r *Registry) drawReference(startPrice, minimumPrice uint64) uint64 {
	span := startPrice - minimumPrice
	if span < 2 {
		return minimumPrice
	}
	return minimumPrice + 1 + r.entropy.Draw()%(span-1)
}

func reasonLabel(err error) string {
	switch {
	case errors.Is(err, auction.ErrState):
		return "state"
	case errors.Is(err, auction.ErrFunds):
		return "funds"
	case errors.Is(err, auction.ErrConfiguration):
		return "configuration"
	case errors.Is(err, auction.ErrInternal):
		return "internal"
	default:
		return "unknown"
	}
}

var _ auction.ApprovalOracle = (*Registry)(nil)
