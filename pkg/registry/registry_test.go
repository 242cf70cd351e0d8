// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/dax/internal/testutil"
	"github.com/luxfi/dax/pkg/analytics"
	"github.com/luxfi/dax/pkg/auction"
	"github.com/luxfi/dax/pkg/descriptor"
	"github.com/luxfi/dax/pkg/entropy"
	"github.com/luxfi/dax/pkg/ids"
	"github.com/luxfi/dax/pkg/ledger"
	"github.com/luxfi/dax/pkg/log"
	"github.com/luxfi/dax/pkg/metric"
	"github.com/luxfi/dax/pkg/storage"
)

type fixture struct {
	t       *testing.T
	clock   *testutil.Clock
	led     *ledger.Ledger
	trk     *analytics.Tracker
	met     *metric.Metrics
	reg     *Registry
	owner   ids.ID
	feeAcct ids.ID
	seller  ids.ID
	buyer   ids.ID
}

// newFixture builds a registry on a constant-zero entropy source, so
// every generated schedule is [(5,40),(5,40),(6,40)] over 120s for the
// standard 1000 -> 350 price band.
func newFixture(t *testing.T, store *storage.Store) *fixture {
	t.Helper()
	require := require.New(t)

	f := &fixture{
		t:       t,
		clock:   testutil.NewClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		led:     ledger.New(log.NoLog),
		trk:     analytics.NewTracker(),
		owner:   ids.NewID([]byte("owner")),
		feeAcct: ids.NewID([]byte("fee-custody")),
		seller:  ids.NewID([]byte("seller")),
		buyer:   ids.NewID([]byte("buyer")),
	}
	met, err := metric.NewMetrics()
	require.NoError(err)
	f.met = met

	f.reg, err = New(Config{
		Owner:      f.owner,
		FeeAccount: f.feeAcct,
		Entropy:    entropy.NewSequence(0),
		Clock:      f.clock.Now,
	}, Deps{
		Ledger:  f.led,
		Store:   store,
		Metrics: f.met,
		Tracker: f.trk,
		Log:     log.NoLog,
	})
	require.NoError(err)
	return f
}

func (f *fixture) create(name string) *auction.Auction {
	f.t.Helper()
	a, err := f.reg.Create(context.Background(), CreateParams{
		ItemName:     name,
		Seller:       f.seller,
		StartPrice:   1000,
		MinimumPrice: 350,
	})
	require.NoError(f.t, err)
	return a
}

func (f *fixture) approveAndActivate(a *auction.Auction) {
	f.t.Helper()
	ctx := context.Background()
	require.NoError(f.t, f.reg.Approve(ctx, f.owner, a.ID()))
	require.NoError(f.t, f.reg.Activate(ctx, a.ID()))
}

func (f *fixture) fund(account ids.ID, amount uint64) {
	f.t.Helper()
	testutil.FundAccounts(f.t, f.led, amount, account)
}

func (f *fixture) balance(account ids.ID) uint64 {
	f.t.Helper()
	bal, err := f.led.Balance(account)
	require.NoError(f.t, err)
	return bal
}

func metricValue(t *testing.T, met *metric.Metrics, name string) float64 {
	t.Helper()
	families, err := met.GetGatherer().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		var total float64
		for _, m := range family.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			}
		}
		return total
	}
	return 0
}

func TestNewValidation(t *testing.T) {
	require := require.New(t)
	led := ledger.New(log.NoLog)
	owner := ids.NewID([]byte("owner"))
	feeAcct := ids.NewID([]byte("fees"))

	_, err := New(Config{FeeAccount: feeAcct}, Deps{Ledger: led})
	require.ErrorIs(err, auction.ErrConfiguration)

	_, err = New(Config{Owner: owner}, Deps{Ledger: led})
	require.ErrorIs(err, auction.ErrConfiguration)

	_, err = New(Config{Owner: owner, FeeAccount: feeAcct}, Deps{})
	require.ErrorIs(err, auction.ErrConfiguration)

	_, err = New(Config{Owner: owner, FeeAccount: feeAcct, FeeBps: 100}, Deps{Ledger: led})
	require.ErrorIs(err, auction.ErrFeeOutOfRange)
}

func TestCreate(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, nil)

	a := f.create("rare print")
	spec := a.Spec()

	require.Equal("rare print", spec.ItemName)
	require.Equal(f.seller, spec.Seller)
	require.Equal(f.feeAcct, spec.FeeRecipient)
	require.Equal(uint32(1000), spec.PlatformFeeBps)
	require.Equal(spec.Schedule.TotalDuration(), spec.Duration)
	require.Equal(uint64(120), spec.Duration)
	require.Greater(spec.ReferenceValuation, spec.MinimumPrice)
	require.Less(spec.ReferenceValuation, spec.StartPrice)
	require.Equal(auction.StatusPending, a.Status())

	// Identical terms still land on distinct ids.
	b := f.create("rare print")
	require.NotEqual(a.ID(), b.ID())
	require.Len(f.reg.List(), 2)

	require.Equal(uint64(2), f.trk.Created.Load())
	require.Equal(2.0, metricValue(t, f.met, "dax_auctions_created_total"))
}

func TestCreateRejectsInvertedPrices(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, nil)

	_, err := f.reg.Create(context.Background(), CreateParams{
		ItemName:     "upside down",
		Seller:       f.seller,
		StartPrice:   350,
		MinimumPrice: 1000,
	})
	require.ErrorIs(err, auction.ErrConfiguration)
}

func TestCreateDescriptorCheck(t *testing.T) {
	require := require.New(t)

	kv, err := storage.NewStorage("memory", "")
	require.NoError(err)
	defer kv.Close()
	docs := descriptor.NewStore(kv, log.NoLog)

	led := ledger.New(log.NoLog)
	owner := ids.NewID([]byte("owner"))
	reg, err := New(Config{
		Owner:      owner,
		FeeAccount: ids.NewID([]byte("fees")),
		Entropy:    entropy.NewSequence(0),
	}, Deps{Ledger: led, Descriptors: docs, Log: log.NoLog})
	require.NoError(err)

	params := CreateParams{
		ItemName:       "catalogued lot",
		Seller:         ids.NewID([]byte("seller")),
		StartPrice:     1000,
		MinimumPrice:   350,
		DescriptorHash: ids.NewID([]byte("never stored")),
	}
	_, err = reg.Create(context.Background(), params)
	require.ErrorIs(err, auction.ErrConfiguration)
	require.ErrorIs(err, ErrUnknownDescriptor)

	hash, err := docs.Put([]byte(`{"condition":"mint"}`))
	require.NoError(err)
	params.DescriptorHash = hash
	a, err := reg.Create(context.Background(), params)
	require.NoError(err)
	require.Equal(hash, a.Spec().DescriptorHash)
}

func TestApprove(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	a := f.create("lot")

	err := f.reg.Approve(ctx, f.seller, a.ID())
	require.ErrorIs(err, ErrUnauthorized)
	require.False(f.reg.IsApproved(a.ID()))

	err = f.reg.Approve(ctx, f.owner, ids.NewID([]byte("ghost")))
	require.ErrorIs(err, ErrNotFound)

	require.NoError(f.reg.Approve(ctx, f.owner, a.ID()))
	require.True(f.reg.IsApproved(a.ID()))
	require.NoError(f.reg.Approve(ctx, f.owner, a.ID()))
}

func TestActivateUnapproved(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, nil)

	a := f.create("lot")
	err := f.reg.Activate(context.Background(), a.ID())
	require.ErrorIs(err, auction.ErrNotApproved)
	require.Equal(auction.StatusPending, a.Status())
}

func TestPurchaseFlow(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	a := f.create("rare print")
	f.approveAndActivate(a)
	f.fund(f.buyer, 2000)

	// 5s into the first step the price has shed 5x5.
	f.clock.Advance(5 * time.Second)
	price := a.CurrentPrice()
	require.Equal(uint64(975), price)

	receipt, err := f.reg.Purchase(ctx, a.ID(), f.buyer, price+50)
	require.NoError(err)
	require.Equal(uint64(975), receipt.Price)
	require.Equal(uint64(97), receipt.Fee)
	require.Equal(uint64(878), receipt.SellerProceeds)
	require.Equal(uint64(50), receipt.Refund)

	require.Equal(auction.StatusEnded, a.Status())
	require.Equal(uint64(2000-975), f.balance(f.buyer))
	require.Equal(uint64(878), f.balance(f.seller))
	require.Equal(uint64(97), f.reg.FeeBalance())

	require.Equal(uint64(1), f.trk.Sold.Load())
	require.Equal(1.0, metricValue(t, f.met, "dax_auctions_sold_total"))
	require.Equal(0.0, metricValue(t, f.met, "dax_auctions_active"))

	// The sale is final; repeat purchases report the state error.
	_, err = f.reg.Purchase(ctx, a.ID(), f.buyer, 2000)
	require.ErrorIs(err, auction.ErrState)

	_, err = f.reg.Purchase(ctx, ids.NewID([]byte("ghost")), f.buyer, 2000)
	require.ErrorIs(err, ErrNotFound)
}

func TestSweepExpiry(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	first := f.create("first")
	second := f.create("second")
	pending := f.create("never activated")
	f.approveAndActivate(first)
	f.approveAndActivate(second)

	// Not yet expired.
	f.clock.Advance(119 * time.Second)
	n, err := f.reg.SweepExpiry(ctx)
	require.NoError(err)
	require.Zero(n)

	f.clock.Advance(2 * time.Second)
	n, err = f.reg.SweepExpiry(ctx)
	require.NoError(err)
	require.Equal(2, n)
	require.Equal(auction.StatusUnsold, first.Status())
	require.Equal(auction.StatusUnsold, second.Status())
	require.Equal(auction.StatusPending, pending.Status())

	require.Equal(uint64(2), f.trk.Unsold.Load())
	require.Equal(0.0, metricValue(t, f.met, "dax_auctions_active"))

	// Terminal auctions drop out of later sweeps.
	n, err = f.reg.SweepExpiry(ctx)
	require.NoError(err)
	require.Zero(n)
}

func TestWithdrawFees(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	a := f.create("lot")
	f.approveAndActivate(a)
	f.fund(f.buyer, 2000)
	_, err := f.reg.Purchase(ctx, a.ID(), f.buyer, 2000)
	require.NoError(err)
	require.Equal(uint64(100), f.reg.FeeBalance())

	dest := ids.NewID([]byte("treasury"))
	_, _, err = f.reg.WithdrawFees(ctx, f.seller, dest, 0)
	require.ErrorIs(err, ErrUnauthorized)

	_, amount, err := f.reg.WithdrawFees(ctx, f.owner, dest, 0)
	require.NoError(err)
	require.Equal(uint64(100), amount)
	require.Equal(uint64(100), f.balance(dest))
	require.Zero(f.reg.FeeBalance())

	_, _, err = f.reg.WithdrawFees(ctx, f.owner, dest, 0)
	require.ErrorIs(err, auction.ErrFunds)
}

func TestReferenceValuationBand(t *testing.T) {
	require := require.New(t)

	led := ledger.New(log.NoLog)
	reg, err := New(Config{
		Owner:      ids.NewID([]byte("owner")),
		FeeAccount: ids.NewID([]byte("fees")),
	}, Deps{Ledger: led, Log: log.NoLog})
	require.NoError(err)

	seller := ids.NewID([]byte("seller"))
	for i := 0; i < 30; i++ {
		a, err := reg.Create(context.Background(), CreateParams{
			ItemName:     "banded lot",
			Seller:       seller,
			StartPrice:   1000,
			MinimumPrice: 350,
		})
		require.NoError(err)
		ref := a.Spec().ReferenceValuation
		require.Greater(ref, uint64(350))
		require.Less(ref, uint64(1000))
	}

	// A band with no interior point degrades to the minimum.
	a, err := reg.Create(context.Background(), CreateParams{
		ItemName:     "narrow lot",
		Seller:       seller,
		StartPrice:   351,
		MinimumPrice: 350,
	})
	require.NoError(err)
	require.Equal(uint64(350), a.Spec().ReferenceValuation)
}

func TestPersistenceRoundTrip(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	kv, err := storage.NewStorage("memory", "")
	require.NoError(err)
	defer kv.Close()
	store := storage.NewStore(kv, log.NoLog)

	f := newFixture(t, store)

	sold := f.create("sold lot")
	pending := f.create("pending lot")
	f.approveAndActivate(sold)
	f.fund(f.buyer, 2000)
	f.clock.Advance(5 * time.Second)
	_, err = f.reg.Purchase(ctx, sold.ID(), f.buyer, 2000)
	require.NoError(err)

	// A second registry over the same store sees the same fleet.
	trk := analytics.NewTracker()
	reg2, err := New(Config{
		Owner:      f.owner,
		FeeAccount: f.feeAcct,
		Entropy:    entropy.NewSequence(0),
		Clock:      f.clock.Now,
	}, Deps{Ledger: f.led, Store: store, Tracker: trk, Log: log.NoLog})
	require.NoError(err)

	restored, err := reg2.Get(sold.ID())
	require.NoError(err)
	require.Equal(auction.StatusEnded, restored.Status())
	require.Equal(uint64(975), restored.Snapshot().FinalPrice)
	require.Equal(f.buyer, restored.Snapshot().Winner)

	restoredPending, err := reg2.Get(pending.ID())
	require.NoError(err)
	require.Equal(auction.StatusPending, restoredPending.Status())

	require.True(reg2.IsApproved(sold.ID()))
	require.False(reg2.IsApproved(pending.ID()))

	// Stored outcomes refold into analytics.
	require.Equal(uint64(2), trk.Created.Load())
	require.Equal(uint64(1), trk.Sold.Load())
}
