// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/dax/pkg/ids"
	"github.com/luxfi/dax/pkg/schedule"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type approvals map[ids.ID]bool

func (a approvals) IsApproved(id ids.ID) bool { return a[id] }

// ledgerStub is an account map that can reject the Nth transfer.
type ledgerStub struct {
	mu       sync.Mutex
	balances map[ids.ID]uint64
	failOn   int
	n        int
}

func newLedgerStub() *ledgerStub {
	return &ledgerStub{balances: make(map[ids.ID]uint64)}
}

func (l *ledgerStub) Transfer(_ context.Context, from, to ids.ID, amount uint64, _ string) (uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.n++
	if l.failOn != 0 && l.n == l.failOn {
		return uuid.Nil, errors.New("transfer rejected")
	}
	if l.balances[from] < amount {
		return uuid.Nil, errors.New("insufficient funds")
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return uuid.New(), nil
}

func (l *ledgerStub) balance(id ids.ID) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[id]
}

type eventRec struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRec) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRec) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Base().Type
	}
	return out
}

type memSaver struct {
	mu     sync.Mutex
	snaps  []Snapshot
	failOn int
}

func (s *memSaver) Save(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != 0 && len(s.snaps)+1 == s.failOn {
		return errors.New("disk full")
	}
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *memSaver) last() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snaps[len(s.snaps)-1]
}

func testSchedule() schedule.Schedule {
	return schedule.Schedule{
		{Rate: 30, Duration: 10},
		{Rate: 20, Duration: 15},
		{Rate: 10, Duration: 5},
	}
}

func testSpec() Spec {
	return Spec{
		ID:                 ids.GenerateTestID(),
		ItemName:           "vintage amplifier",
		DescriptorHash:     ids.GenerateTestID(),
		Seller:             ids.NewID([]byte("seller")),
		FeeRecipient:       ids.NewID([]byte("fees")),
		StartPrice:         1000,
		MinimumPrice:       100,
		PlatformFeeBps:     1000,
		ReferenceValuation: 400,
		Schedule:           testSchedule(),
		Duration:           30,
	}
}

type fixture struct {
	auction *Auction
	clock   *fakeClock
	ledger  *ledgerStub
	events  *eventRec
	saver   *memSaver
	ok      approvals
	payer   ids.ID
}

func newFixture(t *testing.T, spec Spec) *fixture {
	t.Helper()
	f := &fixture{
		clock:  newFakeClock(),
		ledger: newLedgerStub(),
		events: &eventRec{},
		saver:  &memSaver{},
		ok:     approvals{},
		payer:  ids.NewID([]byte("payer")),
	}
	f.ledger.balances[f.payer] = 5_000

	a, err := New(spec, Deps{
		Approvals: f.ok,
		Funds:     f.ledger,
		Clock:     f.clock.Now,
		Saver:     f.saver,
		Events:    f.events,
	})
	require.NoError(t, err)
	f.auction = a
	return f
}

func (f *fixture) approveAndActivate(t *testing.T) {
	t.Helper()
	f.ok[f.auction.ID()] = true
	require.NoError(t, f.auction.Activate(context.Background()))
}

func TestNewValidatesSpec(t *testing.T) {
	require := require.New(t)

	cases := []struct {
		name   string
		mutate func(*Spec)
		want   error
	}{
		{"zero id", func(s *Spec) { s.ID = ids.Empty }, ErrConfiguration},
		{"empty item name", func(s *Spec) { s.ItemName = "" }, ErrConfiguration},
		{"zero seller", func(s *Spec) { s.Seller = ids.Empty }, ErrConfiguration},
		{"zero fee recipient", func(s *Spec) { s.FeeRecipient = ids.Empty }, ErrConfiguration},
		{"price order", func(s *Spec) { s.StartPrice = 99 }, ErrPriceOrder},
		{"fee below band", func(s *Spec) { s.PlatformFeeBps = 499 }, ErrFeeOutOfRange},
		{"fee above band", func(s *Spec) { s.PlatformFeeBps = 1501 }, ErrFeeOutOfRange},
		{"empty schedule", func(s *Spec) { s.Schedule = nil }, ErrEmptySchedule},
		{"duration mismatch", func(s *Spec) { s.Duration = 31 }, ErrScheduleSum},
		{"reference above start", func(s *Spec) { s.ReferenceValuation = 1001 }, ErrConfiguration},
		{"reference below minimum", func(s *Spec) { s.ReferenceValuation = 99 }, ErrConfiguration},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := testSpec()
			tc.mutate(&spec)
			_, err := New(spec, Deps{})
			require.ErrorIs(err, tc.want)
			require.ErrorIs(err, ErrConfiguration)
		})
	}

	a, err := New(testSpec(), Deps{})
	require.NoError(err)
	require.Equal(StatusPending, a.Status())
	require.Zero(a.CurrentPrice())
}

func TestActivateRequiresApproval(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, testSpec())

	err := f.auction.Activate(context.Background())
	require.ErrorIs(err, ErrNotApproved)
	require.ErrorIs(err, ErrState)
	require.Equal(StatusPending, f.auction.Status())
	require.Empty(f.events.types())

	f.approveAndActivate(t)
	require.Equal(StatusActive, f.auction.Status())
	require.Equal(uint64(1000), f.auction.CurrentPrice())
	require.Equal([]EventType{EventActivated}, f.events.types())
	require.Equal(f.clock.Now(), f.auction.Snapshot().StartTime)

	err = f.auction.Activate(context.Background())
	require.ErrorIs(err, ErrInvalidState)
	require.Equal([]EventType{EventActivated}, f.events.types())
}

func TestCurrentPriceFollowsCurve(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, testSpec())
	f.approveAndActivate(t)

	steps := []struct {
		advance time.Duration
		want    uint64
	}{
		{0, 1000},
		{5 * time.Second, 850},
		{15 * time.Second, 500},
		{5 * time.Second, 400},
		{5 * time.Second, 350},
		{time.Hour, 350},
	}
	for _, s := range steps {
		f.clock.Advance(s.advance)
		require.Equal(s.want, f.auction.CurrentPrice())
	}
}

func TestCheckExpiryWatchdog(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, testSpec())

	// pending instances cannot expire
	_, err := f.auction.CheckExpiry(context.Background())
	require.ErrorIs(err, ErrInvalidState)

	f.approveAndActivate(t)

	f.clock.Advance(29 * time.Second)
	expired, err := f.auction.CheckExpiry(context.Background())
	require.NoError(err)
	require.False(expired)
	require.Equal(StatusActive, f.auction.Status())

	f.clock.Advance(1 * time.Second)
	expired, err = f.auction.CheckExpiry(context.Background())
	require.NoError(err)
	require.True(expired)
	require.Equal(StatusUnsold, f.auction.Status())
	require.Zero(f.auction.CurrentPrice())
	require.Equal([]EventType{EventActivated, EventUnsold}, f.events.types())
	require.Equal(StatusUnsold, f.saver.last().Status)

	// repeated calls stay terminal and emit nothing further
	_, err = f.auction.CheckExpiry(context.Background())
	require.ErrorIs(err, ErrInvalidState)
	require.Equal([]EventType{EventActivated, EventUnsold}, f.events.types())

	_, err = f.auction.Purchase(context.Background(), f.payer, 1000)
	require.ErrorIs(err, ErrAuctionNotActive)
	require.ErrorIs(f.auction.Activate(context.Background()), ErrInvalidState)
}

func TestPurchaseSettlesOnce(t *testing.T) {
	require := require.New(t)
	spec := testSpec()
	f := newFixture(t, spec)
	f.approveAndActivate(t)

	f.clock.Advance(5 * time.Second) // price 850
	receipt, err := f.auction.Purchase(context.Background(), f.payer, 900)
	require.NoError(err)

	require.Equal(uint64(850), receipt.Price)
	require.Equal(uint64(85), receipt.Fee)
	require.Equal(uint64(765), receipt.SellerProceeds)
	require.Equal(uint64(50), receipt.Refund)
	require.Equal(f.clock.Now(), receipt.SettledAt)

	require.Equal(uint64(5_000-850), f.ledger.balance(f.payer))
	require.Equal(uint64(765), f.ledger.balance(spec.Seller))
	require.Equal(uint64(85), f.ledger.balance(spec.FeeRecipient))
	require.Equal(uint64(0), f.ledger.balance(f.auction.Escrow()))

	snap := f.auction.Snapshot()
	require.Equal(StatusEnded, snap.Status)
	require.Equal(f.payer, snap.Winner)
	require.Equal(uint64(850), snap.FinalPrice)
	require.Equal(int64(450), snap.Profit)
	require.Zero(snap.CurrentPrice)

	require.Equal([]EventType{EventActivated, EventEnded}, f.events.types())
	require.Equal(StatusEnded, f.saver.last().Status)

	_, err = f.auction.Purchase(context.Background(), f.payer, 900)
	require.ErrorIs(err, ErrAuctionNotActive)
}

func TestPurchasePreconditions(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, testSpec())

	_, err := f.auction.Purchase(context.Background(), f.payer, 1000)
	require.ErrorIs(err, ErrAuctionNotActive)

	f.approveAndActivate(t)
	f.clock.Advance(5 * time.Second)

	_, err = f.auction.Purchase(context.Background(), ids.Empty, 1000)
	require.ErrorIs(err, ErrConfiguration)

	_, err = f.auction.Purchase(context.Background(), f.payer, 849)
	require.ErrorIs(err, ErrInsufficientPayment)
	require.ErrorIs(err, ErrFunds)

	require.Equal(StatusActive, f.auction.Status())
	require.Equal(uint64(5_000), f.ledger.balance(f.payer))
	require.Equal([]EventType{EventActivated}, f.events.types())
}

func TestPurchaseRollsBackFailedTransfer(t *testing.T) {
	require := require.New(t)
	spec := testSpec()
	f := newFixture(t, spec)
	f.approveAndActivate(t)
	f.clock.Advance(5 * time.Second)

	// reject the fee leg; the collect leg must be compensated
	f.ledger.failOn = 2
	_, err := f.auction.Purchase(context.Background(), f.payer, 900)
	require.ErrorIs(err, ErrFunds)

	require.Equal(StatusActive, f.auction.Status())
	require.Equal(uint64(5_000), f.ledger.balance(f.payer))
	require.Equal(uint64(0), f.ledger.balance(spec.Seller))
	require.Equal(uint64(0), f.ledger.balance(spec.FeeRecipient))
	require.Equal(uint64(0), f.ledger.balance(f.auction.Escrow()))

	snap := f.auction.Snapshot()
	require.True(snap.Winner.IsZero())
	require.Zero(snap.FinalPrice)
	require.Zero(snap.Profit)

	// the same auction settles cleanly on retry
	receipt, err := f.auction.Purchase(context.Background(), f.payer, 900)
	require.NoError(err)
	require.Equal(uint64(850), receipt.Price)
	require.Equal(StatusEnded, f.auction.Status())
}

func TestPurchaseUnderfundedPayerRollsBack(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, testSpec())
	f.approveAndActivate(t)

	poor := ids.NewID([]byte("poor"))
	f.ledger.balances[poor] = 10

	_, err := f.auction.Purchase(context.Background(), poor, 1000)
	require.ErrorIs(err, ErrFunds)
	require.Equal(StatusActive, f.auction.Status())
	require.Equal(uint64(10), f.ledger.balance(poor))
}

func TestPurchasePersistFailureUnwinds(t *testing.T) {
	require := require.New(t)
	spec := testSpec()
	f := newFixture(t, spec)
	f.approveAndActivate(t)
	f.clock.Advance(5 * time.Second)

	// activation wrote snapshot 1; fail the sale commit
	f.saver.failOn = 2
	_, err := f.auction.Purchase(context.Background(), f.payer, 900)
	require.ErrorIs(err, ErrInternal)

	require.Equal(StatusActive, f.auction.Status())
	require.Equal(uint64(5_000), f.ledger.balance(f.payer))
	require.Equal(uint64(0), f.ledger.balance(spec.Seller))
	require.Equal(uint64(0), f.ledger.balance(spec.FeeRecipient))

	// with the saver healthy again the purchase goes through
	f.saver.mu.Lock()
	f.saver.failOn = 0
	f.saver.mu.Unlock()
	receipt, err := f.auction.Purchase(context.Background(), f.payer, 900)
	require.NoError(err)
	require.Equal(uint64(850), receipt.Price)
}

func TestConcurrentPurchasesSettleExactlyOnce(t *testing.T) {
	require := require.New(t)
	spec := testSpec()
	f := newFixture(t, spec)
	f.approveAndActivate(t)
	f.clock.Advance(5 * time.Second)

	const buyers = 16
	payers := make([]ids.ID, buyers)
	for i := range payers {
		payers[i] = ids.GenerateTestID()
		f.ledger.balances[payers[i]] = 2_000
	}

	var wg sync.WaitGroup
	results := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(payer ids.ID) {
			defer wg.Done()
			_, err := f.auction.Purchase(context.Background(), payer, 900)
			results <- err
		}(payers[i])
	}
	wg.Wait()
	close(results)

	var won, rejected int
	for err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrAuctionNotActive):
			rejected++
		default:
			t.Fatalf("unexpected purchase error: %v", err)
		}
	}
	require.Equal(1, won)
	require.Equal(buyers-1, rejected)

	require.Equal(uint64(765), f.ledger.balance(spec.Seller))
	require.Equal(uint64(85), f.ledger.balance(spec.FeeRecipient))

	snap := f.auction.Snapshot()
	require.Equal(StatusEnded, snap.Status)
	require.False(snap.Winner.IsZero())
}

func TestRestoreRoundTrip(t *testing.T) {
	require := require.New(t)
	spec := testSpec()
	f := newFixture(t, spec)
	f.approveAndActivate(t)
	f.clock.Advance(5 * time.Second)
	_, err := f.auction.Purchase(context.Background(), f.payer, 850)
	require.NoError(err)

	snap := f.auction.Snapshot()
	restored, err := Restore(snap, Deps{Clock: f.clock.Now})
	require.NoError(err)
	require.Equal(StatusEnded, restored.Status())
	require.Equal(snap.Winner, restored.Snapshot().Winner)
	require.Equal(snap.FinalPrice, restored.Snapshot().FinalPrice)
	require.Equal(snap.Profit, restored.Snapshot().Profit)

	bad := snap
	bad.Status = Status("haunted")
	_, err = Restore(bad, Deps{})
	require.ErrorIs(err, ErrConfiguration)
}

func TestRestoredActiveAuctionKeepsPricing(t *testing.T) {
	require := require.New(t)
	spec := testSpec()
	f := newFixture(t, spec)
	f.approveAndActivate(t)
	f.clock.Advance(5 * time.Second)

	snap := f.auction.Snapshot()
	restored, err := Restore(snap, Deps{Clock: f.clock.Now})
	require.NoError(err)
	require.Equal(uint64(850), restored.CurrentPrice())

	f.clock.Advance(15 * time.Second)
	require.Equal(uint64(500), restored.CurrentPrice())
}
