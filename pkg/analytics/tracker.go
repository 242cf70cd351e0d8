// Package analytics rolls settlement outcomes up into sale statistics:
// volume, fees, profit against reference valuations, sell-through and
// per-seller aggregates.
package analytics

import (
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/luxfi/dax/pkg/auction"
	"github.com/luxfi/dax/pkg/ids"
	"github.com/luxfi/dax/pkg/settlement"
)

// Tracker aggregates auction outcomes. Counters are lock-free; money
// aggregates and the per-seller map sit behind the mutex.
type Tracker struct {
	// Real-time counters
	Created   atomic.Uint64
	Activated atomic.Uint64
	Sold      atomic.Uint64
	Unsold    atomic.Uint64

	mu         sync.RWMutex
	volume     decimal.Decimal
	fees       decimal.Decimal
	netProfit  decimal.Decimal
	ratioSum   decimal.Decimal
	ratioCount int64
	sellers    map[ids.ID]*SellerStats
}

// SellerStats tracks per-seller outcomes.
type SellerStats struct {
	Seller ids.ID          `json:"seller"`
	Sold   uint64          `json:"sold"`
	Unsold uint64          `json:"unsold"`
	Volume decimal.Decimal `json:"volume"`
	Fees   decimal.Decimal `json:"fees"`
}

// Stats is a point-in-time view of the aggregates.
type Stats struct {
	Created   uint64 `json:"created"`
	Activated uint64 `json:"activated"`
	Sold      uint64 `json:"sold"`
	Unsold    uint64 `json:"unsold"`

	Volume           decimal.Decimal `json:"volume"`
	Fees             decimal.Decimal `json:"fees"`
	NetProfit        decimal.Decimal `json:"net_profit"`
	AvgClearingRatio decimal.Decimal `json:"avg_clearing_ratio"`
	SellThroughRate  float64         `json:"sell_through_rate"`

	Sellers map[string]SellerStats `json:"sellers"`
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		volume:    decimal.Zero,
		fees:      decimal.Zero,
		netProfit: decimal.Zero,
		ratioSum:  decimal.Zero,
		sellers:   make(map[ids.ID]*SellerStats),
	}
}

// ObserveCreated counts a new auction.
func (t *Tracker) ObserveCreated() {
	t.Created.Add(1)
}

// ObserveActivated counts an activation.
func (t *Tracker) ObserveActivated() {
	t.Activated.Add(1)
}

// ObserveOutcome folds a terminal snapshot into the aggregates.
// Non-terminal snapshots are ignored.
func (t *Tracker) ObserveOutcome(snap auction.Snapshot) {
	switch snap.Status {
	case auction.StatusEnded:
		t.observeSale(snap)
	case auction.StatusUnsold:
		t.observeExpiry(snap)
	}
}

func (t *Tracker) observeSale(snap auction.Snapshot) {
	t.Sold.Add(1)

	price := decimal.NewFromUint64(snap.FinalPrice)
	var fee decimal.Decimal
	if split, err := settlement.ComputeSplit(snap.FinalPrice, snap.FinalPrice, snap.Spec.PlatformFeeBps); err == nil {
		fee = decimal.NewFromUint64(split.Fee)
	}
	profit := decimal.NewFromInt(snap.Profit)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.volume = t.volume.Add(price)
	t.fees = t.fees.Add(fee)
	t.netProfit = t.netProfit.Add(profit)
	if snap.Spec.StartPrice > 0 {
		t.ratioSum = t.ratioSum.Add(price.Div(decimal.NewFromUint64(snap.Spec.StartPrice)))
		t.ratioCount++
	}

	s := t.sellerLocked(snap.Spec.Seller)
	s.Sold++
	s.Volume = s.Volume.Add(price)
	s.Fees = s.Fees.Add(fee)
}

func (t *Tracker) observeExpiry(snap auction.Snapshot) {
	t.Unsold.Add(1)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sellerLocked(snap.Spec.Seller).Unsold++
}

func (t *Tracker) sellerLocked(seller ids.ID) *SellerStats {
	s, ok := t.sellers[seller]
	if !ok {
		s = &SellerStats{
			Seller: seller,
			Volume: decimal.Zero,
			Fees:   decimal.Zero,
		}
		t.sellers[seller] = s
	}
	return s
}

// Snapshot returns the current aggregates.
func (t *Tracker) Snapshot() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sold := t.Sold.Load()
	unsold := t.Unsold.Load()

	stats := Stats{
		Created:          t.Created.Load(),
		Activated:        t.Activated.Load(),
		Sold:             sold,
		Unsold:           unsold,
		Volume:           t.volume,
		Fees:             t.fees,
		NetProfit:        t.netProfit,
		AvgClearingRatio: decimal.Zero,
		Sellers:          make(map[string]SellerStats, len(t.sellers)),
	}
	if t.ratioCount > 0 {
		stats.AvgClearingRatio = t.ratioSum.Div(decimal.NewFromInt(t.ratioCount))
	}
	if settled := sold + unsold; settled > 0 {
		stats.SellThroughRate = float64(sold) / float64(settled)
	}
	for id, s := range t.sellers {
		stats.Sellers[id.String()] = *s
	}
	return stats
}
