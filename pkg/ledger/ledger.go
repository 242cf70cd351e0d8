// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger is the in-memory account book standing in for the
// settlement rail: uint64 balances keyed by account id, with every
// movement recorded in an append-only hash-chained journal.
package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luxfi/dax/pkg/ids"
	"github.com/luxfi/dax/pkg/log"
	"github.com/luxfi/dax/pkg/settlement"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownAccount    = errors.New("unknown account")
	ErrZeroAmount        = errors.New("zero amount")
	ErrZeroAccount       = errors.New("zero account id")
)

// Entry is one applied movement. Entries are hash-chained: Hash covers
// the entry fields plus the previous entry's hash, so the journal cannot
// be silently rewritten.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Seq       uint64    `json:"seq"`
	From      ids.ID    `json:"from"`
	To        ids.ID    `json:"to"`
	Amount    uint64    `json:"amount"`
	Memo      string    `json:"memo"`
	Timestamp time.Time `json:"timestamp"`
	PrevHash  ids.ID    `json:"prev_hash"`
	Hash      ids.ID    `json:"hash"`
}

// Ledger tracks account balances and the movement journal.
type Ledger struct {
	mu       sync.RWMutex
	balances map[ids.ID]uint64
	journal  []Entry
	head     ids.ID
	clock    func() time.Time
	log      log.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock injects the time source used to stamp journal entries.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		l.clock = clock
	}
}

// New creates an empty ledger.
func New(logger log.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		balances: make(map[ids.ID]uint64),
		clock:    time.Now,
		log:      logger,
	}
	if l.log == nil {
		l.log = log.NoLog
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Deposit credits an account, creating it on first use. Deposits are
// journaled as movements from the zero account.
func (l *Ledger) Deposit(account ids.ID, amount uint64, memo string) (uuid.UUID, error) {
	if account.IsZero() {
		return uuid.Nil, ErrZeroAccount
	}
	if amount == 0 {
		return uuid.Nil, ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[account] += amount
	entry := l.appendLocked(ids.Empty, account, amount, memo)

	l.log.Info("account funded", "account", account, "amount", amount, "entry", entry.ID)
	return entry.ID, nil
}

// Transfer moves amount between accounts, failing without effect when the
// source balance is short. The destination account is created on first
// credit.
func (l *Ledger) Transfer(_ context.Context, from, to ids.ID, amount uint64, memo string) (uuid.UUID, error) {
	if from.IsZero() || to.IsZero() {
		return uuid.Nil, ErrZeroAccount
	}
	if amount == 0 {
		return uuid.Nil, ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[from] < amount {
		return uuid.Nil, fmt.Errorf("%w: account %s holds %d, needs %d", ErrInsufficientFunds, from, l.balances[from], amount)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	entry := l.appendLocked(from, to, amount, memo)

	l.log.Debug("transfer applied", "from", from, "to", to, "amount", amount, "entry", entry.ID)
	return entry.ID, nil
}

// Balance returns an account's balance. Accounts that never received
// funds report ErrUnknownAccount.
func (l *Ledger) Balance(account ids.ID) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	bal, ok := l.balances[account]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAccount, account)
	}
	return bal, nil
}

// TotalSupply returns the sum of all balances. Transfers conserve it;
// only deposits raise it.
func (l *Ledger) TotalSupply() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total uint64
	for _, bal := range l.balances {
		total += bal
	}
	return total
}

// Journal returns a copy of every entry in order.
func (l *Ledger) Journal() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.journal))
	copy(out, l.journal)
	return out
}

// VerifyJournal recomputes the hash chain and reports the first break.
func (l *Ledger) VerifyJournal() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prev := ids.Empty
	for i := range l.journal {
		e := &l.journal[i]
		if e.Seq != uint64(i) {
			return fmt.Errorf("journal entry %d: sequence %d out of order", i, e.Seq)
		}
		if e.PrevHash != prev {
			return fmt.Errorf("journal entry %d: previous hash mismatch", i)
		}
		if got := entryHash(e); got != e.Hash {
			return fmt.Errorf("journal entry %d: hash mismatch", i)
		}
		prev = e.Hash
	}
	return nil
}

func (l *Ledger) appendLocked(from, to ids.ID, amount uint64, memo string) Entry {
	entry := Entry{
		ID:        uuid.New(),
		Seq:       uint64(len(l.journal)),
		From:      from,
		To:        to,
		Amount:    amount,
		Memo:      memo,
		Timestamp: l.clock(),
		PrevHash:  l.head,
	}
	entry.Hash = entryHash(&entry)
	l.journal = append(l.journal, entry)
	l.head = entry.Hash
	return entry
}

func entryHash(e *Entry) ids.ID {
	buf := make([]byte, 0, 160)
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], e.Seq)
	buf = append(buf, n[:]...)
	buf = append(buf, e.ID[:]...)
	buf = append(buf, e.From[:]...)
	buf = append(buf, e.To[:]...)
	binary.BigEndian.PutUint64(n[:], e.Amount)
	buf = append(buf, n[:]...)
	buf = append(buf, e.Memo...)
	binary.BigEndian.PutUint64(n[:], uint64(e.Timestamp.UnixNano()))
	buf = append(buf, n[:]...)
	buf = append(buf, e.PrevHash[:]...)
	return ids.NewID(buf)
}

var _ settlement.Transferer = (*Ledger)(nil)
