// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package testutil holds shared test doubles for the auction stack.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/dax/pkg/ids"
	"github.com/luxfi/dax/pkg/ledger"
)

// Clock is a manually advanced clock. Its Now method is handed to
// components in place of time.Now.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at the given instant.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set jumps the clock to an absolute instant.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// FundAccounts deposits the same starting balance into every listed
// account.
func FundAccounts(tb testing.TB, led *ledger.Ledger, amount uint64, accounts ...ids.ID) {
	tb.Helper()
	for _, account := range accounts {
		_, err := led.Deposit(account, amount, "test funding")
		require.NoError(tb, err)
	}
}
