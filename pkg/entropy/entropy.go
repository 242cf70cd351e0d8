// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package entropy supplies the randomness consumed by schedule generation
// and reference-valuation draws.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"
)

// Source yields raw unsigned draws. Implementations need not be
// cryptographically strong; see Weak.
type Source interface {
	Draw() uint64
}

// Weak derives draws from the wall clock and a call counter. The stream is
// predictable to anyone who can observe timing, which is accepted for
// schedule generation: an observer learning the price path early gains no
// purchase advantage beyond watching the posted price. Do not use it where
// unpredictability is a hard requirement.
type Weak struct {
	ctr uint64
}

// NewWeak returns a time-derived source.
func NewWeak() *Weak {
	return &Weak{}
}

// Draw mixes the clock and counter through a splitmix64 finalizer so the
// low-entropy inputs spread across the whole word.
func (w *Weak) Draw() uint64 {
	n := atomic.AddUint64(&w.ctr, 1)
	x := uint64(time.Now().UnixNano()) + n*0x9e3779b97f4a7c15
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// Strong draws from crypto/rand. Opt-in; the engine does not require it.
type Strong struct{}

func (Strong) Draw() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return binary.BigEndian.Uint64(b[:])
}

// Sequence replays a fixed series of draws, cycling once exhausted. Test
// helper for deterministic generation.
type Sequence struct {
	mu   sync.Mutex
	vals []uint64
	next int
}

// NewSequence returns a source that yields vals in order, wrapping around.
func NewSequence(vals ...uint64) *Sequence {
	if len(vals) == 0 {
		vals = []uint64{0}
	}
	return &Sequence{vals: vals}
}

func (s *Sequence) Draw() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.vals[s.next]
	s.next = (s.next + 1) % len(s.vals)
	return v
}

var (
	_ Source = (*Weak)(nil)
	_ Source = Strong{}
	_ Source = (*Sequence)(nil)
)
