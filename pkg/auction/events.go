// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auction

import (
	"time"

	"github.com/luxfi/dax/pkg/ids"
)

// EventType tags a lifecycle signal.
type EventType string

const (
	EventActivated EventType = "activated"
	EventEnded     EventType = "ended"
	EventUnsold    EventType = "unsold"
)

// BaseEvent carries the fields every lifecycle signal shares.
type BaseEvent struct {
	Type      EventType `json:"type"`
	AuctionID ids.ID    `json:"auction_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Base returns the shared fields.
func (b BaseEvent) Base() BaseEvent { return b }

// ActivatedEvent signals the transition to active.
type ActivatedEvent struct {
	BaseEvent
	StartTime time.Time `json:"start_time"`
}

// EndedEvent signals a completed sale.
type EndedEvent struct {
	BaseEvent
	Winner     ids.ID `json:"winner"`
	FinalPrice uint64 `json:"final_price"`
}

// UnsoldEvent signals expiry without a sale.
type UnsoldEvent struct {
	BaseEvent
}

// Event is implemented by every lifecycle signal.
type Event interface {
	Base() BaseEvent
}

// Sink consumes lifecycle events. OnEvent is called outside the instance
// lock and should return quickly.
type Sink interface {
	OnEvent(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) OnEvent(e Event) { f(e) }

// MultiSink fans each event out to every sink in order. Nil sinks are
// dropped.
func MultiSink(sinks ...Sink) Sink {
	kept := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return kept
}

type multiSink []Sink

func (m multiSink) OnEvent(e Event) {
	for _, s := range m {
		s.OnEvent(e)
	}
}
