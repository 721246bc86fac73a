// Package event fans domain events out to in-process subscribers: activity
// feeds, chat bridges, notification senders. Delivery is at-most-once and
// best-effort: a slow or dead subscriber drops events, it never blocks or
// fails the trade that produced them.
package event

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"
	"github.com/shopspring/decimal"
)

// Kind identifies what happened.
type Kind string

const (
	TradeExecuted    Kind = "trade_executed"
	RankChanged      Kind = "rank_changed"
	MemberJoined     Kind = "member_joined"
	MilestoneReached Kind = "milestone_reached"
)

// Payload carries enough denormalized data that subscribers never need to
// re-query the ledger synchronously. Fields not relevant to a kind are left
// zero.
type Payload struct {
	LeagueID    string
	UserID      string
	PortfolioID string

	// trade_executed
	Symbol    string
	Side      string
	Shares    int64
	Price     decimal.Decimal
	CashAfter decimal.Decimal

	// rank_changed / milestone_reached
	Rank       int
	PrevRank   int
	TotalValue decimal.Decimal
	Milestone  decimal.Decimal
}

// Event is one published occurrence.
type Event struct {
	Kind Kind
	Time time.Time
	Payload
}

type subscriber struct {
	name    string
	ch      chan Event
	dropped uint64
}

// Emitter is the in-process publish side. Each subscriber gets its own
// bounded channel; Publish never blocks on any of them.
type Emitter struct {
	mu     sync.RWMutex
	subs   []*subscriber
	closed bool
	log    *log.Logger
}

func NewEmitter(logger *log.Logger) *Emitter {
	if logger == nil {
		logger = &log.DefaultLogger
	}
	return &Emitter{log: logger}
}

// Subscribe registers a named consumer and returns its channel. The buffer
// bounds how far the consumer may lag before events are dropped.
func (e *Emitter) Subscribe(name string, buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 1
	}
	sub := &subscriber{name: name, ch: make(chan Event, buffer)}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		close(sub.ch)
		return sub.ch
	}
	e.subs = append(e.subs, sub)
	return sub.ch
}

// Publish delivers ev to every subscriber that has room. Full subscribers
// drop the event; the drop is counted and logged, never propagated.
func (e *Emitter) Publish(kind Kind, p Payload) {
	ev := Event{Kind: kind, Time: time.Now().UTC(), Payload: p}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	for _, sub := range e.subs {
		select {
		case sub.ch <- ev:
		default:
			n := atomic.AddUint64(&sub.dropped, 1)
			e.log.Warn().
				Str("subscriber", sub.name).
				Str("kind", string(kind)).
				Uint64("dropped_total", n).
				Msg("event dropped: subscriber queue full")
		}
	}
}

// Dropped returns how many events a subscriber has lost so far.
func (e *Emitter) Dropped(name string) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, sub := range e.subs {
		if sub.name == name {
			return atomic.LoadUint64(&sub.dropped)
		}
	}
	return 0
}

// Close closes every subscriber channel. Publish becomes a no-op.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for _, sub := range e.subs {
		close(sub.ch)
	}
}
