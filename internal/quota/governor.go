// Package quota enforces the per-user daily ceilings on AI-consuming
// operations. Counters live on the user's own record and roll over at local
// midnight by calendar-day comparison, not by a 24h sliding window.
package quota

import (
	"context"
	"fmt"
	"time"
)

// Kind names an independently counted operation class.
type Kind string

const (
	KindInsights  Kind = "insights"
	KindBillScans Kind = "billScans"
)

// Daily ceilings. Configuration constants, not user-adjustable.
const (
	InsightsDailyLimit  = 2
	BillScansDailyLimit = 5
)

// Limit returns the daily ceiling for a kind.
func Limit(kind Kind) int {
	if kind == KindBillScans {
		return BillScansDailyLimit
	}
	return InsightsDailyLimit
}

// Counter is one {count, lastReset} pair as persisted on the user record.
type Counter struct {
	Count     int
	LastReset time.Time
}

// Usage is the persisted state of both counters for one user.
type Usage struct {
	Insights  Counter
	BillScans Counter
}

// Store is the persistence port for usage counters. Implementations provide
// last-write-wins semantics per user record; the check-then-increment here is
// deliberately not atomic (see the known-race note on CheckAndConsume).
type Store interface {
	GetUsage(ctx context.Context, userID string) (Usage, error)
	SetCounter(ctx context.Context, userID string, kind Kind, c Counter) error
}

// Decision is the outcome of one CheckAndConsume call.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	IsLastUse bool      `json:"isLastUse,omitempty"`
	ResetTime time.Time `json:"resetTime,omitzero"`
}

// KindStats is the read-only projection of one counter for display.
type KindStats struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// Stats covers both counters.
type Stats struct {
	Insights  KindStats `json:"insights"`
	BillScans KindStats `json:"billScans"`
}

// Governor applies the rollover and ceiling rules over a Store.
type Governor struct {
	store Store
	now   func() time.Time
}

// NewGovernor creates a governor. now may be nil, defaulting to time.Now.
func NewGovernor(store Store) *Governor {
	return &Governor{store: store, now: time.Now}
}

// WithClock overrides the wall clock for tests.
func (g *Governor) WithClock(now func() time.Time) *Governor {
	g.now = now
	return g
}

// CheckAndConsume applies the day rollover, then either denies the request
// with a usage snapshot or consumes one unit and persists the new count.
//
// Two concurrent requests for the same user can both observe a count below
// the ceiling and both increment. That race is accepted at this scale; a
// stricter build would push an atomic conditional increment into the store.
func (g *Governor) CheckAndConsume(ctx context.Context, userID string, kind Kind) (Decision, error) {
	usage, err := g.store.GetUsage(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("CheckAndConsume: %w", err)
	}

	now := g.now()
	counter := counterFor(usage, kind)
	limit := Limit(kind)

	// First touch on a new calendar day resets the counter, persisted
	// immediately so a later denial still reflects the reset.
	if !sameCalendarDay(counter.LastReset, now) {
		counter = Counter{Count: 0, LastReset: now}
		if err := g.store.SetCounter(ctx, userID, kind, counter); err != nil {
			return Decision{}, fmt.Errorf("CheckAndConsume: persist reset: %w", err)
		}
	}

	if counter.Count >= limit {
		return Decision{
			Allowed:   false,
			Used:      counter.Count,
			Limit:     limit,
			Remaining: 0,
			ResetTime: nextMidnight(now),
		}, nil
	}

	counter.Count++
	counter.LastReset = now
	if err := g.store.SetCounter(ctx, userID, kind, counter); err != nil {
		return Decision{}, fmt.Errorf("CheckAndConsume: persist increment: %w", err)
	}

	return Decision{
		Allowed:   true,
		Used:      counter.Count,
		Limit:     limit,
		Remaining: limit - counter.Count,
		IsLastUse: counter.Count == limit,
	}, nil
}

// Stats projects both counters for display. The day rollover is applied to
// the returned numbers but NOT persisted; reading quota must never consume
// or reset it.
func (g *Governor) Stats(ctx context.Context, userID string) (Stats, error) {
	usage, err := g.store.GetUsage(ctx, userID)
	if err != nil {
		return Stats{}, fmt.Errorf("Stats: %w", err)
	}

	now := g.now()
	return Stats{
		Insights:  projectCounter(usage.Insights, InsightsDailyLimit, now),
		BillScans: projectCounter(usage.BillScans, BillScansDailyLimit, now),
	}, nil
}

func projectCounter(c Counter, limit int, now time.Time) KindStats {
	used := c.Count
	if !sameCalendarDay(c.LastReset, now) {
		used = 0
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return KindStats{Used: used, Limit: limit, Remaining: remaining}
}

func counterFor(u Usage, kind Kind) Counter {
	if kind == KindBillScans {
		return u.BillScans
	}
	return u.Insights
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func nextMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}
