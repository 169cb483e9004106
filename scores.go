package main

import (
	"sync"
)

// Reasons recorded with each score delta.
const (
	reasonCorrect   = "correct"
	reasonIncorrect = "incorrect"
	reasonWager     = "wager"
)

// ScoreDelta is one judged adjustment. Deltas are never retracted; a
// correction is a new delta with the opposite sign, so the history is a
// full audit trail.
type ScoreDelta struct {
	PlayerID string `json:"player_id"`
	Nick     string `json:"nick"`
	Value    int    `json:"value"`
	Reason   string `json:"reason"`
}

// Ledger holds the authoritative totals. Writes come from the coordinator
// loop only, but the status path reads concurrently, so batches apply under
// a write lock: a reader never observes a partially-applied final-round
// batch. No delta is ever refused for insufficient balance; totals go
// negative just like the real game.
type Ledger struct {
	mu      sync.RWMutex
	totals  map[string]int
	history []ScoreDelta
}

func newLedger() *Ledger {
	return &Ledger{totals: make(map[string]int)}
}

// apply adds a single delta and returns the new total.
func (l *Ledger) apply(delta ScoreDelta) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totals[delta.PlayerID] += delta.Value
	l.history = append(l.history, delta)
	return l.totals[delta.PlayerID]
}

// applyBatch applies every delta under one lock acquisition. Used for the
// final round, where all judged wagers land together or not at all.
func (l *Ledger) applyBatch(deltas []ScoreDelta) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, delta := range deltas {
		l.totals[delta.PlayerID] += delta.Value
		l.history = append(l.history, delta)
	}
}

func (l *Ledger) total(playerID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.totals[playerID]
}

// snapshot copies all totals, for atomic multi-player reads.
func (l *Ledger) snapshot() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]int, len(l.totals))
	for id, total := range l.totals {
		out[id] = total
	}
	return out
}

// audit returns a copy of the delta history.
func (l *Ledger) audit() []ScoreDelta {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ScoreDelta, len(l.history))
	copy(out, l.history)
	return out
}
