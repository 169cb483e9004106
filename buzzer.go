package main

import (
	"time"
)

// buzzAttempt is one accepted buzz. The timestamp is the server-side receipt
// time assigned inside the coordinator loop; client clocks are never
// consulted.
type buzzAttempt struct {
	playerID string
	regSeq   int
	at       time.Time
}

// buzzWindow collects attempts for one clue between open and close. The
// generation number ties deadline timers to the window they were armed for,
// so a stale timer firing after a reopen is ignored.
type buzzWindow struct {
	clueID   string
	gen      int
	opened   time.Time
	deadline time.Time
	attempts []buzzAttempt
	seen     map[string]bool
}

// Buzzer arbitrates the buzz race for the clue in play. All calls happen on
// the coordinator loop; the engine itself is a plain decision structure.
type Buzzer struct {
	window *buzzWindow
	gen    int
}

func newBuzzer() *Buzzer {
	return &Buzzer{}
}

// openWindow starts (or, after an incorrect answer, restarts) the buzz race
// for a clue. The returned generation identifies this window to its deadline
// timer. The deadline is absolute: reopening never extends the clock.
func (b *Buzzer) openWindow(clueID string, now, deadline time.Time) int {
	b.gen++
	b.window = &buzzWindow{
		clueID:   clueID,
		gen:      b.gen,
		opened:   now,
		deadline: deadline,
		seen:     make(map[string]bool),
	}
	return b.gen
}

// open reports whether a window is currently accepting buzzes for clueID.
func (b *Buzzer) open(clueID string) bool {
	return b.window != nil && b.window.clueID == clueID
}

// current returns the generation of the open window, or zero.
func (b *Buzzer) current() int {
	if b.window == nil {
		return 0
	}
	return b.window.gen
}

func (b *Buzzer) deadline() time.Time {
	if b.window == nil {
		return time.Time{}
	}
	return b.window.deadline
}

// submit records a buzz attempt. Rules, in order: the window must be open
// for this clue, the player must not be buzz-locked, and duplicate
// submissions from flaky transports count once.
func (b *Buzzer) submit(player *Player, clueID string, now time.Time) error {
	if !b.open(clueID) {
		return commandErr(codeBuzzRejected, "no buzz window is open for clue %s", clueID)
	}
	if player.Locked {
		return commandErr(codeBuzzRejected, "%s is locked out of this clue", player.Nick)
	}
	if b.window.seen[player.ID] {
		return commandErr(codeBuzzRejected, "%s already buzzed in this window", player.Nick)
	}

	b.window.seen[player.ID] = true
	b.window.attempts = append(b.window.attempts, buzzAttempt{
		playerID: player.ID,
		regSeq:   player.RegSeq,
		at:       now,
	})

	return nil
}

// closeWindow resolves the race and discards the window. The winner is the
// earliest-received accepted attempt; ties at receipt-time granularity fall
// to the lower registration sequence so outcomes are reproducible.
func (b *Buzzer) closeWindow() (winnerID string, ok bool) {
	if b.window == nil {
		return "", false
	}

	var winner *buzzAttempt
	for i := range b.window.attempts {
		attempt := &b.window.attempts[i]
		if winner == nil {
			winner = attempt
			continue
		}
		if attempt.at.Before(winner.at) ||
			(attempt.at.Equal(winner.at) && attempt.regSeq < winner.regSeq) {
			winner = attempt
		}
	}

	b.window = nil

	if winner == nil {
		return "", false
	}
	return winner.playerID, true
}
