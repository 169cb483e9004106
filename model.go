package main

import (
	"time"
)

// Player is the server-side record for one registered nickname. The nickname
// is the stable logical identity; the endpoint is just wherever events are
// currently being pushed, and changes on reconnect.
type Player struct {
	ID       string
	Nick     string
	Endpoint string
	Score    int
	Active   bool

	// Buzz-lock for the clue currently in play, set after an incorrect
	// answer and cleared when the clue resolves.
	Locked bool

	// Registration order, used as the deterministic tie-breaker when two
	// buzzes share a receipt timestamp.
	RegSeq int

	LastActive time.Time

	TotalAnswers   int
	CorrectAnswers int
}

// PublicPlayer is the roster entry broadcast to clients and spectators.
type PublicPlayer struct {
	Nick           string `json:"nick"`
	Score          int    `json:"score"`
	Active         bool   `json:"active"`
	TotalAnswers   int    `json:"total_answers"`
	CorrectAnswers int    `json:"correct_answers"`
}

func (p *Player) public() PublicPlayer {
	return PublicPlayer{
		Nick:           p.Nick,
		Score:          p.Score,
		Active:         p.Active,
		TotalAnswers:   p.TotalAnswers,
		CorrectAnswers: p.CorrectAnswers,
	}
}
