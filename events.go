package main

import (
	"time"
)

// EventType enumerates every state-change notification the server pushes.
// One payload struct per type; consumers switch on the tag rather than
// digging through an open-ended map.
type EventType string

const (
	EventRoster        EventType = "roster"
	EventClueRevealed  EventType = "clue_revealed"
	EventWindowOpened  EventType = "buzz_window_opened"
	EventBuzzWinner    EventType = "buzz_winner"
	EventWindowExpired EventType = "buzz_window_expired"
	EventAnswer        EventType = "answer_submitted"
	EventJudgment      EventType = "judgment"
	EventScore         EventType = "score_changed"
	EventDailyDouble   EventType = "daily_double"
	EventRoundChange   EventType = "round_transition"
	EventFinalRound    EventType = "final_round"
	EventFinalClue     EventType = "final_clue"
	EventFinalResults  EventType = "final_results"
	EventGameOver      EventType = "game_over"
	EventChat          EventType = "chat"
)

// Event is one record on the push stream. The dispatcher stamps Seq with
// the next global sequence number; for any n < m, delivery of n to a given
// endpoint is attempted before m.
type Event struct {
	Seq     uint64    `json:"seq"`
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

type RosterPayload struct {
	Action  string         `json:"action"` // joined, left, disconnected, reconnected, renamed
	Nick    string         `json:"nick"`
	Players []PublicPlayer `json:"players"`
}

type CluePayload struct {
	ClueID   string `json:"clue_id"`
	Category string `json:"category"`
	Value    int    `json:"value"`
	Prompt   string `json:"prompt"`
	PickedBy string `json:"picked_by"`
}

type WindowOpenedPayload struct {
	ClueID     string    `json:"clue_id"`
	Deadline   time.Time `json:"deadline"`
	DurationMs int64     `json:"duration_ms"`
	Reopened   bool      `json:"reopened,omitempty"`
}

type BuzzWinnerPayload struct {
	ClueID string `json:"clue_id"`
	Nick   string `json:"nick"`
}

type WindowExpiredPayload struct {
	ClueID   string `json:"clue_id"`
	Response string `json:"response"`
}

type AnswerPayload struct {
	Nick   string `json:"nick"`
	ClueID string `json:"clue_id"`
	Answer string `json:"answer"`
}

type JudgmentPayload struct {
	Nick    string `json:"nick"`
	ClueID  string `json:"clue_id"`
	Correct bool   `json:"correct"`
	Delta   int    `json:"delta"`
}

type ScorePayload struct {
	Nick   string `json:"nick"`
	Delta  int    `json:"delta"`
	Total  int    `json:"total"`
	Reason string `json:"reason"`
}

type DailyDoublePayload struct {
	ClueID string `json:"clue_id"`
	Nick   string `json:"nick"`
}

type RoundChangePayload struct {
	Round   int              `json:"round"`
	Board   []PublicCategory `json:"board"`
	Control string           `json:"control"`
}

type FinalRoundPayload struct {
	Category string   `json:"category"`
	Eligible []string `json:"eligible"`
	MinWager int      `json:"min_wager"`
}

type FinalCluePayload struct {
	Prompt string `json:"prompt"`
}

type FinalResult struct {
	Nick    string `json:"nick"`
	Wager   int    `json:"wager"`
	Correct bool   `json:"correct"`
	Total   int    `json:"total"`
}

type FinalResultsPayload struct {
	Results  []FinalResult `json:"results"`
	Response string        `json:"response"`
}

type GameOverPayload struct {
	Winner string         `json:"winner"`
	Final  []PublicPlayer `json:"final_standings"`
}

type ChatPayload struct {
	Nick    string `json:"nick"`
	Message string `json:"message"`
}
