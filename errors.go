/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"log"
	"time"
)

// Machine-readable codes for command rejections. These travel back to the
// issuing client only; delivery failures are the dispatcher's problem and
// never appear here.
const (
	codeNameTaken        = "name_taken"
	codeUnknownName      = "unknown_name"
	codeInvalidSelection = "invalid_selection"
	codeBuzzRejected     = "buzz_rejected"
	codeWagerOutOfRange  = "wager_out_of_range"
	codeNotYourTurn      = "not_your_turn"
	codeWrongPhase       = "wrong_phase"
	codeGameOver         = "game_over"
	codeUnreachable      = "endpoint_unreachable"
)

// CommandError rejects a single command without touching game state.
type CommandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *CommandError) Error() string {
	return e.Code + ": " + e.Message
}

func commandErr(code, format string, args ...any) *CommandError {
	return &CommandError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}
