package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		buzzWindow:    5 * time.Second,
		playerTimeout: time.Minute,
		pushRetries:   0,
		pushBackoff:   time.Millisecond,
		pushTimeout:   time.Second,
	}
}

// Two plain clues, no daily double, one round plus the final.
func testGameFile() *GameFile {
	return &GameFile{
		Rounds: []RoundDef{
			{Categories: []CategoryDef{{
				Title: "Testing",
				Clues: []ClueDef{
					{Prompt: "first prompt", Response: "first response", Value: 400},
					{Prompt: "second prompt", Response: "second response", Value: 800},
				},
			}}},
		},
		Final: FinalDef{Category: "Last Call", Prompt: "final prompt", Response: "final response"},
	}
}

var testEpoch = time.Unix(1700000000, 0)

// newTestSession pins the clock; handlers are driven directly, which is
// exactly what the run loop does, minus the channel.
func newTestSession(gf *GameFile) *Session {
	s := newSession(testConfig(), gf)
	s.clock = func() time.Time { return testEpoch }
	return s
}

func join(t *testing.T, s *Session, nick string) string {
	t.Helper()
	result := s.handleJoin(nick, "127.0.0.1:1", "")
	require.NoError(t, result.err)
	return result.playerID
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	cmdErr := &CommandError{}
	require.ErrorAs(t, err, &cmdErr)
	return cmdErr.Code
}

func TestSession_EndToEndBuzzRace(t *testing.T) {
	s := newTestSession(testGameFile())

	a := join(t, s, "A")
	b := join(t, s, "B")

	require.NoError(t, s.handleStart(a))
	assert.Equal(t, PhaseAwaitingSelect, s.phase)
	assert.Equal(t, a, s.controlID) // first registered picks first

	require.NoError(t, s.handleSelect(a, "r1c1v1"))
	assert.Equal(t, PhaseBuzzWindow, s.phase)

	// B's buzz reaches the server first; receipt order decides.
	require.NoError(t, s.handleBuzz(b, "r1c1v1"))
	assert.Equal(t, PhaseAnswering, s.phase)
	assert.Equal(t, b, s.answerID)

	err := s.handleBuzz(a, "r1c1v1")
	assert.Equal(t, codeBuzzRejected, errCode(t, err))

	require.NoError(t, s.handleAnswer(b, "what is the first response"))
	assert.Equal(t, PhaseJudging, s.phase)

	require.NoError(t, s.handleJudge("", true))

	assert.Equal(t, 400, s.ledger.total(b))
	assert.Equal(t, 0, s.ledger.total(a))
	assert.Equal(t, b, s.controlID) // correct answer takes control
	assert.Equal(t, PhaseAwaitingSelect, s.phase)
}

func TestSession_WindowExpiry(t *testing.T) {
	s := newTestSession(testGameFile())

	a := join(t, s, "A")
	join(t, s, "B")
	require.NoError(t, s.handleStart(a))
	require.NoError(t, s.handleSelect(a, "r1c1v1"))

	s.handleDeadline(s.buzzer.current())

	assert.Equal(t, PhaseAwaitingSelect, s.phase)
	assert.True(t, s.board().clue("r1c1v1").Revealed)
	assert.Equal(t, a, s.controlID) // control unchanged
	assert.Empty(t, s.ledger.audit())
}

func TestSession_StaleDeadlineIgnored(t *testing.T) {
	s := newTestSession(testGameFile())

	a := join(t, s, "A")
	require.NoError(t, s.handleStart(a))
	require.NoError(t, s.handleSelect(a, "r1c1v1"))

	gen := s.buzzer.current()
	require.NoError(t, s.handleBuzz(a, "r1c1v1"))
	require.Equal(t, PhaseAnswering, s.phase)

	// The timer for the already-won window fires late; nothing happens.
	s.handleDeadline(gen)
	assert.Equal(t, PhaseAnswering, s.phase)
}

func TestSession_IncorrectAnswerReopensWindow(t *testing.T) {
	s := newTestSession(testGameFile())

	a := join(t, s, "A")
	b := join(t, s, "B")
	require.NoError(t, s.handleStart(a))
	require.NoError(t, s.handleSelect(a, "r1c1v1"))

	require.NoError(t, s.handleBuzz(a, "r1c1v1"))
	require.NoError(t, s.handleAnswer(a, "wrong"))
	require.NoError(t, s.handleJudge("", false))

	// A paid for it and is locked; the race reopens for B.
	assert.Equal(t, -400, s.ledger.total(a))
	assert.True(t, s.registry.lookup(a).Locked)
	assert.Equal(t, PhaseBuzzWindow, s.phase)

	err := s.handleBuzz(a, "r1c1v1")
	assert.Equal(t, codeBuzzRejected, errCode(t, err))

	require.NoError(t, s.handleBuzz(b, "r1c1v1"))
	require.NoError(t, s.handleAnswer(b, "right"))
	require.NoError(t, s.handleJudge("", true))

	assert.Equal(t, 400, s.ledger.total(b))
	assert.Equal(t, b, s.controlID)
	require.Len(t, s.ledger.audit(), 2)

	// Locks do not leak into the next clue.
	assert.False(t, s.registry.lookup(a).Locked)
}

func TestSession_IncorrectWithNobodyLeftExpiresClue(t *testing.T) {
	s := newTestSession(testGameFile())

	a := join(t, s, "A")
	require.NoError(t, s.handleStart(a))
	require.NoError(t, s.handleSelect(a, "r1c1v1"))
	require.NoError(t, s.handleBuzz(a, "r1c1v1"))
	require.NoError(t, s.handleAnswer(a, "wrong"))
	require.NoError(t, s.handleJudge("", false))

	assert.Equal(t, -400, s.ledger.total(a))
	assert.Equal(t, PhaseAwaitingSelect, s.phase)
	assert.True(t, s.board().clue("r1c1v1").Revealed)
	assert.Equal(t, a, s.controlID)
}

func TestSession_OneDeltaPerJudgment(t *testing.T) {
	s := newTestSession(testGameFile())

	a := join(t, s, "A")
	require.NoError(t, s.handleStart(a))
	require.NoError(t, s.handleSelect(a, "r1c1v1"))
	require.NoError(t, s.handleBuzz(a, "r1c1v1"))
	require.NoError(t, s.handleAnswer(a, "guess"))
	require.NoError(t, s.handleJudge("", true))

	require.Len(t, s.ledger.audit(), 1)

	// A duplicated judge command finds nothing to judge.
	err := s.handleJudge("", true)
	assert.Equal(t, codeWrongPhase, errCode(t, err))
	require.Len(t, s.ledger.audit(), 1)
}

func TestSession_SelectionGuards(t *testing.T) {
	s := newTestSession(testGameFile())

	a := join(t, s, "A")
	b := join(t, s, "B")

	err := s.handleSelect(a, "r1c1v1")
	assert.Equal(t, codeInvalidSelection, errCode(t, err), "selection in lobby")

	require.NoError(t, s.handleStart(a))

	err = s.handleSelect(b, "r1c1v1")
	assert.Equal(t, codeInvalidSelection, errCode(t, err), "selection without control")

	err = s.handleSelect(a, "r9c9v9")
	assert.Equal(t, codeInvalidSelection, errCode(t, err), "unknown clue")

	require.NoError(t, s.handleSelect(a, "r1c1v1"))
	s.handleDeadline(s.buzzer.current())

	err = s.handleSelect(a, "r1c1v1")
	assert.Equal(t, codeInvalidSelection, errCode(t, err), "already revealed")
}

func TestSession_RoundTransitionHappensOnce(t *testing.T) {
	gf := &GameFile{
		Rounds: []RoundDef{
			{Categories: []CategoryDef{{Title: "One", Clues: []ClueDef{{Prompt: "p1", Response: "r1"}}}}},
			{Categories: []CategoryDef{{Title: "Two", Clues: []ClueDef{{Prompt: "p2", Response: "r2"}}}}},
		},
		Final: FinalDef{Category: "F", Prompt: "fp", Response: "fr"},
	}
	s := newTestSession(gf)

	a := join(t, s, "A")
	require.NoError(t, s.handleStart(a))

	require.NoError(t, s.handleSelect(a, "r1c1v1"))
	s.handleDeadline(s.buzzer.current())

	// One revealed board, one transition: now on round two.
	assert.Equal(t, 1, s.round)
	assert.Equal(t, PhaseAwaitingSelect, s.phase)

	require.NoError(t, s.handleSelect(a, "r2c1v1"))
	s.handleDeadline(s.buzzer.current())

	// Last board done with nobody above zero: the final is skipped.
	assert.Equal(t, PhaseGameOver, s.phase)
}

func TestSession_DailyDouble(t *testing.T) {
	gf := &GameFile{
		Rounds: []RoundDef{
			{Categories: []CategoryDef{{
				Title: "DD",
				Clues: []ClueDef{
					{Prompt: "dd prompt", Response: "dd response", Value: 400, DailyDouble: true},
					{Prompt: "plain", Response: "plain", Value: 800},
				},
			}}},
		},
		Final: FinalDef{Category: "F", Prompt: "fp", Response: "fr"},
	}
	s := newTestSession(gf)

	a := join(t, s, "A")
	b := join(t, s, "B")
	require.NoError(t, s.handleStart(a))

	require.NoError(t, s.handleSelect(a, "r1c1v1"))
	assert.Equal(t, PhaseDailyDoubleWager, s.phase)
	assert.False(t, s.board().clue("r1c1v1").Revealed, "prompt hidden until wagered")

	err := s.handleWager(b, 100)
	assert.Equal(t, codeNotYourTurn, errCode(t, err))

	// Zero score still allows risking up to the board's best clue.
	err = s.handleWager(a, 5000)
	assert.Equal(t, codeWagerOutOfRange, errCode(t, err))

	require.NoError(t, s.handleWager(a, 600))
	assert.Equal(t, PhaseAnswering, s.phase)
	assert.True(t, s.board().clue("r1c1v1").Revealed)

	// No buzz race on a daily double.
	err = s.handleBuzz(b, "r1c1v1")
	assert.Equal(t, codeBuzzRejected, errCode(t, err))

	require.NoError(t, s.handleAnswer(a, "what is dd"))
	require.NoError(t, s.handleJudge("", false))

	assert.Equal(t, -600, s.ledger.total(a))
	assert.Equal(t, PhaseAwaitingSelect, s.phase)
	assert.Equal(t, a, s.controlID)
	assert.True(t, s.board().clue("r1c1v1").Revealed)
}

func TestSession_FinalRound(t *testing.T) {
	s := newTestSession(testGameFile())

	a := join(t, s, "A")
	b := join(t, s, "B")
	c := join(t, s, "C")
	d := join(t, s, "D")
	require.NoError(t, s.handleStart(a))

	// Seed standings: everyone but D qualified.
	for id, score := range map[string]int{a: 500, b: 500, c: 500} {
		s.registry.lookup(id).Score = score
		s.ledger.apply(ScoreDelta{PlayerID: id, Value: score, Reason: reasonCorrect})
	}

	for _, cat := range s.board().Categories {
		for _, clue := range cat.Clues {
			clue.Revealed = true
		}
	}
	s.checkRoundComplete()

	require.Equal(t, PhaseFinalWagers, s.phase)
	assert.Len(t, s.eligible, 3)

	err := s.handleWager(d, 100)
	assert.Equal(t, codeNotYourTurn, errCode(t, err), "zero score is not eligible")

	err = s.handleWager(b, 600)
	assert.Equal(t, codeWagerOutOfRange, errCode(t, err), "cannot wager above score")

	require.NoError(t, s.handleWager(a, 100))
	require.NoError(t, s.handleWager(b, 200))
	assert.Equal(t, PhaseFinalWagers, s.phase, "waiting on the last wager")
	require.NoError(t, s.handleWager(c, 300))
	assert.Equal(t, PhaseFinalAnswers, s.phase)

	require.NoError(t, s.handleAnswer(a, "answer a"))
	require.NoError(t, s.handleAnswer(b, "answer b"))

	err = s.handleAnswer(b, "again")
	assert.Equal(t, codeWrongPhase, errCode(t, err), "one answer per player")

	require.NoError(t, s.handleAnswer(c, "answer c"))
	assert.Equal(t, PhaseFinalJudging, s.phase)

	auditBefore := len(s.ledger.audit())

	require.NoError(t, s.handleJudge("A", true))
	require.NoError(t, s.handleJudge("B", false))

	// Nothing lands until every verdict is in.
	assert.Len(t, s.ledger.audit(), auditBefore)

	require.NoError(t, s.handleJudge("C", true))

	assert.Equal(t, 600, s.ledger.total(a))
	assert.Equal(t, 300, s.ledger.total(b))
	assert.Equal(t, 800, s.ledger.total(c))
	assert.Len(t, s.ledger.audit(), auditBefore+3)
	assert.Equal(t, PhaseGameOver, s.phase)
}

func TestSession_GameOverAcceptsOnlyStatus(t *testing.T) {
	s := newTestSession(testGameFile())

	a := join(t, s, "A")
	s.phase = PhaseGameOver

	assert.Equal(t, codeGameOver, errCode(t, s.handleChat(a, "gg")))
	assert.Equal(t, codeInvalidSelection, errCode(t, s.handleSelect(a, "r1c1v1")))
	assert.Equal(t, codeGameOver, errCode(t, s.handleJoin("E", "127.0.0.1:1", "").err))
	assert.Equal(t, codeGameOver, errCode(t, s.handleNick(a, "Ace")))
	assert.Equal(t, codeGameOver, errCode(t, s.handleHeartbeat(a)))

	doc := s.statusDoc()
	assert.Equal(t, PhaseGameOver, doc.Phase)
	require.Len(t, doc.Players, 1)
}

func TestSession_LeaveMidWindowWithNobodyLeft(t *testing.T) {
	s := newTestSession(testGameFile())

	a := join(t, s, "A")
	require.NoError(t, s.handleStart(a))
	require.NoError(t, s.handleSelect(a, "r1c1v1"))
	require.Equal(t, PhaseBuzzWindow, s.phase)

	// The only eligible buzzer walks away: the window closes with no
	// winner and the clue goes unanswered.
	require.NoError(t, s.handleLeave(a))

	assert.Equal(t, PhaseAwaitingSelect, s.phase)
	assert.True(t, s.board().clue("r1c1v1").Revealed)
	assert.Empty(t, s.ledger.audit())
}

func TestSession_ReconnectKeepsScore(t *testing.T) {
	s := newTestSession(testGameFile())

	a := join(t, s, "Alex")
	join(t, s, "B")
	require.NoError(t, s.handleStart(a))
	require.NoError(t, s.handleSelect(a, "r1c1v1"))
	require.NoError(t, s.handleBuzz(a, "r1c1v1"))
	require.NoError(t, s.handleAnswer(a, "yes"))
	require.NoError(t, s.handleJudge("", true))
	require.Equal(t, 400, s.ledger.total(a))

	require.NoError(t, s.handleLeave(a))
	assert.False(t, s.registry.lookup(a).Active)

	back := s.handleJoin("alex", "127.0.0.1:2", "")
	require.NoError(t, back.err)
	assert.True(t, back.reconnected)
	assert.Equal(t, a, back.playerID)
	assert.Equal(t, 400, s.registry.lookup(a).Score)
}

func TestSession_LobbyLeaveForgetsPlayer(t *testing.T) {
	s := newTestSession(testGameFile())

	a := join(t, s, "Alex")
	require.NoError(t, s.handleLeave(a))
	assert.Nil(t, s.registry.lookup(a))

	again := s.handleJoin("Alex", "127.0.0.1:1", "")
	require.NoError(t, again.err)
	assert.False(t, again.reconnected)
}

func TestSession_RegisterMovesEndpointForLiveIdentity(t *testing.T) {
	s := newTestSession(testGameFile())

	a := join(t, s, "Alex")

	// A different claimant still collides with the live record.
	res := s.handleJoin("alex", "127.0.0.1:9", "")
	assert.Equal(t, codeNameTaken, errCode(t, res.err))

	res = s.handleJoin("alex", "127.0.0.1:9", "not-alex")
	assert.Equal(t, codeNameTaken, errCode(t, res.err))

	// The same client restarting under its own ID just moves its endpoint.
	res = s.handleJoin("Alex", "127.0.0.1:9", a)
	require.NoError(t, res.err)
	assert.True(t, res.reconnected)
	assert.Equal(t, a, res.playerID)

	player := s.registry.lookup(a)
	assert.Equal(t, "127.0.0.1:9", player.Endpoint)
	assert.True(t, player.Active)
}

func TestSession_ControlLeavesDuringSelection(t *testing.T) {
	s := newTestSession(testGameFile())

	a := join(t, s, "A")
	b := join(t, s, "B")
	require.NoError(t, s.handleStart(a))

	require.NoError(t, s.handleLeave(a))
	assert.Equal(t, b, s.controlID)
}

func TestSession_ReapDeactivatesSilentPlayers(t *testing.T) {
	s := newTestSession(testGameFile())

	a := join(t, s, "A")
	player := s.registry.lookup(a)
	require.True(t, player.Active)

	s.reap(testEpoch.Add(2 * time.Minute))

	// Lobby reap forgets the record outright.
	assert.Nil(t, s.registry.lookup(a))
}

func TestSession_HeartbeatKeepsPlayerAlive(t *testing.T) {
	s := newTestSession(testGameFile())

	a := join(t, s, "A")

	later := testEpoch.Add(50 * time.Second)
	s.clock = func() time.Time { return later }
	require.NoError(t, s.handleHeartbeat(a))

	s.reap(later.Add(30 * time.Second))
	assert.NotNil(t, s.registry.lookup(a))
}

func TestSession_RenameBroadcastsAndGuards(t *testing.T) {
	s := newTestSession(testGameFile())

	a := join(t, s, "A")
	join(t, s, "B")

	err := s.handleNick(a, "b")
	assert.Equal(t, codeNameTaken, errCode(t, err))

	require.NoError(t, s.handleNick(a, "Ace"))
	assert.Equal(t, "Ace", s.registry.lookup(a).Nick)
}

func TestSession_StatusDocShape(t *testing.T) {
	s := newTestSession(testGameFile())

	a := join(t, s, "A")
	doc := s.statusDoc()
	assert.Equal(t, PhaseLobby, doc.Phase)
	assert.Zero(t, doc.Round)
	assert.Empty(t, doc.Board)

	require.NoError(t, s.handleStart(a))
	require.NoError(t, s.handleSelect(a, "r1c1v1"))

	doc = s.statusDoc()
	assert.Equal(t, PhaseBuzzWindow, doc.Phase)
	assert.Equal(t, 1, doc.Round)
	require.NotNil(t, doc.ClueInPlay)
	assert.Equal(t, "first prompt", doc.ClueInPlay.Prompt)
	assert.Equal(t, "A", doc.Control)
	assert.Equal(t, 1, doc.Stats.CluesPlayed)
	require.NotNil(t, doc.BuzzUntil)
	assert.Equal(t, testEpoch.Add(5*time.Second), *doc.BuzzUntil)
}
