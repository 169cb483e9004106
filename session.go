package main

import (
	"context"
	"time"
)

const minDailyDoubleWager = 5

// Session owns all mutable game state. Every command, including timer
// deadlines and dispatcher disconnect reports, funnels through one channel
// drained by a single goroutine: one channel (rather than a select over
// several) keeps arrival order, which is what makes buzz arbitration
// deterministic.
type Session struct {
	cfg   *Config
	cmds  chan any
	clock func() time.Time

	registry *Registry
	ledger   *Ledger
	buzzer   *Buzzer
	dispatch *Dispatcher

	boards []*Board
	final  FinalDef

	phase         Phase
	round         int // index into boards
	clue          *Clue
	controlID     string
	answerID      string
	pendingAnswer string
	dailyWager    int
	clueDeadline  time.Time

	eligible      map[string]bool
	finalWagers   map[string]int
	finalAnswers  map[string]string
	finalVerdicts map[string]bool

	cluesPlayed   int
	answersJudged int
}

func newSession(cfg *Config, gf *GameFile) *Session {
	s := &Session{
		cfg:      cfg,
		cmds:     make(chan any, 256),
		clock:    time.Now,
		registry: newRegistry(),
		ledger:   newLedger(),
		buzzer:   newBuzzer(),
		boards:   buildBoards(gf),
		final:    gf.Final,
		phase:    PhaseLobby,
	}
	s.dispatch = newDispatcher(cfg, func(playerID string) {
		s.cmds <- cmdDrop{playerID: playerID}
	})
	return s
}

// Command envelopes. Each carries a buffered reply channel so handlers
// never block the loop.

type joinResult struct {
	playerID    string
	reconnected bool
	err         error
}

type cmdJoin struct {
	nick     string
	endpoint string
	playerID string // set when a live client re-registers under its own identity
	reply    chan joinResult
}

type cmdLeave struct {
	playerID string
	reply    chan error
}

type cmdStart struct {
	playerID string
	reply    chan error
}

type cmdSelect struct {
	playerID string
	clueID   string
	reply    chan error
}

type cmdBuzz struct {
	playerID string
	clueID   string
	reply    chan error
}

type cmdAnswer struct {
	playerID string
	text     string
	reply    chan error
}

type cmdJudge struct {
	nick    string
	correct bool
	reply   chan error
}

type cmdWager struct {
	playerID string
	amount   int
	reply    chan error
}

type cmdChat struct {
	playerID string
	message  string
	reply    chan error
}

type cmdNick struct {
	playerID string
	nick     string
	reply    chan error
}

type cmdHeartbeat struct {
	playerID string
	reply    chan error
}

type cmdStatus struct {
	reply chan StatusDoc
}

// cmdDeadline is the buzz window timer firing. It enters the same queue as
// buzzes, so "closed by timeout" and "closed by winning buzz" can never
// race.
type cmdDeadline struct {
	gen int
}

// cmdDrop is the dispatcher reporting an endpoint as unreachable.
type cmdDrop struct {
	playerID string
}

func (s *Session) run(ctx context.Context) {
	reaper := time.NewTicker(s.cfg.playerTimeout / 2)
	defer reaper.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reaper.C:
			s.reap(s.clock())
		case c := <-s.cmds:
			s.handle(c)
		}
	}
}

func (s *Session) handle(c any) {
	switch cmd := c.(type) {
	case cmdJoin:
		cmd.reply <- s.handleJoin(cmd.nick, cmd.endpoint, cmd.playerID)
	case cmdLeave:
		cmd.reply <- s.handleLeave(cmd.playerID)
	case cmdStart:
		cmd.reply <- s.handleStart(cmd.playerID)
	case cmdSelect:
		cmd.reply <- s.handleSelect(cmd.playerID, cmd.clueID)
	case cmdBuzz:
		cmd.reply <- s.handleBuzz(cmd.playerID, cmd.clueID)
	case cmdAnswer:
		cmd.reply <- s.handleAnswer(cmd.playerID, cmd.text)
	case cmdJudge:
		cmd.reply <- s.handleJudge(cmd.nick, cmd.correct)
	case cmdWager:
		cmd.reply <- s.handleWager(cmd.playerID, cmd.amount)
	case cmdChat:
		cmd.reply <- s.handleChat(cmd.playerID, cmd.message)
	case cmdNick:
		cmd.reply <- s.handleNick(cmd.playerID, cmd.nick)
	case cmdHeartbeat:
		cmd.reply <- s.handleHeartbeat(cmd.playerID)
	case cmdStatus:
		cmd.reply <- s.statusDoc()
	case cmdDeadline:
		s.handleDeadline(cmd.gen)
	case cmdDrop:
		s.handleDrop(cmd.playerID)
	}
}

// touch resolves a player ID to an active player and refreshes their
// last-active time.
func (s *Session) touch(playerID string) (*Player, error) {
	player := s.registry.lookup(playerID)
	if player == nil || !player.Active {
		return nil, commandErr(codeUnknownName, "unknown or inactive player")
	}
	player.LastActive = s.clock()
	return player, nil
}

func (s *Session) board() *Board {
	return s.boards[s.round]
}

func (s *Session) rosterEvent(action, nick string) Event {
	return Event{Type: EventRoster, Payload: RosterPayload{
		Action:  action,
		Nick:    nick,
		Players: s.registry.roster(),
	}}
}

func (s *Session) handleJoin(nick, endpoint, claimedID string) joinResult {
	if s.phase == PhaseGameOver {
		return joinResult{err: commandErr(codeGameOver, "the game is over")}
	}

	// A client restarting under its own identity does not collide with
	// itself: the stored endpoint moves and nothing else changes.
	if existing := s.registry.byNick(nick); existing != nil && existing.Active {
		if claimedID == "" || claimedID != existing.ID {
			return joinResult{err: commandErr(codeNameTaken, "nickname %q is already in use", nick)}
		}

		player, err := s.registry.reconnect(nick, endpoint)
		if err != nil {
			return joinResult{err: err}
		}
		player.LastActive = s.clock()

		s.dispatch.subscribe(player.ID, endpoint)

		logf(s.cfg, "GAME: Player %q reconnected from %s", player.Nick, endpoint)
		s.dispatch.publish(s.rosterEvent("reconnected", player.Nick))

		return joinResult{playerID: player.ID, reconnected: true}
	}

	reconnected := false
	if existing := s.registry.byNick(nick); existing != nil && !existing.Active {
		reconnected = true
	}

	player, err := s.registry.register(nick, endpoint)
	if err != nil {
		return joinResult{err: err}
	}
	player.LastActive = s.clock()
	player.Score = s.ledger.total(player.ID)

	s.dispatch.subscribe(player.ID, endpoint)

	action := "joined"
	if reconnected {
		action = "reconnected"
	}
	logf(s.cfg, "GAME: Player %q %s from %s", player.Nick, action, endpoint)
	s.dispatch.publish(s.rosterEvent(action, player.Nick))

	return joinResult{playerID: player.ID, reconnected: reconnected}
}

func (s *Session) handleLeave(playerID string) error {
	player, err := s.touch(playerID)
	if err != nil {
		return err
	}
	s.playerGone(player, "left")
	return nil
}

func (s *Session) handleDrop(playerID string) {
	player := s.registry.lookup(playerID)
	if player == nil || !player.Active {
		return
	}
	s.playerGone(player, "disconnected")
}

// playerGone handles both explicit leaves and disconnects: the record is
// deactivated (dropped entirely if we are still in the lobby, so the score
// question never arises), delivery stops, and any in-flight clue or final
// round re-checks its participant set.
func (s *Session) playerGone(player *Player, action string) {
	s.dispatch.unsubscribe(player.ID)

	if s.phase == PhaseLobby {
		s.registry.drop(player.ID)
	} else {
		s.registry.deactivate(player.ID)
	}

	logf(s.cfg, "GAME: Player %q %s", player.Nick, action)
	s.dispatch.publish(s.rosterEvent(action, player.Nick))

	switch s.phase {
	case PhaseBuzzWindow:
		// Leaving mid-window removes future buzz eligibility; if nobody
		// eligible remains, the window closes with no winner.
		if !s.anyEligibleBuzzer() {
			s.buzzer.closeWindow()
			s.expireClue()
		}
	case PhaseAnswering, PhaseJudging, PhaseDailyDoubleWager:
		if s.answerID == player.ID {
			// The player on the clue walked away. No penalty; a normal
			// clue reopens for whoever is left, a daily double is spent.
			if s.clue.DailyDouble {
				s.expireClue()
			} else {
				s.reopenOrExpire()
			}
		}
	case PhaseAwaitingSelect:
		if s.controlID == player.ID {
			s.passControlToLowestScore()
		}
	case PhaseFinalWagers, PhaseFinalAnswers, PhaseFinalJudging:
		if s.eligible[player.ID] {
			delete(s.eligible, player.ID)
			delete(s.finalWagers, player.ID)
			delete(s.finalAnswers, player.ID)
			delete(s.finalVerdicts, player.Nick)
			s.advanceFinal()
		}
	}
}

func (s *Session) handleStart(playerID string) error {
	if s.phase != PhaseLobby {
		return commandErr(codeWrongPhase, "the game has already started")
	}
	player, err := s.touch(playerID)
	if err != nil {
		return err
	}

	active := s.registry.active()
	if len(active) == 0 {
		return commandErr(codeWrongPhase, "no players registered")
	}

	s.phase = PhaseAwaitingSelect
	s.round = 0
	s.controlID = active[0].ID

	logf(s.cfg, "GAME: Round 1 started by %q, control to %q", player.Nick, active[0].Nick)
	s.dispatch.publish(Event{Type: EventRoundChange, Payload: RoundChangePayload{
		Round:   1,
		Board:   s.board().public(),
		Control: active[0].Nick,
	}})

	return nil
}

func (s *Session) handleSelect(playerID, clueID string) error {
	player, err := s.touch(playerID)
	if err != nil {
		return err
	}
	if s.phase != PhaseAwaitingSelect {
		return commandErr(codeInvalidSelection, "no selection is expected right now")
	}
	if player.ID != s.controlID {
		return commandErr(codeInvalidSelection, "%s does not have control of the board", player.Nick)
	}

	clue := s.board().clue(clueID)
	if clue == nil {
		return commandErr(codeInvalidSelection, "no clue %s on this board", clueID)
	}
	if clue.Revealed {
		return commandErr(codeInvalidSelection, "clue %s has already been played", clueID)
	}

	s.clue = clue
	s.cluesPlayed++

	if clue.DailyDouble {
		// Daily doubles skip the buzz race: the selector wagers blind,
		// then answers alone. The prompt stays hidden until the wager is in.
		s.phase = PhaseDailyDoubleWager
		s.answerID = player.ID
		logf(s.cfg, "GAME: %q found the daily double at %s", player.Nick, clue.ID)
		s.dispatch.publish(Event{Type: EventDailyDouble, Payload: DailyDoublePayload{
			ClueID: clue.ID,
			Nick:   player.Nick,
		}})
		return nil
	}

	clue.Revealed = true
	s.revealAndOpenWindow(player.Nick, false)
	return nil
}

// revealAndOpenWindow broadcasts the clue and starts the buzz clock.
func (s *Session) revealAndOpenWindow(pickedBy string, reopened bool) {
	now := s.clock()

	if !reopened {
		s.clueDeadline = now.Add(s.cfg.buzzWindow)
		s.dispatch.publish(Event{Type: EventClueRevealed, Payload: CluePayload{
			ClueID:   s.clue.ID,
			Category: s.board().Categories[s.clue.Category].Title,
			Value:    s.clue.Value,
			Prompt:   s.clue.Prompt,
			PickedBy: pickedBy,
		}})
	}

	gen := s.buzzer.openWindow(s.clue.ID, now, s.clueDeadline)
	s.phase = PhaseBuzzWindow

	time.AfterFunc(s.clueDeadline.Sub(now), func() {
		s.cmds <- cmdDeadline{gen: gen}
	})

	s.dispatch.publish(Event{Type: EventWindowOpened, Payload: WindowOpenedPayload{
		ClueID:     s.clue.ID,
		Deadline:   s.clueDeadline,
		DurationMs: s.clueDeadline.Sub(now).Milliseconds(),
		Reopened:   reopened,
	}})
}

func (s *Session) handleBuzz(playerID, clueID string) error {
	player, err := s.touch(playerID)
	if err != nil {
		return err
	}
	if s.phase != PhaseBuzzWindow {
		return commandErr(codeBuzzRejected, "no buzz window is open")
	}

	if err := s.buzzer.submit(player, clueID, s.clock()); err != nil {
		return err
	}

	// First accepted buzz wins: processing order is receipt order, since
	// everything flows through one queue.
	winnerID, ok := s.buzzer.closeWindow()
	if !ok {
		return nil
	}

	winner := s.registry.lookup(winnerID)
	s.phase = PhaseAnswering
	s.answerID = winnerID

	logf(s.cfg, "GAME: %q buzzed in first on %s", winner.Nick, clueID)
	s.dispatch.publish(Event{Type: EventBuzzWinner, Payload: BuzzWinnerPayload{
		ClueID: clueID,
		Nick:   winner.Nick,
	}})

	return nil
}

func (s *Session) handleDeadline(gen int) {
	if s.buzzer.current() != gen {
		return // a buzz or a reopen got there first
	}
	s.buzzer.closeWindow()
	s.expireClue()
}

// expireClue marks the clue in play revealed-unanswered: the response is
// broadcast, no scores change, and control stays where it was.
func (s *Session) expireClue() {
	clue := s.clue
	clue.Revealed = true

	s.dispatch.publish(Event{Type: EventWindowExpired, Payload: WindowExpiredPayload{
		ClueID:   clue.ID,
		Response: clue.Response,
	}})

	s.resolveClue()
}

// resolveClue clears per-clue state and returns to selection, then checks
// for round completion.
func (s *Session) resolveClue() {
	s.clue = nil
	s.answerID = ""
	s.pendingAnswer = ""
	s.dailyWager = 0
	for _, p := range s.registry.players {
		p.Locked = false
	}

	s.phase = PhaseAwaitingSelect
	if control := s.registry.lookup(s.controlID); control == nil || !control.Active {
		s.passControlToLowestScore()
	}

	s.checkRoundComplete()
}

func (s *Session) handleAnswer(playerID, text string) error {
	player, err := s.touch(playerID)
	if err != nil {
		return err
	}

	switch s.phase {
	case PhaseAnswering:
		if player.ID != s.answerID {
			return commandErr(codeNotYourTurn, "%s is not the one answering", player.Nick)
		}
		s.pendingAnswer = text
		s.phase = PhaseJudging
		player.TotalAnswers++

		s.dispatch.publish(Event{Type: EventAnswer, Payload: AnswerPayload{
			Nick:   player.Nick,
			ClueID: s.clue.ID,
			Answer: text,
		}})
		return nil

	case PhaseFinalAnswers:
		if !s.eligible[player.ID] {
			return commandErr(codeNotYourTurn, "%s is not playing the final round", player.Nick)
		}
		if _, done := s.finalAnswers[player.ID]; done {
			return commandErr(codeWrongPhase, "%s already answered", player.Nick)
		}
		s.finalAnswers[player.ID] = text
		player.TotalAnswers++
		s.advanceFinal()
		return nil

	default:
		return commandErr(codeWrongPhase, "no answer is expected right now")
	}
}

func (s *Session) handleJudge(nick string, correct bool) error {
	switch s.phase {
	case PhaseJudging:
		return s.judgeClue(correct)
	case PhaseFinalJudging:
		return s.judgeFinal(nick, correct)
	default:
		return commandErr(codeWrongPhase, "nothing is awaiting judgment")
	}
}

func (s *Session) judgeClue(correct bool) error {
	player := s.registry.lookup(s.answerID)
	clue := s.clue
	s.answersJudged++

	value := clue.Value
	if clue.DailyDouble {
		value = s.dailyWager
	}

	delta := ScoreDelta{PlayerID: player.ID, Nick: player.Nick, Value: value, Reason: reasonCorrect}
	if clue.DailyDouble {
		delta.Reason = reasonWager
	}
	if !correct {
		delta.Value = -value
		if !clue.DailyDouble {
			delta.Reason = reasonIncorrect
		}
	}

	total := s.ledger.apply(delta)
	player.Score = total
	if correct {
		player.CorrectAnswers++
	}

	logf(s.cfg, "GAME: Judged %q %s on %s for %+d", player.Nick, verdict(correct), clue.ID, delta.Value)
	s.dispatch.publish(
		Event{Type: EventJudgment, Payload: JudgmentPayload{
			Nick:    player.Nick,
			ClueID:  clue.ID,
			Correct: correct,
			Delta:   delta.Value,
		}},
		Event{Type: EventScore, Payload: ScorePayload{
			Nick:   player.Nick,
			Delta:  delta.Value,
			Total:  total,
			Reason: delta.Reason,
		}},
	)

	if correct {
		// A correct answer takes control of the next selection.
		s.controlID = player.ID
		clue.Revealed = true
		s.resolveClue()
		return nil
	}

	player.Locked = true
	if clue.DailyDouble {
		// Nobody else may ring in on a daily double; the clue is spent.
		s.expireClue()
		return nil
	}
	s.reopenOrExpire()
	return nil
}

// reopenOrExpire reopens the buzz window for the remaining unlocked players
// if any exist and the original deadline has not passed; otherwise the clue
// goes unanswered.
func (s *Session) reopenOrExpire() {
	if s.clock().Before(s.clueDeadline) && s.anyEligibleBuzzer() {
		s.revealAndOpenWindow("", true)
		return
	}
	s.buzzer.closeWindow()
	s.expireClue()
}

func (s *Session) anyEligibleBuzzer() bool {
	for _, p := range s.registry.active() {
		if !p.Locked {
			return true
		}
	}
	return false
}

func (s *Session) handleWager(playerID string, amount int) error {
	player, err := s.touch(playerID)
	if err != nil {
		return err
	}

	switch s.phase {
	case PhaseDailyDoubleWager:
		if player.ID != s.answerID {
			return commandErr(codeNotYourTurn, "%s did not select the daily double", player.Nick)
		}
		// A low score still gets to risk up to the board's biggest clue.
		limit := max(player.Score, s.board().highestRemainingValue())
		if amount < minDailyDoubleWager || amount > limit {
			return commandErr(codeWagerOutOfRange,
				"wager must be between %d and %d", minDailyDoubleWager, limit)
		}

		s.dailyWager = amount
		s.clue.Revealed = true
		s.dispatch.publish(Event{Type: EventClueRevealed, Payload: CluePayload{
			ClueID:   s.clue.ID,
			Category: s.board().Categories[s.clue.Category].Title,
			Value:    amount,
			Prompt:   s.clue.Prompt,
			PickedBy: player.Nick,
		}})
		s.phase = PhaseAnswering
		return nil

	case PhaseFinalWagers:
		if !s.eligible[player.ID] {
			return commandErr(codeNotYourTurn, "%s is not playing the final round", player.Nick)
		}
		if _, done := s.finalWagers[player.ID]; done {
			return commandErr(codeWrongPhase, "%s already wagered", player.Nick)
		}
		if amount < s.cfg.finalMinWager || amount > player.Score {
			return commandErr(codeWagerOutOfRange,
				"wager must be between %d and %d", s.cfg.finalMinWager, player.Score)
		}
		s.finalWagers[player.ID] = amount
		s.advanceFinal()
		return nil

	default:
		return commandErr(codeWrongPhase, "no wager is expected right now")
	}
}

func (s *Session) checkRoundComplete() {
	if s.phase != PhaseAwaitingSelect || !s.board().complete() {
		return
	}

	if s.round+1 < len(s.boards) {
		s.round++
		s.passControlToLowestScore()

		control := ""
		if p := s.registry.lookup(s.controlID); p != nil {
			control = p.Nick
		}

		logf(s.cfg, "GAME: Advancing to round %d", s.round+1)
		s.dispatch.publish(Event{Type: EventRoundChange, Payload: RoundChangePayload{
			Round:   s.round + 1,
			Board:   s.board().public(),
			Control: control,
		}})
		return
	}

	s.enterFinalRound()
}

// passControlToLowestScore hands board control to the active player with the
// lowest score, the house convention for round starts and orphaned control.
func (s *Session) passControlToLowestScore() {
	active := s.registry.active()
	if len(active) == 0 {
		s.controlID = ""
		return
	}
	lowest := active[0]
	for _, p := range active[1:] {
		if p.Score < lowest.Score {
			lowest = p
		}
	}
	s.controlID = lowest.ID
}

func (s *Session) enterFinalRound() {
	s.eligible = make(map[string]bool)
	s.finalWagers = make(map[string]int)
	s.finalAnswers = make(map[string]string)
	s.finalVerdicts = make(map[string]bool)

	nicks := []string{}
	for _, p := range s.registry.active() {
		if p.Score > 0 {
			s.eligible[p.ID] = true
			nicks = append(nicks, p.Nick)
		}
	}

	if len(s.eligible) == 0 {
		// Nobody qualified; skip the final.
		s.gameOver()
		return
	}

	s.phase = PhaseFinalWagers
	logf(s.cfg, "GAME: Final round, %d players eligible", len(s.eligible))
	s.dispatch.publish(Event{Type: EventFinalRound, Payload: FinalRoundPayload{
		Category: s.final.Category,
		Eligible: nicks,
		MinWager: s.cfg.finalMinWager,
	}})
}

// advanceFinal moves the final round forward whenever its current stage has
// collected input from every remaining eligible player.
func (s *Session) advanceFinal() {
	if len(s.eligible) == 0 {
		s.gameOver()
		return
	}

	switch s.phase {
	case PhaseFinalWagers:
		if len(s.finalWagers) < len(s.eligible) {
			return
		}
		s.phase = PhaseFinalAnswers
		s.dispatch.publish(Event{Type: EventFinalClue, Payload: FinalCluePayload{
			Prompt: s.final.Prompt,
		}})

	case PhaseFinalAnswers:
		if len(s.finalAnswers) < len(s.eligible) {
			return
		}
		s.phase = PhaseFinalJudging

		// Answers stay sealed until everyone is in, then all go out at
		// once for judgment.
		events := []Event{}
		for _, p := range s.registry.active() {
			if s.eligible[p.ID] {
				events = append(events, Event{Type: EventAnswer, Payload: AnswerPayload{
					Nick:   p.Nick,
					Answer: s.finalAnswers[p.ID],
				}})
			}
		}
		s.dispatch.publish(events...)

	case PhaseFinalJudging:
		if len(s.finalVerdicts) < len(s.eligible) {
			return
		}
		s.settleFinal()
	}
}

func (s *Session) judgeFinal(nick string, correct bool) error {
	player := s.registry.byNick(nick)
	if player == nil || !s.eligible[player.ID] {
		return commandErr(codeUnknownName, "no final-round answer from %q", nick)
	}
	if _, done := s.finalVerdicts[player.Nick]; done {
		return commandErr(codeWrongPhase, "%q has already been judged", nick)
	}

	s.finalVerdicts[player.Nick] = correct
	s.answersJudged++
	s.advanceFinal()
	return nil
}

// settleFinal applies every final-round delta as one atomic batch, then ends
// the game.
func (s *Session) settleFinal() {
	deltas := []ScoreDelta{}
	results := []FinalResult{}

	for _, p := range s.registry.active() {
		if !s.eligible[p.ID] {
			continue
		}
		value := s.finalWagers[p.ID]
		correct := s.finalVerdicts[p.Nick]
		if !correct {
			value = -value
		}
		deltas = append(deltas, ScoreDelta{
			PlayerID: p.ID,
			Nick:     p.Nick,
			Value:    value,
			Reason:   reasonWager,
		})
	}

	s.ledger.applyBatch(deltas)

	totals := s.ledger.snapshot()
	events := []Event{}
	for _, delta := range deltas {
		player := s.registry.lookup(delta.PlayerID)
		player.Score = totals[delta.PlayerID]
		if s.finalVerdicts[player.Nick] {
			player.CorrectAnswers++
		}
		results = append(results, FinalResult{
			Nick:    player.Nick,
			Wager:   s.finalWagers[player.ID],
			Correct: s.finalVerdicts[player.Nick],
			Total:   player.Score,
		})
		events = append(events, Event{Type: EventScore, Payload: ScorePayload{
			Nick:   delta.Nick,
			Delta:  delta.Value,
			Total:  player.Score,
			Reason: reasonWager,
		}})
	}

	events = append(events, Event{Type: EventFinalResults, Payload: FinalResultsPayload{
		Results:  results,
		Response: s.final.Response,
	}})
	s.dispatch.publish(events...)

	s.gameOver()
}

func (s *Session) gameOver() {
	s.phase = PhaseGameOver

	winner := ""
	best := 0
	for _, p := range s.registry.active() {
		if winner == "" || p.Score > best {
			winner = p.Nick
			best = p.Score
		}
	}

	logf(s.cfg, "GAME: Game over, winner %q with %d", winner, best)
	s.dispatch.publish(Event{Type: EventGameOver, Payload: GameOverPayload{
		Winner: winner,
		Final:  s.registry.roster(),
	}})
}

func (s *Session) handleChat(playerID, message string) error {
	player, err := s.touch(playerID)
	if err != nil {
		return err
	}
	if s.phase == PhaseGameOver {
		return commandErr(codeGameOver, "the game is over")
	}
	s.dispatch.publish(Event{Type: EventChat, Payload: ChatPayload{
		Nick:    player.Nick,
		Message: message,
	}})
	return nil
}

func (s *Session) handleNick(playerID, nick string) error {
	if s.phase == PhaseGameOver {
		return commandErr(codeGameOver, "the game is over")
	}
	player, err := s.touch(playerID)
	if err != nil {
		return err
	}
	old := player.Nick
	if err := s.registry.rename(player, nick); err != nil {
		return err
	}
	// Final-round verdicts key on nick; carry any pending one over.
	if verdict, ok := s.finalVerdicts[old]; ok {
		delete(s.finalVerdicts, old)
		s.finalVerdicts[nick] = verdict
	}
	logf(s.cfg, "GAME: Player %q is now known as %q", old, nick)
	s.dispatch.publish(s.rosterEvent("renamed", nick))
	return nil
}

func (s *Session) handleHeartbeat(playerID string) error {
	if s.phase == PhaseGameOver {
		return commandErr(codeGameOver, "the game is over")
	}
	_, err := s.touch(playerID)
	return err
}

// reap deactivates players whose heartbeat has gone quiet.
func (s *Session) reap(now time.Time) {
	cutoff := now.Add(-s.cfg.playerTimeout)
	for _, p := range s.registry.active() {
		if p.LastActive.Before(cutoff) {
			logf(s.cfg, "GAME: Player %q timed out", p.Nick)
			s.playerGone(p, "disconnected")
		}
	}
}

func verdict(correct bool) string {
	if correct {
		return "correct"
	}
	return "incorrect"
}
