package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const playerHeader = "X-Buzzboard-Player"

// StatusDoc is the public GameState snapshot served by GET /status. It
// stays available after game over for spectate-style queries.
type StatusDoc struct {
	Phase      Phase            `json:"phase"`
	Round      int              `json:"round"`
	Rounds     int              `json:"rounds"`
	Board      []PublicCategory `json:"board"`
	Players    []PublicPlayer   `json:"players"`
	Control    string           `json:"control,omitempty"`
	ClueInPlay *CluePayload     `json:"clue_in_play,omitempty"`
	BuzzUntil  *time.Time       `json:"buzz_until,omitempty"`
	Seq        uint64           `json:"seq"`
	Stats      SessionStats     `json:"stats"`
}

type SessionStats struct {
	CluesPlayed   int `json:"clues_played"`
	AnswersJudged int `json:"answers_judged"`
}

func (s *Session) statusDoc() StatusDoc {
	doc := StatusDoc{
		Phase:   s.phase,
		Rounds:  len(s.boards),
		Players: s.registry.roster(),
		Seq:     s.dispatch.sequence(),
		Stats: SessionStats{
			CluesPlayed:   s.cluesPlayed,
			AnswersJudged: s.answersJudged,
		},
	}

	if s.phase != PhaseLobby {
		doc.Round = s.round + 1
		doc.Board = s.board().public()
	}
	if control := s.registry.lookup(s.controlID); control != nil && control.Active {
		doc.Control = control.Nick
	}
	if s.clue != nil && s.clue.Revealed {
		doc.ClueInPlay = &CluePayload{
			ClueID:   s.clue.ID,
			Category: s.board().Categories[s.clue.Category].Title,
			Value:    s.clue.Value,
			Prompt:   s.clue.Prompt,
		}
	}
	if s.phase == PhaseBuzzWindow {
		deadline := s.buzzer.deadline()
		doc.BuzzUntil = &deadline
	}

	return doc
}

// Exported command surface. Each call enqueues onto the coordinator loop
// and waits for its reply.

// Join probes the callback endpoint first: a client that cannot receive
// pushes never makes it into the roster. A non-empty playerID is the
// caller claiming an identity it already holds, for re-registration
// while the old record is still live.
func (s *Session) Join(ctx context.Context, nick, endpoint, playerID string) (string, bool, error) {
	if err := s.probe(ctx, endpoint); err != nil {
		return "", false, err
	}

	reply := make(chan joinResult, 1)
	s.cmds <- cmdJoin{nick: nick, endpoint: endpoint, playerID: playerID, reply: reply}
	result := <-reply
	return result.playerID, result.reconnected, result.err
}

func (s *Session) probe(ctx context.Context, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.pushTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+endpoint+"/ping", nil)
	if err != nil {
		return commandErr(codeUnreachable, "bad endpoint %q", endpoint)
	}

	resp, err := s.dispatch.client.Do(req)
	if err != nil {
		return commandErr(codeUnreachable, "endpoint %q did not answer", endpoint)
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		return commandErr(codeUnreachable, "endpoint %q answered %d", endpoint, resp.StatusCode)
	}
	return nil
}

func (s *Session) Leave(playerID string) error {
	reply := make(chan error, 1)
	s.cmds <- cmdLeave{playerID: playerID, reply: reply}
	return <-reply
}

func (s *Session) Start(playerID string) error {
	reply := make(chan error, 1)
	s.cmds <- cmdStart{playerID: playerID, reply: reply}
	return <-reply
}

func (s *Session) Select(playerID, clueID string) error {
	reply := make(chan error, 1)
	s.cmds <- cmdSelect{playerID: playerID, clueID: clueID, reply: reply}
	return <-reply
}

func (s *Session) Buzz(playerID, clueID string) error {
	reply := make(chan error, 1)
	s.cmds <- cmdBuzz{playerID: playerID, clueID: clueID, reply: reply}
	return <-reply
}

func (s *Session) Answer(playerID, text string) error {
	reply := make(chan error, 1)
	s.cmds <- cmdAnswer{playerID: playerID, text: text, reply: reply}
	return <-reply
}

func (s *Session) Judge(nick string, correct bool) error {
	reply := make(chan error, 1)
	s.cmds <- cmdJudge{nick: nick, correct: correct, reply: reply}
	return <-reply
}

func (s *Session) Wager(playerID string, amount int) error {
	reply := make(chan error, 1)
	s.cmds <- cmdWager{playerID: playerID, amount: amount, reply: reply}
	return <-reply
}

func (s *Session) Chat(playerID, message string) error {
	reply := make(chan error, 1)
	s.cmds <- cmdChat{playerID: playerID, message: message, reply: reply}
	return <-reply
}

func (s *Session) Rename(playerID, nick string) error {
	reply := make(chan error, 1)
	s.cmds <- cmdNick{playerID: playerID, nick: nick, reply: reply}
	return <-reply
}

func (s *Session) Heartbeat(playerID string) error {
	reply := make(chan error, 1)
	s.cmds <- cmdHeartbeat{playerID: playerID, reply: reply}
	return <-reply
}

func (s *Session) Status() StatusDoc {
	reply := make(chan StatusDoc, 1)
	s.cmds <- cmdStatus{reply: reply}
	return <-reply
}

// HTTP layer. Command errors map to statuses by code; everything else is
// the transport's business.

func httpStatusFor(err error) int {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return http.StatusInternalServerError
	}
	switch cmdErr.Code {
	case codeNameTaken:
		return http.StatusConflict
	case codeUnknownName:
		return http.StatusNotFound
	case codeGameOver:
		return http.StatusGone
	case codeUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeCommandResult(w http.ResponseWriter, err error) {
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	status := httpStatusFor(err)
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		writeJSON(w, status, cmdErr)
		return
	}
	http.Error(w, err.Error(), status)
}

func playerID(r *http.Request) string {
	return r.Header.Get(playerHeader)
}

func bodyText(r *http.Request) string {
	data, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

type registerRequest struct {
	Nick     string `json:"nick"`
	Endpoint string `json:"endpoint"`
}

type registerResponse struct {
	PlayerID    string `json:"player_id"`
	Reconnected bool   `json:"reconnected"`
}

func handleRegister(s *Session) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid register request", http.StatusBadRequest)
			return
		}
		if req.Endpoint == "" {
			// Fall back to the caller's address with an explicit port.
			if port := r.URL.Query().Get("port"); port != "" {
				if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
					req.Endpoint = net.JoinHostPort(host, port)
				}
			}
		}
		if req.Endpoint == "" {
			http.Error(w, "no callback endpoint provided", http.StatusBadRequest)
			return
		}

		id, reconnected, err := s.Join(r.Context(), req.Nick, req.Endpoint, playerID(r))
		if err != nil {
			writeCommandResult(w, err)
			return
		}

		writeJSON(w, http.StatusOK, registerResponse{PlayerID: id, Reconnected: reconnected})
	}
}

func handleGoodbye(s *Session) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeCommandResult(w, s.Leave(playerID(r)))
	}
}

func handleStart(s *Session) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeCommandResult(w, s.Start(playerID(r)))
	}
}

func handleSelect(s *Session) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeCommandResult(w, s.Select(playerID(r), bodyText(r)))
	}
}

func handleBuzz(s *Session) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeCommandResult(w, s.Buzz(playerID(r), bodyText(r)))
	}
}

func handleAnswer(s *Session) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeCommandResult(w, s.Answer(playerID(r), bodyText(r)))
	}
}

type judgeRequest struct {
	Nick    string `json:"nick,omitempty"`
	Correct bool   `json:"correct"`
}

func handleJudge(cfg *Config, s *Session) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if cfg.moderatorKey != "" && r.Header.Get("X-Buzzboard-Moderator") != cfg.moderatorKey {
			http.Error(w, "moderator key required", http.StatusForbidden)
			return
		}

		var req judgeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid judge request", http.StatusBadRequest)
			return
		}
		writeCommandResult(w, s.Judge(req.Nick, req.Correct))
	}
}

func handleWager(s *Session) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		amount, err := strconv.Atoi(bodyText(r))
		if err != nil {
			http.Error(w, "wager must be an integer", http.StatusBadRequest)
			return
		}
		writeCommandResult(w, s.Wager(playerID(r), amount))
	}
}

func handleChat(s *Session) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeCommandResult(w, s.Chat(playerID(r), bodyText(r)))
	}
}

func handleNick(s *Session) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeCommandResult(w, s.Rename(playerID(r), bodyText(r)))
	}
}

func handlePing(s *Session) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeCommandResult(w, s.Heartbeat(playerID(r)))
	}
}

func handleStatus(cfg *Config, s *Session) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)
		writeJSON(w, http.StatusOK, s.Status())
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWatch attaches a spectator websocket to the event stream. Reads are
// drained and discarded; the socket exists only for pushes.
func handleWatch(cfg *Config, s *Session) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "SERVE: Spectator upgrade failed: %v", err)
			return
		}

		client := s.dispatch.spectators.add(conn)
		logf(cfg, "SERVE: Spectator connected from %s", realIP(r))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.dispatch.spectators.remove(client)
				return
			}
		}
	}
}

// handleQR serves a PNG QR code pointing at this server, for passing the
// join address around a room.
func handleQR(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + "/"

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

func registerGameRoutes(cfg *Config, s *Session, mux *httprouter.Router) {
	mux.POST(cfg.prefix+"/register", handleRegister(s))
	mux.POST(cfg.prefix+"/goodbye", handleGoodbye(s))
	mux.POST(cfg.prefix+"/start", handleStart(s))
	mux.POST(cfg.prefix+"/select", handleSelect(s))
	mux.POST(cfg.prefix+"/buzz", handleBuzz(s))
	mux.POST(cfg.prefix+"/answer", handleAnswer(s))
	mux.POST(cfg.prefix+"/judge", handleJudge(cfg, s))
	mux.POST(cfg.prefix+"/wager", handleWager(s))
	mux.POST(cfg.prefix+"/chat", handleChat(s))
	mux.POST(cfg.prefix+"/nick", handleNick(s))
	mux.POST(cfg.prefix+"/ping", handlePing(s))
	mux.GET(cfg.prefix+"/status", handleStatus(cfg, s))
	mux.GET(cfg.prefix+"/watch", handleWatch(cfg, s))
	mux.GET(cfg.prefix+"/qr", handleQR(cfg))
}

func humanReadableSize(bytes int64) string {
	const unit int64 = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(bytes)/float64(div),
		"kMGTPE"[exp])
}
