package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// WSHandler wires websocket connections into the session engine. Host
// connections drive the state machine; player connections join, answer, and
// react. Both observe the same session document stream.
type WSHandler struct {
	service  *app.SessionService
	upgrader websocket.Upgrader
	clock    clockwork.Clock
	log      zerolog.Logger
}

func NewWSHandler(service *app.SessionService, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clock: clockwork.NewRealClock(),
		log:   logger,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type answerResultPayload struct {
	QuestionIndex int  `json:"questionIndex"`
	Correct       bool `json:"correct"`
}

type reactionPayload struct {
	Reaction  domain.Reaction `json:"reaction"`
	DisplayMs int64           `json:"displayMs"`
}

type timerPayload struct {
	Remaining int `json:"remaining"`
}

type reactionRequest struct {
	Type string `json:"type"`
}

// ServeWS upgrades the request and dispatches on role.
//
// Query contract: role=host|player, sessionId (or pin for players), and for
// players name plus optional fields (URL-encoded JSON object of custom field
// values).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role != "host" && role != "player" {
		http.Error(w, "role must be host or player", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" && role == "player" {
		session, err := h.service.FindByPIN(ctx, r.URL.Query().Get("pin"))
		if err != nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		sessionID = session.ID
	}
	if sessionID == "" {
		http.Error(w, "missing sessionId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	if role == "host" {
		h.serveHost(ctx, conn, sessionID)
		return
	}
	h.servePlayer(ctx, conn, sessionID, r)
}

func (h *WSHandler) serveHost(ctx context.Context, conn *websocket.Conn, sessionID string) {
	sessions, cancelSessions, err := h.service.WatchSession(ctx, sessionID)
	if err != nil {
		h.sendDirect(conn, "error", errorPayload{Message: wsError(err)})
		return
	}
	defer cancelSessions()

	participants, cancelParticipants, err := h.service.WatchParticipants(ctx, sessionID)
	if err != nil {
		h.sendDirect(conn, "error", errorPayload{Message: wsError(err)})
		return
	}
	defer cancelParticipants()

	answers, cancelAnswers, err := h.service.WatchAnswers(ctx, sessionID)
	if err != nil {
		h.sendDirect(conn, "error", errorPayload{Message: wsError(err)})
		return
	}
	defer cancelAnswers()

	reactions, cancelReactions, err := h.service.Reactions(ctx, sessionID)
	if err != nil {
		h.sendDirect(conn, "error", errorPayload{Message: wsError(err)})
		return
	}
	defer cancelReactions()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := h.startWriter(conn, send)
	updatesDone := make(chan struct{})

	go func() {
		defer close(updatesDone)
		ticks := make(chan int, 4)
		countdown := newCountdownRunner(h.clock, ticks, closeSignals)
		defer countdown.stop()

		for {
			select {
			case session, ok := <-sessions:
				if !ok {
					return
				}
				countdown.restart(session)
				if !h.offer(send, closeSignals, "session", session) {
					return
				}
			case participant, ok := <-participants:
				if !ok {
					return
				}
				if !h.offer(send, closeSignals, "participant", participant) {
					return
				}
			case answer, ok := <-answers:
				if !ok {
					return
				}
				if !h.offer(send, closeSignals, "answer", answer) {
					return
				}
				// Ranking is a pure function of store contents, so pushing a
				// fresh computation per submission cannot accumulate error.
				if standings, err := h.service.Leaderboard(ctx, sessionID); err == nil {
					if !h.offer(send, closeSignals, "leaderboard", standings) {
						return
					}
				}
			case reaction, ok := <-reactions:
				if !ok {
					return
				}
				payload := reactionPayload{Reaction: reaction, DisplayMs: app.DefaultReactionWindow.Milliseconds()}
				if !h.offer(send, closeSignals, "reaction", payload) {
					return
				}
			case remaining := <-ticks:
				if !h.offer(send, closeSignals, "timer", timerPayload{Remaining: remaining}) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var opErr error
		switch inbound.Type {
		case "start":
			opErr = h.service.Start(ctx, sessionID)
		case "reveal":
			opErr = h.service.Reveal(ctx, sessionID)
		case "advance":
			opErr = h.service.Advance(ctx, sessionID)
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
			continue
		}
		if opErr != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: wsError(opErr)}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) servePlayer(ctx context.Context, conn *websocket.Conn, sessionID string, r *http.Request) {
	name := r.URL.Query().Get("name")
	fields := map[string]string{}
	if rawFields := r.URL.Query().Get("fields"); rawFields != "" {
		if err := json.Unmarshal([]byte(rawFields), &fields); err != nil {
			h.sendDirect(conn, "error", errorPayload{Message: "invalid fields payload"})
			return
		}
	}

	participant, err := h.service.Join(ctx, sessionID, name, fields)
	if err != nil {
		h.sendDirect(conn, "error", errorPayload{Message: wsError(err)})
		return
	}

	sessions, cancelSessions, err := h.service.WatchSession(ctx, sessionID)
	if err != nil {
		h.sendDirect(conn, "error", errorPayload{Message: wsError(err)})
		return
	}
	defer cancelSessions()

	reactions, cancelReactions, err := h.service.Reactions(ctx, sessionID)
	if err != nil {
		h.sendDirect(conn, "error", errorPayload{Message: wsError(err)})
		return
	}
	defer cancelReactions()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := h.startWriter(conn, send)
	updatesDone := make(chan struct{})

	go func() {
		defer close(updatesDone)
		ticks := make(chan int, 4)
		countdown := newCountdownRunner(h.clock, ticks, closeSignals)
		defer countdown.stop()

		for {
			select {
			case session, ok := <-sessions:
				if !ok {
					return
				}
				countdown.restart(session)
				if !h.offer(send, closeSignals, "session", session) {
					return
				}
			case reaction, ok := <-reactions:
				if !ok {
					return
				}
				payload := reactionPayload{Reaction: reaction, DisplayMs: app.DefaultReactionWindow.Milliseconds()}
				if !h.offer(send, closeSignals, "reaction", payload) {
					return
				}
			case remaining := <-ticks:
				if !h.offer(send, closeSignals, "timer", timerPayload{Remaining: remaining}) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "joined", Payload: participant}

	// Advisory duplicate guard for graded kinds; the store itself accepts a
	// multiset and ranking deduplicates first-accepted.
	answered := make(map[int]bool)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var sub app.AnswerSubmission
			if err := json.Unmarshal(inbound.Payload, &sub); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			sub.ParticipantID = participant.ID
			sub.ParticipantName = participant.Name
			if answered[sub.QuestionIndex] && len(sub.SelectedOptions) > 0 {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "answer already submitted"}}
				continue
			}
			answer, err := h.service.SubmitAnswer(ctx, sessionID, sub)
			if err != nil {
				// Not marked as submitted, so the client may retry.
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: wsError(err)}}
				continue
			}
			if len(answer.SelectedOptions) > 0 {
				answered[answer.QuestionIndex] = true
			}
			send <- outboundMessage[any]{Type: "answerResult", Payload: answerResultPayload{
				QuestionIndex: answer.QuestionIndex,
				Correct:       answer.IsCorrect,
			}}
		case "reaction":
			var req reactionRequest
			if err := json.Unmarshal(inbound.Payload, &req); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid reaction payload"}}
				continue
			}
			if err := h.service.SendReaction(ctx, sessionID, participant.ID, req.Type); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: wsError(err)}}
			}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// startWriter serializes all websocket writes through one goroutine.
func (h *WSHandler) startWriter(conn *websocket.Conn, send <-chan outboundMessage[any]) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()
	return done
}

func (h *WSHandler) offer(send chan<- outboundMessage[any], closeSignals <-chan struct{}, msgType string, payload any) bool {
	select {
	case send <- outboundMessage[any]{Type: msgType, Payload: payload}:
		return true
	case <-closeSignals:
		return false
	}
}

func (h *WSHandler) sendDirect(conn *websocket.Conn, msgType string, payload any) {
	_ = conn.WriteJSON(outboundMessage[any]{Type: msgType, Payload: payload})
}

// countdownRunner restarts the 1 Hz countdown whenever the observed session
// snapshot changes, forwarding remaining-seconds values into ticks.
type countdownRunner struct {
	clock        clockwork.Clock
	ticks        chan<- int
	closeSignals <-chan struct{}
	cancel       func()
}

func newCountdownRunner(clock clockwork.Clock, ticks chan<- int, closeSignals <-chan struct{}) *countdownRunner {
	return &countdownRunner{clock: clock, ticks: ticks, closeSignals: closeSignals}
}

func (c *countdownRunner) restart(session domain.Session) {
	c.stop()
	if session.Status != domain.StatusActive || session.QuestionExpiresAt == nil {
		return
	}
	remainings, cancel := app.StartCountdown(c.clock, session.QuestionExpiresAt)
	c.cancel = cancel
	go func() {
		for remaining := range remainings {
			select {
			case c.ticks <- remaining:
			case <-c.closeSignals:
				return
			}
		}
	}()
}

func (c *countdownRunner) stop() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// wsError maps sentinel errors to client-facing messages without leaking
// internals; NotFound means the session ended from the client's perspective.
func wsError(err error) string {
	if errors.Is(err, domain.ErrSessionNotFound) {
		return "session ended"
	}
	return err.Error()
}
