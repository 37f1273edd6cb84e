package app

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/store"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// TemplateRepository loads authored quiz content. The service reads it exactly
// once per session, when taking the creation-time snapshot.
type TemplateRepository interface {
	GetTemplate(ctx context.Context, templateID string) (domain.QuizTemplate, error)
}

// SessionService owns the session lifecycle, answer ingestion, and the derived
// views (leaderboard, aggregates, reactions). Every derived computation is a
// pure function of current store contents, so independent clients evaluating
// the same data converge on the same result.
type SessionService struct {
	store          store.Adapter
	templates      TemplateRepository
	clock          clockwork.Clock
	reactionWindow time.Duration
}

func NewSessionService(st store.Adapter, templates TemplateRepository) *SessionService {
	return NewSessionServiceWithClock(st, templates, clockwork.NewRealClock())
}

// NewSessionServiceWithClock allows deterministic time in tests.
func NewSessionServiceWithClock(st store.Adapter, templates TemplateRepository, clock clockwork.Clock) *SessionService {
	return &SessionService{
		store:          st,
		templates:      templates,
		clock:          clock,
		reactionWindow: DefaultReactionWindow,
	}
}

// Create snapshots the template into a new session document in `waiting`
// status. Template edits after this point never reach the running session.
func (s *SessionService) Create(ctx context.Context, templateID string) (domain.Session, error) {
	template, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return domain.Session{}, err
	}

	pin, err := newPIN()
	if err != nil {
		return domain.Session{}, err
	}
	session := domain.Session{
		ID:                   uuid.NewString(),
		PIN:                  pin,
		Title:                template.Title,
		Status:               domain.StatusWaiting,
		CurrentQuestionIndex: 0,
		Questions:            template.Questions,
		ParticipantFields:    template.ParticipantFields,
		CreatedAt:            s.clock.Now(),
	}

	patch, err := docPatch(session)
	if err != nil {
		return domain.Session{}, err
	}
	if err := s.store.WriteDocument(ctx, sessionPath(session.ID), patch); err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	if err := s.store.WriteDocument(ctx, pinPath(session.PIN), map[string]any{"sessionId": session.ID}); err != nil {
		return domain.Session{}, fmt.Errorf("index session pin: %w", err)
	}
	return session, nil
}

// Session reads and decodes the session document.
func (s *SessionService) Session(ctx context.Context, sessionID string) (domain.Session, error) {
	raw, err := s.store.GetDocument(ctx, sessionPath(sessionID))
	if errors.Is(err, store.ErrNotFound) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("read session: %w", err)
	}
	return decodeSession(raw)
}

// FindByPIN resolves a 6-digit join code to its session.
func (s *SessionService) FindByPIN(ctx context.Context, pin string) (domain.Session, error) {
	raw, err := s.store.GetDocument(ctx, pinPath(strings.TrimSpace(pin)))
	if errors.Is(err, store.ErrNotFound) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("resolve pin: %w", err)
	}
	var index struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(raw, &index); err != nil {
		return domain.Session{}, fmt.Errorf("decode pin index: %w", err)
	}
	return s.Session(ctx, index.SessionID)
}

// Join registers a participant. Allowed while the session is waiting or
// active; required custom fields from the session's schema are enforced.
func (s *SessionService) Join(ctx context.Context, sessionID, name string, fields map[string]string) (domain.Participant, error) {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return domain.Participant{}, err
	}
	if session.Status != domain.StatusWaiting && session.Status != domain.StatusActive {
		return domain.Participant{}, domain.ErrSessionClosed
	}
	if strings.TrimSpace(name) == "" {
		return domain.Participant{}, fmt.Errorf("%w: name", domain.ErrMissingField)
	}
	for _, field := range session.ParticipantFields {
		if field.Required && strings.TrimSpace(fields[field.Key]) == "" {
			return domain.Participant{}, fmt.Errorf("%w: %s", domain.ErrMissingField, field.Key)
		}
	}

	participant := domain.Participant{
		ID:       uuid.NewString(),
		Name:     strings.TrimSpace(name),
		Fields:   fields,
		JoinedAt: s.clock.Now(),
	}
	if _, err := s.store.AppendToCollection(ctx, participantsPath(sessionID), participant); err != nil {
		return domain.Participant{}, fmt.Errorf("join session: %w", err)
	}
	return participant, nil
}

// Start moves waiting -> active and arms the timer for question 0. Starting a
// session that already left `waiting` is a no-op.
func (s *SessionService) Start(ctx context.Context, sessionID string) error {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != domain.StatusWaiting {
		return nil // stale transition
	}
	patch := s.armQuestion(session, 0)
	patch["status"] = string(domain.StatusActive)
	return s.writeSession(ctx, sessionID, patch)
}

// Reveal closes submissions for the current question. From `active` it moves
// to `showing_answer`. From `showing_answer` the same host button either moves
// to `showing_results` (graded kinds) or advances straight to the next
// question (text kinds have no leaderboard checkpoint). Anything else no-ops.
func (s *SessionService) Reveal(ctx context.Context, sessionID string) error {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return err
	}
	switch session.Status {
	case domain.StatusActive:
		return s.writeSession(ctx, sessionID, map[string]any{
			"status": string(domain.StatusShowingAnswer),
		})
	case domain.StatusShowingAnswer:
		question, ok := session.CurrentQuestion()
		if ok && question.Kind.Graded() {
			return s.writeSession(ctx, sessionID, map[string]any{
				"status": string(domain.StatusShowingResults),
			})
		}
		return s.writeSession(ctx, sessionID, s.advancePatch(session))
	default:
		return nil // stale transition
	}
}

// Advance leaves the leaderboard: it arms the next question and returns to
// `active`, or finishes the session when no questions remain. Advancing from
// any other status, including `finished`, is a no-op so double clicks and
// concurrent host tabs are harmless.
func (s *SessionService) Advance(ctx context.Context, sessionID string) error {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != domain.StatusShowingResults {
		return nil // stale transition
	}
	return s.writeSession(ctx, sessionID, s.advancePatch(session))
}

// advancePatch builds the single atomic update that moves past the current
// question.
func (s *SessionService) advancePatch(session domain.Session) map[string]any {
	next := session.CurrentQuestionIndex + 1
	if next >= len(session.Questions) {
		return map[string]any{
			"status":            string(domain.StatusFinished),
			"questionExpiresAt": nil,
		}
	}
	patch := s.armQuestion(session, next)
	patch["status"] = string(domain.StatusActive)
	return patch
}

// armQuestion computes the absolute expiry for a question in host device time.
// Clients derive remaining seconds from it independently; see Remaining.
func (s *SessionService) armQuestion(session domain.Session, index int) map[string]any {
	patch := map[string]any{
		"currentQuestionIndex": index,
		"questionExpiresAt":    nil,
	}
	if index >= 0 && index < len(session.Questions) {
		if limit := session.Questions[index].TimeLimitSeconds; limit > 0 {
			patch["questionExpiresAt"] = s.clock.Now().Add(time.Duration(limit) * time.Second)
		}
	}
	return patch
}

func (s *SessionService) writeSession(ctx context.Context, sessionID string, patch map[string]any) error {
	if err := s.store.WriteDocument(ctx, sessionPath(sessionID), patch); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// docPatch flattens a struct into the field map WriteDocument expects.
func docPatch(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	patch := make(map[string]any)
	if err := json.Unmarshal(data, &patch); err != nil {
		return nil, fmt.Errorf("flatten document: %w", err)
	}
	return patch, nil
}

func decodeSession(raw json.RawMessage) (domain.Session, error) {
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

// newPIN draws a 6-digit numeric join code. Collision handling on hosting
// multiple sessions is the authoring surface's concern.
func newPIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}

func sessionPath(id string) string      { return "sessions/" + id }
func pinPath(pin string) string         { return "pins/" + pin }
func participantsPath(id string) string { return "sessions/" + id + "/participants" }
func answersPath(id string) string      { return "sessions/" + id + "/answers" }
func reactionsPath(id string) string    { return "sessions/" + id + "/reactions" }
