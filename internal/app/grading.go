package app

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"livequiz-service/internal/domain"
)

// MaxAnswerRunes bounds free-text answers before any write reaches the store.
const MaxAnswerRunes = 280

// AnswerSubmission is the wire-level contract of submitAnswer. Choice kinds
// carry SelectedOptions, text kinds carry Text.
type AnswerSubmission struct {
	ParticipantID   string  `json:"playerId"`
	ParticipantName string  `json:"playerName"`
	QuestionIndex   int     `json:"questionIndex"`
	SelectedOptions []int   `json:"selectedOptions,omitempty"`
	Text            string  `json:"text,omitempty"`
	TimeTaken       float64 `json:"timeTaken"`
}

// SubmitAnswer validates, grades, and appends one immutable answer record.
// Correctness is recomputed here rather than trusted from the client, so the
// persisted flag always matches the session's question snapshot. A store
// failure returns an error without any partial effect, so callers can retry
// without marking the answer as submitted.
func (s *SessionService) SubmitAnswer(ctx context.Context, sessionID string, sub AnswerSubmission) (domain.Answer, error) {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return domain.Answer{}, err
	}
	if session.Status != domain.StatusActive || sub.QuestionIndex != session.CurrentQuestionIndex {
		return domain.Answer{}, domain.ErrSubmissionsClosed
	}
	question, ok := session.CurrentQuestion()
	if !ok {
		return domain.Answer{}, domain.ErrSubmissionsClosed
	}
	now := s.clock.Now()
	if session.QuestionExpiresAt != nil && now.After(*session.QuestionExpiresAt) {
		return domain.Answer{}, domain.ErrQuestionExpired
	}
	if err := ValidateSubmission(question, sub); err != nil {
		return domain.Answer{}, err
	}

	answer := domain.Answer{
		ParticipantID:   sub.ParticipantID,
		ParticipantName: sub.ParticipantName,
		QuestionIndex:   sub.QuestionIndex,
		SelectedOptions: sub.SelectedOptions,
		Text:            strings.TrimSpace(sub.Text),
		TimeTaken:       sub.TimeTaken,
		IsCorrect:       ComputeCorrectness(question, sub.SelectedOptions),
		SubmittedAt:     now,
	}
	if _, err := s.store.AppendToCollection(ctx, answersPath(sessionID), answer); err != nil {
		return domain.Answer{}, fmt.Errorf("submit answer: %w", err)
	}
	return answer, nil
}

// ValidateSubmission rejects malformed submissions locally, before any write.
func ValidateSubmission(question domain.Question, sub AnswerSubmission) error {
	switch question.Kind {
	case domain.KindSingleChoice:
		if len(sub.SelectedOptions) == 0 {
			return domain.ErrNoOptionSelected
		}
		if len(sub.SelectedOptions) > 1 {
			return domain.ErrTooManySelections
		}
		return checkOptionRange(question, sub.SelectedOptions)
	case domain.KindMultipleChoice:
		if len(sub.SelectedOptions) == 0 {
			return domain.ErrNoOptionSelected
		}
		return checkOptionRange(question, sub.SelectedOptions)
	case domain.KindOpenEnded, domain.KindWordCloud:
		text := strings.TrimSpace(sub.Text)
		if text == "" {
			return domain.ErrEmptyAnswer
		}
		if utf8.RuneCountInString(text) > MaxAnswerRunes {
			return domain.ErrAnswerTooLong
		}
		return nil
	default:
		return fmt.Errorf("unknown question kind %q", question.Kind)
	}
}

func checkOptionRange(question domain.Question, selected []int) error {
	for _, index := range selected {
		if index < 0 || index >= len(question.Options) {
			return domain.ErrOptionOutOfRange
		}
	}
	return nil
}

// ComputeCorrectness grades a choice answer by set equality: the selected
// index set must match the correct index set exactly, which rejects partial
// credit as well as over- and under-selection. It deliberately does not assume
// single-choice questions have exactly one correct option. Text kinds are
// always recorded not-correct; they feed aggregate displays, never the
// leaderboard.
func ComputeCorrectness(question domain.Question, selected []int) bool {
	if !question.Kind.Graded() {
		return false
	}
	correct := make(map[int]struct{})
	for i, option := range question.Options {
		if option.IsCorrect {
			correct[i] = struct{}{}
		}
	}
	chosen := make(map[int]struct{})
	for _, index := range selected {
		chosen[index] = struct{}{}
	}
	if len(chosen) != len(correct) {
		return false
	}
	for index := range chosen {
		if _, ok := correct[index]; !ok {
			return false
		}
	}
	return true
}
