package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session document does not exist;
	// clients surface it as "session ended" and navigate away.
	ErrSessionNotFound = errors.New("session not found")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrTemplateNotFound indicates the quiz template could not be loaded.
	ErrTemplateNotFound = errors.New("quiz template not found")
	// ErrSessionClosed is returned when joining a session that is already finished.
	ErrSessionClosed = errors.New("session no longer accepts participants")

	// ErrSubmissionsClosed is returned when an answer targets a question that is
	// not currently accepting submissions.
	ErrSubmissionsClosed = errors.New("submissions are closed for this question")
	// ErrQuestionExpired is returned when the question's time limit has passed.
	ErrQuestionExpired = errors.New("question time limit expired")

	// Validation failures, rejected before any write reaches the store.
	ErrNoOptionSelected  = errors.New("no option selected")
	ErrTooManySelections = errors.New("single-choice question accepts one option")
	ErrOptionOutOfRange  = errors.New("selected option index out of range")
	ErrEmptyAnswer       = errors.New("answer text is empty")
	ErrAnswerTooLong     = errors.New("answer text exceeds maximum length")
	ErrMissingField      = errors.New("required participant field missing")
	ErrUnknownReaction   = errors.New("unknown reaction type")
)
