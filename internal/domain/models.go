package domain

import "time"

// Status is the session state machine state. Transitions only move along
// waiting -> active -> showing_answer -> showing_results -> (active | finished).
type Status string

const (
	StatusWaiting        Status = "waiting"
	StatusActive         Status = "active"
	StatusShowingAnswer  Status = "showing_answer"
	StatusShowingResults Status = "showing_results"
	StatusFinished       Status = "finished"
)

// QuestionKind is a closed tagged variant; grading and ranking dispatch on it
// exhaustively rather than sniffing field presence.
type QuestionKind string

const (
	KindSingleChoice   QuestionKind = "single"
	KindMultipleChoice QuestionKind = "multiple"
	KindOpenEnded      QuestionKind = "open_ended"
	KindWordCloud      QuestionKind = "word_cloud"
)

// Graded reports whether answers of this kind count toward the leaderboard.
// Text kinds feed aggregate displays only.
func (k QuestionKind) Graded() bool {
	switch k {
	case KindSingleChoice, KindMultipleChoice:
		return true
	default:
		return false
	}
}

// Option is a possible answer for a choice-kind question.
type Option struct {
	Text      string   `json:"text"`
	ImageURLs []string `json:"imageUrls,omitempty"`
	IsCorrect bool     `json:"isCorrect"`
}

// Question is immutable once captured into a session snapshot.
// TimeLimitSeconds <= 0 means no limit.
type Question struct {
	Text             string       `json:"text"`
	ImageURLs        []string     `json:"imageUrls,omitempty"`
	TimeLimitSeconds int          `json:"timeLimit"`
	Kind             QuestionKind `json:"type"`
	Options          []Option     `json:"options,omitempty"`
}

// FieldSpec describes one entry of the participant custom-field schema.
type FieldSpec struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Kind     string `json:"type"`
	Required bool   `json:"required"`
}

// Session is the root aggregate. Questions and ParticipantFields are a snapshot
// taken at creation time; editing the source template after hosting does not
// affect a running session.
type Session struct {
	ID                   string      `json:"id"`
	PIN                  string      `json:"pin"`
	Title                string      `json:"title"`
	Status               Status      `json:"status"`
	CurrentQuestionIndex int         `json:"currentQuestionIndex"`
	QuestionExpiresAt    *time.Time  `json:"questionExpiresAt,omitempty"`
	Questions            []Question  `json:"questions"`
	ParticipantFields    []FieldSpec `json:"participantFields,omitempty"`
	CreatedAt            time.Time   `json:"createdAt"`
}

// CurrentQuestion returns the question the session points at, if any.
func (s Session) CurrentQuestion() (Question, bool) {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.CurrentQuestionIndex], true
}

// Participant is created once per joining client and never mutated afterwards.
type Participant struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Fields   map[string]string `json:"fields,omitempty"`
	JoinedAt time.Time         `json:"joinedAt"`
}

// Answer is an append-only record. The store does not enforce uniqueness per
// (participant, question); aggregations treat the answer set as a multiset.
type Answer struct {
	ParticipantID   string    `json:"playerId"`
	ParticipantName string    `json:"playerName"`
	QuestionIndex   int       `json:"questionIndex"`
	SelectedOptions []int     `json:"selectedOptions,omitempty"`
	Text            string    `json:"text,omitempty"`
	TimeTaken       float64   `json:"timeTaken"`
	IsCorrect       bool      `json:"isCorrect"`
	SubmittedAt     time.Time `json:"submittedAt"`
}

// Reaction is an ephemeral, unscored signal; viewers discard it after a fixed
// display window and it never contributes to ranking.
type Reaction struct {
	ParticipantID string    `json:"playerId"`
	Type          string    `json:"type"`
	SentAt        time.Time `json:"sentAt"`
}

// Standing is one leaderboard row.
type Standing struct {
	Participant  Participant `json:"participant"`
	CorrectCount int         `json:"correctCount"`
	TotalTime    float64     `json:"totalTime"`
	Rank         int         `json:"rank"`
}

// QuizTemplate is authored content; sessions copy it at creation time and
// never read it again.
type QuizTemplate struct {
	ID                string      `json:"id"`
	Title             string      `json:"title"`
	Questions         []Question  `json:"questions"`
	ParticipantFields []FieldSpec `json:"participantFields,omitempty"`
}
