package app

import (
	"context"
	"encoding/json"
	"fmt"

	"livequiz-service/internal/domain"
)

// WatchSession streams decoded session snapshots, starting with the current
// one. Each client runs its own local state machine view off this stream.
func (s *SessionService) WatchSession(ctx context.Context, sessionID string) (<-chan domain.Session, func(), error) {
	raws, cancel, err := s.store.Subscribe(ctx, sessionPath(sessionID))
	if err != nil {
		return nil, nil, fmt.Errorf("watch session: %w", err)
	}

	out := make(chan domain.Session, 8)
	go func() {
		defer close(out)
		for raw := range raws {
			session, err := decodeSession(raw)
			if err != nil {
				continue
			}
			out <- session
		}
	}()
	return out, cancel, nil
}

// WatchParticipants streams the join backlog followed by live joins.
func (s *SessionService) WatchParticipants(ctx context.Context, sessionID string) (<-chan domain.Participant, func(), error) {
	records, cancel, err := s.store.WatchCollection(ctx, participantsPath(sessionID), true)
	if err != nil {
		return nil, nil, fmt.Errorf("watch participants: %w", err)
	}

	out := make(chan domain.Participant, 32)
	go func() {
		defer close(out)
		for record := range records {
			var participant domain.Participant
			if err := decodeRecord(record.Data, &participant); err != nil {
				continue
			}
			out <- participant
		}
	}()
	return out, cancel, nil
}

// WatchAnswers streams the answer backlog followed by live submissions, for
// hosts driving vote counts and live leaderboards.
func (s *SessionService) WatchAnswers(ctx context.Context, sessionID string) (<-chan domain.Answer, func(), error) {
	records, cancel, err := s.store.WatchCollection(ctx, answersPath(sessionID), true)
	if err != nil {
		return nil, nil, fmt.Errorf("watch answers: %w", err)
	}

	out := make(chan domain.Answer, 32)
	go func() {
		defer close(out)
		for record := range records {
			var answer domain.Answer
			if err := decodeRecord(record.Data, &answer); err != nil {
				continue
			}
			out <- answer
		}
	}()
	return out, cancel, nil
}

func decodeRecord(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}
