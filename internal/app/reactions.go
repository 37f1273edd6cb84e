package app

import (
	"context"
	"fmt"
	"time"

	"livequiz-service/internal/domain"
)

// DefaultReactionWindow is how long a reaction stays visible. Expiry is a
// client-side concern; the store may retain records longer.
const DefaultReactionWindow = 3 * time.Second

var allowedReactions = map[string]struct{}{
	"thumbs_up": {},
	"heart":     {},
	"laugh":     {},
	"wow":       {},
	"celebrate": {},
	"fire":      {},
}

// SetReactionWindow overrides the default display window.
func (s *SessionService) SetReactionWindow(window time.Duration) {
	if window > 0 {
		s.reactionWindow = window
	}
}

// ValidReaction reports whether the type is in the closed reaction set.
func ValidReaction(reactionType string) bool {
	_, ok := allowedReactions[reactionType]
	return ok
}

// SendReaction appends a fire-and-forget, unscored signal. It carries no
// delivery guarantee beyond "appears once, eventually, to currently-connected
// viewers" and never touches scoring.
func (s *SessionService) SendReaction(ctx context.Context, sessionID, participantID, reactionType string) error {
	if !ValidReaction(reactionType) {
		return domain.ErrUnknownReaction
	}
	reaction := domain.Reaction{
		ParticipantID: participantID,
		Type:          reactionType,
		SentAt:        s.clock.Now(),
	}
	if _, err := s.store.AppendToCollection(ctx, reactionsPath(sessionID), reaction); err != nil {
		return fmt.Errorf("send reaction: %w", err)
	}
	return nil
}

// Reactions streams newly appended reactions only, with no historical backlog.
// Anything older than the display window by the time it arrives is dropped,
// so a viewer reconnecting after a burst does not replay it.
func (s *SessionService) Reactions(ctx context.Context, sessionID string) (<-chan domain.Reaction, func(), error) {
	records, cancel, err := s.store.WatchCollection(ctx, reactionsPath(sessionID), false)
	if err != nil {
		return nil, nil, fmt.Errorf("watch reactions: %w", err)
	}

	out := make(chan domain.Reaction, 32)
	go func() {
		defer close(out)
		for record := range records {
			var reaction domain.Reaction
			if err := decodeRecord(record.Data, &reaction); err != nil {
				continue
			}
			if s.clock.Now().Sub(reaction.SentAt) > s.reactionWindow {
				continue
			}
			out <- reaction
		}
	}()
	return out, cancel, nil
}
