package app

import (
	"context"
	"fmt"
	"sort"

	"livequiz-service/internal/domain"
)

// ComputeRanking aggregates answers into ranked standings. It is pure and
// deterministic for a fixed input iteration order, so clients may recompute it
// on every store change without drift.
//
// The answer set is a multiset: the store enforces no uniqueness per
// (participant, question). Duplicates are resolved first-accepted: the
// earliest submittedAt wins, with ties keeping the earlier record in input
// order. Only choice-kind questions contribute; text-kind answers add nothing
// to correctCount or totalTime, so they never skew speed ranking.
//
// Sort order is correctCount descending, then totalTime ascending, stable on
// the participants' input order. Ranks are 1-based and sequential; exact ties
// still receive distinct ranks.
func ComputeRanking(participants []domain.Participant, answers []domain.Answer, questions []domain.Question) []domain.Standing {
	type slot struct {
		participantID string
		questionIndex int
	}
	accepted := make(map[slot]domain.Answer)
	for _, answer := range answers {
		if answer.QuestionIndex < 0 || answer.QuestionIndex >= len(questions) {
			continue
		}
		if !questions[answer.QuestionIndex].Kind.Graded() {
			continue
		}
		key := slot{answer.ParticipantID, answer.QuestionIndex}
		if current, ok := accepted[key]; ok && !answer.SubmittedAt.Before(current.SubmittedAt) {
			continue
		}
		accepted[key] = answer
	}

	standings := make([]domain.Standing, 0, len(participants))
	for _, participant := range participants {
		standing := domain.Standing{Participant: participant}
		for index := range questions {
			answer, ok := accepted[slot{participant.ID, index}]
			if !ok {
				continue
			}
			if answer.IsCorrect {
				standing.CorrectCount++
			}
			standing.TotalTime += answer.TimeTaken
		}
		standings = append(standings, standing)
	}

	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].CorrectCount != standings[j].CorrectCount {
			return standings[i].CorrectCount > standings[j].CorrectCount
		}
		return standings[i].TotalTime < standings[j].TotalTime
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings
}

// Leaderboard recomputes the ranking from the full participant and answer
// sets. A result computed mid-propagation is a valid, if stale, snapshot.
func (s *SessionService) Leaderboard(ctx context.Context, sessionID string) ([]domain.Standing, error) {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	participants, err := s.Participants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	answers, err := s.Answers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return ComputeRanking(participants, answers, session.Questions), nil
}

// Participants lists joined participants in join order.
func (s *SessionService) Participants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	records, err := s.store.ListCollection(ctx, participantsPath(sessionID))
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	participants := make([]domain.Participant, 0, len(records))
	for _, record := range records {
		var participant domain.Participant
		if err := decodeRecord(record.Data, &participant); err != nil {
			continue
		}
		participants = append(participants, participant)
	}
	return participants, nil
}

// Answers lists all answer records in append order.
func (s *SessionService) Answers(ctx context.Context, sessionID string) ([]domain.Answer, error) {
	records, err := s.store.ListCollection(ctx, answersPath(sessionID))
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	answers := make([]domain.Answer, 0, len(records))
	for _, record := range records {
		var answer domain.Answer
		if err := decodeRecord(record.Data, &answer); err != nil {
			continue
		}
		answers = append(answers, answer)
	}
	return answers, nil
}
