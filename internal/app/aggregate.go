package app

import (
	"strings"

	"livequiz-service/internal/domain"
)

// Aggregate displays are commutative over the answer multiset: none of them
// depend on arrival order, so clients computing them mid-propagation agree
// once replication catches up.

// OptionVoteCounts tallies selections per option for one question, for the
// reveal-state vote display.
func OptionVoteCounts(question domain.Question, answers []domain.Answer, questionIndex int) []int {
	counts := make([]int, len(question.Options))
	for _, answer := range answers {
		if answer.QuestionIndex != questionIndex {
			continue
		}
		for _, index := range answer.SelectedOptions {
			if index >= 0 && index < len(counts) {
				counts[index]++
			}
		}
	}
	return counts
}

// WordCloudCounts folds word-cloud responses case-insensitively on trimmed
// text, so "cat" and "Cat" land in one bucket.
func WordCloudCounts(answers []domain.Answer, questionIndex int) map[string]int {
	counts := make(map[string]int)
	for _, answer := range answers {
		if answer.QuestionIndex != questionIndex {
			continue
		}
		word := strings.ToLower(strings.TrimSpace(answer.Text))
		if word == "" {
			continue
		}
		counts[word]++
	}
	return counts
}

// TextResponses returns open-ended answers for the card-wall display, in
// append order.
func TextResponses(answers []domain.Answer, questionIndex int) []string {
	var texts []string
	for _, answer := range answers {
		if answer.QuestionIndex != questionIndex || answer.Text == "" {
			continue
		}
		texts = append(texts, answer.Text)
	}
	return texts
}
