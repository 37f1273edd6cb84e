package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"livequiz-service/internal/domain"
)

func TestTemplateRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		TemplateLoader: NewStaticTemplateLoader(map[string]domain.QuizTemplate{
			"tpl-1": sampleTemplate(),
		}),
	}
	repo := NewTemplateRepository(loader, time.Minute)

	if _, err := repo.GetTemplate(context.Background(), "tpl-1"); err != nil {
		t.Fatalf("get template: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.GetTemplate(context.Background(), "tpl-1"); err != nil {
		t.Fatalf("get template 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestTemplateRepositoryPropagatesNotFound(t *testing.T) {
	repo := NewTemplateRepository(NewStaticTemplateLoader(nil), time.Minute)
	if _, err := repo.GetTemplate(context.Background(), "missing"); !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Fatalf("got %v, want ErrTemplateNotFound", err)
	}
}

type countingLoader struct {
	TemplateLoader
	calls int
}

func (l *countingLoader) LoadTemplate(ctx context.Context, templateID string) (domain.QuizTemplate, error) {
	l.calls++
	return l.TemplateLoader.LoadTemplate(ctx, templateID)
}

func sampleTemplate() domain.QuizTemplate {
	return domain.QuizTemplate{
		ID:    "tpl-1",
		Title: "Team trivia",
		Questions: []domain.Question{
			{
				Text:             "What is 2 + 2?",
				TimeLimitSeconds: 30,
				Kind:             domain.KindSingleChoice,
				Options: []domain.Option{
					{Text: "3"},
					{Text: "4", IsCorrect: true},
				},
			},
		},
	}
}
