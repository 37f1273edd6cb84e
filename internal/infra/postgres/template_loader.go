package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"livequiz-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// TemplateLoader loads quiz template JSONB from Postgres. This is the read
// side of the authoring surface; the session engine calls it exactly once per
// session, at creation time.
type TemplateLoader struct {
	pool *pgxpool.Pool
}

func NewTemplateLoader(pool *pgxpool.Pool) *TemplateLoader {
	return &TemplateLoader{pool: pool}
}

func (l *TemplateLoader) LoadTemplate(ctx context.Context, templateID string) (domain.QuizTemplate, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quiz_templates WHERE id=$1`, templateID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizTemplate{}, domain.ErrTemplateNotFound
	}
	if err != nil {
		return domain.QuizTemplate{}, fmt.Errorf("load template: %w", err)
	}
	var template domain.QuizTemplate
	if err := json.Unmarshal(raw, &template); err != nil {
		return domain.QuizTemplate{}, fmt.Errorf("unmarshal template: %w", err)
	}
	return template, nil
}
