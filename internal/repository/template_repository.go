package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/invitedesk/invite-dispatch-service/internal/domain"
)

// TemplateRepository handles database operations for message templates.
type TemplateRepository struct {
	db *sqlx.DB
}

func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// GetByName returns the template or nil when no such template exists.
func (r *TemplateRepository) GetByName(ctx context.Context, name string) (*domain.Template, error) {
	query := `
		SELECT id, name, body, language, approved, created_at, updated_at
		FROM templates
		WHERE name = ?
	`

	var template domain.Template
	if err := r.db.GetContext(ctx, &template, query, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return &template, nil
}

func (r *TemplateRepository) Create(ctx context.Context, name, body, language string, approved bool) (*domain.Template, error) {
	query := `
		INSERT INTO templates (name, body, language, approved, created_at, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`

	if _, err := r.db.ExecContext(ctx, query, name, body, language, approved); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	return r.GetByName(ctx, name)
}
