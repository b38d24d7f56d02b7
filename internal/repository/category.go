package repository

import (
	"context"
	"fmt"

	"mjolobid-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// CategoryRepository handles event categories
type CategoryRepository struct {
	db DB
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(db DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// ListActive returns the active categories by name
func (r *CategoryRepository) ListActive(ctx context.Context) ([]models.EventCategory, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, icon, description, is_active FROM event_categories WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[models.EventCategory])
}

// Exists reports whether an active category with id exists
func (r *CategoryRepository) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM event_categories WHERE id = $1 AND is_active)`, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check category: %w", err)
	}
	return ok, nil
}

// Create inserts a category
func (r *CategoryRepository) Create(ctx context.Context, c *models.EventCategory) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_categories (id, name, icon, description, is_active) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Name, c.Icon, c.Description, c.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("category %q: %w", c.Name, models.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}
