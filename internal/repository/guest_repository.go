package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/invitedesk/invite-dispatch-service/internal/domain"
)

// GuestRepository reads the guest rows needed to fan out bulk sends.
type GuestRepository struct {
	db *sqlx.DB
}

func NewGuestRepository(db *sqlx.DB) *GuestRepository {
	return &GuestRepository{db: db}
}

// GetByIDs returns the guests of one event matching ids. Unknown ids are
// simply absent from the result.
func (r *GuestRepository) GetByIDs(ctx context.Context, eventID int64, ids []int64) ([]domain.Guest, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, event_id, name, phone_number
		FROM guests
		WHERE event_id = ? AND id IN (?)
	`, eventID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build guest query: %w", err)
	}

	var guests []domain.Guest
	if err := r.db.SelectContext(ctx, &guests, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get guests: %w", err)
	}

	return guests, nil
}
