package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/invitedesk/invite-dispatch-service/internal/domain"
)

// InvitationRepository handles database operations for invitations.
type InvitationRepository struct {
	db *sqlx.DB
}

func NewInvitationRepository(db *sqlx.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

const invitationColumns = `
	id, event_id, guest_id, recipient, template_name, rendered_content,
	variables, provider_message_id, provider_status, error_code, error_message,
	retry_count, max_retries, next_retry_at,
	sent_at, delivered_at, read_at, failed_at, created_at, updated_at
`

// Upsert creates the invitation for (eventID, guestID) or, on a repeated
// attempt, resets the existing row to pending with the freshly rendered
// content. Returns the current row.
func (r *InvitationRepository) Upsert(
	ctx context.Context,
	eventID, guestID int64,
	recipient, templateName, renderedContent, variablesJSON string,
	maxRetries int,
) (*domain.Invitation, error) {
	query := `
		INSERT INTO invitations
			(event_id, guest_id, recipient, template_name, rendered_content,
			 variables, provider_status, max_retries, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON DUPLICATE KEY UPDATE
			recipient = VALUES(recipient),
			template_name = VALUES(template_name),
			rendered_content = VALUES(rendered_content),
			variables = VALUES(variables),
			provider_status = 'pending',
			error_code = NULL,
			error_message = NULL,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.ExecContext(ctx, query,
		eventID, guestID, recipient, templateName, renderedContent, variablesJSON, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert invitation: %w", err)
	}

	return r.GetByEventAndGuest(ctx, eventID, guestID)
}

func (r *InvitationRepository) GetByID(ctx context.Context, id int64) (*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = ?`

	var invitation invitationRow
	if err := r.db.GetContext(ctx, &invitation, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	return invitation.toDomain(), nil
}

func (r *InvitationRepository) GetByEventAndGuest(ctx context.Context, eventID, guestID int64) (*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE event_id = ? AND guest_id = ?`

	var invitation invitationRow
	if err := r.db.GetContext(ctx, &invitation, query, eventID, guestID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	return invitation.toDomain(), nil
}

func (r *InvitationRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE provider_message_id = ?`

	var invitation invitationRow
	if err := r.db.GetContext(ctx, &invitation, query, providerMessageID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invitation by provider message id: %w", err)
	}

	return invitation.toDomain(), nil
}

// MarkSubmitted records provider acceptance of a send.
func (r *InvitationRepository) MarkSubmitted(ctx context.Context, id int64, providerMessageID string, sentAt time.Time) error {
	query := `
		UPDATE invitations
		SET provider_message_id = ?, provider_status = 'sent', sent_at = ?,
		    error_code = NULL, error_message = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, providerMessageID, sentAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark invitation as submitted: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("no invitation found with id %d", id)
	}

	return nil
}

// MarkSendFailed records a failed submission attempt.
func (r *InvitationRepository) MarkSendFailed(ctx context.Context, id int64, errorCode, errorMessage string, failedAt time.Time) error {
	query := `
		UPDATE invitations
		SET provider_status = 'failed', error_code = ?, error_message = ?,
		    failed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	_, err := r.db.ExecContext(ctx, query, errorCode, errorMessage, failedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark invitation as failed: %w", err)
	}

	return nil
}

// ApplyStatusTransition conditionally advances provider_status from one
// value to another, stamping the matching timestamp column. The WHERE
// clause on the old status makes the write a compare-and-set, so racing
// callbacks cannot apply out of order. Reports whether the row changed.
func (r *InvitationRepository) ApplyStatusTransition(
	ctx context.Context,
	id int64,
	from, to domain.ProviderStatus,
	at time.Time,
) (bool, error) {
	var tsColumn string
	switch to {
	case domain.ProviderStatusSent:
		tsColumn = "sent_at"
	case domain.ProviderStatusDelivered:
		tsColumn = "delivered_at"
	case domain.ProviderStatusRead:
		tsColumn = "read_at"
	default:
		return false, fmt.Errorf("no timestamp column for status %q", to)
	}

	query := fmt.Sprintf(`
		UPDATE invitations
		SET provider_status = ?, %s = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND provider_status = ?
	`, tsColumn)

	result, err := r.db.ExecContext(ctx, query, to, at, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to apply status transition: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows > 0, nil
}

// ApplyFailure conditionally marks the invitation failed, guarded on the
// previously observed status like ApplyStatusTransition.
func (r *InvitationRepository) ApplyFailure(
	ctx context.Context,
	id int64,
	from domain.ProviderStatus,
	errorCode, errorMessage string,
	at time.Time,
) (bool, error) {
	query := `
		UPDATE invitations
		SET provider_status = 'failed', error_code = ?, error_message = ?,
		    failed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND provider_status = ?
	`

	result, err := r.db.ExecContext(ctx, query, errorCode, errorMessage, at, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to apply failure: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows > 0, nil
}

// ScheduleRetry bumps the retry bookkeeping mirrored on the invitation.
func (r *InvitationRepository) ScheduleRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time) error {
	query := `
		UPDATE invitations
		SET retry_count = ?, next_retry_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	_, err := r.db.ExecContext(ctx, query, retryCount, nextRetryAt, id)
	if err != nil {
		return fmt.Errorf("failed to schedule invitation retry: %w", err)
	}

	return nil
}

// ClearRetrySchedule removes pending-retry bookkeeping once no retry is due.
func (r *InvitationRepository) ClearRetrySchedule(ctx context.Context, id int64) error {
	query := `
		UPDATE invitations
		SET next_retry_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to clear invitation retry schedule: %w", err)
	}

	return nil
}

func (r *InvitationRepository) GetAll(
	ctx context.Context,
	status *domain.ProviderStatus,
	page, pageSize int,
) ([]domain.Invitation, int64, error) {
	offset := (page - 1) * pageSize
	var totalCount int64
	var rows []invitationRow

	if status != nil {
		countQuery := "SELECT COUNT(*) FROM invitations WHERE provider_status = ?"
		if err := r.db.GetContext(ctx, &totalCount, countQuery, *status); err != nil {
			return nil, 0, fmt.Errorf("failed to count invitations: %w", err)
		}

		query := `SELECT ` + invitationColumns + `
			FROM invitations
			WHERE provider_status = ?
			ORDER BY created_at DESC
			LIMIT ? OFFSET ?
		`
		if err := r.db.SelectContext(ctx, &rows, query, *status, pageSize, offset); err != nil {
			return nil, 0, fmt.Errorf("failed to get invitations: %w", err)
		}
	} else {
		countQuery := "SELECT COUNT(*) FROM invitations"
		if err := r.db.GetContext(ctx, &totalCount, countQuery); err != nil {
			return nil, 0, fmt.Errorf("failed to count invitations: %w", err)
		}

		query := `SELECT ` + invitationColumns + `
			FROM invitations
			ORDER BY created_at DESC
			LIMIT ? OFFSET ?
		`
		if err := r.db.SelectContext(ctx, &rows, query, pageSize, offset); err != nil {
			return nil, 0, fmt.Errorf("failed to get invitations: %w", err)
		}
	}

	invitations := make([]domain.Invitation, 0, len(rows))
	for _, row := range rows {
		invitations = append(invitations, *row.toDomain())
	}

	return invitations, totalCount, nil
}

// GetStats returns invitation counts by provider status.
func (r *InvitationRepository) GetStats(ctx context.Context) (map[domain.ProviderStatus]int64, error) {
	query := `
		SELECT provider_status, COUNT(*) AS count
		FROM invitations
		GROUP BY provider_status
	`

	var rows []struct {
		Status domain.ProviderStatus `db:"provider_status"`
		Count  int64                 `db:"count"`
	}

	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to get invitation stats: %w", err)
	}

	stats := make(map[domain.ProviderStatus]int64, len(rows))
	for _, row := range rows {
		stats[row.Status] = row.Count
	}

	return stats, nil
}

// DeleteOlderThan removes invitations created before cutoff. Used by the
// retention sweep; a zero retention config never calls this.
func (r *InvitationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM invitations WHERE created_at < ?`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old invitations: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}

// invitationRow maps the invitations table, keeping the variables JSON
// blob out of the domain type.
type invitationRow struct {
	domain.Invitation
	Variables sql.NullString `db:"variables"`
}

func (row *invitationRow) toDomain() *domain.Invitation {
	invitation := row.Invitation
	return &invitation
}

// GetVariablesJSON fetches the stored substitution variables for one
// invitation, "" when none were recorded.
func (r *InvitationRepository) GetVariablesJSON(ctx context.Context, id int64) (string, error) {
	var variables sql.NullString
	if err := r.db.GetContext(ctx, &variables, "SELECT variables FROM invitations WHERE id = ?", id); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get invitation variables: %w", err)
	}

	return variables.String, nil
}
