package postgres

import (
	"context"
	"fmt"

	"github.com/p2community/badge-hub/internal/domain/account"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGNMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AssignmentRepository implements account.AssignmentRepository for
// PostgreSQL.
type AssignmentRepository struct {
	conn *Connection
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(conn *Connection) *AssignmentRepository {
	return &AssignmentRepository{conn: conn}
}

// AssignmentsForUser returns the user's manual badge assignments.
func (r *AssignmentRepository) AssignmentsForUser(ctx context.Context, userID string) ([]account.ManualAssignment, error) {
	query := `
		SELECT user_id, badge, assigned_by, assigned_at
		FROM manual_role_assignments
		WHERE user_id = $1
		ORDER BY assigned_at ASC
	`

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var assignments []account.ManualAssignment
	for rows.Next() {
		var a account.ManualAssignment
		if err := rows.Scan(&a.UserID, &a.Badge, &a.AssignedBy, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment row: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// SaveAssignment stores a manual assignment, replacing an existing one for
// the same user and badge.
func (r *AssignmentRepository) SaveAssignment(ctx context.Context, a account.ManualAssignment) error {
	query := `
		INSERT INTO manual_role_assignments (user_id, badge, assigned_by, assigned_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, badge)
		DO UPDATE SET assigned_by = EXCLUDED.assigned_by, assigned_at = EXCLUDED.assigned_at
	`

	_, err := r.conn.Exec(ctx, query, a.UserID, a.Badge, a.AssignedBy, a.AssignedAt)
	if err != nil {
		return fmt.Errorf("failed to save assignment: %w", err)
	}
	return nil
}

// RemoveAssignment deletes a manual assignment.
func (r *AssignmentRepository) RemoveAssignment(ctx context.Context, userID, badge string) error {
	query := `
		DELETE FROM manual_role_assignments
		WHERE user_id = $1 AND badge = $2
	`

	tag, err := r.conn.Exec(ctx, query, userID, badge)
	if err != nil {
		return fmt.Errorf("failed to remove assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}
