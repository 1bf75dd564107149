package postgres

import (
	"context"
	"fmt"

	"github.com/p2community/badge-hub/internal/domain/account"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ConnectionRepository implements account.ConnectionRepository for
// PostgreSQL. Rows are soft-deleted: removed connections stay in the table
// and every query here filters them out.
type ConnectionRepository struct {
	conn *Connection
}

// NewConnectionRepository creates a new ConnectionRepository.
func NewConnectionRepository(conn *Connection) *ConnectionRepository {
	return &ConnectionRepository{conn: conn}
}

// ConnectionsForUser returns the user's active connections, oldest first.
// Link order matters: the analyzer evaluates accounts in this order.
func (r *ConnectionRepository) ConnectionsForUser(ctx context.Context, userID string) ([]account.VerifiedConnection, error) {
	query := `
		SELECT user_id, connection_type, external_id, verified_at
		FROM verified_connections
		WHERE user_id = $1 AND removed = FALSE
		ORDER BY verified_at ASC
	`

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer rows.Close()

	var conns []account.VerifiedConnection
	for rows.Next() {
		var c account.VerifiedConnection
		var typ string
		if err := rows.Scan(&c.UserID, &typ, &c.ExternalID, &c.VerifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan connection row: %w", err)
		}
		c.Type = account.ConnectionType(typ)
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// UsersWithConnections returns the ids of users with at least one active
// connection.
func (r *ConnectionRepository) UsersWithConnections(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT user_id
		FROM verified_connections
		WHERE removed = FALSE
		ORDER BY user_id
	`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query connected users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveConnection stores a new verified connection. Re-adding a previously
// removed connection revives the existing row.
func (r *ConnectionRepository) SaveConnection(ctx context.Context, c account.VerifiedConnection) error {
	query := `
		INSERT INTO verified_connections (user_id, connection_type, external_id, verified_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, connection_type, external_id)
		DO UPDATE SET removed = FALSE, verified_at = EXCLUDED.verified_at
	`

	_, err := r.conn.Exec(ctx, query, c.UserID, string(c.Type), c.ExternalID, c.VerifiedAt)
	if err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	return nil
}

// RemoveConnection soft-deletes a connection.
func (r *ConnectionRepository) RemoveConnection(ctx context.Context, userID string, typ account.ConnectionType, externalID string) error {
	query := `
		UPDATE verified_connections
		SET removed = TRUE
		WHERE user_id = $1 AND connection_type = $2 AND external_id = $3
	`

	tag, err := r.conn.Exec(ctx, query, userID, string(typ), externalID)
	if err != nil {
		return fmt.Errorf("failed to remove connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}
