// Package account models the link between Discord users and their external
// platform accounts, plus manually assigned badges.
package account

import (
	"context"
	"time"

	"github.com/p2community/badge-hub/internal/domain/definition"
)

// ConnectionType identifies the external platform of a verified connection.
type ConnectionType string

const (
	// ConnectionSteam links a Steam id, used for challenge-mode boards.
	ConnectionSteam ConnectionType = "steam"

	// ConnectionSrcom links a speedrun.com user id.
	ConnectionSrcom ConnectionType = "srcom"
)

// Platform maps the connection type to the provider it is queried against.
func (t ConnectionType) Platform() definition.Platform {
	if t == ConnectionSrcom {
		return definition.PlatformSrcom
	}
	return definition.PlatformCM
}

// VerifiedConnection is one verified external account of a Discord user.
// Removed connections stay in storage for auditability and are filtered out
// of every query this package exposes.
type VerifiedConnection struct {
	UserID     string
	Type       ConnectionType
	ExternalID string
	VerifiedAt time.Time
}

// ManualAssignment records a badge granted by a moderator. Manually assigned
// badges are never auto-removed by role sync.
type ManualAssignment struct {
	UserID     string
	Badge      string
	AssignedBy string
	AssignedAt time.Time
}

// ConnectionRepository provides access to verified connections.
type ConnectionRepository interface {
	// ConnectionsForUser returns the user's active connections, oldest first.
	ConnectionsForUser(ctx context.Context, userID string) ([]VerifiedConnection, error)

	// UsersWithConnections returns the ids of all users that have at least
	// one active connection.
	UsersWithConnections(ctx context.Context) ([]string, error)

	// SaveConnection stores a new verified connection.
	SaveConnection(ctx context.Context, conn VerifiedConnection) error

	// RemoveConnection soft-deletes a connection.
	RemoveConnection(ctx context.Context, userID string, typ ConnectionType, externalID string) error
}

// AssignmentRepository provides access to manual badge assignments.
type AssignmentRepository interface {
	// AssignmentsForUser returns the user's manual assignments.
	AssignmentsForUser(ctx context.Context, userID string) ([]ManualAssignment, error)

	// SaveAssignment stores a manual assignment, replacing an existing one
	// for the same user and badge.
	SaveAssignment(ctx context.Context, a ManualAssignment) error

	// RemoveAssignment deletes a manual assignment.
	RemoveAssignment(ctx context.Context, userID, badge string) error
}
