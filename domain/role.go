// Package domain contains core concepts of the moderated chat system.
// No runtime, network, or UI logic should be added here.
package domain

import "fmt"

// Role is the closed set of connection roles in the session protocol.
// The wire value for a participant is "user", kept for compatibility with
// existing clients.
type Role string

const (
	RoleParticipant Role = "user"
	RoleAdmin       Role = "admin"
	RoleBroadcast   Role = "broadcast"
	RoleSuperAdmin  Role = "superadmin"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleParticipant, RoleAdmin, RoleBroadcast, RoleSuperAdmin:
		return Role(s), nil
	case "participant":
		return RoleParticipant, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Status is the moderation state shared by users (admission) and
// messages (publication). The only transition is pending -> approved.
// Rejection is modeled as a hard delete, never as a third state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
)
