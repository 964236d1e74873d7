package model

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// UserRole represents the RBAC role assigned to a user.
type UserRole string

const (
	RoleAdmin      UserRole = "admin"
	RoleInstructor UserRole = "instructor"
	RoleLearner    UserRole = "learner"
)

// User represents an authenticated identity: a learner sending telemetry,
// an instructor reading statuses, or an admin managing accounts.
type User struct {
	ID         uuid.UUID `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	Role       UserRole  `json:"role"`
	APIKeyHash *string   `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RoleRank returns the numeric rank of a role (higher = more privileges).
// Only relative ordering matters; RoleAtLeast uses >= comparison.
func RoleRank(r UserRole) int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleInstructor:
		return 2
	case RoleLearner:
		return 1
	default:
		return 0
	}
}

// RoleAtLeast returns true if role r has at least the privileges of minRole.
func RoleAtLeast(r, minRole UserRole) bool {
	return RoleRank(r) >= RoleRank(minRole)
}

// ValidRole returns true for a recognized role value.
func ValidRole(r UserRole) bool {
	return RoleRank(r) > 0
}

// MaxUserIDLen bounds the external user identifier.
const MaxUserIDLen = 128

var userIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._@-]+$`)

// ValidateUserID checks that a user_id is non-empty, bounded, and uses a
// URL- and log-safe character set.
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}
	if len(userID) > MaxUserIDLen {
		return fmt.Errorf("user_id exceeds maximum length of %d characters", MaxUserIDLen)
	}
	if !userIDPattern.MatchString(userID) {
		return fmt.Errorf("user_id may only contain letters, digits, and ._@-")
	}
	return nil
}
