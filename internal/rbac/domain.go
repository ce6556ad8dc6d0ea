package rbac

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrStorageUnavailable wraps any failure to read the role graph.
	ErrStorageUnavailable = errors.New("rbac: role storage unavailable")
	// ErrSystemRole is returned when a seeded role is about to be removed.
	ErrSystemRole = errors.New("rbac: system roles cannot be deleted")
	// ErrDuplicate indicates a unique name collision.
	ErrDuplicate = errors.New("rbac: duplicate name")
)

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission represents an atomic capability addressed as "resource:action".
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// Assignment ties a permission to a role.
type Assignment struct {
	RoleID       int64
	PermissionID int64
}

// RoleGrant is the role assigned to a principal along with its bound grants.
type RoleGrant struct {
	RoleName    string
	Permissions []Grant
}

// RoleGraphStore loads the role graph for a single principal. A nil grant with a
// nil error means the principal has no role.
type RoleGraphStore interface {
	GetRoleWithPermissions(ctx context.Context, principalID int64) (*RoleGrant, error)
}
