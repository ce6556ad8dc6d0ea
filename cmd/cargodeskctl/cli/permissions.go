package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cargodesk/cargodesk/internal/rbac"
)

// PermissionsCLI prints the resolved permission set of a principal.
type PermissionsCLI struct {
	authorizer rbac.Authorizer
}

// NewPermissionsCLI wires the CLI to an authorizer, normally the cached resolver.
func NewPermissionsCLI(authorizer rbac.Authorizer) (*PermissionsCLI, error) {
	if authorizer == nil {
		return nil, fmt.Errorf("permissions cli: authorizer required")
	}
	return &PermissionsCLI{authorizer: authorizer}, nil
}

// PermissionsOptions defines available flags for the permissions command.
type PermissionsOptions struct {
	UserID     int64
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// PermissionsSummary is the JSON form of the permissions command.
type PermissionsSummary struct {
	UserID      int64    `json:"user_id"`
	Permissions []string `json:"permissions"`
}

// Command resolves and prints the principal's permissions.
func (c *PermissionsCLI) Command(ctx context.Context, opts PermissionsOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.UserID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "permissions: --user is required and must be positive")
		return 1
	}
	set, err := c.authorizer.Resolve(ctx, opts.UserID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "permissions: %v\n", err)
		return 1
	}
	names := set.Names()
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(PermissionsSummary{UserID: opts.UserID, Permissions: names}); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "permissions: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	if len(names) == 0 {
		_, _ = fmt.Fprintf(opts.Stdout, "user %d has no permissions\n", opts.UserID)
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "user %d:\n", opts.UserID)
	for _, name := range names {
		_, _ = fmt.Fprintf(opts.Stdout, "  %s\n", name)
	}
	return 0
}
