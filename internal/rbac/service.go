package rbac

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/cargodesk/cargodesk/internal/audit"
)

// RepositoryPort defines data access methods for role administration.
type RepositoryPort interface {
	RoleGraphStore
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) (int64, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	UpsertPermission(ctx context.Context, g Grant, description string) (Permission, error)
	ListRolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, attach, detach []int64) error
	SetUserRole(ctx context.Context, userID int64, roleID *int64) error
	UsersWithRole(ctx context.Context, roleID int64) ([]int64, error)
}

// AuditPort records role administration events.
type AuditPort interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Service orchestrates RBAC administration and keeps the resolver cache honest
// for the principals it touches.
type Service struct {
	repo     RepositoryPort
	resolver *Resolver
	audit    AuditPort
}

// NewService constructs a Service. resolver and auditor may be nil.
func NewService(repo RepositoryPort, resolver *Resolver, auditor AuditPort) *Service {
	return &Service{repo: repo, resolver: resolver, audit: auditor}
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, "role.created", "role", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// DeleteRole removes a role by ID. System roles are refused.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return ErrSystemRole
	}
	holders, err := s.repo.UsersWithRole(ctx, id)
	if err != nil {
		return err
	}
	rows, err := s.repo.DeleteRole(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	s.forget(holders...)
	s.record(ctx, "role.deleted", "role", id, map[string]any{"name": role.Name, "holders": len(holders)})
	return nil
}

// ListPermissions returns all permissions ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// EnsurePermission upserts a permission after validating its name.
func (s *Service) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	g, err := ParsePermission(name)
	if err != nil {
		return Permission{}, err
	}
	return s.repo.UpsertPermission(ctx, g, strings.TrimSpace(description))
}

// SetRolePermissions replaces the permissions bound to a role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	current, err := s.repo.ListRolePermissionIDs(ctx, roleID)
	if err != nil {
		return err
	}
	existing := make(map[int64]struct{}, len(current))
	for _, id := range current {
		existing[id] = struct{}{}
	}
	keep := make(map[int64]struct{}, len(permissionIDs))
	var attach []int64
	for _, id := range permissionIDs {
		if _, dup := keep[id]; dup {
			continue
		}
		keep[id] = struct{}{}
		if _, ok := existing[id]; !ok {
			attach = append(attach, id)
		}
	}
	var detach []int64
	for _, id := range current {
		if _, ok := keep[id]; !ok {
			detach = append(detach, id)
		}
	}
	if len(attach) == 0 && len(detach) == 0 {
		return nil
	}
	holders, err := s.repo.UsersWithRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.repo.ReplaceRolePermissions(ctx, roleID, attach, detach); err != nil {
		return err
	}
	s.forget(holders...)
	s.record(ctx, "role.permissions_set", "role", roleID, map[string]any{"attached": attach, "detached": detach})
	return nil
}

// AssignRole assigns a role to the given user, replacing any previous one.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.SetUserRole(ctx, userID, &roleID); err != nil {
		return err
	}
	s.forget(userID)
	s.record(ctx, "role.assigned", "user", userID, map[string]any{"role_id": roleID})
	return nil
}

// ClearRole removes the user's role, leaving an empty permission set.
func (s *Service) ClearRole(ctx context.Context, userID int64) error {
	if err := s.repo.SetUserRole(ctx, userID, nil); err != nil {
		return err
	}
	s.forget(userID)
	s.record(ctx, "role.cleared", "user", userID, nil)
	return nil
}

func (s *Service) forget(userIDs ...int64) {
	if s.resolver == nil {
		return
	}
	for _, id := range userIDs {
		s.resolver.Forget(id)
	}
}

// record is best effort: the change is already committed.
func (s *Service) record(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actor, _ := PrincipalFromContext(ctx)
	_ = s.audit.Record(ctx, audit.Entry{
		ActorID:  actor,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}
