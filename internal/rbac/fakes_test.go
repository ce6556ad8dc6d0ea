package rbac

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRBACRepo struct {
	mu          sync.Mutex
	roles       map[int64]Role
	perms       map[int64]Permission
	bindings    map[int64]map[int64]struct{}
	userRoles   map[int64]int64
	nextID      int64
	fetchErr    error
	fetchCalls  int
	fetchedWith []int64
}

func newMemoryRBACRepo() *memoryRBACRepo {
	return &memoryRBACRepo{
		roles:     make(map[int64]Role),
		perms:     make(map[int64]Permission),
		bindings:  make(map[int64]map[int64]struct{}),
		userRoles: make(map[int64]int64),
	}
}

func (r *memoryRBACRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRBACRepo) addRole(name string, system bool, perms ...string) Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	role := Role{ID: r.id(), Name: name, IsSystem: system, CreatedAt: time.Now()}
	r.roles[role.ID] = role
	r.bindings[role.ID] = make(map[int64]struct{})
	for _, name := range perms {
		p := r.ensurePermLocked(name)
		r.bindings[role.ID][p.ID] = struct{}{}
	}
	return role
}

func (r *memoryRBACRepo) ensurePermLocked(name string) Permission {
	for _, p := range r.perms {
		if p.Name == name {
			return p
		}
	}
	g, err := ParsePermission(name)
	if err != nil {
		panic(err)
	}
	p := Permission{ID: r.id(), Name: g.Name(), Resource: g.Resource, Action: g.Action}
	r.perms[p.ID] = p
	return p
}

func (r *memoryRBACRepo) permID(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensurePermLocked(name).ID
}

func (r *memoryRBACRepo) bind(roleID int64, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.ensurePermLocked(name)
	r.bindings[roleID][p.ID] = struct{}{}
}

func (r *memoryRBACRepo) assign(userID, roleID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userRoles[userID] = roleID
}

func (r *memoryRBACRepo) GetRoleWithPermissions(ctx context.Context, principalID int64) (*RoleGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchCalls++
	r.fetchedWith = append(r.fetchedWith, principalID)
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	roleID, ok := r.userRoles[principalID]
	if !ok {
		return nil, nil
	}
	role := r.roles[roleID]
	grant := &RoleGrant{RoleName: role.Name}
	for id := range r.bindings[roleID] {
		p := r.perms[id]
		grant.Permissions = append(grant.Permissions, Grant{Resource: p.Resource, Action: p.Action})
	}
	return grant, nil
}

func (r *memoryRBACRepo) ListRoles(ctx context.Context) ([]Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roles := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (r *memoryRBACRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (r *memoryRBACRepo) CreateRole(ctx context.Context, name, description string) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range r.roles {
		if role.Name == name {
			return Role{}, ErrDuplicate
		}
	}
	role := Role{ID: r.id(), Name: name, Description: description}
	r.roles[role.ID] = role
	r.bindings[role.ID] = make(map[int64]struct{})
	return role, nil
}

func (r *memoryRBACRepo) DeleteRole(ctx context.Context, id int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[id]
	if !ok || role.IsSystem {
		return 0, nil
	}
	delete(r.roles, id)
	delete(r.bindings, id)
	for user, roleID := range r.userRoles {
		if roleID == id {
			delete(r.userRoles, user)
		}
	}
	return 1, nil
}

func (r *memoryRBACRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	perms := make([]Permission, 0, len(r.perms))
	for _, p := range r.perms {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
	return perms, nil
}

func (r *memoryRBACRepo) UpsertPermission(ctx context.Context, g Grant, description string) (Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.ensurePermLocked(g.Name())
	p.Description = description
	r.perms[p.ID] = p
	return p, nil
}

func (r *memoryRBACRepo) ListRolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id := range r.bindings[roleID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *memoryRBACRepo) ReplaceRolePermissions(ctx context.Context, roleID int64, attach, detach []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range attach {
		r.bindings[roleID][id] = struct{}{}
	}
	for _, id := range detach {
		delete(r.bindings[roleID], id)
	}
	return nil
}

func (r *memoryRBACRepo) SetUserRole(ctx context.Context, userID int64, roleID *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if roleID == nil {
		delete(r.userRoles, userID)
		return nil
	}
	r.userRoles[userID] = *roleID
	return nil
}

func (r *memoryRBACRepo) UsersWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for user, id := range r.userRoles {
		if id == roleID {
			ids = append(ids, user)
		}
	}
	return ids, nil
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
