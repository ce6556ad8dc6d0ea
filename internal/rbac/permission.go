package rbac

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ActionManage grants every action on its resource.
const ActionManage = "manage"

// ErrInvalidPermission is returned for names that are not "resource:action".
var ErrInvalidPermission = errors.New("rbac: invalid permission name")

// Grant is a parsed permission.
type Grant struct {
	Resource string
	Action   string
}

// Name renders the grant in its canonical form.
func (g Grant) Name() string {
	return g.Resource + ":" + g.Action
}

// ParsePermission splits and normalises a "resource:action" name.
func ParsePermission(name string) (Grant, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	resource, action, ok := strings.Cut(name, ":")
	if !ok || strings.Contains(action, ":") {
		return Grant{}, fmt.Errorf("%w: %q", ErrInvalidPermission, name)
	}
	resource = strings.TrimSpace(resource)
	action = strings.TrimSpace(action)
	if resource == "" || action == "" {
		return Grant{}, fmt.Errorf("%w: %q", ErrInvalidPermission, name)
	}
	return Grant{Resource: resource, Action: action}, nil
}

// PermissionSet is a principal's effective permission names.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from parsed grants.
func NewPermissionSet(grants []Grant) PermissionSet {
	set := make(PermissionSet, len(grants))
	for _, g := range grants {
		set[g.Name()] = struct{}{}
	}
	return set
}

// Has reports whether perm is granted explicitly or through "<resource>:manage".
func (s PermissionSet) Has(perm string) bool {
	if len(s) == 0 {
		return false
	}
	g, err := ParsePermission(perm)
	if err != nil {
		return false
	}
	if _, ok := s[g.Name()]; ok {
		return true
	}
	_, ok := s[g.Resource+":"+ActionManage]
	return ok
}

// HasAny reports whether at least one of perms is granted.
func (s PermissionSet) HasAny(perms ...string) bool {
	for _, p := range perms {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// HasAll reports whether every perm is granted. An empty list is satisfied.
func (s PermissionSet) HasAll(perms ...string) bool {
	for _, p := range perms {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// Names returns the sorted permission names.
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s PermissionSet) clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for name := range s {
		out[name] = struct{}{}
	}
	return out
}
