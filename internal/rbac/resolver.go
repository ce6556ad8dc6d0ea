package rbac

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL bounds how long a resolved permission set is reused.
const DefaultCacheTTL = 5 * time.Second

// DefaultFetchTimeout bounds a shared store fetch. The fetch outlives any single
// caller's context, so it needs its own deadline.
const DefaultFetchTimeout = 5 * time.Second

// CacheObserver receives cache hit/miss notifications.
type CacheObserver interface {
	ObserveCache(hit bool)
}

type cachedSet struct {
	perms     PermissionSet
	expiresAt time.Time
}

// Resolver computes and caches effective permission sets. Entries expire after
// the configured TTL, so role changes become visible within one TTL.
type Resolver struct {
	store    RoleGraphStore
	ttl      time.Duration
	timeout  time.Duration
	cache    sync.Map
	group    singleflight.Group
	observer CacheObserver
	clock    func() time.Time
}

// ResolverOption customises a Resolver.
type ResolverOption func(*Resolver)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.clock = clock
	}
}

// WithFetchTimeout overrides DefaultFetchTimeout.
func WithFetchTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithCacheObserver records cache effectiveness.
func WithCacheObserver(o CacheObserver) ResolverOption {
	return func(r *Resolver) {
		r.observer = o
	}
}

// NewResolver constructs a Resolver. A non-positive ttl falls back to DefaultCacheTTL.
func NewResolver(store RoleGraphStore, ttl time.Duration, opts ...ResolverOption) *Resolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	r := &Resolver{store: store, ttl: ttl, timeout: DefaultFetchTimeout, clock: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the principal's effective permission set. Storage failures are
// returned wrapped in ErrStorageUnavailable and are never cached. The returned
// set is a copy the caller may modify.
//
// Concurrent misses for one principal share a single store fetch. The fetch is
// detached from every caller's context, and each caller waits on its own.
func (r *Resolver) Resolve(ctx context.Context, principalID int64) (PermissionSet, error) {
	now := r.clock()
	if v, ok := r.cache.Load(principalID); ok {
		entry := v.(cachedSet)
		if now.Before(entry.expiresAt) {
			r.observe(true)
			return entry.perms.clone(), nil
		}
	}
	r.observe(false)

	fetchCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(strconv.FormatInt(principalID, 10), func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(fetchCtx, r.timeout)
		defer cancel()
		grant, err := r.store.GetRoleWithPermissions(fctx, principalID)
		if err != nil {
			return nil, fmt.Errorf("%w: principal %d: %w", ErrStorageUnavailable, principalID, err)
		}
		perms := PermissionSet{}
		if grant != nil {
			perms = NewPermissionSet(grant.Permissions)
		}
		r.cache.Store(principalID, cachedSet{perms: perms, expiresAt: r.clock().Add(r.ttl)})
		return perms, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: principal %d: %w", ErrStorageUnavailable, principalID, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(PermissionSet).clone(), nil
	}
}

// HasPermission reports whether the principal holds perm or its resource's manage grant.
func (r *Resolver) HasPermission(ctx context.Context, principalID int64, perm string) (bool, error) {
	perms, err := r.Resolve(ctx, principalID)
	if err != nil {
		return false, err
	}
	return perms.Has(perm), nil
}

// HasAnyPermission reports whether the principal holds at least one of perms.
func (r *Resolver) HasAnyPermission(ctx context.Context, principalID int64, perms ...string) (bool, error) {
	set, err := r.Resolve(ctx, principalID)
	if err != nil {
		return false, err
	}
	return set.HasAny(perms...), nil
}

// Forget drops the cached set for a principal.
func (r *Resolver) Forget(principalID int64) {
	r.cache.Delete(principalID)
}

// ForgetAll drops every cached set.
func (r *Resolver) ForgetAll() {
	r.cache.Range(func(key, _ any) bool {
		r.cache.Delete(key)
		return true
	})
}

func (r *Resolver) observe(hit bool) {
	if r.observer != nil {
		r.observer.ObserveCache(hit)
	}
}
