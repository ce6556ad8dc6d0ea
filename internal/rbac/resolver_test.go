package rbac

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	mu     sync.Mutex
	hits   int
	misses int
}

func (o *countingObserver) ObserveCache(hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.hits++
		return
	}
	o.misses++
}

func newTestResolver(repo *memoryRBACRepo, ttl time.Duration) (*Resolver, *manualClock) {
	clock := &manualClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewResolver(repo, ttl, WithClock(clock.Now)), clock
}

func TestResolverNoRoleYieldsEmptySet(t *testing.T) {
	repo := newMemoryRBACRepo()
	resolver, _ := newTestResolver(repo, time.Second)
	ctx := context.Background()

	perms, err := resolver.Resolve(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, perms)
	require.Empty(t, perms)

	for _, perm := range CorePermissions() {
		ok, err := resolver.HasPermission(ctx, 42, perm)
		require.NoError(t, err)
		require.False(t, ok, perm)
	}
	ok, err := resolver.HasAnyPermission(ctx, 42, CorePermissions()...)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResolverManageWildcard(t *testing.T) {
	repo := newMemoryRBACRepo()
	role := repo.addRole("dispatcher", false, "shipments:manage")
	repo.assign(7, role.ID)
	resolver, _ := newTestResolver(repo, time.Second)

	ok, err := resolver.HasPermission(context.Background(), 7, "shipments:read")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = resolver.HasPermission(context.Background(), 7, "invoices:read")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = resolver.HasAnyPermission(context.Background(), 7, "invoices:read", "shipments:archive")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestResolverBoundedStaleness(t *testing.T) {
	repo := newMemoryRBACRepo()
	role := repo.addRole("clerk", false, "invoices:read")
	repo.assign(3, role.ID)
	observer := &countingObserver{}
	clock := &manualClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	resolver := NewResolver(repo, 5*time.Second, WithClock(clock.Now), WithCacheObserver(observer))
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"invoices:read"}, first.Names())

	repo.bind(role.ID, "invoices:write")
	clock.Advance(4 * time.Second)

	second, err := resolver.Resolve(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, first.Names(), second.Names(), "cached set must be reused within the TTL")
	require.Equal(t, 1, repo.fetchCalls)

	clock.Advance(time.Second)
	third, err := resolver.Resolve(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"invoices:read", "invoices:write"}, third.Names())
	require.Equal(t, 2, repo.fetchCalls)
	require.Equal(t, 1, observer.hits)
	require.Equal(t, 2, observer.misses)
}

func TestResolverFailsClosed(t *testing.T) {
	repo := newMemoryRBACRepo()
	role := repo.addRole("clerk", false, "invoices:read")
	repo.assign(3, role.ID)
	repo.fetchErr = errors.New("connection refused")
	resolver, _ := newTestResolver(repo, time.Second)
	ctx := context.Background()

	perms, err := resolver.Resolve(ctx, 3)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrStorageUnavailable))
	require.Nil(t, perms)

	ok, err := resolver.HasPermission(ctx, 3, "invoices:read")
	require.Error(t, err)
	require.False(t, ok)

	// The failure must not be cached as an empty set.
	repo.fetchErr = nil
	ok, err = resolver.HasPermission(ctx, 3, "invoices:read")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestResolverForget(t *testing.T) {
	repo := newMemoryRBACRepo()
	role := repo.addRole("clerk", false, "invoices:read")
	repo.assign(3, role.ID)
	resolver, _ := newTestResolver(repo, time.Hour)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, 3)
	require.NoError(t, err)
	repo.bind(role.ID, "customers:read")
	resolver.Forget(3)

	ok, err := resolver.HasPermission(ctx, 3, "customers:read")
	require.NoError(t, err)
	require.True(t, ok)

	repo.bind(role.ID, "customers:write")
	resolver.ForgetAll()
	ok, err = resolver.HasPermission(ctx, 3, "customers:write")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestResolverConcurrentQueries(t *testing.T) {
	repo := newMemoryRBACRepo()
	role := repo.addRole("clerk", false, "support:read")
	for user := int64(1); user <= 4; user++ {
		repo.assign(user, role.ID)
	}
	resolver := NewResolver(repo, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			ok, err := resolver.HasPermission(context.Background(), user, "support:read")
			if err != nil || !ok {
				t.Errorf("user %d: ok=%v err=%v", user, ok, err)
			}
		}(int64(i%4) + 1)
	}
	wg.Wait()
	require.LessOrEqual(t, repo.fetchCalls, 64)
}

// gatedStore blocks every fetch until release is closed or the fetch context ends.
type gatedStore struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newGatedStore() *gatedStore {
	return &gatedStore{started: make(chan struct{}), release: make(chan struct{})}
}

func (s *gatedStore) GetRoleWithPermissions(ctx context.Context, principalID int64) (*RoleGrant, error) {
	s.calls.Add(1)
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
		return &RoleGrant{RoleName: "dispatcher", Permissions: []Grant{{Resource: "shipments", Action: "read"}}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestResolverSharedFetchSurvivesCallerCancel(t *testing.T) {
	store := newGatedStore()
	resolver := NewResolver(store, time.Minute)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := resolver.Resolve(leaderCtx, 1)
		leaderErr <- err
	}()
	<-store.started

	type result struct {
		ok  bool
		err error
	}
	follower := make(chan result, 1)
	go func() {
		ok, err := resolver.HasPermission(context.Background(), 1, "shipments:read")
		follower <- result{ok: ok, err: err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	select {
	case err := <-leaderErr:
		require.ErrorIs(t, err, ErrStorageUnavailable)
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(store.release)
	select {
	case res := <-follower:
		require.NoError(t, res.err)
		require.True(t, res.ok)
	case <-time.After(time.Second):
		t.Fatal("follower did not return")
	}
	require.Equal(t, int32(1), store.calls.Load())
}

func TestResolverReturnsPrivateCopy(t *testing.T) {
	repo := newMemoryRBACRepo()
	role := repo.addRole("clerk", false, "support:read")
	repo.assign(3, role.ID)
	resolver, _ := newTestResolver(repo, time.Minute)
	ctx := context.Background()

	perms, err := resolver.Resolve(ctx, 3)
	require.NoError(t, err)
	perms["support:manage"] = struct{}{}
	delete(perms, "support:read")

	again, err := resolver.Resolve(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"support:read"}, again.Names())
	require.Equal(t, 1, repo.fetchCalls)
}
