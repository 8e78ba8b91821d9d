package auth

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steepleworks/steeple/internal/audit"
	"github.com/steepleworks/steeple/internal/impersonation"
	"github.com/steepleworks/steeple/internal/shared"
	_ "github.com/steepleworks/steeple/testing"
)

type stubVerifier struct {
	identity Identity
	err      error
}

func (s *stubVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if s.err != nil {
		return Identity{}, s.err
	}
	return s.identity, nil
}

type stubRepo struct {
	users map[string]*LinkedUser
	err   error
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*LinkedUser, error) {
	if s.err != nil {
		return nil, s.err
	}
	lu, ok := s.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return lu, nil
}

type noopAudit struct{}

func (noopAudit) Record(ctx context.Context, e audit.Entry) error { return nil }

type staticTenants struct{}

func (staticTenants) TenantName(ctx context.Context, tenantID string) (string, error) {
	return "Grace Chapel", nil
}

func testGrantManager(t *testing.T) *impersonation.Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	revoked := impersonation.NewRevocationList(client, slog.Default())
	return impersonation.NewManager("test-secret", 30*time.Minute, staticTenants{}, revoked, noopAudit{})
}

func activeUser() *LinkedUser {
	return &LinkedUser{
		UserID:      "u1",
		Email:       "admin@gracechapel.org",
		TenantID:    "t1",
		TenantName:  "Grace Chapel",
		RoleID:      "r1",
		RoleName:    "Admin",
		Permissions: []string{shared.PermMembersView, shared.PermMembersEdit},
		Status:      shared.StatusActive,
		BranchScope: shared.ScopeAll,
	}
}

func newTestResolver(t *testing.T, verifier Verifier, repo Repository, admins ...string) *Resolver {
	t.Helper()
	return NewResolver(verifier, repo, testGrantManager(t), admins, slog.Default())
}

func TestResolveMissingCredential(t *testing.T) {
	r := newTestResolver(t, &stubVerifier{}, &stubRepo{})
	_, err := r.Resolve(context.Background(), "")
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	_, err = r.Resolve(context.Background(), "   ")
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestResolveVerifierFailureIsGeneric(t *testing.T) {
	// Fail closed: any verifier error, timeout included, reads as a plain 401.
	r := newTestResolver(t, &stubVerifier{err: context.DeadlineExceeded}, &stubRepo{})
	_, err := r.Resolve(context.Background(), "some-token")
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestResolveTenantLinkedUser(t *testing.T) {
	verifier := &stubVerifier{identity: Identity{SubjectID: "sub1", Email: "admin@gracechapel.org", Provider: "auth0"}}
	repo := &stubRepo{users: map[string]*LinkedUser{"admin@gracechapel.org": activeUser()}}
	r := newTestResolver(t, verifier, repo)

	sc, err := r.Resolve(context.Background(), "idp-token")
	require.NoError(t, err)
	assert.Equal(t, "t1", sc.TenantID)
	assert.Equal(t, "Grace Chapel", sc.TenantName)
	assert.Equal(t, "Admin", sc.RoleName)
	assert.Equal(t, shared.ScopeAll, sc.BranchScope)
	assert.Equal(t, "auth0", sc.IdentityProvider)
	assert.False(t, sc.IsPlatformAdmin)
	assert.False(t, sc.IsImpersonation)
}

func TestResolvePlatformAdminBypassesUserLookup(t *testing.T) {
	verifier := &stubVerifier{identity: Identity{SubjectID: "sub-ops", Email: "Ops@Steepleworks.com", Provider: "auth0"}}
	repo := &stubRepo{err: errors.New("must not be called")}
	r := newTestResolver(t, verifier, repo, "ops@steepleworks.com")

	sc, err := r.Resolve(context.Background(), "idp-token")
	require.NoError(t, err)
	assert.True(t, sc.IsPlatformAdmin)
	assert.Empty(t, sc.TenantID)
	assert.Empty(t, sc.Permissions)
}

func TestResolveUnlinkedAccount(t *testing.T) {
	verifier := &stubVerifier{identity: Identity{SubjectID: "sub2", Email: "stranger@example.com"}}
	r := newTestResolver(t, verifier, &stubRepo{users: map[string]*LinkedUser{}})

	_, err := r.Resolve(context.Background(), "idp-token")
	require.ErrorIs(t, err, shared.ErrAccountNotLinked)
}

func TestResolveSuspendedAccount(t *testing.T) {
	lu := activeUser()
	lu.Status = shared.StatusSuspended
	verifier := &stubVerifier{identity: Identity{SubjectID: "sub1", Email: lu.Email}}
	r := newTestResolver(t, verifier, &stubRepo{users: map[string]*LinkedUser{lu.Email: lu}})

	_, err := r.Resolve(context.Background(), "idp-token")
	require.ErrorIs(t, err, shared.ErrAccountSuspended)
}

func TestResolveRestrictedWithoutGrants(t *testing.T) {
	lu := activeUser()
	lu.BranchScope = shared.ScopeRestricted
	lu.BranchGrants = nil
	verifier := &stubVerifier{identity: Identity{SubjectID: "sub1", Email: lu.Email}}
	r := newTestResolver(t, verifier, &stubRepo{users: map[string]*LinkedUser{lu.Email: lu}})

	_, err := r.Resolve(context.Background(), "idp-token")
	require.ErrorIs(t, err, shared.ErrNoBranchAccess)
}

func TestResolveRestrictedCopiesGrants(t *testing.T) {
	lu := activeUser()
	lu.BranchScope = shared.ScopeRestricted
	lu.BranchGrants = []string{"b1", "b2"}
	verifier := &stubVerifier{identity: Identity{SubjectID: "sub1", Email: lu.Email}}
	r := newTestResolver(t, verifier, &stubRepo{users: map[string]*LinkedUser{lu.Email: lu}})

	sc, err := r.Resolve(context.Background(), "idp-token")
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2"}, sc.AllowedBranchIDs)

	sc.AllowedBranchIDs[0] = "mutated"
	assert.Equal(t, "b1", lu.BranchGrants[0])
}

func TestResolveImpersonationCredential(t *testing.T) {
	grants := testGrantManager(t)
	r := NewResolver(&stubVerifier{err: errors.New("idp must not be called")}, &stubRepo{}, grants, nil, slog.Default())

	admin := &shared.SecurityContext{IsPlatformAdmin: true, Email: "ops@steepleworks.com"}
	grant, err := grants.Start(context.Background(), admin, "t1")
	require.NoError(t, err)

	sc, err := r.Resolve(context.Background(), grant.Token)
	require.NoError(t, err)
	assert.True(t, sc.IsImpersonation)
	assert.Equal(t, "t1", sc.TenantID)
	assert.True(t, sc.HasWildcard())
	assert.Equal(t, shared.ScopeAll, sc.BranchScope)
}
