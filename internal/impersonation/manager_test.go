package impersonation

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
	"github.com/steepleworks/steeple/internal/shared"
	_ "github.com/steepleworks/steeple/testing"
)

type stubTenants struct {
	names map[string]string
}

func (s *stubTenants) TenantName(ctx context.Context, tenantID string) (string, error) {
	name, ok := s.names[tenantID]
	if !ok {
		return "", shared.ErrNotFound
	}
	return name, nil
}

type stubAudit struct {
	entries []audit.Entry
	err     error
}

func (s *stubAudit) Record(ctx context.Context, e audit.Entry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, e)
	return nil
}

func platformAdmin() *shared.SecurityContext {
	return &shared.SecurityContext{
		SubjectID:       "sub-ops",
		Email:           "ops@steepleworks.com",
		IsPlatformAdmin: true,
	}
}

func newTestManager(t *testing.T, sink AuditSink) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	revoked := NewRevocationList(client, slog.Default())
	tenants := &stubTenants{names: map[string]string{"t1": "Grace Chapel"}}
	return NewManager("test-secret", 30*time.Minute, tenants, revoked, sink), mr
}

func TestStartRequiresPlatformAdmin(t *testing.T) {
	sink := &stubAudit{}
	m, _ := newTestManager(t, sink)

	member := &shared.SecurityContext{TenantID: "t1", Email: "admin@gracechapel.org"}
	_, err := m.Start(context.Background(), member, "t1")
	require.ErrorIs(t, err, shared.ErrForbidden)
	assert.Empty(t, sink.entries)
}

func TestStartUnknownTenant(t *testing.T) {
	m, _ := newTestManager(t, &stubAudit{})
	_, err := m.Start(context.Background(), platformAdmin(), "missing")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStartAndValidateRoundTrip(t *testing.T) {
	sink := &stubAudit{}
	m, _ := newTestManager(t, sink)

	grant, err := m.Start(context.Background(), platformAdmin(), "t1")
	require.NoError(t, err)
	assert.True(t, IsImpersonationToken(grant.Token))
	assert.Equal(t, "Grace Chapel", grant.TenantName)
	assert.WithinDuration(t, grant.IssuedAt.Add(30*time.Minute), grant.ExpiresAt, time.Second)

	require.Len(t, sink.entries, 1)
	assert.Equal(t, audit.ActionImpersonationStart, sink.entries[0].Action)
	assert.Equal(t, "t1", sink.entries[0].TenantID)
	assert.Equal(t, "ops@steepleworks.com", sink.entries[0].ActorEmail)

	sc, err := m.Validate(context.Background(), grant.Token)
	require.NoError(t, err)
	assert.True(t, sc.IsImpersonation)
	assert.False(t, sc.IsPlatformAdmin)
	assert.Equal(t, "t1", sc.TenantID)
	assert.Equal(t, "Grace Chapel", sc.TenantName)
	assert.Equal(t, []string{shared.PermissionWildcard}, sc.Permissions)
	assert.Equal(t, shared.ScopeAll, sc.BranchScope)
	assert.Equal(t, "ops@steepleworks.com", sc.Email)
}

func TestValidateExpiredGrant(t *testing.T) {
	m, _ := newTestManager(t, &stubAudit{})

	issued := time.Now()
	grant, err := m.Start(context.Background(), platformAdmin(), "t1")
	require.NoError(t, err)

	m.WithClock(func() time.Time { return issued.Add(31 * time.Minute) })
	_, err = m.Validate(context.Background(), grant.Token)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestValidateGarbageToken(t *testing.T) {
	m, _ := newTestManager(t, &stubAudit{})

	_, err := m.Validate(context.Background(), "imp_not-a-jwt")
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	_, err = m.Validate(context.Background(), "plain-idp-token")
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	sink := &stubAudit{}
	m, _ := newTestManager(t, sink)
	other, _ := newTestManager(t, sink)
	grant, err := other.Start(context.Background(), platformAdmin(), "t1")
	require.NoError(t, err)

	// Same secret in this harness, so forge one by re-keying the manager.
	forged := NewManager("other-secret", time.Minute, &stubTenants{names: map[string]string{"t1": "x"}}, m.revoked, sink)
	g2, err := forged.Start(context.Background(), platformAdmin(), "t1")
	require.NoError(t, err)

	_, err = m.Validate(context.Background(), g2.Token)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	_, err = m.Validate(context.Background(), grant.Token)
	require.NoError(t, err)
}

func TestStopRevokesBeforeNaturalExpiry(t *testing.T) {
	sink := &stubAudit{}
	m, _ := newTestManager(t, sink)

	grant, err := m.Start(context.Background(), platformAdmin(), "t1")
	require.NoError(t, err)

	require.NoError(t, m.Stop(context.Background(), platformAdmin(), grant.Token))

	_, err = m.Validate(context.Background(), grant.Token)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	require.Len(t, sink.entries, 2)
	assert.Equal(t, audit.ActionImpersonationEnd, sink.entries[1].Action)
}

func TestStopAuditFailureAborts(t *testing.T) {
	sink := &stubAudit{}
	m, _ := newTestManager(t, sink)

	grant, err := m.Start(context.Background(), platformAdmin(), "t1")
	require.NoError(t, err)

	sink.err = errors.New("audit store down")
	err = m.Stop(context.Background(), platformAdmin(), grant.Token)
	require.Error(t, err)
}

func TestStopRequiresPlatformAdmin(t *testing.T) {
	m, _ := newTestManager(t, &stubAudit{})
	grant, err := m.Start(context.Background(), platformAdmin(), "t1")
	require.NoError(t, err)

	member := &shared.SecurityContext{TenantID: "t1", Email: "admin@gracechapel.org"}
	require.ErrorIs(t, m.Stop(context.Background(), member, grant.Token), shared.ErrForbidden)
}
