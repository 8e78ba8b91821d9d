// Package impersonation issues and validates time-boxed delegated sessions
// that let a platform administrator act as a specific tenant without becoming
// a tenant member.
package impersonation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/steepleworks/steeple/internal/audit"
	"github.com/steepleworks/steeple/internal/shared"
)

const (
	// TokenPrefix distinguishes impersonation credentials from identity
	// provider tokens before either verification path runs.
	TokenPrefix = "imp_"

	issuer     = "steeple"
	DefaultTTL = 30 * time.Minute
)

// IsImpersonationToken reports whether the bearer credential is shaped like
// an impersonation grant.
func IsImpersonationToken(bearer string) bool {
	return strings.HasPrefix(bearer, TokenPrefix)
}

// Claims carried by a signed impersonation grant.
type Claims struct {
	SuperAdminEmail string `json:"adm"`
	TenantID        string `json:"tid"`
	jwt.RegisteredClaims
}

// Grant is the issued window handed back to the starting administrator.
type Grant struct {
	Token      string    `json:"token"`
	TenantID   string    `json:"tenant_id"`
	TenantName string    `json:"tenant_name"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// TenantDirectory resolves tenant names for context assembly.
type TenantDirectory interface {
	TenantName(ctx context.Context, tenantID string) (string, error)
}

// AuditSink receives the mandatory start/stop entries.
type AuditSink interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Manager signs, validates and revokes impersonation grants. Grants are
// self-contained HS256 tokens; Stop additionally places the token ID on a
// revocation list so a stopped grant is unusable before natural expiry.
type Manager struct {
	secret  []byte
	ttl     time.Duration
	tenants TenantDirectory
	revoked *RevocationList
	auditor AuditSink
	now     func() time.Time
}

// NewManager constructs a Manager. ttl <= 0 falls back to DefaultTTL.
func NewManager(secret string, ttl time.Duration, tenants TenantDirectory, revoked *RevocationList, auditor AuditSink) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		secret:  []byte(secret),
		ttl:     ttl,
		tenants: tenants,
		revoked: revoked,
		auditor: auditor,
		now:     time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Start issues a grant for the target tenant. Only a platform-admin context
// may start impersonation; the audit write is part of the contract and its
// failure aborts the start.
func (m *Manager) Start(ctx context.Context, sc *shared.SecurityContext, tenantID string) (Grant, error) {
	if sc == nil || !sc.IsPlatformAdmin {
		return Grant{}, fmt.Errorf("%w: impersonation requires a platform administrator", shared.ErrForbidden)
	}
	if tenantID == "" {
		return Grant{}, fmt.Errorf("%w: tenant id is required", shared.ErrValidation)
	}
	name, err := m.tenants.TenantName(ctx, tenantID)
	if err != nil {
		return Grant{}, err
	}

	now := m.now().UTC()
	expires := now.Add(m.ttl)
	claims := Claims{
		SuperAdminEmail: sc.Email,
		TenantID:        tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   sc.Email,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return Grant{}, fmt.Errorf("impersonation: sign grant: %w", err)
	}

	if err := m.auditor.Record(ctx, audit.Entry{
		TenantID:   tenantID,
		Action:     audit.ActionImpersonationStart,
		Resource:   "tenants/" + tenantID,
		ActorEmail: sc.Email,
		Details: map[string]any{
			"tenant_name": name,
			"issued_at":   now.Format(time.RFC3339),
			"expires_at":  expires.Format(time.RFC3339),
		},
	}); err != nil {
		return Grant{}, fmt.Errorf("impersonation: audit start: %w", err)
	}

	return Grant{
		Token:      TokenPrefix + signed,
		TenantID:   tenantID,
		TenantName: name,
		IssuedAt:   now,
		ExpiresAt:  expires,
	}, nil
}

// Validate re-verifies the grant on every request bearing it and returns the
// tenant-shaped security context: full tenant authority, bounded only by the
// time window and the revocation list.
func (m *Manager) Validate(ctx context.Context, bearer string) (*shared.SecurityContext, error) {
	claims, err := m.parse(bearer)
	if err != nil {
		return nil, err
	}
	if m.revoked.IsRevoked(ctx, claims.ID) {
		return nil, fmt.Errorf("%w: impersonation session ended", shared.ErrUnauthenticated)
	}
	name, err := m.tenants.TenantName(ctx, claims.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: impersonated tenant unavailable", shared.ErrUnauthenticated)
	}
	return &shared.SecurityContext{
		SubjectID:        claims.ID,
		Email:            claims.SuperAdminEmail,
		IsImpersonation:  true,
		TenantID:         claims.TenantID,
		TenantName:       name,
		RoleName:         "Impersonation",
		Permissions:      []string{shared.PermissionWildcard},
		UserStatus:       shared.StatusActive,
		BranchScope:      shared.ScopeAll,
		IdentityProvider: "impersonation",
	}, nil
}

// Window reports the issue/expiry window of a still-valid grant.
func (m *Manager) Window(bearer string) (issued, expires time.Time, err error) {
	claims, err := m.parse(bearer)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return claims.IssuedAt.Time, claims.ExpiresAt.Time, nil
}

// Stop ends the session: the audit write is mandatory and the token ID goes
// on the revocation list for its remaining lifetime.
func (m *Manager) Stop(ctx context.Context, sc *shared.SecurityContext, bearer string) error {
	if sc == nil || !sc.IsPlatformAdmin {
		return fmt.Errorf("%w: impersonation requires a platform administrator", shared.ErrForbidden)
	}
	claims, err := m.parse(bearer)
	if err != nil {
		return err
	}
	if err := m.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("impersonation: revoke grant: %w", err)
	}
	if err := m.auditor.Record(ctx, audit.Entry{
		TenantID:   claims.TenantID,
		Action:     audit.ActionImpersonationEnd,
		Resource:   "tenants/" + claims.TenantID,
		ActorEmail: sc.Email,
		Details: map[string]any{
			"grant_id":   claims.ID,
			"started_by": claims.SuperAdminEmail,
		},
	}); err != nil {
		return fmt.Errorf("impersonation: audit stop: %w", err)
	}
	return nil
}

func (m *Manager) parse(bearer string) (*Claims, error) {
	if !IsImpersonationToken(bearer) {
		return nil, fmt.Errorf("%w: not an impersonation credential", shared.ErrUnauthenticated)
	}
	raw := strings.TrimPrefix(bearer, TokenPrefix)
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		if err != nil && errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: impersonation expired", shared.ErrUnauthenticated)
		}
		return nil, shared.ErrUnauthenticated
	}
	if claims.TenantID == "" || claims.SuperAdminEmail == "" {
		return nil, shared.ErrUnauthenticated
	}
	return claims, nil
}
