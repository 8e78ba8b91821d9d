package impersonation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const revocationKeyPrefix = "impersonation:revoked:"

// RevocationList marks stopped grants unusable for their remaining lifetime.
// Keys expire with the grant, so the list never needs sweeping.
type RevocationList struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewRevocationList builds a redis-backed revocation list.
func NewRevocationList(client *redis.Client, logger *slog.Logger) *RevocationList {
	return &RevocationList{client: client, logger: logger, now: time.Now}
}

// Revoke stores the grant ID until the grant's natural expiry.
func (l *RevocationList) Revoke(ctx context.Context, grantID string, until time.Time) error {
	if l == nil || l.client == nil {
		return errors.New("revocation list not configured")
	}
	remaining := until.Sub(l.now())
	if remaining <= 0 {
		// Already expired; nothing to revoke.
		return nil
	}
	return l.client.Set(ctx, revocationKeyPrefix+grantID, "1", remaining).Err()
}

// IsRevoked reports whether the grant was explicitly stopped. Lookup failures
// are logged and treated as not revoked: revocation is a tightening layered on
// the short TTL, and an unavailable list must not lock out expiry enforcement.
func (l *RevocationList) IsRevoked(ctx context.Context, grantID string) bool {
	if l == nil || l.client == nil {
		return false
	}
	err := l.client.Get(ctx, revocationKeyPrefix+grantID).Err()
	if err == nil {
		return true
	}
	if !errors.Is(err, redis.Nil) && l.logger != nil {
		l.logger.Warn("revocation lookup failed", slog.Any("error", err))
	}
	return false
}
