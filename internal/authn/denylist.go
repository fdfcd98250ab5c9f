package authn

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist is the explicit token revocation list. There is no per-token
// session store; instead, revoking an actor records a cutoff instant in
// redis, and any token issued at or before that instant is rejected by the
// middleware before the superadmin fast path. Entries expire with the token
// lifetime, after which every token issued before the cutoff has expired on
// its own.
type Denylist struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewDenylist constructs a Denylist. ttl should match the token lifetime.
func NewDenylist(client *redis.Client, ttl time.Duration) *Denylist {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Denylist{client: client, ttl: ttl, now: time.Now}
}

func denyKey(actorID int64) string {
	return "examdesk:revoked:" + strconv.FormatInt(actorID, 10)
}

// Revoke invalidates every token the actor currently holds.
func (d *Denylist) Revoke(ctx context.Context, actorID int64) error {
	if d == nil || d.client == nil {
		return nil
	}
	cutoff := d.now().UTC().Format(time.RFC3339Nano)
	return d.client.Set(ctx, denyKey(actorID), cutoff, d.ttl).Err()
}

// IsRevoked reports whether a token issued at the given instant has been
// revoked for the actor. A nil Denylist never revokes.
func (d *Denylist) IsRevoked(ctx context.Context, actorID int64, issuedAt time.Time) (bool, error) {
	if d == nil || d.client == nil {
		return false, nil
	}
	raw, err := d.client.Get(ctx, denyKey(actorID)).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	cutoff, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		// An unreadable entry fails closed: the actor was revoked.
		return true, nil
	}
	return !issuedAt.After(cutoff), nil
}
