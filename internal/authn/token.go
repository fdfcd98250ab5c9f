// Package authn issues and verifies the bearer tokens that carry an
// administrator's identity between requests, and authenticates logins.
package authn

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/examdesk/examdesk/internal/perms"
	"github.com/examdesk/examdesk/internal/shared"
)

// Claims is the signed token payload. Role is the coarse tag only: "admin"
// for superadmins, "subadmin" for everyone else. Module-level authorization
// must reload the stored account; the tag is not sufficient on its own.
type Claims struct {
	jwt.RegisteredClaims
	Role  perms.CoarseRole `json:"role"`
	Email string           `json:"email"`
	Name  string           `json:"name"`
}

// TokenManager signs and verifies HS256 bearer tokens. The signing secret is
// process-wide and read once at startup; rotating it invalidates every
// outstanding token.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

// DefaultTokenTTL matches the console's seven-day session length.
const DefaultTokenTTL = 7 * 24 * time.Hour

// NewTokenManager constructs a TokenManager.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		leeway: 30 * time.Second,
		now:    time.Now,
	}
}

// Issue signs a token for the given account identity. Returns the compact
// token and its expiry.
func (m *TokenManager) Issue(actorID int64, classification perms.Classification, email, name string) (string, time.Time, error) {
	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(actorID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role:  classification.Coarse(),
		Email: email,
		Name:  name,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verify parses and validates a compact token, returning the decoded
// identity. Any signature or expiry failure maps to shared.ErrTokenInvalid.
func (m *TokenManager) Verify(tokenString string) (shared.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.leeway),
	)
	if err != nil || !token.Valid {
		return shared.Identity{}, shared.ErrTokenInvalid
	}
	actorID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return shared.Identity{}, shared.ErrTokenInvalid
	}
	var issuedAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	return shared.Identity{
		ActorID:  actorID,
		Role:     claims.Role,
		Email:    claims.Email,
		Name:     claims.Name,
		TokenID:  claims.ID,
		IssuedAt: issuedAt,
	}, nil
}

// VerifyRequest extracts and verifies the bearer token from a request.
func (m *TokenManager) VerifyRequest(r *http.Request) (shared.Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return shared.Identity{}, shared.ErrTokenMissing
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return shared.Identity{}, shared.ErrTokenMissing
	}
	return m.Verify(parts[1])
}

// TTL exposes the configured token lifetime.
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}
