package authn

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/examdesk/examdesk/internal/perms"
	"github.com/examdesk/examdesk/internal/shared"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)

	token, expiresAt, err := m.Issue(42, perms.ClassificationSubadmin, "staff@examdesk.local", "Staff Member")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if remaining := time.Until(expiresAt); remaining < 55*time.Minute {
		t.Fatalf("expiry too close: %s", remaining)
	}

	identity, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.ActorID != 42 {
		t.Fatalf("actor id = %d", identity.ActorID)
	}
	if identity.Role != perms.CoarseRoleSubadmin {
		t.Fatalf("role = %s", identity.Role)
	}
	if identity.Email != "staff@examdesk.local" || identity.Name != "Staff Member" {
		t.Fatalf("profile fields lost: %+v", identity)
	}
	if identity.TokenID == "" {
		t.Fatal("token id missing")
	}
	if identity.IssuedAt.IsZero() {
		t.Fatal("issued-at missing")
	}
}

func TestIssueSuperadminCarriesAdminTag(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	token, _, err := m.Issue(1, perms.ClassificationSuperadmin, "root@examdesk.local", "Root")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	identity, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.Role != perms.CoarseRoleAdmin {
		t.Fatalf("expected admin tag, got %s", identity.Role)
	}
	if !identity.IsAdmin() {
		t.Fatal("IsAdmin must hold for a superadmin token")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenManager("secret-a", time.Hour)
	verifier := NewTokenManager("secret-b", time.Hour)

	token, _, err := issuer.Issue(7, perms.ClassificationSubadmin, "a@b.c", "A")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Verify(token); err != shared.ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := m.Issue(7, perms.ClassificationSubadmin, "a@b.c", "A")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	m.now = time.Now
	if _, err := m.Verify(token); err != shared.ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for expired token, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	if _, err := m.Verify("not-a-token"); err != shared.ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestVerifyRequestHeaderHandling(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	token, _, err := m.Issue(9, perms.ClassificationSubadmin, "a@b.c", "A")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cases := []struct {
		name    string
		header  string
		wantErr error
	}{
		{"missing", "", shared.ErrTokenMissing},
		{"no scheme", token, shared.ErrTokenMissing},
		{"wrong scheme", "Basic " + token, shared.ErrTokenMissing},
		{"empty token", "Bearer ", shared.ErrTokenMissing},
		{"valid", "Bearer " + token, nil},
		{"case insensitive scheme", "bearer " + token, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			_, err := m.VerifyRequest(req)
			if err != tc.wantErr {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}
