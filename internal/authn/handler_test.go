package authn_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/examdesk/examdesk/internal/authn"
)

func newLoginRouter(t *testing.T, source *stubAccounts) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := authn.NewService(source, authn.NewTokenManager("secret", time.Hour), nil, nil, nil, nil, logger)
	handler := authn.NewHandler(logger, svc, nil)
	r := chi.NewRouter()
	handler.MountLogin(r)
	return r
}

func postLogin(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestLoginShortWrongPasswordIsUnauthorized(t *testing.T) {
	router := newLoginRouter(t, &stubAccounts{account: activeAccount(t)})

	rr := postLogin(t, router, `{"email":"staff@examdesk.local","password":"nope"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"success":false`) {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestLoginMissingPasswordIsBadRequest(t *testing.T) {
	router := newLoginRouter(t, &stubAccounts{account: activeAccount(t)})

	rr := postLogin(t, router, `{"email":"staff@examdesk.local","password":""}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}
