package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func TestProfileRequiresHeader(t *testing.T) {
	called := false
	h := Profile(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if called {
		t.Fatal("handler should not run without a profile")
	}
}

func TestProfileRejectsMalformedID(t *testing.T) {
	h := Profile(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(ProfileHeader, "bad id:with spaces")

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestProfileBindsContext(t *testing.T) {
	var got string
	h := Profile(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ProfileIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(ProfileHeader, " tab-1 ")

	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "tab-1" {
		t.Fatalf("expected trimmed profile id, got %q", got)
	}
}

func TestAuthAndRequireRole(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 5}
	token, err := pkgAuth.MintAccessToken(cfg, time.Now(), pkgAuth.AccessTokenPayload{
		Subject: "ops@example.com",
		Role:    enums.StaffRoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	var subject string
	h := Auth(cfg, nil)(RequireRole(nil, enums.StaffRoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d: %s", resp.Code, resp.Body.String())
	}
	if subject != "ops@example.com" {
		t.Fatalf("unexpected subject %q", subject)
	}

	missing := httptest.NewRecorder()
	h.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil))
	if missing.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", missing.Code)
	}

	forged := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil)
	forged.Header.Set("Authorization", "Bearer "+token+"x")
	bad := httptest.NewRecorder()
	h.ServeHTTP(bad, forged)
	if bad.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for tampered token got %d", bad.Code)
	}
}

func TestRequireRoleForbidsOtherRoles(t *testing.T) {
	h := RequireRole(nil, enums.StaffRoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithStaff(req.Context(), "someone", "viewer"))

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

type counterStore struct {
	counts map[string]int64
}

func (c *counterStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.counts[key]++
	return c.counts[key], nil
}

func TestRateLimitBlocksPerProfile(t *testing.T) {
	store := &counterStore{counts: map[string]int64{}}
	policy := NewRateLimitPolicy("orders", time.Minute, 0, 2)
	h := RateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(profile string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
		req = req.WithContext(WithProfileID(req.Context(), profile))
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		return resp.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("p1"); code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 got %d", i+1, code)
		}
	}
	if code := send("p1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", code)
	}
	if code := send("p2"); code != http.StatusCreated {
		t.Fatalf("other profiles keep their own budget, got %d", code)
	}
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := RateLimit(NewRateLimitPolicy("reviews", 0, 1, 1), &counterStore{counts: map[string]int64{}}, nil)(next)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected passthrough, got %d", resp.Code)
	}
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", " 10.0.0.1 , 10.0.0.2")
	if got := clientIP(req); got != "10.0.0.1" {
		t.Fatalf("unexpected ip %q", got)
	}
}

func TestRequestIDReplacesUntrustedHeader(t *testing.T) {
	h := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for in, keep := range map[string]bool{
		"edge-7f3a.01":              true,
		"":                          false,
		"<script>alert(1)</script>": false,
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
		req.Header.Set(requestIDHeader, in)
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)

		got := resp.Header().Get(requestIDHeader)
		if keep && got != in {
			t.Fatalf("expected %q to be kept, got %q", in, got)
		}
		if !keep && (got == in || len(got) != 36) {
			t.Fatalf("expected a fresh uuid for %q, got %q", in, got)
		}
	}
}

func TestRecovererWritesInternalError(t *testing.T) {
	h := Recoverer(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil cart line")
	}))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}

func TestRecovererRepanicsOnAbort(t *testing.T) {
	h := Recoverer(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
