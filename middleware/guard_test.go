package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pairmint/pairmint"
)

type staticResolver struct{}

func (staticResolver) FindByID(_ context.Context, id string) (pairmint.Identity, error) {
	if id != "user-1" {
		return pairmint.Identity{}, pairmint.ErrIdentityNotFound
	}
	return pairmint.Identity{ID: "user-1", Email: "alice@example.com"}, nil
}

func (r staticResolver) FindByOwnerRef(ctx context.Context, ref string) (pairmint.Identity, error) {
	return r.FindByID(ctx, ref)
}

func newGuardTestEngine(t *testing.T) *pairmint.Engine {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := pairmint.DefaultConfig()
	cfg.JWT.Secret = []byte("guard-test-secret-0123456789abcdef")

	engine, err := pairmint.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityResolver(staticResolver{}).
		Build()
	if err != nil {
		t.Fatalf("engine build: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine
}

func TestGuardAllowsValidToken(t *testing.T) {
	engine := newGuardTestEngine(t)

	pair, err := engine.IssuePair(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	var seen *pairmint.AuthResult
	handler := Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := AuthResultFromContext(r.Context())
		if !ok {
			t.Fatal("expected auth result in context")
		}
		seen = res
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen == nil || seen.Subject != "user-1" {
		t.Fatalf("unexpected auth result: %+v", seen)
	}
}

func TestGuardRejectsMissingAndBadTokens(t *testing.T) {
	engine := newGuardTestEngine(t)

	handler := Guard(engine)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not be reached")
	}))

	cases := map[string]string{
		"no header":      "",
		"wrong scheme":   "Basic dXNlcjpwYXNz",
		"empty bearer":   "Bearer ",
		"garbage bearer": "Bearer not-a-token",
	}

	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", name, rec.Code)
		}
	}
}

func TestGuardNilEngine(t *testing.T) {
	handler := Guard(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestWithRequestIP(t *testing.T) {
	var reached bool
	handler := WithRequestIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.1:54321"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !reached || rec.Code != http.StatusOK {
		t.Fatalf("request did not pass through, status %d", rec.Code)
	}
}
