package pairmint

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

// issueRotatablePair mints a pair and returns it together with an expired
// copy of its access token, ready for rotation.
func issueRotatablePair(t *testing.T, engine *Engine, ownerID, email string) (*TokenPair, string) {
	t.Helper()

	pair, err := engine.IssuePair(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	result, err := engine.Verify(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("verify fresh access token: %v", err)
	}

	return pair, expiredAccessToken(t, ownerID, email, result.JTI)
}

func TestRotateFullCycle(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	pair, expired := issueRotatablePair(t, engine, "user-1", "alice@example.com")

	successor, err := engine.Rotate(ctx, expired, pair.RefreshToken)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if successor.AccessToken == pair.AccessToken {
		t.Fatal("successor access token must differ")
	}
	if successor.RefreshToken == pair.RefreshToken {
		t.Fatal("successor refresh token must differ")
	}

	// The successor access token verifies and carries a new jti.
	oldResult, err := engine.Verify(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("verify old access: %v", err)
	}
	newResult, err := engine.Verify(ctx, successor.AccessToken)
	if err != nil {
		t.Fatalf("verify successor access: %v", err)
	}
	if newResult.JTI == oldResult.JTI {
		t.Fatal("successor must carry a fresh jti")
	}

	// The successor pair rotates in turn.
	newExpired := expiredAccessToken(t, "user-1", "alice@example.com", newResult.JTI)
	if _, err := engine.Rotate(ctx, newExpired, successor.RefreshToken); err != nil {
		t.Fatalf("rotate successor: %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricRotateSuccess] != 2 {
		t.Fatalf("rotate success counter = %d, want 2", snap.Counters[MetricRotateSuccess])
	}
}

func TestRotateRejectsReusedRefreshToken(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	pair, expired := issueRotatablePair(t, engine, "user-1", "alice@example.com")

	if _, err := engine.Rotate(ctx, expired, pair.RefreshToken); err != nil {
		t.Fatalf("first rotate: %v", err)
	}
	if _, err := engine.Rotate(ctx, expired, pair.RefreshToken); !errors.Is(err, ErrRefreshTokenAlreadyUsed) {
		t.Fatalf("expected ErrRefreshTokenAlreadyUsed, got %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricRotateReuseDetected] != 1 {
		t.Fatalf("reuse counter = %d, want 1", snap.Counters[MetricRotateReuseDetected])
	}
	if snap.Counters[MetricRotateRejected] != 1 {
		t.Fatalf("rejected counter = %d, want 1", snap.Counters[MetricRotateRejected])
	}
}

func TestRotateRejectsFreshAccessToken(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	pair, err := engine.IssuePair(ctx, "user-1")
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	if _, err := engine.Rotate(ctx, pair.AccessToken, pair.RefreshToken); !errors.Is(err, ErrNotYetExpired) {
		t.Fatalf("expected ErrNotYetExpired, got %v", err)
	}

	// The rejection must not have burned the refresh token: rotating with a
	// properly expired access token still works.
	result, err := engine.Verify(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	expired := expiredAccessToken(t, "user-1", "alice@example.com", result.JTI)
	if _, err := engine.Rotate(ctx, expired, pair.RefreshToken); err != nil {
		t.Fatalf("rotate after premature attempt: %v", err)
	}
}

func TestRotateRejectsInvalidAccessToken(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	pair, err := engine.IssuePair(ctx, "user-1")
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	if _, err := engine.Rotate(ctx, "garbage", pair.RefreshToken); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}

	foreign := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.RegisteredClaims{
		Subject:   "user-1",
		ID:        "33333333-3333-4333-8333-333333333333",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	signed, err := foreign.SignedString([]byte("some-other-key-of-sufficient-size!!"))
	if err != nil {
		t.Fatalf("sign foreign token: %v", err)
	}
	if _, err := engine.Rotate(ctx, signed, pair.RefreshToken); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}

	// No exp claim at all.
	noExp := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.RegisteredClaims{
		Subject: "user-1",
		ID:      "44444444-4444-4444-8444-444444444444",
	})
	signedNoExp, err := noExp.SignedString(testEngineSecret())
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := engine.Rotate(ctx, signedNoExp, pair.RefreshToken); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken for missing exp, got %v", err)
	}
}

func TestRotateRejectsUnknownRefreshToken(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig())

	expired := expiredAccessToken(t, "user-1", "", "55555555-5555-4555-8555-555555555555")
	_, err := engine.Rotate(context.Background(), expired, "never-issued-value")
	if !errors.Is(err, ErrUnknownRefreshToken) {
		t.Fatalf("expected ErrUnknownRefreshToken, got %v", err)
	}
}

func TestRotateRejectsCrossedPair(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	pairA, expiredA := issueRotatablePair(t, engine, "user-1", "alice@example.com")
	pairB, _ := issueRotatablePair(t, engine, "user-1", "alice@example.com")

	// Access token of pair A with refresh token of pair B.
	if _, err := engine.Rotate(ctx, expiredA, pairB.RefreshToken); !errors.Is(err, ErrTokenBindingMismatch) {
		t.Fatalf("expected ErrTokenBindingMismatch, got %v", err)
	}

	if got := engine.MetricsSnapshot().Counters[MetricRotateBindingMismatch]; got != 1 {
		t.Fatalf("binding mismatch counter = %d, want 1", got)
	}

	// The mismatch must not burn either token: both pairs still rotate.
	if _, err := engine.Rotate(ctx, expiredA, pairA.RefreshToken); err != nil {
		t.Fatalf("rotate pair A after mismatch: %v", err)
	}
	resultB, err := engine.Verify(ctx, pairB.AccessToken)
	if err != nil {
		t.Fatalf("verify pair B: %v", err)
	}
	expiredB := expiredAccessToken(t, "user-1", "alice@example.com", resultB.JTI)
	if _, err := engine.Rotate(ctx, expiredB, pairB.RefreshToken); err != nil {
		t.Fatalf("rotate pair B after mismatch: %v", err)
	}
}

func TestRotateRejectsRevokedRefreshToken(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	pair, expired := issueRotatablePair(t, engine, "user-1", "alice@example.com")

	if err := engine.Revoke(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := engine.Rotate(ctx, expired, pair.RefreshToken); !errors.Is(err, ErrRefreshTokenRevoked) {
		t.Fatalf("expected ErrRefreshTokenRevoked, got %v", err)
	}
}

func TestRotateBurnsTokenWhenOwnerVanishes(t *testing.T) {
	engine, resolver := newTestEngine(t, testConfig())
	ctx := context.Background()

	pair, expired := issueRotatablePair(t, engine, "user-1", "alice@example.com")

	resolver.Delete("user-1")

	if _, err := engine.Rotate(ctx, expired, pair.RefreshToken); !errors.Is(err, ErrUnknownOwner) {
		t.Fatalf("expected ErrUnknownOwner, got %v", err)
	}

	// The refresh token was consumed on the way: even if the owner
	// reappears, that token can never rotate again.
	resolver.Put(Identity{ID: "user-1", Email: "alice@example.com"})
	if _, err := engine.Rotate(ctx, expired, pair.RefreshToken); !errors.Is(err, ErrRefreshTokenAlreadyUsed) {
		t.Fatalf("expected ErrRefreshTokenAlreadyUsed, got %v", err)
	}
}

func TestRotateConcurrencySingleWinner(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig())

	pair, expired := issueRotatablePair(t, engine, "user-1", "alice@example.com")

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := engine.Rotate(context.Background(), expired, pair.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	reuse := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrRefreshTokenAlreadyUsed):
			reuse++
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}

	if success != 1 {
		t.Fatalf("expected exactly one rotate success, got %d", success)
	}
	if reuse != n-1 {
		t.Fatalf("expected %d reuse rejections, got %d", n-1, reuse)
	}
}

func TestRotateLatencyHistogram(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.EnableLatencyHistograms = true
	engine, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	pair, expired := issueRotatablePair(t, engine, "user-1", "alice@example.com")
	if _, err := engine.Rotate(ctx, expired, pair.RefreshToken); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	snap := engine.MetricsSnapshot()
	buckets := snap.Histograms[MetricRotateLatency]
	if len(buckets) == 0 {
		t.Fatal("expected latency histogram in snapshot")
	}
	var total uint64
	for _, b := range buckets {
		total += b
	}
	if total != 1 {
		t.Fatalf("latency sample count = %d, want 1", total)
	}
}
