package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"modelgate.org/internal/stream"
)

func newTestService(t *testing.T) (*Service, *MemoryUserStore, *MemoryRefreshTokenStore) {
	t.Helper()
	tokens, err := NewAccessTokens(testKeyMaterial(t), 15*time.Minute)
	if err != nil {
		t.Fatalf("NewAccessTokens failed: %v", err)
	}
	users := NewMemoryUserStore()
	refresh := NewMemoryRefreshTokenStore()
	return NewService(users, refresh, tokens), users, refresh
}

func signUp(t *testing.T, svc *Service, email string) (*User, *TokenPair) {
	t.Helper()
	user, pair, err := svc.SignUp(context.Background(), Registration{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     email,
		Password:  "correct-horse",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	return user, pair
}

func TestSignUpIssuesSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	user, pair := signUp(t, svc, "ada@example.com")

	if !user.Enabled || !user.HasRole(RoleUser) {
		t.Fatalf("unexpected user state: %+v", user)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}

	principal, err := svc.VerifyAccess(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess failed: %v", err)
	}
	if principal.UserID != user.ID {
		t.Fatalf("principal mismatch: %q vs %q", principal.UserID, user.ID)
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	signUp(t, svc, "ada@example.com")

	_, _, err := svc.SignUp(context.Background(), Registration{
		Email:    "Ada@Example.com",
		Password: "another-pass",
	})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestSignUpRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	cases := []Registration{
		{Email: "", Password: "long-enough"},
		{Email: "not-an-email", Password: "long-enough"},
		{Email: "ok@example.com", Password: "short"},
	}
	for _, reg := range cases {
		if _, _, err := svc.SignUp(context.Background(), reg); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("SignUp(%+v): expected ErrInvalidInput, got %v", reg, err)
		}
	}
}

func TestSignInWrongCredentials(t *testing.T) {
	svc, _, _ := newTestService(t)
	signUp(t, svc, "ada@example.com")

	if _, _, err := svc.SignIn(context.Background(), "ada@example.com", "wrong", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong password: expected ErrUnauthorized, got %v", err)
	}
	if _, _, err := svc.SignIn(context.Background(), "nobody@example.com", "correct-horse", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown email: expected ErrUnauthorized, got %v", err)
	}
}

func TestSignInDisabledUser(t *testing.T) {
	svc, users, _ := newTestService(t)
	user, _ := signUp(t, svc, "ada@example.com")
	if err := users.SetEnabled(context.Background(), user.ID, false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}

	if _, _, err := svc.SignIn(context.Background(), "ada@example.com", "correct-horse", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("disabled user: expected ErrUnauthorized, got %v", err)
	}
}

func TestSignInKeepsOtherSessions(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, first := signUp(t, svc, "ada@example.com")

	_, second, err := svc.SignIn(context.Background(), "ada@example.com", "correct-horse", "")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("expected a distinct refresh token per session")
	}

	// The first session must still refresh.
	if _, err := svc.Refresh(context.Background(), first.RefreshToken); err != nil {
		t.Fatalf("first session should survive a second sign-in: %v", err)
	}
}

func TestSignInRevokesPresentedToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, stale := signUp(t, svc, "ada@example.com")

	if _, _, err := svc.SignIn(context.Background(), "ada@example.com", "correct-horse", stale.RefreshToken); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), stale.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("stale token presented at sign-in should be revoked, got %v", err)
	}
}

func TestRefreshRotates(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, pair := signUp(t, svc, "ada@example.com")

	rotated, err := svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh must produce a new token")
	}
	if rotated.AccessToken == "" {
		t.Fatal("refresh must mint a new access token")
	}

	// The consumed token is now a replay.
	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on replay, got %v", err)
	}
}

func TestRefreshReplayRevokesAllSessions(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, pair := signUp(t, svc, "ada@example.com")

	rotated, err := svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// Replay of the consumed token is a theft signal.
	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on replay, got %v", err)
	}

	// The attacker-visible and legitimate tokens alike are dead now.
	if _, err := svc.Refresh(context.Background(), rotated.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected cascade revocation of the live token, got %v", err)
	}
}

func TestRefreshEventsDistinguishReplay(t *testing.T) {
	tokens, err := NewAccessTokens(testKeyMaterial(t), 15*time.Minute)
	if err != nil {
		t.Fatalf("NewAccessTokens failed: %v", err)
	}
	events := stream.New()
	svc := NewService(NewMemoryUserStore(), NewMemoryRefreshTokenStore(), tokens, WithEventStream(events))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed := events.Subscribe(ctx)

	_, pair := signUp(t, svc, "ada@example.com")

	// A garbage token is a plain rejection, not a theft signal.
	if _, err := svc.Refresh(context.Background(), "no-such-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	// Consume, then replay the consumed token.
	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on replay, got %v", err)
	}

	var types []string
	for len(feed) > 0 {
		types = append(types, (<-feed).Type)
	}
	var replays int
	for _, typ := range types {
		if typ == stream.EventRefreshReplay {
			replays++
		}
	}
	if replays != 1 {
		t.Fatalf("expected exactly one replay event, got %d in %v", replays, types)
	}
}

func TestRefreshDisabledUser(t *testing.T) {
	svc, users, _ := newTestService(t)
	user, pair := signUp(t, svc, "ada@example.com")
	if err := users.SetEnabled(context.Background(), user.ID, false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}

	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("disabled user refresh: expected ErrInvalidToken, got %v", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, pair := signUp(t, svc, "ada@example.com")

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Refresh(context.Background(), pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	wins := 0
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrInvalidToken):
		default:
			t.Fatalf("racer %d: unexpected error %v", i, err)
		}
	}
	if wins > 1 {
		t.Fatalf("expected at most one successful rotation, got %d", wins)
	}
}

func TestSignOutIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, pair := signUp(t, svc, "ada@example.com")

	if err := svc.SignOut(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if err := svc.SignOut(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("second SignOut should succeed: %v", err)
	}
	if err := svc.SignOut(context.Background(), "unknown-token"); err != nil {
		t.Fatalf("SignOut of unknown token should succeed: %v", err)
	}
	if err := svc.SignOut(context.Background(), ""); err != nil {
		t.Fatalf("SignOut without a token should succeed: %v", err)
	}

	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("signed-out token must not refresh, got %v", err)
	}
}

func TestVerifyAccessDisabledUser(t *testing.T) {
	svc, users, _ := newTestService(t)
	user, pair := signUp(t, svc, "ada@example.com")
	if err := users.SetEnabled(context.Background(), user.ID, false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}

	if _, err := svc.VerifyAccess(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("disabled user access: expected ErrInvalidToken, got %v", err)
	}
}

func TestSweepExpired(t *testing.T) {
	current := time.Now().UTC()
	refresh := NewMemoryRefreshTokenStore(
		WithMemoryRefreshTTL(time.Hour),
		WithMemoryRefreshClock(func() time.Time { return current }),
	)

	raw, err := refresh.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	current = current.Add(2 * time.Hour)
	n, err := refresh.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 swept record, got %d", n)
	}
	if _, err := refresh.Resolve(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("swept token must not resolve, got %v", err)
	}
}
