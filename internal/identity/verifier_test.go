package identity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"community-chat/internal/storage/database/user"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "unit-test-secret"

// fakeUserRepo 測試用的用戶倉儲
type fakeUserRepo struct {
	users map[string]*user.User
	err   error
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*user.User, error) {
	if r.err != nil {
		return nil, r.err
	}
	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user not found: %s", id)
	}
	return u, nil
}

func signToken(t *testing.T, secret, userID string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestResolveValidToken(t *testing.T) {
	repo := &fakeUserRepo{users: map[string]*user.User{
		"64f000000000000000000001": {Username: "Alice"},
	}}
	v := NewVerifier(testSecret, repo, "Guest")

	token := signToken(t, testSecret, "64f000000000000000000001", time.Now().Add(time.Hour))
	id := v.Resolve(context.Background(), token, "")

	if id.IsGuest() {
		t.Fatal("expected authenticated identity")
	}
	if id.UserID != "64f000000000000000000001" || id.DisplayName != "Alice" {
		t.Errorf("unexpected identity: %+v", id)
	}
}

func TestResolveEmptyTokenIsNamedGuest(t *testing.T) {
	v := NewVerifier(testSecret, &fakeUserRepo{}, "Guest")

	id := v.Resolve(context.Background(), "", "Wanderer")
	if !id.IsGuest() || id.DisplayName != "Wanderer" {
		t.Errorf("expected named guest, got %+v", id)
	}

	// 未提供名稱時用預設顯示名稱
	id = v.Resolve(context.Background(), "  ", "")
	if !id.IsGuest() || id.DisplayName != "Guest" {
		t.Errorf("expected default guest, got %+v", id)
	}
}

func TestResolveSentinelTokenIsGuest(t *testing.T) {
	v := NewVerifier(testSecret, &fakeUserRepo{}, "Guest")

	id := v.Resolve(context.Background(), "guest", "Visitor")
	if !id.IsGuest() || id.DisplayName != "Visitor" {
		t.Errorf("expected guest Visitor, got %+v", id)
	}
}

func TestResolveInvalidTokenDegradesToGuest(t *testing.T) {
	v := NewVerifier(testSecret, &fakeUserRepo{}, "Guest")
	ctx := context.Background()

	cases := map[string]string{
		"garbage":      "not-a-jwt",
		"wrong secret": signToken(t, "other-secret", "64f000000000000000000001", time.Now().Add(time.Hour)),
		"expired":      signToken(t, testSecret, "64f000000000000000000001", time.Now().Add(-time.Hour)),
	}

	for name, token := range cases {
		id := v.Resolve(ctx, token, "ignored")
		if !id.IsGuest() {
			t.Errorf("%s: expected guest degradation, got %+v", name, id)
		}
		if id.DisplayName != "Guest" {
			t.Errorf("%s: degraded guest should use default name, got %q", name, id.DisplayName)
		}
	}
}

func TestResolveUnknownUserDegradesToGuest(t *testing.T) {
	repo := &fakeUserRepo{users: map[string]*user.User{}}
	v := NewVerifier(testSecret, repo, "Guest")

	token := signToken(t, testSecret, "64f0000000000000000000ff", time.Now().Add(time.Hour))
	id := v.Resolve(context.Background(), token, "")

	if !id.IsGuest() || id.DisplayName != "Guest" {
		t.Errorf("expected guest degradation for missing profile, got %+v", id)
	}
}

func TestResolveLookupFailureDegradesToGuest(t *testing.T) {
	repo := &fakeUserRepo{err: fmt.Errorf("connection reset")}
	v := NewVerifier(testSecret, repo, "Guest")

	token := signToken(t, testSecret, "64f000000000000000000001", time.Now().Add(time.Hour))
	id := v.Resolve(context.Background(), token, "")

	if !id.IsGuest() {
		t.Errorf("expected guest degradation on lookup failure, got %+v", id)
	}
}

func TestMatchesEntry(t *testing.T) {
	authed := Authenticated("64f000000000000000000001", "Alice")
	guest := Guest("Ghost")

	if !authed.MatchesEntry("64f000000000000000000001", "whatever") {
		t.Error("authenticated identity should match by userId")
	}
	if authed.MatchesEntry("", "Alice") {
		t.Error("authenticated identity should not match guest entry by name")
	}
	if !guest.MatchesEntry("", "Ghost") {
		t.Error("guest should match by display name")
	}
	if guest.MatchesEntry("", "Other") {
		t.Error("guest should not match a different name")
	}
}

func TestReactorKey(t *testing.T) {
	userID, username := Authenticated("64f000000000000000000001", "Alice").ReactorKey()
	if userID != "64f000000000000000000001" || username != "Alice" {
		t.Errorf("unexpected reactor key: %q %q", userID, username)
	}

	userID, username = Guest("Ghost").ReactorKey()
	if userID != "" || username != "Ghost" {
		t.Errorf("guest reactor key should be name-only: %q %q", userID, username)
	}
}
