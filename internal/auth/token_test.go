package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestAuthenticateAcceptsValidToken(t *testing.T) {
	req := require.New(t)
	v := NewVerifier(secret)
	tok, err := Issue(secret, domain.Identity{ID: "u1", DisplayName: "Alice", Role: domain.RoleTeacher}, time.Minute)
	req.NoError(err)

	for _, raw := range []string{tok, "Bearer " + tok} {
		id, err := v.Authenticate(context.Background(), raw)
		req.NoError(err)
		req.Equal(domain.Identity{ID: "u1", DisplayName: "Alice", Role: domain.RoleTeacher}, id)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	expired, err := Issue(secret, domain.Identity{ID: "u1", DisplayName: "Alice", Role: domain.RoleStudent}, -time.Minute)
	require.NoError(t, err)
	forged, err := Issue("other-secret", domain.Identity{ID: "u1", DisplayName: "Alice", Role: domain.RoleStudent}, time.Minute)
	require.NoError(t, err)
	badRole, err := Issue(secret, domain.Identity{ID: "u1", DisplayName: "Alice", Role: "wizard"}, time.Minute)
	require.NoError(t, err)
	noName, err := Issue(secret, domain.Identity{ID: "u1", Role: domain.RoleStudent}, time.Minute)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1", Name: "Alice", Role: "student"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"missing":   "",
		"bearer":    "Bearer ",
		"malformed": "not-a-jwt",
		"expired":   expired,
		"forged":    forged,
		"bad role":  badRole,
		"no name":   noName,
		"alg none":  none,
	}
	v := NewVerifier(secret)
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Authenticate(context.Background(), raw)
			require.ErrorIs(t, err, domain.ErrAuthentication)
		})
	}
}

type stubDirectory map[string]domain.Identity

func (d stubDirectory) FindUser(_ context.Context, id string) (domain.Identity, error) {
	if user, ok := d[id]; ok {
		return user, nil
	}
	return domain.Identity{}, domain.ErrUserNotFound
}

func TestAuthenticateUsesDirectory(t *testing.T) {
	req := require.New(t)
	dir := stubDirectory{"u1": {ID: "u1", DisplayName: "Alice B.", Role: domain.RoleTeacher}}
	v := NewVerifier(secret, WithUserDirectory(dir))

	stale, err := Issue(secret, domain.Identity{ID: "u1", DisplayName: "Alice", Role: domain.RoleStudent}, time.Minute)
	req.NoError(err)
	id, err := v.Authenticate(context.Background(), stale)
	req.NoError(err)
	req.Equal("Alice B.", id.DisplayName)
	req.Equal(domain.RoleTeacher, id.Role)

	ghost, err := Issue(secret, domain.Identity{ID: "u9", DisplayName: "Ghost", Role: domain.RoleStudent}, time.Minute)
	req.NoError(err)
	_, err = v.Authenticate(context.Background(), ghost)
	req.ErrorIs(err, domain.ErrAuthentication)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=abc", nil)
	require.Equal(t, "abc", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer xyz")
	require.Equal(t, "Bearer xyz", TokenFromRequest(r))
}
