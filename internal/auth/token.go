package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "Bearer "

// Claims mirrors the payload issued by the REST login flow.
type Claims struct {
	UserID string `json:"_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// UserDirectory resolves the current record of a user id.
type UserDirectory interface {
	FindUser(ctx context.Context, userID string) (domain.Identity, error)
}

// Verifier turns a bearer credential into a verified identity.
type Verifier struct {
	secret []byte
	users  UserDirectory
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithUserDirectory makes the verifier re-read every user after the signature check.
func WithUserDirectory(users UserDirectory) Option {
	return func(v *Verifier) { v.users = users }
}

func NewVerifier(secret string, opts ...Option) *Verifier {
	v := &Verifier{secret: []byte(secret)}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Authenticate validates raw (with or without the "Bearer " prefix) and returns the identity it carries.
// Every failure wraps domain.ErrAuthentication.
func (v *Verifier) Authenticate(ctx context.Context, raw string) (domain.Identity, error) {
	tok := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), bearerPrefix))
	if tok == "" {
		return domain.Identity{}, fmt.Errorf("%w: no token provided", domain.ErrAuthentication)
	}

	parsed, err := jwt.ParseWithClaims(tok, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return domain.Identity{}, fmt.Errorf("%w: invalid token", domain.ErrAuthentication)
	}

	identity := domain.Identity{
		ID:          claims.UserID,
		DisplayName: claims.Name,
		Role:        domain.Role(claims.Role),
	}
	if v.users != nil && identity.ID != "" {
		stored, err := v.users.FindUser(ctx, identity.ID)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return domain.Identity{}, fmt.Errorf("%w: unknown user", domain.ErrAuthentication)
			}
			return domain.Identity{}, fmt.Errorf("%w: user lookup: %v", domain.ErrAuthentication, err)
		}
		identity = stored
	}

	if identity.ID == "" || identity.DisplayName == "" {
		return domain.Identity{}, fmt.Errorf("%w: token is missing id or name", domain.ErrAuthentication)
	}
	if !identity.Role.Valid() {
		return domain.Identity{}, fmt.Errorf("%w: unknown role %q", domain.ErrAuthentication, identity.Role)
	}
	return identity, nil
}

// TokenFromRequest reads the credential from the Authorization header, falling back to
// the "token" query value for browser websocket clients that cannot set headers.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return h
	}
	return r.URL.Query().Get("token")
}

// Issue signs a credential for identity. Used by the token command and tests.
func Issue(secret string, identity domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: identity.ID,
		Name:   identity.DisplayName,
		Role:   string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
