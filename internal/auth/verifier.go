// Package auth validates the bearer tokens minted by the external
// authentication system. Identity lives there; this application only
// checks the signature and lifts out the claims it needs.
package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zerocost/portal/internal/config"
	entitlementdomain "github.com/zerocost/portal/internal/entitlement/domain"
	"go.uber.org/fx"
)

var ErrUnauthorized = errors.New("unauthorized")

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Email  string
}

type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
}

func NewVerifier(cfg config.Config) *Verifier {
	return &Verifier{secret: []byte(cfg.AuthJWTSecret)}
}

// Verify parses an HS256 bearer token and returns the caller identity.
// Tokens without an email claim are rejected; every dashboard lookup is
// keyed by email.
func (v *Verifier) Verify(token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(v.secret) == 0 {
		return nil, ErrUnauthorized
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrUnauthorized
	}

	email := entitlementdomain.NormalizeEmail(claims.Email)
	if email == "" {
		return nil, ErrUnauthorized
	}

	return &Identity{
		UserID: claims.Subject,
		Email:  email,
	}, nil
}

var Module = fx.Module("auth",
	fx.Provide(NewVerifier),
)
