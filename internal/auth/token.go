package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/codespacesh/workshop-hub/internal/identity"
)

// tokenTTL is the session token's fixed lifetime (spec.md §3).
const tokenTTL = 24 * time.Hour

// claims is the token payload: subject=user_id, username, issued_at,
// expires_at (jwt.RegisteredClaims carries iat/exp/sub).
type claims struct {
	Username string `json:"username"`
	Profile  string `json:"profile,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies session tokens against a process-wide secret.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

// NewIssuer creates an Issuer using the given HS256 signing secret.
func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret), now: time.Now}
}

// Issue creates a signed session token for the given identity, expiring
// tokenTTL from now.
func (i *Issuer) Issue(id identity.Identity) (string, time.Time, error) {
	now := i.now().UTC()
	expiresAt := now.Add(tokenTTL)

	c := claims{
		Username: id.Username,
		Profile:  id.Profile,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify parses and validates a session token, returning the carried
// identity. Expiry and signature are both checked by jwt.ParseWithClaims;
// the caller treats any error as "no identity" (auth is passive — see
// RequireAuth/Resolve in middleware.go).
func (i *Issuer) Verify(tokenString string) (identity.Identity, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return identity.Identity{}, err
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return identity.Identity{}, fmt.Errorf("invalid token claims")
	}
	sub, err := c.GetSubject()
	if err != nil || sub == "" {
		return identity.Identity{}, fmt.Errorf("token missing subject claim")
	}
	return identity.Identity{UserID: sub, Username: c.Username, Profile: c.Profile}, nil
}
