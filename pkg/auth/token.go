package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// TokenInfo is what the client can learn from a bearer token without the
// signing key. Opaque tokens yield an empty TokenInfo with Opaque set.
type TokenInfo struct {
	Subject   string
	Username  string
	ExpiresAt time.Time
	Opaque    bool
}

// Expired reports whether the token carries an expiry before now.
func (t TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Inspect decodes a bearer token. Signatures are not verified; the backend
// does that. A token that is not a JWT is reported as opaque.
func Inspect(token string) (TokenInfo, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return TokenInfo{}, errors.New("empty token")
	}
	if strings.Count(token, ".") != 2 {
		return TokenInfo{Opaque: true}, nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, errors.Wrap(err, "malformed token")
	}

	info := TokenInfo{}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		info.Subject = sub
	} else if id, ok := claims["user_id"].(string); ok {
		info.Subject = id
	}
	if name, ok := claims["username"].(string); ok {
		info.Username = name
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return TokenInfo{}, errors.Wrap(err, "invalid exp claim")
	}
	if exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}
