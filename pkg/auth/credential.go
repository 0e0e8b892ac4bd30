package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ExtractToken pulls the bearer token out of raw session-cookie-like text.
// The stored value may be a bare token or a "name=token; attr; ..." cookie
// string. Returns "" on anything it cannot make sense of; never panics.
func ExtractToken(raw string) string {
	if raw == "" {
		return ""
	}
	firstPart := raw
	if idx := strings.Index(raw, ";"); idx >= 0 {
		firstPart = raw[:idx]
	}
	sep := strings.Index(firstPart, "=")
	if sep == -1 {
		return strings.TrimSpace(firstPart)
	}
	return strings.TrimSpace(firstPart[sep+1:])
}

// Credential is the session bearer credential plus whatever identity the
// token itself discloses. The token is never verified client-side; the
// service is the authority, the client only needs the claims.
type Credential struct {
	Token     string
	Username  string
	UserID    int64
	Roles     []string
	ExpiresAt time.Time
}

// ParseCredential inspects the token claims without verifying the signature.
func ParseCredential(token string) (*Credential, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}

	cred := &Credential{Token: token}

	if sub, ok := claims["sub"].(string); ok {
		cred.Username = sub
	}
	if exp, ok := claims["exp"].(float64); ok {
		cred.ExpiresAt = time.Unix(int64(exp), 0)
	}
	if id, ok := claims["userId"].(float64); ok {
		cred.UserID = int64(id)
	}
	if rawRoles, ok := claims["roles"].([]interface{}); ok {
		for _, r := range rawRoles {
			if role, ok := r.(string); ok {
				cred.Roles = append(cred.Roles, role)
			}
		}
	}

	return cred, nil
}

// Valid reports whether the credential can still be presented: a token is
// held and, when the token carries an expiry, it has not passed.
func (c *Credential) Valid() bool {
	if c == nil || c.Token == "" {
		return false
	}
	if !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt) {
		return false
	}
	return true
}

// BearerHeader formats the Authorization header value for REST calls and the
// realtime connect handshake.
func (c *Credential) BearerHeader() string {
	return "Bearer " + c.Token
}
