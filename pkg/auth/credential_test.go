package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "", ""},
		{"bare token", "abc.def.ghi", "abc.def.ghi"},
		{"cookie pair", "session=abc.def.ghi", "abc.def.ghi"},
		{"cookie with attributes", "session=abc.def.ghi; Path=/; HttpOnly", "abc.def.ghi"},
		{"bare token with attributes", "abc.def.ghi; Path=/", "abc.def.ghi"},
		{"whitespace around value", "session=  abc.def.ghi  ", "abc.def.ghi"},
		// Only the first "=" separates name from value; the rest is token.
		{"value containing equals", "session=abc=def", "abc=def"},
		{"only separator", ";", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractToken(tt.raw))
		})
	}
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestParseCredential(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	token := signedToken(t, jwt.MapClaims{
		"sub":    "buyer1",
		"userId": float64(42),
		"roles":  []interface{}{"ROLE_USER"},
		"exp":    exp.Unix(),
	})

	cred, err := ParseCredential(token)
	require.NoError(t, err)
	assert.Equal(t, "buyer1", cred.Username)
	assert.Equal(t, int64(42), cred.UserID)
	assert.Equal(t, []string{"ROLE_USER"}, cred.Roles)
	assert.WithinDuration(t, exp, cred.ExpiresAt, time.Second)
	assert.True(t, cred.Valid())
}

func TestParseCredentialGarbage(t *testing.T) {
	_, err := ParseCredential("not-a-jwt")
	assert.Error(t, err)
}

func TestCredentialValidity(t *testing.T) {
	assert.False(t, (*Credential)(nil).Valid())
	assert.False(t, (&Credential{}).Valid())
	assert.True(t, (&Credential{Token: "x"}).Valid())

	expired := signedToken(t, jwt.MapClaims{
		"sub": "buyer1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	cred, err := ParseCredential(expired)
	require.NoError(t, err)
	assert.False(t, cred.Valid())
}

func TestBearerHeader(t *testing.T) {
	cred := &Credential{Token: "abc"}
	assert.Equal(t, "Bearer abc", cred.BearerHeader())
}
