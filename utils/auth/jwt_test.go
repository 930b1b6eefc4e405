package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sahilchouksey/course-marketplace/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(expiry time.Duration) *JWTManager {
	return NewJWTManager(JWTConfig{Secret: "test-secret", Expiry: expiry, Issuer: "test"})
}

func TestGenerateAndValidate(t *testing.T) {
	m := newManager(time.Hour)

	token, jti, err := m.GenerateAccessToken(42, model.RoleInstructor)
	require.NoError(t, err)
	assert.NotEmpty(t, jti)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "instructor", claims.Role)
	assert.Equal(t, jti, claims.ID)
}

func TestValidateToken_Rejects(t *testing.T) {
	m := newManager(time.Hour)

	expired, _, err := newManager(-time.Minute).GenerateAccessToken(1, model.RoleStudent)
	require.NoError(t, err)
	_, err = m.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	foreign, _, err := NewJWTManager(JWTConfig{Secret: "other", Expiry: time.Hour}).GenerateAccessToken(1, model.RoleStudent)
	require.NoError(t, err)
	_, err = m.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Well-signed tokens are still refused for a foreign role, a refresh type or another issuer.
	_, err = m.ValidateToken(sign(t, Claims{UserID: 1, Role: "super_admin", TokenType: "access"}, "test"))
	assert.ErrorIs(t, err, ErrInvalidClaims)

	_, err = m.ValidateToken(sign(t, Claims{UserID: 1, Role: "student", TokenType: "refresh"}, "test"))
	assert.ErrorIs(t, err, ErrInvalidClaims)

	_, err = m.ValidateToken(sign(t, Claims{UserID: 1, Role: "student", TokenType: "access"}, "someone-else"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func sign(t *testing.T, claims Claims, issuer string) string {
	t.Helper()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}
