// Package auth is the identity collaborator for the gateway: it issues and
// validates moderator tokens and checks stored credentials. The core engine
// never authenticates anyone, it only records the supplied identity.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the data stored inside a moderator token.
type Claims struct {
	ModeratorID string   `json:"moderator_id"`
	Name        string   `json:"name"`
	Roles       []string `json:"roles"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	key      []byte
	duration time.Duration
}

func NewTokenManager(secret string, duration time.Duration) *TokenManager {
	return &TokenManager{key: []byte(secret), duration: duration}
}

// Generate creates a signed HS256 token for a moderator.
func (t *TokenManager) Generate(moderatorID, name string, roles []string) (string, error) {
	now := time.Now()
	claims := &Claims{
		ModeratorID: moderatorID,
		Name:        name,
		Roles:       roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "comment-hub",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
}

// Validate parses and checks the signature and expiration of a token string.
func (t *TokenManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return t.key, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
