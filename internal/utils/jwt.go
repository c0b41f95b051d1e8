package utils

import (
	"errors"
	"fmt"
	"time"

	"pairchat/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims represents JWT claims for signed-in users
type SessionClaims struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// GenerateSessionToken issues a signed session token for a user
func GenerateSessionToken(cfg config.JWTConfig, uid, email, name string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		UID:   uid,
		Email: email,
		Name:  name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.ExpiresIn)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

// ValidateSessionToken parses and verifies a session token
func ValidateSessionToken(cfg config.JWTConfig, tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithIssuer(cfg.Issuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.UID == "" {
		return nil, errors.New("token missing uid")
	}

	return claims, nil
}
