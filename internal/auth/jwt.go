// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cmcapp/pulse/internal/config"
	"github.com/cmcapp/pulse/internal/models"
)

// Claims carries the congress identity inside the signed token. The engine
// only validates tokens; issuance happens in the registration system that
// hands them to attendees.
type Claims struct {
	Username string   `json:"username"`
	Role     string   `json:"role"`
	Passes   []string `json:"passes,omitempty"`
	Venue    string   `json:"venue,omitempty"`
	jwt.RegisteredClaims
}

// Identity converts the token claims into the resolved identity the rest of
// the engine works with.
func (c *Claims) Identity() models.Identity {
	userID := c.Subject
	if userID == "" {
		userID = c.Username
	}
	return models.Identity{
		UserID: userID,
		Role:   c.Role,
		Passes: c.Passes,
		Venue:  c.Venue,
	}
}

// JWTManager validates (and, for tooling and tests, creates) HS256 tokens.
type JWTManager struct {
	secret  []byte
	timeout time.Duration
}

// NewJWTManager builds a token manager from the security configuration.
// The secret must be at least 32 characters; Config.Validate enforces the
// same bound so this is a second line of defense for direct construction.
func NewJWTManager(cfg *config.SecurityConfig) (*JWTManager, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters")
	}
	return &JWTManager{
		secret:  []byte(cfg.JWTSecret),
		timeout: cfg.SessionTimeout,
	}, nil
}

// GenerateToken signs a token for the given identity. Used by the seed
// tooling and test fixtures; the production engine only validates.
func (m *JWTManager) GenerateToken(id models.Identity) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: id.UserID,
		Role:     id.Role,
		Passes:   id.Passes,
		Venue:    id.Venue,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.timeout)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a token string. Only HMAC signatures
// are accepted; any other algorithm in the header is rejected outright.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
