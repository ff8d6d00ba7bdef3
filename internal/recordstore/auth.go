// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package recordstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cloudmirror/cloudmirror/internal/config"
	"github.com/cloudmirror/cloudmirror/internal/logger"
)

// deviceClaims are the session-token claims issued to a device.
type deviceClaims struct {
	jwt.RegisteredClaims
	Device string `json:"device"`
	Owner  string `json:"owner,omitempty"`
}

// TokenService issues and verifies device session tokens.
type TokenService struct {
	signKey  []byte
	issuer   string
	duration time.Duration
	repo     *Repository
	logger   *logger.Logger
}

func NewTokenService(cfg config.Auth, repo *Repository, log *logger.Logger) *TokenService {
	return &TokenService{
		signKey:  []byte(cfg.TokenSignKey),
		issuer:   cfg.TokenIssuer,
		duration: cfg.TokenDuration,
		repo:     repo,
		logger:   log,
	}
}

// IssueToken authenticates the device by access key and returns a signed
// session token together with the device's owner name.
func (s *TokenService) IssueToken(ctx context.Context, device, accessKey string) (token, owner string, err error) {
	owner, err = s.repo.AuthenticateDevice(ctx, device, accessKey)
	if err != nil {
		return "", "", err
	}

	now := time.Now()
	claims := deviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   device,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
		},
		Device: device,
		Owner:  owner,
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return "", "", fmt.Errorf("sign session token: %w", err)
	}
	return token, owner, nil
}

// ParseToken verifies a session token and returns the device it belongs
// to.
func (s *TokenService) ParseToken(tokenString string) (device string, err error) {
	claims := &deviceClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenIsExpired
		}
		return "", fmt.Errorf("parse session token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("session token is invalid")
	}
	return claims.Device, nil
}
