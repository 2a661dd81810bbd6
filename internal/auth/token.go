// Package auth issues and checks the bearer tokens kiosks present to the
// server.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "keykiosk"

// ErrInvalidToken covers every token that does not verify.
var ErrInvalidToken = errors.New("invalid token")

// KioskClaims identifies the kiosk a token was issued to.
type KioskClaims struct {
	KioskID string `json:"kiosk_id"`
	jwt.RegisteredClaims
}

// IssueKioskToken signs a token for kioskID. A ttl of zero issues a token
// that never expires, which suits a fixed kiosk install.
func IssueKioskToken(secret []byte, kioskID string, ttl time.Duration) (string, error) {
	if kioskID == "" {
		return "", errors.New("kiosk id required")
	}
	now := time.Now()
	claims := KioskClaims{
		KioskID: kioskID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  kioskID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Parse verifies raw and returns its claims.
func Parse(secret []byte, raw string) (KioskClaims, error) {
	var claims KioskClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return KioskClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.KioskID == "" {
		return KioskClaims{}, ErrInvalidToken
	}
	return claims, nil
}
