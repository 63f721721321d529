// Package auth issues and validates buyer-scoped API tokens.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "syndicate"

// ErrInvalidToken wraps every validation failure.
var ErrInvalidToken = errors.New("invalid token")

// BuyerClaims are the JWT claims carried by a buyer token.
type BuyerClaims struct {
	jwt.RegisteredClaims
	Buyer string `json:"buyer"`
}

// Issue signs an HS256 token for the buyer valid for ttl.
func Issue(secret, buyerSlug string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, errors.New("jwt secret is not configured")
	}
	buyerSlug = strings.TrimSpace(buyerSlug)
	if buyerSlug == "" {
		return "", time.Time{}, errors.New("buyer is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token ttl must be positive")
	}
	now := time.Now()
	exp := now.Add(ttl)
	claims := BuyerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   buyerSlug,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Buyer: buyerSlug,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Validate verifies a token and returns its claims.
func Validate(secret, token string) (*BuyerClaims, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: jwt secret is not configured", ErrInvalidToken)
	}
	parsed, err := jwt.ParseWithClaims(token, &BuyerClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*BuyerClaims)
	if !ok || !parsed.Valid || claims.Buyer == "" {
		return nil, fmt.Errorf("%w: missing buyer claim", ErrInvalidToken)
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
