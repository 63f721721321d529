package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"syndicate/internal/auth"
)

func TestIssueAndValidate(t *testing.T) {
	token, exp, err := auth.Issue("s3cret", "wire", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Fatalf("expiry %v too soon", exp)
	}
	claims, err := auth.Validate("s3cret", token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Buyer != "wire" || claims.Subject != "wire" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestValidateRejects(t *testing.T) {
	good, _, err := auth.Issue("s3cret", "wire", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.BuyerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "syndicate",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Buyer: "wire",
	})
	expiredToken, err := expired.SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	noBuyer := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.BuyerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "syndicate",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	noBuyerToken, err := noBuyer.SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tests := []struct {
		name, secret, token string
	}{
		{"wrong secret", "other", good},
		{"garbage", "s3cret", "not-a-token"},
		{"expired", "s3cret", expiredToken},
		{"missing buyer", "s3cret", noBuyerToken},
		{"no secret configured", "", good},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := auth.Validate(tc.secret, tc.token); !errors.Is(err, auth.ErrInvalidToken) {
				t.Fatalf("Validate err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestIssueValidation(t *testing.T) {
	if _, _, err := auth.Issue("", "wire", time.Hour); err == nil {
		t.Fatalf("Issue without secret succeeded")
	}
	if _, _, err := auth.Issue("s", " ", time.Hour); err == nil {
		t.Fatalf("Issue without buyer succeeded")
	}
	if _, _, err := auth.Issue("s", "wire", 0); err == nil {
		t.Fatalf("Issue with zero ttl succeeded")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := auth.BearerToken(tc.header)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("BearerToken(%q) = %q, %v", tc.header, got, ok)
		}
	}
}
