package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Issuer is stamped into every access token and required when parsing.
const Issuer = "devsettings"

// AccessTokenTTL applies when the configured lifetime is not positive.
const AccessTokenTTL = 15 * time.Minute

// Claims carry the organization and scopes a request is checked against.
type Claims struct {
	jwt.RegisteredClaims
	Organization string   `json:"org"`
	Roles        []string `json:"roles"`
	Scopes       []string `json:"scopes"`
}

// Principal is what an access token asserts about its bearer.
type Principal struct {
	UserID       string
	Organization string
	Roles        []string
	Scopes       []string
}

// GenerateAccessToken signs an HS256 token for p.
func GenerateAccessToken(p Principal, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = AccessTokenTTL
	}
	issued := time.Now()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		},
		Organization: p.Organization,
		Roles:        p.Roles,
		Scopes:       p.Scopes,
	}).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry.
func ParseAccessToken(raw, secret string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	return claims, nil
}

// CheckPassword reports whether password matches the bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
