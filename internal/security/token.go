package security

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is stamped on every access token and required when parsing.
const Issuer = "caterchat"

// ErrInvalidSubject is returned when a valid token carries no subject.
var ErrInvalidSubject = errors.New("invalid token subject")

// TokenService issues and checks HS256 access tokens whose subject is the
// username.
type TokenService struct {
	secret    []byte
	expiresIn time.Duration
	parser    *jwt.Parser
}

func NewTokenService(secret string, expiresIn time.Duration) *TokenService {
	return &TokenService{
		secret:    []byte(secret),
		expiresIn: expiresIn,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(Issuer),
			jwt.WithExpirationRequired(),
		),
	}
}

func (t *TokenService) CreateForUser(username string) (string, error) {
	return t.CreateWithTTL(username, t.expiresIn)
}

// CreateWithTTL is used for remember-me logins and by tests for expired tokens.
func (t *TokenService) CreateWithTTL(username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Subject validates a token and returns the username it was issued for.
func (t *TokenService) Subject(tokenStr string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := t.parser.ParseWithClaims(strings.TrimSpace(tokenStr), &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", ErrInvalidSubject
	}
	return claims.Subject, nil
}
