package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/fulfillment/backend/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingSubject   = errors.New("missing subject in claims")
)

// DefaultRole is assumed when a token carries no role claim
const DefaultRole = "staff"

// Claims identifies the staff member acting on the pipeline. The subject is
// the actor recorded on transitions and activity entries.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// Actor returns the acting staff identifier
func (c *Claims) Actor() string {
	return c.Subject
}

// RoleOrDefault returns the role claim, or DefaultRole when absent
func (c *Claims) RoleOrDefault() string {
	if r := strings.TrimSpace(c.Role); r != "" {
		return strings.ToLower(r)
	}
	return DefaultRole
}

// TokenService signs and verifies HS256 actor tokens
type TokenService struct {
	secret []byte
	issuer string
}

// NewTokenService creates a token service from the auth settings
func NewTokenService(cfg config.AuthConfig) *TokenService {
	return &TokenService{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
	}
}

// IssueInput describes a token to sign
type IssueInput struct {
	Actor string
	Name  string
	Role  string
	TTL   time.Duration
}

// Issue signs a token for an actor. It backs local tooling and tests; in
// production tokens come from the identity provider sharing the secret.
func (s *TokenService) Issue(input IssueInput) (string, error) {
	if strings.TrimSpace(input.Actor) == "" {
		return "", ErrMissingSubject
	}
	ttl := input.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   input.Actor,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Name: input.Name,
		Role: input.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate verifies a token and returns its claims
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}
