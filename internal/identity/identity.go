// Package identity resolves the signed-in user from a bearer token.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the signed-in user. Token is forwarded to the commerce API.
type Identity struct {
	Subject string
	Email   string
	Token   string
}

type claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type Parser struct {
	secret []byte
}

func NewParser(secret string) (*Parser, error) {
	if secret == "" {
		return nil, errors.New("secret is empty")
	}
	return &Parser{secret: []byte(secret)}, nil
}

// FromHeader parses an "Authorization: Bearer <jwt>" header value.
func (p *Parser) FromHeader(header string) (Identity, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return Identity{}, ErrUnauthenticated
	}

	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	if c.Subject == "" {
		return Identity{}, fmt.Errorf("%w: subject is empty", ErrUnauthenticated)
	}

	return Identity{Subject: c.Subject, Email: c.Email, Token: raw}, nil
}

// Sign issues a token for subject; used by tests and local tooling.
func (p *Parser) Sign(subject, email string, c jwt.RegisteredClaims) (string, error) {
	c.Subject = subject
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{Email: email, RegisteredClaims: c})
	return token.SignedString(p.secret)
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity, false for anonymous requests.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
