package identity_test

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/golang-jwt/jwt/v5"
	"github.com/nikolayk812/checkoutflow/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_FromHeader(t *testing.T) {
	parser, err := identity.NewParser("s3cret")
	require.NoError(t, err)

	other, err := identity.NewParser("other")
	require.NoError(t, err)

	subject := gofakeit.UUID()
	email := gofakeit.Email()

	valid, err := parser.Sign(subject, email, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
	require.NoError(t, err)

	expired, err := parser.Sign(subject, email, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))})
	require.NoError(t, err)

	foreign, err := other.Sign(subject, email, jwt.RegisteredClaims{})
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		wantErr bool
	}{
		{name: "valid token: ok", header: "Bearer " + valid},
		{name: "missing header: fail", header: "", wantErr: true},
		{name: "basic auth: fail", header: "Basic dXNlcjpwYXNz", wantErr: true},
		{name: "expired: fail", header: "Bearer " + expired, wantErr: true},
		{name: "signed with other secret: fail", header: "Bearer " + foreign, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := parser.FromHeader(tt.header)
			if tt.wantErr {
				require.ErrorIs(t, err, identity.ErrUnauthenticated)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, subject, id.Subject)
			assert.Equal(t, email, id.Email)
			assert.Equal(t, valid, id.Token)
		})
	}
}

func TestContext(t *testing.T) {
	ctx := t.Context()

	_, ok := identity.FromContext(ctx)
	assert.False(t, ok)

	ctx = identity.WithIdentity(ctx, identity.Identity{Subject: "u1"})
	id, ok := identity.FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", id.Subject)
}
