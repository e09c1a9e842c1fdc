// Package graphql is the typed shim over the commerce GraphQL endpoint.
// It adds no caching, retry or batching.
package graphql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/machinebox/graphql"
	"github.com/nikolayk812/checkoutflow/internal/identity"
	"github.com/nikolayk812/checkoutflow/internal/port"
)

type Client struct {
	gql *graphql.Client
}

func NewClient(endpoint string, timeout time.Duration) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("endpoint is empty")
	}
	if timeout <= 0 {
		return nil, errors.New("timeout is not positive")
	}

	gql := graphql.NewClient(endpoint, graphql.WithHTTPClient(&http.Client{Timeout: timeout}))
	gql.Log = func(s string) {
		slog.Debug(s, "method", "graphql.Client")
	}

	return &Client{gql: gql}, nil
}

// run executes one operation on behalf of the identity in ctx, if any.
func (c *Client) run(ctx context.Context, operation, query string, vars map[string]any, resp any) error {
	req := graphql.NewRequest(query)
	for k, v := range vars {
		req.Var(k, v)
	}

	if id, ok := identity.FromContext(ctx); ok && id.Token != "" {
		req.Header.Set("Authorization", "Bearer "+id.Token)
	}

	if err := c.gql.Run(ctx, req, resp); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}

	return nil
}

var (
	_ port.CommerceAPI = (*Client)(nil)
	_ port.ConsentAPI  = (*Client)(nil)
)
