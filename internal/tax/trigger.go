// Package tax triggers server-side sales tax generation for an order.
package tax

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/port"
)

type cached struct {
	billing domain.Address
	amount  domain.Money
}

// Trigger calls the remote tax generation and keeps the last amount per order.
type Trigger struct {
	api port.CommerceAPI

	mu     sync.Mutex
	orders map[string]cached
}

func NewTrigger(api port.CommerceAPI) (*Trigger, error) {
	if api == nil {
		return nil, errors.New("api is nil")
	}

	return &Trigger{
		api:    api,
		orders: make(map[string]cached),
	}, nil
}

// Generate returns the sales tax for the order's current billing address.
// The remote call is skipped when the address is unchanged since the last one.
func (t *Trigger) Generate(ctx context.Context, orderRef string, billing domain.Address) (domain.Money, error) {
	if orderRef == "" {
		return domain.Money{}, errors.New("orderRef is empty")
	}

	t.mu.Lock()
	c, ok := t.orders[orderRef]
	t.mu.Unlock()

	if ok && c.billing.Equal(billing) {
		return c.amount, nil
	}

	amount, err := t.api.GenerateSalesTax(ctx, orderRef)
	if err != nil {
		return domain.Money{}, fmt.Errorf("api.GenerateSalesTax: %w", err)
	}

	t.mu.Lock()
	t.orders[orderRef] = cached{billing: billing, amount: amount}
	t.mu.Unlock()

	return amount, nil
}

// Invalidate forgets the cached amount, e.g. after the order's items changed.
func (t *Trigger) Invalidate(orderRef string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.orders, orderRef)
}
