package port

import (
	"context"

	"github.com/nikolayk812/checkoutflow/internal/domain"
)

type ConsentAPI interface {
	CheckOutstandingConsents(ctx context.Context, scope domain.ConsentScope) ([]domain.ConsentDocument, error)
	RecordConsents(ctx context.Context, inputs []domain.ConsentAcceptance) error
}

// ConsentCache holds outstanding documents per identity and scope.
type ConsentCache interface {
	Get(ctx context.Context, key domain.ConsentKey) ([]domain.ConsentDocument, bool, error)
	Set(ctx context.Context, key domain.ConsentKey, docs []domain.ConsentDocument) error
	Invalidate(ctx context.Context, key domain.ConsentKey) error
}
