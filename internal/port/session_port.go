package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/nikolayk812/checkoutflow/internal/domain"
)

type SessionRepository interface {
	GetSession(ctx context.Context, id uuid.UUID) (domain.CheckoutRecord, error)
	SearchSessions(ctx context.Context, filter domain.SessionFilter) ([]domain.CheckoutRecord, error)

	InsertSession(ctx context.Context, record domain.CheckoutRecord) (domain.CheckoutRecord, error)
	// UpdateSession writes record if the stored version equals record.Version and returns the new version.
	UpdateSession(ctx context.Context, record domain.CheckoutRecord) (int64, error)

	DeleteSession(ctx context.Context, id uuid.UUID) error

	RecordAcceptances(ctx context.Context, sessionID uuid.UUID, ownerID string, acceptances []domain.ConsentAcceptance) error
	ListAcceptances(ctx context.Context, sessionID uuid.UUID) ([]domain.AcceptanceRecord, error)
}
