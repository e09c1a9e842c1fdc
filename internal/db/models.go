package db

import (
	"time"

	"github.com/google/uuid"
)

type CheckoutSession struct {
	ID        uuid.UUID
	OrderRef  string
	OwnerID   string
	Stage     string
	Snapshot  []byte
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ConsentAcceptance struct {
	SessionID      uuid.UUID
	OwnerID        string
	DocumentType   string
	DocumentID     string
	Version        int32
	ConsentContext string
	DocumentTitle  string
	AcceptedAt     time.Time
}
