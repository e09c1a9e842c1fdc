package domain

import (
	"time"

	"github.com/google/uuid"
)

// CheckoutRecord is the persisted form of a checkout session.
// Snapshot is the JSON encoded session state; Version guards concurrent writers.
type CheckoutRecord struct {
	ID       uuid.UUID
	OrderRef string
	OwnerID  string
	Stage    CheckoutStage
	Snapshot []byte
	Version  int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AcceptanceRecord is an audit row of a consent accepted during checkout.
type AcceptanceRecord struct {
	SessionID  uuid.UUID
	OwnerID    string
	Acceptance ConsentAcceptance
	AcceptedAt time.Time
}
