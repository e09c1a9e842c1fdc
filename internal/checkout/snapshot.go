package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/payment"
)

// Snapshot is the persisted form of a session. Consent checkboxes are not
// part of it; gates are reloaded on restore.
type Snapshot struct {
	Params      Params                 `json:"params"`
	Billing     *domain.NamedAddress   `json:"billing,omitempty"`
	Shipping    *domain.NamedAddress   `json:"shipping,omitempty"`
	Shipments   []domain.Shipment      `json:"shipments,omitempty"`
	RatesReady  bool                   `json:"ratesReady"`
	SalesTax    *domain.Money          `json:"salesTax,omitempty"`
	Paid        *payment.Result        `json:"paid,omitempty"`
	Steps       map[StepName]StepState `json:"steps"`
	Expanded    Section                `json:"expanded"`
	PaymentForm PaymentForm            `json:"paymentForm"`
	RedirectURL string                 `json:"redirectUrl,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Params:      s.params,
		Billing:     s.st.billing,
		Shipping:    s.st.shipping,
		Shipments:   cloneShipments(s.st.shipments),
		RatesReady:  s.st.ratesReady,
		SalesTax:    s.st.salesTax,
		Paid:        s.st.paid,
		Steps:       maps.Clone(s.steps),
		Expanded:    s.expanded,
		PaymentForm: s.form,
		RedirectURL: s.redirectURL,
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
	}
}

// Restore rebuilds a session from snapshot and reloads its consent gates.
// Steps that were pending when the snapshot was taken come back failed.
func Restore(ctx context.Context, deps Deps, snap Snapshot) (*Session, error) {
	s, err := NewSession(deps, snap.Params)
	if err != nil {
		return nil, err
	}

	s.st.billing = snap.Billing
	s.st.shipping = snap.Shipping
	s.st.shipments = cloneShipments(snap.Shipments)
	s.st.ratesReady = snap.RatesReady
	s.st.salesTax = snap.SalesTax
	s.st.paid = snap.Paid
	s.form = snap.PaymentForm
	s.redirectURL = snap.RedirectURL
	s.createdAt = snap.CreatedAt
	s.updatedAt = snap.UpdatedAt

	if snap.Expanded != "" {
		s.expanded = snap.Expanded
	}

	for step, st := range snap.Steps {
		if st.Status == StepPending {
			st.Status = StepFailed
			st.Error = "interrupted"
		}
		s.steps[step] = st
	}

	if err := s.loadGates(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Session) marshalSnapshot() ([]byte, error) {
	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %w", err)
	}
	return data, nil
}

func unmarshalSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("json.Unmarshal: %w", err)
	}
	return snap, nil
}
