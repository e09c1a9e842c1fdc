package checkout

import (
	"maps"

	"github.com/google/uuid"
	"github.com/nikolayk812/checkoutflow/internal/consent"
	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/payment"
	"github.com/nikolayk812/checkoutflow/internal/shipping"
	"github.com/nikolayk812/checkoutflow/internal/submit"
)

type SectionView struct {
	Section  Section `json:"section"`
	Complete bool    `json:"complete"`
	Expanded bool    `json:"expanded"`
}

type ShipmentView struct {
	domain.Shipment
	Choices *shipping.Choices `json:"choices,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// View is what a client renders for the session.
type View struct {
	ID          uuid.UUID              `json:"id"`
	OrderRef    string                 `json:"orderRef"`
	Stage       domain.CheckoutStage   `json:"stage"`
	DigitalOnly bool                   `json:"digitalOnly"`
	Sections    []SectionView          `json:"sections"`
	Billing     *domain.NamedAddress   `json:"billing,omitempty"`
	Shipping    *domain.NamedAddress   `json:"shipping,omitempty"`
	Shipments   []ShipmentView         `json:"shipments,omitempty"`
	Totals      *Totals                `json:"totals,omitempty"`
	Steps       map[StepName]StepState `json:"steps"`
	Consents    []consent.View         `json:"consents"`
	PaymentForm PaymentForm            `json:"paymentForm"`
	Payment     submit.Status          `json:"payment"`
	IntentType  domain.IntentType      `json:"intentType"`
	Blockers    []Blocker              `json:"blockers"`
	CanPay      bool                   `json:"canPay"`
	RedirectURL string                 `json:"redirectUrl,omitempty"`
	Paid        *payment.Result        `json:"paid,omitempty"`
}

func (s *Session) View() View {
	blockers := s.PayBlockers()

	consents := make([]consent.View, 0, len(s.gates))
	for _, g := range s.gates {
		consents = append(consents, g.gate.View())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:          s.params.ID,
		OrderRef:    s.params.OrderRef,
		Stage:       stageOf(s.st).Name(),
		DigitalOnly: s.st.digitalOnly,
		Billing:     s.st.billing,
		Shipping:    s.st.shipping,
		Steps:       maps.Clone(s.steps),
		Consents:    consents,
		PaymentForm: s.form,
		Payment:     s.confirmer.Status(),
		IntentType:  s.params.IntentType,
		Blockers:    blockers,
		CanPay:      len(blockers) == 0,
		RedirectURL: s.redirectURL,
		Paid:        s.st.paid,
	}

	for _, section := range sectionsFor(s.st.digitalOnly) {
		v.Sections = append(v.Sections, SectionView{
			Section:  section,
			Complete: sectionComplete(s.st, section),
			Expanded: section == s.expanded,
		})
	}

	for _, sh := range cloneShipments(s.st.shipments) {
		sv := ShipmentView{Shipment: sh}
		if choices, err := shipping.ChoicesFor(sh); err != nil {
			sv.Error = err.Error()
		} else {
			sv.Choices = &choices
		}
		v.Shipments = append(v.Shipments, sv)
	}

	if totals, err := totalsOf(s.st); err == nil {
		v.Totals = &totals
	}

	return v
}
