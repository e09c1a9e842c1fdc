package checkout

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/nikolayk812/checkoutflow/internal/address"
	"github.com/nikolayk812/checkoutflow/internal/consent"
	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/shipping"
)

var ErrUnknownScope = errors.New("no consent gate for scope")

// SetBillingAddress sends the billing address to the order and regenerates sales tax.
func (s *Session) SetBillingAddress(ctx context.Context, in address.Input) error {
	named, err := in.Resolve()
	if err != nil {
		return err
	}

	return s.setBilling(ctx, named)
}

func (s *Session) setBilling(ctx context.Context, named domain.NamedAddress) error {
	release, err := s.acquire(StepBillingAddress)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	s.attempted.billing = &named
	s.mu.Unlock()

	err = s.run(ctx, func(ctx context.Context) ([]event, error) {
		if err := s.deps.Commerce.UpdateOrderAddress(ctx, s.params.OrderRef, domain.AddressKindBilling, named); err != nil {
			return nil, fmt.Errorf("commerce.UpdateOrderAddress: %w", err)
		}
		return []event{billingConfirmed{address: named}}, nil
	}, StepBillingAddress)
	if err != nil {
		return err
	}

	if err := s.run(ctx, s.generateTax, StepSalesTax); err != nil {
		return err
	}

	s.advance()
	return nil
}

// SetShippingAddress sends the shipping address to the order and regenerates
// its shipments, which drops every carrier selection.
func (s *Session) SetShippingAddress(ctx context.Context, in address.Input) error {
	if s.st.digitalOnly {
		return ErrNotApplicable
	}

	named, err := in.Resolve()
	if err != nil {
		return err
	}

	return s.setShipping(ctx, named)
}

func (s *Session) setShipping(ctx context.Context, named domain.NamedAddress) error {
	release, err := s.acquire(StepShippingAddress)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	s.attempted.shipping = &named
	clear(s.attempted.carriers)
	s.mu.Unlock()

	err = s.run(ctx, func(ctx context.Context) ([]event, error) {
		if err := s.deps.Commerce.UpdateOrderAddress(ctx, s.params.OrderRef, domain.AddressKindShipping, named); err != nil {
			return nil, fmt.Errorf("commerce.UpdateOrderAddress: %w", err)
		}
		return []event{shippingConfirmed{address: named}}, nil
	}, StepShippingAddress)
	if err != nil {
		return err
	}

	if err := s.run(ctx, s.generateShipments, StepShipments); err != nil {
		return err
	}

	s.advance()
	return nil
}

// Choices returns the tier representatives of a shipment.
func (s *Session) Choices(shipmentID string) (shipping.Choices, error) {
	sh, err := s.shipment(shipmentID)
	if err != nil {
		return shipping.Choices{}, err
	}

	return shipping.ChoicesFor(sh)
}

// SelectTier selects the representative option of tier for a shipment.
func (s *Session) SelectTier(ctx context.Context, shipmentID string, tier shipping.Tier) error {
	choices, err := s.Choices(shipmentID)
	if err != nil {
		return err
	}

	opt, err := choices.For(tier)
	if err != nil {
		return fmt.Errorf("shipment[%s]: %w", shipmentID, err)
	}

	return s.SelectCarrier(ctx, shipmentID, opt.Selection())
}

// SelectCarrier sets the rate of a shipment. A selection that matches none of
// the shipment's current options fails with shipping.ErrRateNotFound.
func (s *Session) SelectCarrier(ctx context.Context, shipmentID string, sel domain.CarrierSelection) error {
	if s.st.digitalOnly {
		return ErrNotApplicable
	}

	step := CarrierStep(shipmentID)
	release, err := s.acquire(step)
	if err != nil {
		return err
	}
	defer release()

	// resolved under the lane so regenerated shipments cannot swap the rate
	sh, err := s.shipment(shipmentID)
	if err != nil {
		return err
	}

	opt, err := shipping.Resolve(sh, sel)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.attempted.carriers[shipmentID] = sel
	s.mu.Unlock()

	err = s.run(ctx, func(ctx context.Context) ([]event, error) {
		if err := s.deps.Commerce.SetRateForShipment(ctx, s.params.OrderRef, shipmentID, opt.RateID); err != nil {
			return nil, fmt.Errorf("commerce.SetRateForShipment: %w", err)
		}
		return []event{carrierSelected{shipmentID: shipmentID, selection: sel}}, nil
	}, step)
	if err != nil {
		return err
	}

	s.advance()
	return nil
}

func (s *Session) shipment(id string) (domain.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.st.shipments, func(sh domain.Shipment) bool { return sh.ID == id })
	if idx < 0 {
		return domain.Shipment{}, fmt.Errorf("shipment[%s]: %w", id, shipping.ErrRateNotFound)
	}

	return cloneShipments(s.st.shipments[idx : idx+1])[0], nil
}

// Retry re-runs a failed step with the input it last failed on.
func (s *Session) Retry(ctx context.Context, step StepName) error {
	shipmentID, isCarrier := step.shipmentID()

	s.mu.Lock()
	status := s.steps[step].Status
	att := s.attempted
	carrier, hasCarrier := att.carriers[shipmentID]
	s.mu.Unlock()

	if status != StepFailed {
		return fmt.Errorf("step[%s] is %s: %w", step, orIdle(status), ErrNotRetryable)
	}

	switch step {
	case StepBillingAddress:
		if att.billing == nil {
			return fmt.Errorf("step[%s] has no input: %w", step, ErrNotRetryable)
		}
		return s.setBilling(ctx, *att.billing)

	case StepShippingAddress:
		if att.shipping == nil {
			return fmt.Errorf("step[%s] has no input: %w", step, ErrNotRetryable)
		}
		return s.setShipping(ctx, *att.shipping)

	case StepSalesTax:
		return s.rerun(ctx, step, s.generateTax)

	case StepShipments:
		return s.rerun(ctx, step, s.generateShipments)
	}

	if isCarrier {
		if !hasCarrier {
			return fmt.Errorf("step[%s] has no input: %w", step, ErrNotRetryable)
		}
		return s.SelectCarrier(ctx, shipmentID, carrier)
	}

	// payment needs a fresh payment method from the buyer
	return fmt.Errorf("step[%s]: %w", step, ErrNotRetryable)
}

func (s *Session) rerun(ctx context.Context, step StepName, call func(context.Context) ([]event, error)) error {
	release, err := s.acquire(step)
	if err != nil {
		return err
	}
	defer release()

	if err := s.run(ctx, call, step); err != nil {
		return err
	}

	s.advance()
	return nil
}

// Expand opens any applicable section. Collected data is kept.
func (s *Session) Expand(section Section) error {
	if _, err := ToSection(string(section)); err != nil {
		return err
	}
	if !slices.Contains(sectionsFor(s.st.digitalOnly), section) {
		return fmt.Errorf("section[%s]: %w", section, ErrNotApplicable)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.expanded = section
	return nil
}

func (s *Session) Expanded() Section {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.expanded
}

// advance moves on from the expanded section once it is complete.
func (s *Session) advance() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sectionComplete(s.st, s.expanded) {
		s.expanded = firstIncomplete(s.st)
	}
}

func sectionComplete(st state, section Section) bool {
	switch section {
	case SectionBilling:
		return st.billing != nil
	case SectionShipping:
		return st.shipping != nil && st.ratesReady
	case SectionShippingOptions:
		return st.ratesReady && st.shippingComplete()
	case SectionPayment:
		return st.paid != nil
	}
	return false
}

func firstIncomplete(st state) Section {
	for _, section := range sectionsFor(st.digitalOnly) {
		if !sectionComplete(st, section) {
			return section
		}
	}
	return SectionPayment
}

// Gate returns the consent gate of scope.
func (s *Session) Gate(scope domain.ConsentScope) (*consent.Gate, error) {
	for _, g := range s.gates {
		if g.scope == scope {
			return g.gate, nil
		}
	}
	return nil, fmt.Errorf("scope[%s]: %w", scope, ErrUnknownScope)
}

func (s *Session) CheckConsent(scope domain.ConsentScope, documentType string, checked bool) error {
	g, err := s.Gate(scope)
	if err != nil {
		return err
	}

	return g.Check(documentType, checked)
}

// AcceptConsents records the documents of every gate that is not yet open.
func (s *Session) AcceptConsents(ctx context.Context) error {
	for _, g := range s.gates {
		if g.gate.Transparent() {
			continue
		}
		if err := g.gate.AcceptAll(ctx); err != nil {
			return fmt.Errorf("gate[%s].AcceptAll: %w", g.scope, err)
		}
	}
	return nil
}

// SetPaymentForm records what the embedded payment form reports about itself.
func (s *Session) SetPaymentForm(form PaymentForm) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.form = form
}

func orIdle(status StepStatus) StepStatus {
	if status == "" {
		return StepIdle
	}
	return status
}
