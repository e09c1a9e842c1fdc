// Package checkout sequences address capture, carrier selection, tax,
// consent and payment of one order against the remote commerce service.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/checkoutflow/internal/consent"
	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/payment"
	"github.com/nikolayk812/checkoutflow/internal/port"
	"github.com/nikolayk812/checkoutflow/internal/tax"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/currency"
)

var (
	ErrStepInFlight = errors.New("step already in flight")
	ErrNotRetryable = errors.New("step is not retryable")
)

const (
	EventPaid       = "checkout.paid"
	EventStepFailed = "checkout.step_failed"
)

const consentContext = "checkout"

// Observer receives the outcome of every remote step.
type Observer interface {
	ObserveStep(step, status string, elapsed time.Duration)
}

type Deps struct {
	Commerce port.CommerceAPI
	Consents port.ConsentAPI
	Cache    port.ConsentCache
	Intents  payment.IntentAPI
	Tax      *tax.Trigger

	// optional
	Events   port.EventPublisher
	Observer Observer
}

func (d Deps) validate() error {
	switch {
	case d.Commerce == nil:
		return errors.New("commerce is nil")
	case d.Consents == nil:
		return errors.New("consents is nil")
	case d.Cache == nil:
		return errors.New("cache is nil")
	case d.Intents == nil:
		return errors.New("intents is nil")
	case d.Tax == nil:
		return errors.New("tax is nil")
	}
	return nil
}

// Params describes the order being checked out. ClientSecret is only read by
// NewSession to derive IntentID; it is never persisted.
type Params struct {
	ID               uuid.UUID         `json:"id"`
	OrderRef         string            `json:"orderRef"`
	Identity         string            `json:"identity,omitempty"`
	Items            []domain.LineItem `json:"items"`
	BaseAmount       domain.Money      `json:"baseAmount"`
	ClientSecret     string            `json:"-"`
	IntentID         string            `json:"intentId"`
	IntentType       domain.IntentType `json:"intentType"`
	ReturnURL        string            `json:"returnUrl"`
	ConnectedAccount string            `json:"connectedAccount,omitempty"`
}

type PaymentForm struct {
	Complete bool `json:"complete"`
}

type gate struct {
	scope domain.ConsentScope
	gate  *consent.Gate
}

// attempted holds the last input sent per step, for Retry.
type attempted struct {
	billing  *domain.NamedAddress
	shipping *domain.NamedAddress
	carriers map[string]domain.CarrierSelection
}

type Session struct {
	params    Params
	deps      Deps
	confirmer *payment.Confirmer
	gates     []gate

	mu          sync.Mutex
	st          state
	steps       map[StepName]StepState
	lanes       map[string]StepName
	attempted   attempted
	expanded    Section
	form        PaymentForm
	redirectURL string
	unsaved     []domain.ConsentAcceptance
	createdAt   time.Time
	updatedAt   time.Time
}

func NewSession(deps Deps, p Params) (*Session, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if p.OrderRef == "" {
		return nil, errors.New("orderRef is empty")
	}
	if p.BaseAmount.Currency == (currency.Unit{}) {
		return nil, errors.New("baseAmount currency is empty")
	}
	if p.ClientSecret == "" && p.IntentID == "" {
		return nil, errors.New("clientSecret is empty")
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if deps.Events == nil {
		deps.Events = nopPublisher{}
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}

	var opts []payment.Option
	if p.ConnectedAccount != "" {
		opts = append(opts, payment.WithConnectedAccount(p.ConnectedAccount))
	}
	confirmer, err := payment.NewConfirmer(deps.Intents, p.IntentType, p.ReturnURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("payment.NewConfirmer: %w", err)
	}

	if p.ClientSecret != "" {
		if p.IntentID, err = payment.IntentIDFromClientSecret(p.ClientSecret, p.IntentType); err != nil {
			return nil, fmt.Errorf("clientSecret: %w", err)
		}
		p.ClientSecret = ""
	} else if err := payment.CheckIntentID(p.IntentID, p.IntentType); err != nil {
		return nil, fmt.Errorf("intentId: %w", err)
	}

	now := time.Now().UTC()
	s := &Session{
		params:    p,
		deps:      deps,
		confirmer: confirmer,
		st: state{
			digitalOnly: domain.IsDigitalOnly(p.Items),
			base:        p.BaseAmount,
		},
		steps:     make(map[StepName]StepState),
		lanes:     make(map[string]StepName),
		attempted: attempted{carriers: make(map[string]domain.CarrierSelection)},
		expanded:  SectionBilling,
		createdAt: now,
		updatedAt: now,
	}

	scopes := []domain.ConsentScope{domain.ConsentScopeCheckout}
	if domain.HasServices(p.Items) {
		scopes = append(scopes, domain.ConsentScopeServiceCheckout)
	}
	for _, scope := range scopes {
		g, err := consent.NewGate(deps.Consents, deps.Cache, consentContext, consent.WithOnAccepted(s.consentsAccepted))
		if err != nil {
			return nil, fmt.Errorf("consent.NewGate: %w", err)
		}
		s.gates = append(s.gates, gate{scope: scope, gate: g})
	}

	return s, nil
}

func (s *Session) ID() uuid.UUID {
	return s.params.ID
}

func (s *Session) OrderRef() string {
	return s.params.OrderRef
}

func (s *Session) Owner() string {
	return s.params.Identity
}

// UpdatedAt is when a step last changed status.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updatedAt
}

func (s *Session) DigitalOnly() bool {
	return s.st.digitalOnly
}

func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()

	return stageOf(s.st)
}

// Start loads the consent gates and, for an identity with a saved default
// address, fills both addresses and generates tax and shipments.
func (s *Session) Start(ctx context.Context) error {
	if err := s.loadGates(ctx); err != nil {
		return err
	}

	if s.params.Identity == "" {
		return nil
	}

	s.mu.Lock()
	filled := s.st.billing != nil
	s.mu.Unlock()
	if filled {
		return nil
	}

	def, err := s.deps.Commerce.DefaultAddress(ctx)
	if err != nil {
		return fmt.Errorf("commerce.DefaultAddress: %w", err)
	}
	if def == nil {
		return nil
	}

	return s.autofill(ctx, *def)
}

func (s *Session) loadGates(ctx context.Context) error {
	for _, g := range s.gates {
		if err := g.gate.Load(ctx, s.params.Identity, g.scope, true); err != nil {
			return fmt.Errorf("gate[%s].Load: %w", g.scope, err)
		}
	}
	return nil
}

func (s *Session) autofill(ctx context.Context, def domain.NamedAddress) error {
	steps := []StepName{StepBillingAddress, StepSalesTax}
	if !s.st.digitalOnly {
		steps = append(steps, StepShippingAddress, StepShipments)
	}

	release, err := s.acquire(steps...)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	s.attempted.billing = &def
	addressSteps := []StepName{StepBillingAddress}
	var shippingAddr *domain.NamedAddress
	if !s.st.digitalOnly {
		s.attempted.shipping = &def
		shippingAddr = &def
		addressSteps = append(addressSteps, StepShippingAddress)
	}
	s.mu.Unlock()

	err = s.run(ctx, func(ctx context.Context) ([]event, error) {
		if err := s.deps.Commerce.UpdateOrderAddresses(ctx, s.params.OrderRef, def, shippingAddr); err != nil {
			return nil, fmt.Errorf("commerce.UpdateOrderAddresses: %w", err)
		}
		events := []event{billingConfirmed{address: def}}
		if shippingAddr != nil {
			events = append(events, shippingConfirmed{address: def})
		}
		return events, nil
	}, addressSteps...)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error {
		return s.run(ctx, s.generateTax, StepSalesTax)
	})
	if !s.st.digitalOnly {
		g.Go(func() error {
			return s.run(ctx, s.generateShipments, StepShipments)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	s.expanded = firstIncomplete(s.st)
	s.mu.Unlock()

	return nil
}

func (s *Session) generateTax(ctx context.Context) ([]event, error) {
	s.mu.Lock()
	billing := s.st.billing
	s.mu.Unlock()

	if billing == nil {
		return nil, fmt.Errorf("sales tax without billing address: %w", ErrOutOfOrder)
	}

	amount, err := s.deps.Tax.Generate(ctx, s.params.OrderRef, billing.Address)
	if err != nil {
		return nil, fmt.Errorf("tax.Generate: %w", err)
	}

	return []event{taxGenerated{amount: amount}}, nil
}

func (s *Session) generateShipments(ctx context.Context) ([]event, error) {
	shipments, err := s.deps.Commerce.GenerateShipments(ctx, s.params.OrderRef)
	if err != nil {
		return nil, fmt.Errorf("commerce.GenerateShipments: %w", err)
	}

	return []event{shipmentsGenerated{shipments: shipments}}, nil
}

// lane groups steps that must not overlap: an address and what is derived from it.
func (n StepName) lane() string {
	switch n {
	case StepBillingAddress, StepSalesTax:
		return "billing"
	case StepShippingAddress, StepShipments:
		return "shipping"
	}
	return string(n)
}

// acquire reserves the lanes of steps until release is called.
// Carrier selection and shipment generation exclude each other. Payment
// excludes every other step, and a payment awaiting the buyer's
// authentication freezes the order until it is completed.
func (s *Session) acquire(steps ...StepName) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.paid != nil {
		return nil, ErrAlreadyPaid
	}

	var lanes []string
	for _, step := range steps {
		if step != StepPayment && s.steps[StepPayment].Status == StepAwaitingAction {
			return nil, fmt.Errorf("step[%s] while %s awaits action: %w", step, StepPayment, ErrStepInFlight)
		}
		lane := step.lane()
		if busy, ok := s.lanes[lane]; ok {
			return nil, fmt.Errorf("step[%s] while %s: %w", step, busy, ErrStepInFlight)
		}
		if busy, ok := s.conflicting(lane); ok {
			return nil, fmt.Errorf("step[%s] while %s: %w", step, busy, ErrStepInFlight)
		}
		lanes = append(lanes, lane)
	}

	for i, lane := range lanes {
		s.lanes[lane] = steps[i]
	}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		for _, lane := range lanes {
			delete(s.lanes, lane)
		}
	}, nil
}

func (s *Session) conflicting(lane string) (StepName, bool) {
	payLane := StepPayment.lane()

	for busy, step := range s.lanes {
		switch {
		case lane == payLane || busy == payLane:
			return step, true
		case lane == "shipping" && strings.HasPrefix(busy, carrierStepPrefix):
			return step, true
		case strings.HasPrefix(lane, carrierStepPrefix) && busy == "shipping":
			return step, true
		}
	}
	return "", false
}

// run performs one remote call on behalf of steps. The events it returns are
// applied only when the call succeeds, so a failed step leaves state as it was.
func (s *Session) run(ctx context.Context, call func(context.Context) ([]event, error), steps ...StepName) error {
	s.mark(StepPending, nil, steps...)
	start := time.Now()

	events, err := call(ctx)

	s.mu.Lock()
	if err == nil {
		next := s.st
		for _, ev := range events {
			if next, err = apply(next, ev); err != nil {
				break
			}
		}
		if err == nil {
			s.st = next
		}
	}
	status := StepConfirmed
	if err != nil {
		status = StepFailed
	}
	s.markLocked(status, err, steps...)
	s.mu.Unlock()

	for _, step := range steps {
		s.deps.Observer.ObserveStep(step.Kind(), string(status), time.Since(start))
	}

	if err != nil {
		s.publish(ctx, EventStepFailed, StepFailedEvent{
			SessionID: s.params.ID,
			OrderRef:  s.params.OrderRef,
			Step:      steps[0],
			Error:     err.Error(),
		})
		return &StepError{Step: steps[0], Err: err}
	}

	return nil
}

// StepError is a failed remote call of a step. The step is marked failed and
// may be retried.
type StepError struct {
	Step StepName
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step[%s]: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (s *Session) mark(status StepStatus, err error, steps ...StepName) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.markLocked(status, err, steps...)
}

func (s *Session) markLocked(status StepStatus, err error, steps ...StepName) {
	now := time.Now().UTC()

	for _, step := range steps {
		st := StepState{Status: status, UpdatedAt: now}
		if err != nil {
			st.Error = err.Error()
		}
		s.steps[step] = st
	}
	s.updatedAt = now
}

func (s *Session) consentsAccepted(inputs []domain.ConsentAcceptance) {
	if len(inputs) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.unsaved = append(s.unsaved, inputs...)
}

// TakeAcceptances returns the consent acceptances recorded since the last call.
func (s *Session) TakeAcceptances() []domain.ConsentAcceptance {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.unsaved
	s.unsaved = nil
	return out
}

func (s *Session) publish(ctx context.Context, name string, payload any) {
	if err := s.deps.Events.Publish(ctx, name, payload); err != nil {
		slog.Warn("event publish failed",
			"method", "Session.publish",
			"event", name,
			"session_id", s.params.ID,
			"error", err)
	}
}

type StepFailedEvent struct {
	SessionID uuid.UUID `json:"sessionId"`
	OrderRef  string    `json:"orderRef"`
	Step      StepName  `json:"step"`
	Error     string    `json:"error"`
}

type PaidEvent struct {
	SessionID uuid.UUID         `json:"sessionId"`
	OrderRef  string            `json:"orderRef"`
	IntentID  string            `json:"intentId"`
	Outcome   payment.Outcome   `json:"outcome"`
	Intent    domain.IntentType `json:"intentType"`
	Total     domain.Money      `json:"total"`
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }

type nopObserver struct{}

func (nopObserver) ObserveStep(string, string, time.Duration) {}
