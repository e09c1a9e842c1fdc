package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/payment"
	"github.com/nikolayk812/checkoutflow/internal/submit"
)

var ErrPayBlocked = errors.New("pay is blocked")

// Blocker is a reason the pay action is disabled.
type Blocker string

const (
	BlockerBillingAddress   Blocker = "billing-address"
	BlockerShippingAddress  Blocker = "shipping-address"
	BlockerCarrierSelection Blocker = "carrier-selection"
	BlockerSalesTax         Blocker = "sales-tax"
	BlockerPaymentForm      Blocker = "payment-form"
	BlockerSubmitting       Blocker = "payment-submitting"
	BlockerPaymentAction    Blocker = "payment-action"
	BlockerPaid             Blocker = "paid"

	consentBlockerPrefix = "consent:"
)

func ConsentBlocker(scope domain.ConsentScope) Blocker {
	return Blocker(consentBlockerPrefix + string(scope))
}

// PayBlockedError lists every unmet condition; it matches ErrPayBlocked.
type PayBlockedError struct {
	Blockers []Blocker
}

func (e *PayBlockedError) Error() string {
	parts := make([]string, 0, len(e.Blockers))
	for _, b := range e.Blockers {
		parts = append(parts, string(b))
	}

	return fmt.Sprintf("%s: %s", ErrPayBlocked, strings.Join(parts, ", "))
}

func (e *PayBlockedError) Is(target error) bool {
	return target == ErrPayBlocked
}

func (s *Session) Totals() (Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return totalsOf(s.st)
}

// PayBlockers lists what keeps the pay action disabled, none when it is enabled.
func (s *Session) PayBlockers() []Blocker {
	var blockers []Blocker

	s.mu.Lock()
	st := s.st
	form := s.form
	paymentStatus := s.steps[StepPayment].Status
	s.mu.Unlock()

	if st.paid != nil {
		return []Blocker{BlockerPaid}
	}
	if st.billing == nil {
		blockers = append(blockers, BlockerBillingAddress)
	}
	if !st.digitalOnly {
		if st.shipping == nil {
			blockers = append(blockers, BlockerShippingAddress)
		}
		if !st.shippingComplete() {
			blockers = append(blockers, BlockerCarrierSelection)
		}
	}
	if st.salesTax == nil {
		blockers = append(blockers, BlockerSalesTax)
	}

	for _, g := range s.gates {
		if !g.gate.Transparent() && !g.gate.CanAcceptAll() {
			blockers = append(blockers, ConsentBlocker(g.scope))
		}
	}

	if !form.Complete {
		blockers = append(blockers, BlockerPaymentForm)
	}
	if s.confirmer.Status() == submit.StatusPending {
		blockers = append(blockers, BlockerSubmitting)
	}
	if paymentStatus == StepAwaitingAction {
		blockers = append(blockers, BlockerPaymentAction)
	}

	return blockers
}

func (s *Session) CanPay() bool {
	return len(s.PayBlockers()) == 0
}

// Pay records the checked consents and confirms the intent with paymentMethodID.
// A redirect outcome leaves the payment step awaiting the buyer's action
// until CompletePayment reads the final outcome.
func (s *Session) Pay(ctx context.Context, paymentMethodID string) (payment.Result, error) {
	if blockers := s.PayBlockers(); len(blockers) > 0 {
		return payment.Result{}, &PayBlockedError{Blockers: blockers}
	}

	release, err := s.acquire(StepPayment)
	if err != nil {
		return payment.Result{}, err
	}
	defer release()

	// the payment lane keeps every other step out from here on
	if blockers := s.PayBlockers(); len(blockers) > 0 {
		return payment.Result{}, &PayBlockedError{Blockers: blockers}
	}

	if err := s.AcceptConsents(ctx); err != nil {
		return payment.Result{}, err
	}

	var result payment.Result
	err = s.run(ctx, func(ctx context.Context) ([]event, error) {
		var err error
		if result, err = s.confirmer.Confirm(ctx, s.params.IntentID, paymentMethodID); err != nil {
			return nil, fmt.Errorf("confirmer.Confirm: %w", err)
		}
		return paymentEvents(result), nil
	}, StepPayment)
	if err != nil {
		return payment.Result{}, err
	}

	if err := s.finishPayment(ctx, result); err != nil {
		return payment.Result{}, err
	}

	return result, nil
}

// CompletePayment reads the outcome of a payment that was waiting for the
// buyer's off-site authentication. An intent that still requires action
// keeps the step awaiting with a fresh redirect URL.
func (s *Session) CompletePayment(ctx context.Context) (payment.Result, error) {
	release, err := s.acquire(StepPayment)
	if err != nil {
		return payment.Result{}, err
	}
	defer release()

	s.mu.Lock()
	status := s.steps[StepPayment].Status
	s.mu.Unlock()

	if status != StepAwaitingAction {
		return payment.Result{}, fmt.Errorf("step[%s] is %s: %w", StepPayment, orIdle(status), ErrOutOfOrder)
	}

	var result payment.Result
	err = s.run(ctx, func(ctx context.Context) ([]event, error) {
		var err error
		if result, err = s.confirmer.Retrieve(ctx, s.params.IntentID); err != nil {
			return nil, fmt.Errorf("confirmer.Retrieve: %w", err)
		}
		return paymentEvents(result), nil
	}, StepPayment)
	if err != nil {
		// the old redirect is spent, the buyer submits a new payment method
		s.mu.Lock()
		s.redirectURL = ""
		s.mu.Unlock()
		return payment.Result{}, err
	}

	if err := s.finishPayment(ctx, result); err != nil {
		return payment.Result{}, err
	}

	return result, nil
}

func paymentEvents(result payment.Result) []event {
	if result.Outcome == payment.OutcomeRedirect {
		return nil
	}
	return []event{paymentConfirmed{result: result}}
}

func (s *Session) finishPayment(ctx context.Context, result payment.Result) error {
	if result.Outcome == payment.OutcomeRedirect {
		s.mu.Lock()
		s.redirectURL = result.RedirectURL
		s.markLocked(StepAwaitingAction, nil, StepPayment)
		s.mu.Unlock()
		return nil
	}

	totals, err := s.Totals()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.expanded = SectionPayment
	s.redirectURL = ""
	s.mu.Unlock()

	s.publish(ctx, EventPaid, PaidEvent{
		SessionID: s.params.ID,
		OrderRef:  s.params.OrderRef,
		IntentID:  result.IntentID,
		Outcome:   result.Outcome,
		Intent:    s.params.IntentType,
		Total:     totals.Grand,
	})

	return nil
}
