// Package payment confirms Stripe payment and setup intents.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/submit"
	"github.com/stripe/stripe-go/v79"
)

var ErrInvalidClientSecret = errors.New("invalid client secret")

type Outcome string

const (
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeProcessing Outcome = "processing"
	OutcomeRedirect   Outcome = "redirect"
)

type Result struct {
	IntentID    string  `json:"intentId"`
	Outcome     Outcome `json:"outcome"`
	RedirectURL string  `json:"redirectUrl,omitempty"`
}

// Error is a confirmation failure reported by the payment provider.
type Error struct {
	Code        string `json:"code"`
	DeclineCode string `json:"declineCode,omitempty"`
	Message     string `json:"message"`
}

func (e *Error) Error() string {
	if e.DeclineCode != "" {
		return fmt.Sprintf("payment %s (%s): %s", e.Code, e.DeclineCode, e.Message)
	}
	return fmt.Sprintf("payment %s: %s", e.Code, e.Message)
}

type Confirmer struct {
	intents    IntentAPI
	intentType domain.IntentType
	returnURL  string
	account    string

	tracker submit.Tracker
}

type Option func(*Confirmer)

// WithConnectedAccount confirms on behalf of a connected merchant account.
func WithConnectedAccount(accountID string) Option {
	return func(c *Confirmer) {
		c.account = accountID
	}
}

// NewConfirmer fixes the intent type for the lifetime of one checkout.
func NewConfirmer(intents IntentAPI, intentType domain.IntentType, returnURL string, opts ...Option) (*Confirmer, error) {
	if intents == nil {
		return nil, errors.New("intents is nil")
	}
	if _, err := domain.ToIntentType(string(intentType)); err != nil {
		return nil, fmt.Errorf("intentType[%s]: %w", intentType, err)
	}
	if returnURL == "" {
		return nil, errors.New("returnURL is empty")
	}

	c := &Confirmer{
		intents:    intents,
		intentType: intentType,
		returnURL:  returnURL,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Confirmer) IntentType() domain.IntentType {
	return c.intentType
}

func (c *Confirmer) Status() submit.Status {
	return c.tracker.Status()
}

// Confirm confirms intentID with the given payment method.
// A failed confirmation leaves the confirmer idle so the buyer can retry.
func (c *Confirmer) Confirm(ctx context.Context, intentID, paymentMethodID string) (Result, error) {
	if err := CheckIntentID(intentID, c.intentType); err != nil {
		return Result{}, err
	}
	if paymentMethodID == "" {
		return Result{}, errors.New("paymentMethodID is empty")
	}

	if err := c.tracker.Begin(); err != nil {
		return Result{}, err
	}

	var (
		result Result
		err    error
	)
	if c.intentType == domain.IntentTypeSetup {
		result, err = c.confirmSetup(ctx, intentID, paymentMethodID)
	} else {
		result, err = c.confirmPayment(ctx, intentID, paymentMethodID)
	}

	if err != nil {
		slog.Warn("payment confirmation failed",
			"method", "Confirmer.Confirm",
			"intent_id", intentID,
			"intent_type", c.intentType,
			"error", err)

		c.tracker.Finish(err)
		c.tracker.Reset()
		return Result{}, err
	}

	c.tracker.Finish(nil)
	return result, nil
}

func (c *Confirmer) confirmPayment(ctx context.Context, intentID, paymentMethodID string) (Result, error) {
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodID),
		ReturnURL:     stripe.String(c.returnURL),
	}
	params.Context = ctx
	if c.account != "" {
		params.SetStripeAccount(c.account)
	}

	pi, err := c.intents.ConfirmPaymentIntent(intentID, params)
	if err != nil {
		return Result{}, translateError(err)
	}

	return paymentIntentResult(pi)
}

func (c *Confirmer) confirmSetup(ctx context.Context, intentID, paymentMethodID string) (Result, error) {
	params := &stripe.SetupIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodID),
		ReturnURL:     stripe.String(c.returnURL),
	}
	params.Context = ctx
	if c.account != "" {
		params.SetStripeAccount(c.account)
	}

	si, err := c.intents.ConfirmSetupIntent(intentID, params)
	if err != nil {
		return Result{}, translateError(err)
	}

	return setupIntentResult(si)
}

// Retrieve reads the current outcome of intentID after the buyer returns
// from an off-site authentication. An intent that still requires action is
// reported as a redirect again.
func (c *Confirmer) Retrieve(ctx context.Context, intentID string) (Result, error) {
	if err := CheckIntentID(intentID, c.intentType); err != nil {
		return Result{}, err
	}

	if err := c.tracker.Begin(); err != nil {
		return Result{}, err
	}

	var (
		result Result
		err    error
	)
	if c.intentType == domain.IntentTypeSetup {
		result, err = c.retrieveSetup(ctx, intentID)
	} else {
		result, err = c.retrievePayment(ctx, intentID)
	}

	if err != nil {
		slog.Warn("payment retrieval failed",
			"method", "Confirmer.Retrieve",
			"intent_id", intentID,
			"intent_type", c.intentType,
			"error", err)

		c.tracker.Finish(err)
		c.tracker.Reset()
		return Result{}, err
	}

	c.tracker.Finish(nil)
	return result, nil
}

func (c *Confirmer) retrievePayment(ctx context.Context, intentID string) (Result, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if c.account != "" {
		params.SetStripeAccount(c.account)
	}

	pi, err := c.intents.GetPaymentIntent(intentID, params)
	if err != nil {
		return Result{}, translateError(err)
	}

	return paymentIntentResult(pi)
}

func (c *Confirmer) retrieveSetup(ctx context.Context, intentID string) (Result, error) {
	params := &stripe.SetupIntentParams{}
	params.Context = ctx
	if c.account != "" {
		params.SetStripeAccount(c.account)
	}

	si, err := c.intents.GetSetupIntent(intentID, params)
	if err != nil {
		return Result{}, translateError(err)
	}

	return setupIntentResult(si)
}

func paymentIntentResult(pi *stripe.PaymentIntent) (Result, error) {
	result := Result{IntentID: pi.ID}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusRequiresCapture:
		result.Outcome = OutcomeSucceeded
	case stripe.PaymentIntentStatusProcessing:
		result.Outcome = OutcomeProcessing
	case stripe.PaymentIntentStatusRequiresAction:
		if pi.NextAction == nil || pi.NextAction.RedirectToURL == nil {
			return Result{}, &Error{Code: "unsupported_next_action", Message: "payment requires an action that cannot be completed by redirect"}
		}
		result.Outcome = OutcomeRedirect
		result.RedirectURL = pi.NextAction.RedirectToURL.URL
	default:
		return Result{}, &Error{Code: string(pi.Status), Message: "payment was not completed"}
	}

	return result, nil
}

func setupIntentResult(si *stripe.SetupIntent) (Result, error) {
	result := Result{IntentID: si.ID}

	switch si.Status {
	case stripe.SetupIntentStatusSucceeded:
		result.Outcome = OutcomeSucceeded
	case stripe.SetupIntentStatusProcessing:
		result.Outcome = OutcomeProcessing
	case stripe.SetupIntentStatusRequiresAction:
		if si.NextAction == nil || si.NextAction.RedirectToURL == nil {
			return Result{}, &Error{Code: "unsupported_next_action", Message: "setup requires an action that cannot be completed by redirect"}
		}
		result.Outcome = OutcomeRedirect
		result.RedirectURL = si.NextAction.RedirectToURL.URL
	default:
		return Result{}, &Error{Code: string(si.Status), Message: "payment method was not saved"}
	}

	return result, nil
}

func translateError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		code := string(stripeErr.Code)
		if code == "" {
			code = string(stripeErr.Type)
		}
		return &Error{
			Code:        code,
			DeclineCode: string(stripeErr.DeclineCode),
			Message:     stripeErr.Msg,
		}
	}

	return fmt.Errorf("stripe: %w", err)
}

// IntentIDFromClientSecret extracts "pi_123" from "pi_123_secret_abc" and checks
// the prefix matches the intent type.
func IntentIDFromClientSecret(clientSecret string, intentType domain.IntentType) (string, error) {
	id, _, found := strings.Cut(clientSecret, "_secret_")
	if !found || id == "" {
		return "", ErrInvalidClientSecret
	}

	if err := CheckIntentID(id, intentType); err != nil {
		return "", err
	}

	return id, nil
}

// CheckIntentID reports whether id names an intent of intentType.
func CheckIntentID(id string, intentType domain.IntentType) error {
	prefix := "pi_"
	if intentType == domain.IntentTypeSetup {
		prefix = "seti_"
	}
	if !strings.HasPrefix(id, prefix) || len(id) == len(prefix) {
		return fmt.Errorf("%w: not a %s intent", ErrInvalidClientSecret, intentType)
	}
	return nil
}
