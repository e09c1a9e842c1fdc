package payment

import (
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// IntentAPI is the part of the Stripe API used to confirm intents and read
// their outcome after an off-site authentication.
type IntentAPI interface {
	ConfirmPaymentIntent(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	ConfirmSetupIntent(id string, params *stripe.SetupIntentConfirmParams) (*stripe.SetupIntent, error)

	GetPaymentIntent(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	GetSetupIntent(id string, params *stripe.SetupIntentParams) (*stripe.SetupIntent, error)
}

type stripeIntents struct {
	api *client.API
}

func NewStripeIntents(secretKey string) IntentAPI {
	return &stripeIntents{api: client.New(secretKey, nil)}
}

func (s *stripeIntents) ConfirmPaymentIntent(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	return s.api.PaymentIntents.Confirm(id, params)
}

func (s *stripeIntents) ConfirmSetupIntent(id string, params *stripe.SetupIntentConfirmParams) (*stripe.SetupIntent, error) {
	return s.api.SetupIntents.Confirm(id, params)
}

func (s *stripeIntents) GetPaymentIntent(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.api.PaymentIntents.Get(id, params)
}

func (s *stripeIntents) GetSetupIntent(id string, params *stripe.SetupIntentParams) (*stripe.SetupIntent, error) {
	return s.api.SetupIntents.Get(id, params)
}
