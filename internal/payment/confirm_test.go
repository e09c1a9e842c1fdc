package payment_test

import (
	"errors"
	"testing"

	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/payment"
	"github.com/nikolayk812/checkoutflow/internal/submit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

type fakeIntents struct {
	paymentIntent *stripe.PaymentIntent
	setupIntent   *stripe.SetupIntent
	err           error

	paymentCalls []string
	setupCalls   []string
	getCalls     []string
	lastAccount  string
}

func (f *fakeIntents) GetPaymentIntent(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.getCalls = append(f.getCalls, id)
	f.lastAccount = stripe.StringValue(params.StripeAccount)
	return f.paymentIntent, f.err
}

func (f *fakeIntents) GetSetupIntent(id string, params *stripe.SetupIntentParams) (*stripe.SetupIntent, error) {
	f.getCalls = append(f.getCalls, id)
	f.lastAccount = stripe.StringValue(params.StripeAccount)
	return f.setupIntent, f.err
}

func (f *fakeIntents) ConfirmPaymentIntent(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	f.paymentCalls = append(f.paymentCalls, id)
	f.lastAccount = stripe.StringValue(params.StripeAccount)
	return f.paymentIntent, f.err
}

func (f *fakeIntents) ConfirmSetupIntent(id string, params *stripe.SetupIntentConfirmParams) (*stripe.SetupIntent, error) {
	f.setupCalls = append(f.setupCalls, id)
	f.lastAccount = stripe.StringValue(params.StripeAccount)
	return f.setupIntent, f.err
}

func TestConfirmer_Payment(t *testing.T) {
	tests := []struct {
		name       string
		intent     *stripe.PaymentIntent
		err        error
		wantResult payment.Result
		wantError  string
	}{
		{
			name:       "succeeded: ok",
			intent:     &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded},
			wantResult: payment.Result{IntentID: "pi_1", Outcome: payment.OutcomeSucceeded},
		},
		{
			name: "3-D Secure: redirect",
			intent: &stripe.PaymentIntent{
				ID:     "pi_1",
				Status: stripe.PaymentIntentStatusRequiresAction,
				NextAction: &stripe.PaymentIntentNextAction{
					RedirectToURL: &stripe.PaymentIntentNextActionRedirectToURL{URL: "https://hooks.stripe.com/3ds"},
				},
			},
			wantResult: payment.Result{IntentID: "pi_1", Outcome: payment.OutcomeRedirect, RedirectURL: "https://hooks.stripe.com/3ds"},
		},
		{
			name:       "processing: ok",
			intent:     &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusProcessing},
			wantResult: payment.Result{IntentID: "pi_1", Outcome: payment.OutcomeProcessing},
		},
		{
			name: "card declined: fail",
			err: &stripe.Error{
				Code:        stripe.ErrorCodeCardDeclined,
				DeclineCode: "insufficient_funds",
				Msg:         "Your card has insufficient funds.",
			},
			wantError: "payment card_declined (insufficient_funds): Your card has insufficient funds.",
		},
		{
			name:      "network failure: fail",
			err:       errors.New("connection reset"),
			wantError: "stripe: connection reset",
		},
		{
			name:      "requires payment method: fail",
			intent:    &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusRequiresPaymentMethod},
			wantError: "payment requires_payment_method: payment was not completed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intents := &fakeIntents{paymentIntent: tt.intent, err: tt.err}

			confirmer, err := payment.NewConfirmer(intents, domain.IntentTypePayment, "https://shop.example.com/checkout/complete")
			require.NoError(t, err)

			result, err := confirmer.Confirm(t.Context(), "pi_1", "pm_card_visa")
			assert.Equal(t, []string{"pi_1"}, intents.paymentCalls)
			assert.Empty(t, intents.setupCalls)

			if tt.wantError != "" {
				require.EqualError(t, err, tt.wantError)
				// pay control is re-enabled after an error
				assert.Equal(t, submit.StatusIdle, confirmer.Status())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantResult, result)
			assert.Equal(t, submit.StatusSucceeded, confirmer.Status())
		})
	}
}

func TestConfirmer_Setup(t *testing.T) {
	intents := &fakeIntents{
		setupIntent: &stripe.SetupIntent{ID: "seti_9", Status: stripe.SetupIntentStatusSucceeded},
	}

	confirmer, err := payment.NewConfirmer(intents, domain.IntentTypeSetup, "https://shop.example.com/bookings",
		payment.WithConnectedAccount("acct_merchant"))
	require.NoError(t, err)

	result, err := confirmer.Confirm(t.Context(), "seti_9", "pm_card_visa")
	require.NoError(t, err)

	assert.Equal(t, payment.Result{IntentID: "seti_9", Outcome: payment.OutcomeSucceeded}, result)
	assert.Equal(t, []string{"seti_9"}, intents.setupCalls)
	assert.Empty(t, intents.paymentCalls)
	assert.Equal(t, "acct_merchant", intents.lastAccount)
}

func TestConfirmer_Retrieve(t *testing.T) {
	tests := []struct {
		name       string
		intent     *stripe.PaymentIntent
		err        error
		wantResult payment.Result
		wantError  string
	}{
		{
			name:       "authenticated: ok",
			intent:     &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded},
			wantResult: payment.Result{IntentID: "pi_1", Outcome: payment.OutcomeSucceeded},
		},
		{
			name:       "processing: ok",
			intent:     &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusProcessing},
			wantResult: payment.Result{IntentID: "pi_1", Outcome: payment.OutcomeProcessing},
		},
		{
			name: "still requires action: redirect",
			intent: &stripe.PaymentIntent{
				ID:     "pi_1",
				Status: stripe.PaymentIntentStatusRequiresAction,
				NextAction: &stripe.PaymentIntentNextAction{
					RedirectToURL: &stripe.PaymentIntentNextActionRedirectToURL{URL: "https://hooks.stripe.com/3ds"},
				},
			},
			wantResult: payment.Result{IntentID: "pi_1", Outcome: payment.OutcomeRedirect, RedirectURL: "https://hooks.stripe.com/3ds"},
		},
		{
			name:      "authentication failed: fail",
			intent:    &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusRequiresPaymentMethod},
			wantError: "payment requires_payment_method: payment was not completed",
		},
		{
			name:      "network failure: fail",
			err:       errors.New("connection reset"),
			wantError: "stripe: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intents := &fakeIntents{paymentIntent: tt.intent, err: tt.err}

			confirmer, err := payment.NewConfirmer(intents, domain.IntentTypePayment, "https://shop.example.com/checkout/complete",
				payment.WithConnectedAccount("acct_merchant"))
			require.NoError(t, err)

			result, err := confirmer.Retrieve(t.Context(), "pi_1")
			assert.Equal(t, []string{"pi_1"}, intents.getCalls)
			assert.Empty(t, intents.paymentCalls)
			assert.Equal(t, "acct_merchant", intents.lastAccount)

			if tt.wantError != "" {
				require.EqualError(t, err, tt.wantError)
				assert.Equal(t, submit.StatusIdle, confirmer.Status())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantResult, result)
		})
	}
}

func TestConfirmer_RetrieveSetup(t *testing.T) {
	intents := &fakeIntents{
		setupIntent: &stripe.SetupIntent{ID: "seti_9", Status: stripe.SetupIntentStatusSucceeded},
	}

	confirmer, err := payment.NewConfirmer(intents, domain.IntentTypeSetup, "https://shop.example.com/bookings")
	require.NoError(t, err)

	result, err := confirmer.Retrieve(t.Context(), "seti_9")
	require.NoError(t, err)
	assert.Equal(t, payment.Result{IntentID: "seti_9", Outcome: payment.OutcomeSucceeded}, result)
	assert.Equal(t, []string{"seti_9"}, intents.getCalls)

	_, err = confirmer.Retrieve(t.Context(), "pi_1")
	require.ErrorIs(t, err, payment.ErrInvalidClientSecret)
}

func TestNewConfirmer(t *testing.T) {
	tests := []struct {
		name       string
		intents    payment.IntentAPI
		intentType domain.IntentType
		returnURL  string
		wantError  string
	}{
		{
			name:       "nil intents: fail",
			intentType: domain.IntentTypePayment,
			returnURL:  "https://x",
			wantError:  "intents is nil",
		},
		{
			name:       "unknown intent type: fail",
			intents:    &fakeIntents{},
			intentType: "REFUND",
			returnURL:  "https://x",
			wantError:  "intentType[REFUND]: invalid intent type",
		},
		{
			name:       "empty return url: fail",
			intents:    &fakeIntents{},
			intentType: domain.IntentTypeSetup,
			wantError:  "returnURL is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := payment.NewConfirmer(tt.intents, tt.intentType, tt.returnURL)
			require.EqualError(t, err, tt.wantError)
		})
	}
}

func TestIntentIDFromClientSecret(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		intentType domain.IntentType
		wantID     string
		wantError  string
	}{
		{
			name:       "payment intent: ok",
			secret:     "pi_3Mtw_secret_YrKJ",
			intentType: domain.IntentTypePayment,
			wantID:     "pi_3Mtw",
		},
		{
			name:       "setup intent: ok",
			secret:     "seti_1Mm_secret_Q9",
			intentType: domain.IntentTypeSetup,
			wantID:     "seti_1Mm",
		},
		{
			name:       "setup secret for payment checkout: fail",
			secret:     "seti_1Mm_secret_Q9",
			intentType: domain.IntentTypePayment,
			wantError:  "invalid client secret: not a PAYMENT intent",
		},
		{
			name:       "prefix only: fail",
			secret:     "pi__secret_x",
			intentType: domain.IntentTypePayment,
			wantError:  "invalid client secret: not a PAYMENT intent",
		},
		{
			name:       "garbage: fail",
			secret:     "not-a-secret",
			intentType: domain.IntentTypePayment,
			wantError:  "invalid client secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := payment.IntentIDFromClientSecret(tt.secret, tt.intentType)
			if tt.wantError != "" {
				require.EqualError(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}
