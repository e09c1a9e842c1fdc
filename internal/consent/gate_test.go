package consent_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/nikolayk812/checkoutflow/internal/consent"
	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/submit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConsentAPI struct {
	mu          sync.Mutex
	outstanding map[domain.ConsentScope][]domain.ConsentDocument
	checkCalls  int
	recorded    [][]domain.ConsentAcceptance
	recordErr   error
}

func (f *fakeConsentAPI) CheckOutstandingConsents(_ context.Context, scope domain.ConsentScope) ([]domain.ConsentDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.checkCalls++
	return f.outstanding[scope], nil
}

func (f *fakeConsentAPI) RecordConsents(_ context.Context, inputs []domain.ConsentAcceptance) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.recordErr != nil {
		return f.recordErr
	}

	f.recorded = append(f.recorded, inputs)
	// accepted documents are no longer outstanding
	for scope := range f.outstanding {
		f.outstanding[scope] = nil
	}
	return nil
}

func TestGate_NothingOutstanding(t *testing.T) {
	tests := []struct {
		name    string
		docs    []domain.ConsentDocument
		enabled bool
	}{
		{
			name:    "enabled, zero documents: transparent",
			enabled: true,
		},
		{
			name:    "disabled with documents: transparent",
			docs:    []domain.ConsentDocument{randomDocument("terms")},
			enabled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := t.Context()

			api := &fakeConsentAPI{outstanding: map[domain.ConsentScope][]domain.ConsentDocument{
				domain.ConsentScopeCheckout: tt.docs,
			}}

			var fired int
			gate, err := consent.NewGate(api, consent.NewMemoryCache(), "checkout",
				consent.WithOnAccepted(func([]domain.ConsentAcceptance) { fired++ }))
			require.NoError(t, err)

			require.NoError(t, gate.Load(ctx, gofakeit.UUID(), domain.ConsentScopeCheckout, tt.enabled))
			assert.True(t, gate.Transparent())

			require.NoError(t, gate.AcceptAll(ctx))
			assert.Equal(t, 1, fired)
			assert.Empty(t, api.recorded)
		})
	}
}

func TestGate_AcceptAllInServerOrder(t *testing.T) {
	ctx := t.Context()

	docs := []domain.ConsentDocument{
		randomDocument("terms"),
		randomDocument("privacy"),
		randomDocument("refunds"),
	}
	api := &fakeConsentAPI{outstanding: map[domain.ConsentScope][]domain.ConsentDocument{
		domain.ConsentScopeCheckout: docs,
	}}
	cache := consent.NewMemoryCache()
	identity := gofakeit.UUID()

	var fired int
	gate, err := consent.NewGate(api, cache, "checkout", consent.WithOnAccepted(func([]domain.ConsentAcceptance) { fired++ }))
	require.NoError(t, err)
	require.NoError(t, gate.Load(ctx, identity, domain.ConsentScopeCheckout, true))

	assert.False(t, gate.Transparent())
	active, ok := gate.Active()
	require.True(t, ok)
	assert.Equal(t, "terms", active.DocumentType)

	// cannot advance past an unchecked document
	require.ErrorIs(t, gate.Next(), consent.ErrActiveNotChecked)

	// checking out of order: last document first
	require.NoError(t, gate.Check("refunds", true))
	require.NoError(t, gate.Check("terms", true))
	assert.False(t, gate.CanAcceptAll())
	require.ErrorIs(t, gate.AcceptAll(ctx), consent.ErrNotAllChecked)

	require.NoError(t, gate.Next())
	require.NoError(t, gate.Check("privacy", true))
	require.NoError(t, gate.Next())
	require.ErrorIs(t, gate.Next(), consent.ErrLastDocument)

	assert.True(t, gate.CanAcceptAll())
	require.NoError(t, gate.AcceptAll(ctx))

	require.Len(t, api.recorded, 1)
	batch := api.recorded[0]
	require.Len(t, batch, 3)
	for i, d := range docs {
		assert.Equal(t, domain.NewConsentAcceptance(d, "checkout"), batch[i])
	}

	assert.True(t, gate.Transparent())
	assert.Equal(t, 1, fired)

	// the cache entry was dropped, so a reload asks the server again
	_, cached, err := cache.Get(ctx, domain.ConsentKey{Identity: identity, Scope: domain.ConsentScopeCheckout})
	require.NoError(t, err)
	assert.False(t, cached)

	require.NoError(t, gate.Load(ctx, identity, domain.ConsentScopeCheckout, true))
	assert.Equal(t, 2, api.checkCalls)
	assert.True(t, gate.Transparent())
}

func TestGate_UncheckReopens(t *testing.T) {
	ctx := t.Context()

	api := &fakeConsentAPI{outstanding: map[domain.ConsentScope][]domain.ConsentDocument{
		domain.ConsentScopeSite: {randomDocument("terms")},
	}}
	gate, err := consent.NewGate(api, consent.NewMemoryCache(), "site-modal")
	require.NoError(t, err)
	require.NoError(t, gate.Load(ctx, gofakeit.UUID(), domain.ConsentScopeSite, true))

	require.NoError(t, gate.Check("terms", true))
	assert.True(t, gate.CanAcceptAll())

	require.NoError(t, gate.Check("terms", false))
	assert.False(t, gate.CanAcceptAll())

	require.ErrorIs(t, gate.Check("cookies", true), consent.ErrUnknownDocument)
}

func TestGate_RecordFailureKeepsGateOpen(t *testing.T) {
	ctx := t.Context()

	api := &fakeConsentAPI{
		outstanding: map[domain.ConsentScope][]domain.ConsentDocument{
			domain.ConsentScopeMerchantOnboarding: {randomDocument("merchant-agreement")},
		},
		recordErr: errors.New("503 service unavailable"),
	}

	var fired int
	gate, err := consent.NewGate(api, consent.NewMemoryCache(), "merchant-onboarding",
		consent.WithOnAccepted(func([]domain.ConsentAcceptance) { fired++ }))
	require.NoError(t, err)
	require.NoError(t, gate.Load(ctx, gofakeit.UUID(), domain.ConsentScopeMerchantOnboarding, true))
	require.NoError(t, gate.Check("merchant-agreement", true))

	err = gate.AcceptAll(ctx)
	require.EqualError(t, err, "api.RecordConsents: 503 service unavailable")

	assert.False(t, gate.Transparent())
	assert.Zero(t, fired)

	view := gate.View()
	assert.Equal(t, submit.StatusIdle, view.Submit)
	assert.Equal(t, "503 service unavailable", view.LastError)
	assert.True(t, view.CanAcceptAll)

	// resubmission after the backend recovers
	api.recordErr = nil
	require.NoError(t, gate.AcceptAll(ctx))
	assert.True(t, gate.Transparent())
	assert.Equal(t, 1, fired)
}

func TestGate_FollowLink(t *testing.T) {
	ctx := t.Context()

	terms := randomDocument("terms")
	terms.Content = "See our [privacy policy](/legal/privacy) and [blog](/blog/post)."

	api := &fakeConsentAPI{outstanding: map[domain.ConsentScope][]domain.ConsentDocument{
		domain.ConsentScopeCheckout: {terms, randomDocument("privacy")},
	}}
	gate, err := consent.NewGate(api, consent.NewMemoryCache(), "checkout")
	require.NoError(t, err)
	require.NoError(t, gate.Load(ctx, gofakeit.UUID(), domain.ConsentScopeCheckout, true))

	view := gate.View()
	assert.Equal(t, []string{"privacy"}, view.Documents[0].Links)

	tests := []struct {
		name       string
		href       string
		wantJump   bool
		wantActive string
	}{
		{
			name:       "link to other document in gate: jump",
			href:       "/legal/privacy",
			wantJump:   true,
			wantActive: "privacy",
		},
		{
			name:       "absolute link to document in gate: jump",
			href:       "https://shop.example.com/legal/terms",
			wantJump:   true,
			wantActive: "terms",
		},
		{
			name:       "legal document not in gate: navigate",
			href:       "/legal/cookies",
			wantActive: "terms",
		},
		{
			name:       "non legal link: navigate",
			href:       "/blog/post",
			wantActive: "terms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate.Previous()
			assert.Equal(t, tt.wantJump, gate.FollowLink(tt.href))

			active, ok := gate.Active()
			require.True(t, ok)
			assert.Equal(t, tt.wantActive, active.DocumentType)
		})
	}
}

func TestGate_UsesCache(t *testing.T) {
	ctx := t.Context()

	api := &fakeConsentAPI{outstanding: map[domain.ConsentScope][]domain.ConsentDocument{
		domain.ConsentScopeCheckout: {randomDocument("terms")},
	}}
	cache := consent.NewMemoryCache()
	identity := gofakeit.UUID()

	gate, err := consent.NewGate(api, cache, "checkout")
	require.NoError(t, err)

	require.NoError(t, gate.Load(ctx, identity, domain.ConsentScopeCheckout, true))
	require.NoError(t, gate.Load(ctx, identity, domain.ConsentScopeCheckout, true))
	assert.Equal(t, 1, api.checkCalls)

	// another scope of the same identity is a separate entry
	require.NoError(t, gate.Load(ctx, identity, domain.ConsentScopeSite, true))
	assert.Equal(t, 2, api.checkCalls)
}

func TestNewGate(t *testing.T) {
	api := &fakeConsentAPI{}

	tests := []struct {
		name      string
		build     func() (*consent.Gate, error)
		wantError string
	}{
		{
			name:      "nil api: fail",
			build:     func() (*consent.Gate, error) { return consent.NewGate(nil, consent.NewMemoryCache(), "checkout") },
			wantError: "api is nil",
		},
		{
			name:      "nil cache: fail",
			build:     func() (*consent.Gate, error) { return consent.NewGate(api, nil, "checkout") },
			wantError: "cache is nil",
		},
		{
			name:      "empty context: fail",
			build:     func() (*consent.Gate, error) { return consent.NewGate(api, consent.NewMemoryCache(), "") },
			wantError: "consentContext is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			require.EqualError(t, err, tt.wantError)
		})
	}

	gate, err := consent.NewGate(api, consent.NewMemoryCache(), "checkout")
	require.NoError(t, err)
	require.EqualError(t, gate.Load(t.Context(), "u", "newsletter", true), "scope[newsletter]: invalid consent scope")
}

func TestRender(t *testing.T) {
	doc := randomDocument("terms")
	doc.Content = "{{company}} sells to {{customer}}. {{company}} is in {{unknown}}."
	doc.Placeholders = map[string]string{
		"company":  "Lumen Collective",
		"customer": "Ada",
	}

	assert.Equal(t, "Lumen Collective sells to Ada. Lumen Collective is in {{unknown}}.", consent.Render(doc))
}

func randomDocument(docType string) domain.ConsentDocument {
	return domain.ConsentDocument{
		DocumentType:  docType,
		DocumentID:    gofakeit.UUID(),
		Title:         gofakeit.Sentence(3),
		Content:       gofakeit.Sentence(12),
		Version:       gofakeit.Number(1, 9),
		EffectiveDate: gofakeit.DateRange(time.Now().AddDate(-1, 0, 0), time.Now()).UTC(),
	}
}
