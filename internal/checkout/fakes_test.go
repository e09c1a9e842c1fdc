package checkout_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/nikolayk812/checkoutflow/internal/address"
	"github.com/nikolayk812/checkoutflow/internal/checkout"
	"github.com/nikolayk812/checkoutflow/internal/consent"
	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/repository"
	"github.com/nikolayk812/checkoutflow/internal/tax"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

const (
	testTimeout = 5 * time.Second
	testTick    = 10 * time.Millisecond
)

type fakeCommerce struct {
	mu sync.Mutex

	defaultAddress *domain.NamedAddress
	salesTax       domain.Money
	shipments      []domain.Shipment
	errs           map[string]error
	// closed to let GenerateShipments return
	shipmentsGate chan struct{}

	calls     []string
	addresses map[domain.AddressKind]domain.NamedAddress
	rates     map[string]string
}

func newFakeCommerce() *fakeCommerce {
	return &fakeCommerce{
		salesTax:  usd(800),
		errs:      make(map[string]error),
		addresses: make(map[domain.AddressKind]domain.NamedAddress),
		rates:     make(map[string]string),
	}
}

func (f *fakeCommerce) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, call)
	return f.errs[call]
}

func (f *fakeCommerce) setErr(call string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.errs[call] = err
}

func (f *fakeCommerce) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeCommerce) UpdateOrderAddress(_ context.Context, _ string, kind domain.AddressKind, a domain.NamedAddress) error {
	if err := f.record("UpdateOrderAddress"); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.addresses[kind] = a
	return nil
}

func (f *fakeCommerce) UpdateOrderAddresses(_ context.Context, _ string, billing domain.NamedAddress, shipping *domain.NamedAddress) error {
	if err := f.record("UpdateOrderAddresses"); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.addresses[domain.AddressKindBilling] = billing
	if shipping != nil {
		f.addresses[domain.AddressKindShipping] = *shipping
	}
	return nil
}

func (f *fakeCommerce) GenerateSalesTax(context.Context, string) (domain.Money, error) {
	if err := f.record("GenerateSalesTax"); err != nil {
		return domain.Money{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.salesTax, nil
}

func (f *fakeCommerce) GenerateShipments(ctx context.Context, _ string) ([]domain.Shipment, error) {
	if err := f.record("GenerateShipments"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	gate := f.shipmentsGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.shipments), nil
}

func (f *fakeCommerce) SetRateForShipment(_ context.Context, _ string, shipmentID, rateID string) error {
	if err := f.record("SetRateForShipment"); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.rates[shipmentID] = rateID
	return nil
}

func (f *fakeCommerce) DefaultAddress(context.Context) (*domain.NamedAddress, error) {
	if err := f.record("DefaultAddress"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.defaultAddress, nil
}

type fakeConsents struct {
	mu          sync.Mutex
	outstanding map[domain.ConsentScope][]domain.ConsentDocument
	recorded    []domain.ConsentAcceptance
	recordErr   error
}

func (f *fakeConsents) CheckOutstandingConsents(_ context.Context, scope domain.ConsentScope) ([]domain.ConsentDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.outstanding[scope], nil
}

func (f *fakeConsents) RecordConsents(_ context.Context, inputs []domain.ConsentAcceptance) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, inputs...)
	return nil
}

type fakeIntents struct {
	mu     sync.Mutex
	intent *stripe.PaymentIntent
	err    error
	calls  int
	// returned by GetPaymentIntent
	current *stripe.PaymentIntent
	gets    int
	// when set, confirmation signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func (f *fakeIntents) ConfirmPaymentIntent(id string, _ *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	f.calls++
	entered, release := f.entered, f.release
	f.mu.Unlock()

	if entered != nil {
		close(entered)
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if f.intent != nil {
		return f.intent, nil
	}
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusSucceeded}, nil
}

func (f *fakeIntents) ConfirmSetupIntent(id string, _ *stripe.SetupIntentConfirmParams) (*stripe.SetupIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	return &stripe.SetupIntent{ID: id, Status: stripe.SetupIntentStatusSucceeded}, f.err
}

func (f *fakeIntents) GetPaymentIntent(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gets++
	if f.current != nil {
		return f.current, nil
	}
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusSucceeded}, nil
}

func (f *fakeIntents) GetSetupIntent(id string, _ *stripe.SetupIntentParams) (*stripe.SetupIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gets++
	return &stripe.SetupIntent{ID: id, Status: stripe.SetupIntentStatusSucceeded}, nil
}

// redirectIntent needs 3-D Secure authentication.
func redirectIntent(id string) *stripe.PaymentIntent {
	return &stripe.PaymentIntent{
		ID:     id,
		Status: stripe.PaymentIntentStatusRequiresAction,
		NextAction: &stripe.PaymentIntentNextAction{
			RedirectToURL: &stripe.PaymentIntentNextActionRedirectToURL{URL: "https://hooks.stripe.com/3ds/" + id},
		},
	}
}

type published struct {
	event   string
	payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (f *fakePublisher) Publish(_ context.Context, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, published{event: event, payload: payload})
	return nil
}

func (f *fakePublisher) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.events))
	for _, e := range f.events {
		names = append(names, e.event)
	}
	return names
}

type fakeObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (f *fakeObserver) ObserveStep(step, status string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.outcomes == nil {
		f.outcomes = make(map[string]int)
	}
	f.outcomes[step+"/"+status]++
}

func (f *fakeObserver) count(step, status string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.outcomes[step+"/"+status]
}

// fakeRepository keeps records in memory with the repository's version semantics.
type fakeRepository struct {
	mu          sync.Mutex
	records     map[uuid.UUID]domain.CheckoutRecord
	acceptances map[uuid.UUID][]domain.ConsentAcceptance
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		records:     make(map[uuid.UUID]domain.CheckoutRecord),
		acceptances: make(map[uuid.UUID][]domain.ConsentAcceptance),
	}
}

func (f *fakeRepository) GetSession(_ context.Context, id uuid.UUID) (domain.CheckoutRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[id]
	if !ok {
		return domain.CheckoutRecord{}, repository.ErrNotFound
	}
	return rec, nil
}

func (f *fakeRepository) SearchSessions(context.Context, domain.SessionFilter) ([]domain.CheckoutRecord, error) {
	return nil, nil
}

func (f *fakeRepository) InsertSession(_ context.Context, rec domain.CheckoutRecord) (domain.CheckoutRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec.Version = 1
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeRepository) UpdateSession(_ context.Context, rec domain.CheckoutRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.records[rec.ID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if stored.Version != rec.Version {
		return 0, repository.ErrVersionConflict
	}

	rec.OrderRef = stored.OrderRef
	rec.OwnerID = stored.OwnerID
	rec.Version++
	f.records[rec.ID] = rec
	return rec.Version, nil
}

func (f *fakeRepository) DeleteSession(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.records[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeRepository) RecordAcceptances(_ context.Context, id uuid.UUID, _ string, acceptances []domain.ConsentAcceptance) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.acceptances[id] = append(f.acceptances[id], acceptances...)
	return nil
}

func (f *fakeRepository) ListAcceptances(_ context.Context, id uuid.UUID) ([]domain.AcceptanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.AcceptanceRecord
	for _, a := range f.acceptances[id] {
		out = append(out, domain.AcceptanceRecord{SessionID: id, Acceptance: a})
	}
	return out, nil
}

type env struct {
	commerce  *fakeCommerce
	consents  *fakeConsents
	intents   *fakeIntents
	events    *fakePublisher
	observer  *fakeObserver
	deps      checkout.Deps
	identity  string
	orderRef  string
	baseTotal domain.Money
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		commerce:  newFakeCommerce(),
		consents:  &fakeConsents{outstanding: make(map[domain.ConsentScope][]domain.ConsentDocument)},
		intents:   &fakeIntents{},
		events:    &fakePublisher{},
		observer:  &fakeObserver{},
		identity:  gofakeit.UUID(),
		orderRef:  "ord_" + gofakeit.LetterN(10),
		baseTotal: usd(10000),
	}

	trigger, err := tax.NewTrigger(e.commerce)
	require.NoError(t, err)

	e.deps = checkout.Deps{
		Commerce: e.commerce,
		Consents: e.consents,
		Cache:    consent.NewMemoryCache(),
		Intents:  e.intents,
		Tax:      trigger,
		Events:   e.events,
		Observer: e.observer,
	}

	return e
}

func (e *env) params(items ...domain.LineItem) checkout.Params {
	return checkout.Params{
		OrderRef:     e.orderRef,
		Identity:     e.identity,
		Items:        items,
		BaseAmount:   e.baseTotal,
		ClientSecret: "pi_3Nabc_secret_xyz",
		IntentType:   domain.IntentTypePayment,
		ReturnURL:    "https://shop.example.com/checkout/complete",
	}
}

// start creates and starts a session for items.
func (e *env) start(t *testing.T, items ...domain.LineItem) *checkout.Session {
	t.Helper()

	s, err := checkout.NewSession(e.deps, e.params(items...))
	require.NoError(t, err)
	require.NoError(t, s.Start(t.Context()))

	return s
}

func usd(amount int64) domain.Money {
	return domain.MustMoney(amount, "USD")
}

func product() domain.LineItem {
	return domain.LineItem{
		ID:    gofakeit.UUID(),
		Kind:  domain.LineItemKindProduct,
		Title: gofakeit.ProductName(),
		Price: usd(int64(gofakeit.Number(100, 5000))),
	}
}

func digital() domain.LineItem {
	item := product()
	item.Kind = domain.LineItemKindDigital
	return item
}

func service() domain.LineItem {
	item := product()
	item.Kind = domain.LineItemKindService
	return item
}

func manualAddress() address.Input {
	return address.Input{
		Name: gofakeit.Name(),
		Manual: &domain.Address{
			Line1:      gofakeit.Street(),
			City:       gofakeit.City(),
			State:      gofakeit.StateAbr(),
			PostalCode: gofakeit.Zip(),
			Country:    "us",
		},
	}
}

func namedAddress() domain.NamedAddress {
	in := manualAddress()
	in.Manual.Country = "US"
	return domain.NamedAddress{Name: in.Name, Address: *in.Manual}
}

// option quotes a rate whose cost is rate plus a fixed tax and fee of 100 cents each.
func option(rateID string, days *int, rate int64) domain.CarrierOption {
	return domain.CarrierOption{
		RateID:              rateID,
		CarrierFriendlyName: gofakeit.Company(),
		CarrierCode:         "carrier_" + rateID,
		ServiceCode:         "service_" + rateID,
		DeliveryDays:        days,
		TaxAmount:           usd(100),
		TotalRate:           usd(rate),
		StripeFee:           usd(100),
	}
}

func days(n int) *int {
	return &n
}

func shipment(id string, options ...domain.CarrierOption) domain.Shipment {
	return domain.Shipment{
		ID:             id,
		SendFromName:   gofakeit.Company(),
		CarrierOptions: options,
	}
}

func document(docType string) domain.ConsentDocument {
	return domain.ConsentDocument{
		DocumentType:  docType,
		DocumentID:    gofakeit.UUID(),
		Title:         gofakeit.Sentence(3),
		Content:       gofakeit.Sentence(12),
		Version:       gofakeit.Number(1, 5),
		EffectiveDate: time.Now().Add(-24 * time.Hour),
	}
}
