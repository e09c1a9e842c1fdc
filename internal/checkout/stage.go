package checkout

import (
	"errors"
	"fmt"
	"slices"

	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/payment"
	"github.com/nikolayk812/checkoutflow/internal/shipping"
	"github.com/samber/lo"
)

var (
	ErrNotApplicable = errors.New("not applicable to a digital-only order")
	ErrAlreadyPaid   = errors.New("checkout already paid")
	ErrOutOfOrder    = errors.New("prerequisite not met")
)

// Stage is where the checkout stands. Exactly one of the types below.
type Stage interface {
	Name() domain.CheckoutStage
	isStage()
}

type CollectingBilling struct{}

type CollectingShipping struct{}

// SelectingCarriers waits for rates (RatesReady false) or for a carrier
// on each shipment listed in Pending.
type SelectingCarriers struct {
	RatesReady bool
	Pending    []string
}

type AwaitingTax struct{}

// ReadyToPay has every amount known; only consent and payment form remain.
type ReadyToPay struct {
	Totals Totals
}

type Paid struct {
	Result payment.Result
}

func (CollectingBilling) Name() domain.CheckoutStage  { return domain.CheckoutStageCollectingBilling }
func (CollectingShipping) Name() domain.CheckoutStage { return domain.CheckoutStageCollectingShipping }
func (SelectingCarriers) Name() domain.CheckoutStage  { return domain.CheckoutStageSelectingCarriers }
func (AwaitingTax) Name() domain.CheckoutStage        { return domain.CheckoutStageAwaitingTax }
func (ReadyToPay) Name() domain.CheckoutStage         { return domain.CheckoutStageReadyToPay }
func (Paid) Name() domain.CheckoutStage               { return domain.CheckoutStagePaid }

func (CollectingBilling) isStage()  {}
func (CollectingShipping) isStage() {}
func (SelectingCarriers) isStage()  {}
func (AwaitingTax) isStage()        {}
func (ReadyToPay) isStage()         {}
func (Paid) isStage()               {}

// state is the data collected so far. It only changes through apply.
type state struct {
	digitalOnly bool
	base        domain.Money
	billing     *domain.NamedAddress
	shipping    *domain.NamedAddress
	shipments   []domain.Shipment
	ratesReady  bool
	salesTax    *domain.Money
	paid        *payment.Result
}

type event interface{ isEvent() }

type billingConfirmed struct{ address domain.NamedAddress }

type shippingConfirmed struct{ address domain.NamedAddress }

type taxGenerated struct{ amount domain.Money }

type shipmentsGenerated struct{ shipments []domain.Shipment }

type carrierSelected struct {
	shipmentID string
	selection  domain.CarrierSelection
}

type paymentConfirmed struct{ result payment.Result }

func (billingConfirmed) isEvent()   {}
func (shippingConfirmed) isEvent()  {}
func (taxGenerated) isEvent()       {}
func (shipmentsGenerated) isEvent() {}
func (carrierSelected) isEvent()    {}
func (paymentConfirmed) isEvent()   {}

// apply is the only transition of the checkout state. It never mutates s.
func apply(s state, ev event) (state, error) {
	if s.paid != nil {
		return s, ErrAlreadyPaid
	}

	switch e := ev.(type) {
	case billingConfirmed:
		s.billing = &e.address
		// tax follows the billing address
		s.salesTax = nil

	case shippingConfirmed:
		if s.digitalOnly {
			return s, ErrNotApplicable
		}
		s.shipping = &e.address
		s.shipments = nil
		s.ratesReady = false

	case taxGenerated:
		if s.billing == nil {
			return s, fmt.Errorf("sales tax without billing address: %w", ErrOutOfOrder)
		}
		if e.amount.Currency != s.base.Currency {
			return s, fmt.Errorf("sales tax in %s for order in %s: %w", e.amount.Currency, s.base.Currency, domain.ErrCurrencyMismatch)
		}
		s.salesTax = &e.amount

	case shipmentsGenerated:
		if s.digitalOnly {
			return s, ErrNotApplicable
		}
		if s.shipping == nil {
			return s, fmt.Errorf("shipments without shipping address: %w", ErrOutOfOrder)
		}
		s.shipments = cloneShipments(e.shipments)
		s.ratesReady = true

	case carrierSelected:
		idx := slices.IndexFunc(s.shipments, func(sh domain.Shipment) bool { return sh.ID == e.shipmentID })
		if idx < 0 {
			return s, fmt.Errorf("shipment[%s]: %w", e.shipmentID, shipping.ErrRateNotFound)
		}
		opt, err := shipping.Resolve(s.shipments[idx], e.selection)
		if err != nil {
			return s, err
		}
		if opt.TotalRate.Currency != s.base.Currency {
			return s, fmt.Errorf("rate[%s] in %s for order in %s: %w", opt.RateID, opt.TotalRate.Currency, s.base.Currency, domain.ErrCurrencyMismatch)
		}
		s.shipments = cloneShipments(s.shipments)
		sel := e.selection
		s.shipments[idx].Selected = &sel

	case paymentConfirmed:
		if _, ok := stageOf(s).(ReadyToPay); !ok {
			return s, fmt.Errorf("payment in stage %s: %w", stageOf(s).Name(), ErrOutOfOrder)
		}
		s.paid = &e.result

	default:
		return s, fmt.Errorf("unknown event %T", ev)
	}

	return s, nil
}

func stageOf(s state) Stage {
	switch {
	case s.paid != nil:
		return Paid{Result: *s.paid}
	case s.billing == nil:
		return CollectingBilling{}
	case !s.digitalOnly && s.shipping == nil:
		return CollectingShipping{}
	case !s.digitalOnly && !s.ratesReady:
		return SelectingCarriers{}
	}

	if !s.digitalOnly {
		pending := lo.FilterMap(s.shipments, func(sh domain.Shipment, _ int) (string, bool) {
			return sh.ID, !sh.HasSelection()
		})
		if len(pending) > 0 {
			return SelectingCarriers{RatesReady: true, Pending: pending}
		}
	}

	if s.salesTax == nil {
		return AwaitingTax{}
	}

	totals, err := totalsOf(s)
	if err != nil {
		// a selection that no longer resolves is as good as none
		return SelectingCarriers{RatesReady: true}
	}

	return ReadyToPay{Totals: totals}
}

// shippingComplete reports whether every shipment has a carrier.
func (s state) shippingComplete() bool {
	if s.digitalOnly {
		return true
	}
	return s.ratesReady && lo.EveryBy(s.shipments, domain.Shipment.HasSelection)
}

func cloneShipments(in []domain.Shipment) []domain.Shipment {
	out := make([]domain.Shipment, len(in))
	for i, sh := range in {
		sh.CarrierOptions = slices.Clone(sh.CarrierOptions)
		if sh.Selected != nil {
			sel := *sh.Selected
			sh.Selected = &sel
		}
		out[i] = sh
	}
	return out
}
