package checkout

import (
	"fmt"

	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/shipping"
	"golang.org/x/text/currency"
)

// Totals is derived from the session state on every read and never stored.
// Shipping is nil for digital-only orders and while a shipment lacks a carrier;
// Tax is nil until generated. GrandDisplay renders Grand in major units.
type Totals struct {
	Base         domain.Money  `json:"base"`
	Shipping     *domain.Money `json:"shipping,omitempty"`
	Tax          *domain.Money `json:"tax,omitempty"`
	Grand        domain.Money  `json:"grand"`
	GrandDisplay string        `json:"grandDisplay"`
	Complete     bool          `json:"complete"`
}

func totalsOf(s state) (Totals, error) {
	t := Totals{Base: s.base, Grand: s.base}

	if !s.digitalOnly && s.shippingComplete() {
		contribution, err := shippingContribution(s)
		if err != nil {
			return Totals{}, err
		}
		t.Shipping = &contribution
	}

	t.Tax = s.salesTax

	var err error
	if t.Grand, err = domain.Sum(s.base.Currency, s.base, orZero(t.Shipping, s.base.Currency), orZero(t.Tax, s.base.Currency)); err != nil {
		return Totals{}, fmt.Errorf("grand total: %w", err)
	}

	t.GrandDisplay = t.Grand.String()
	t.Complete = t.Tax != nil && (s.digitalOnly || t.Shipping != nil)

	return t, nil
}

// shippingContribution sums the cost of the selected option of every shipment.
func shippingContribution(s state) (domain.Money, error) {
	total := domain.Money{Currency: s.base.Currency}

	for _, sh := range s.shipments {
		opt, err := shipping.Resolve(sh, *sh.Selected)
		if err != nil {
			return domain.Money{}, err
		}

		cost, err := opt.Cost()
		if err != nil {
			return domain.Money{}, fmt.Errorf("shipment[%s]: %w", sh.ID, err)
		}

		if total, err = total.Add(cost); err != nil {
			return domain.Money{}, fmt.Errorf("shipment[%s]: %w", sh.ID, err)
		}
	}

	return total, nil
}

func orZero(m *domain.Money, cur currency.Unit) domain.Money {
	if m == nil {
		return domain.Money{Currency: cur}
	}
	return *m
}
