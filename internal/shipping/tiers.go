// Package shipping groups carrier rate quotes into delivery tiers.
package shipping

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/nikolayk812/checkoutflow/internal/domain"
)

var (
	ErrTierEmpty    = errors.New("no carrier option in tier")
	ErrRateNotFound = errors.New("carrier option not found")
)

type Tier string

const (
	TierBudget   Tier = "budget"
	TierStandard Tier = "standard"
	TierExpress  Tier = "express"
)

func ToTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case TierBudget, TierStandard, TierExpress:
		return t, nil
	}

	return "", fmt.Errorf("invalid tier[%s]", s)
}

const (
	budgetMinDays  = 5
	expressMaxDays = 2
)

// Choices holds one representative option per tier, nil where the tier is empty.
type Choices struct {
	Budget   *domain.CarrierOption `json:"budget"`
	Standard *domain.CarrierOption `json:"standard"`
	Express  *domain.CarrierOption `json:"express"`
}

func (c Choices) For(tier Tier) (domain.CarrierOption, error) {
	var opt *domain.CarrierOption

	switch tier {
	case TierBudget:
		opt = c.Budget
	case TierStandard:
		opt = c.Standard
	case TierExpress:
		opt = c.Express
	default:
		return domain.CarrierOption{}, fmt.Errorf("invalid tier[%s]", tier)
	}

	if opt == nil {
		return domain.CarrierOption{}, fmt.Errorf("tier[%s]: %w", tier, ErrTierEmpty)
	}

	return *opt, nil
}

type costed struct {
	option domain.CarrierOption
	cost   domain.Money
}

// Group buckets options by delivery days and picks a representative per bucket.
// Options without delivery days are left out.
func Group(options []domain.CarrierOption) (Choices, error) {
	var budget, standard, express []costed

	for _, o := range options {
		if o.DeliveryDays == nil {
			continue
		}

		cost, err := o.Cost()
		if err != nil {
			return Choices{}, fmt.Errorf("o.Cost: %w", err)
		}

		c := costed{option: o, cost: cost}

		switch days := *o.DeliveryDays; {
		case days >= budgetMinDays:
			budget = append(budget, c)
		case days <= expressMaxDays:
			express = append(express, c)
		default:
			standard = append(standard, c)
		}
	}

	if err := sameCurrency(budget, standard, express); err != nil {
		return Choices{}, err
	}

	return Choices{
		Budget:   cheapest(budget),
		Standard: middle(standard),
		Express:  fastest(express),
	}, nil
}

// ChoicesFor groups the shipment's own options.
func ChoicesFor(s domain.Shipment) (Choices, error) {
	choices, err := Group(s.CarrierOptions)
	if err != nil {
		return Choices{}, fmt.Errorf("shipment[%s]: %w", s.ID, err)
	}
	return choices, nil
}

// Resolve finds the option of the shipment matching carrier and service code.
func Resolve(s domain.Shipment, sel domain.CarrierSelection) (domain.CarrierOption, error) {
	idx := slices.IndexFunc(s.CarrierOptions, func(o domain.CarrierOption) bool {
		return o.CarrierCode == sel.CarrierCode && o.ServiceCode == sel.ServiceCode
	})
	if idx < 0 {
		return domain.CarrierOption{}, fmt.Errorf("shipment[%s] carrier[%s] service[%s]: %w",
			s.ID, sel.CarrierCode, sel.ServiceCode, ErrRateNotFound)
	}

	return s.CarrierOptions[idx], nil
}

func cheapest(bucket []costed) *domain.CarrierOption {
	if len(bucket) == 0 {
		return nil
	}

	best := bucket[0]
	for _, c := range bucket[1:] {
		if c.cost.Amount < best.cost.Amount {
			best = c
		}
	}

	return &best.option
}

func middle(bucket []costed) *domain.CarrierOption {
	if len(bucket) == 0 {
		return nil
	}

	sorted := slices.Clone(bucket)
	slices.SortStableFunc(sorted, func(a, b costed) int {
		return cmp.Compare(a.cost.Amount, b.cost.Amount)
	})

	pick := sorted[len(sorted)/2].option
	return &pick
}

func fastest(bucket []costed) *domain.CarrierOption {
	if len(bucket) == 0 {
		return nil
	}

	best := bucket[0]
	for _, c := range bucket[1:] {
		if *c.option.DeliveryDays < *best.option.DeliveryDays {
			best = c
		}
	}

	return &best.option
}

// costs are only comparable within one currency
func sameCurrency(buckets ...[]costed) error {
	var first *domain.Money

	for _, bucket := range buckets {
		for _, c := range bucket {
			if first == nil {
				first = &c.cost
				continue
			}
			if c.cost.Currency != first.Currency {
				return fmt.Errorf("rate[%s]: %w", c.option.RateID, domain.ErrCurrencyMismatch)
			}
		}
	}

	return nil
}
