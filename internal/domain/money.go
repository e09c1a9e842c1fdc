package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var ErrCurrencyMismatch = errors.New("currency mismatch")

// Money is an amount in minor units (cents for USD) of a single currency.
type Money struct {
	Amount   int64
	Currency currency.Unit
}

func NewMoney(amount int64, iso string) (Money, error) {
	unit, err := currency.ParseISO(iso)
	if err != nil {
		return Money{}, fmt.Errorf("currency[%s] is not valid: %w", iso, err)
	}

	return Money{Amount: amount, Currency: unit}, nil
}

// MustMoney is NewMoney for literals known to be valid.
func MustMoney(amount int64, iso string) Money {
	m, err := NewMoney(amount, iso)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}

	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sum adds all amounts, each of which must be in cur.
func Sum(cur currency.Unit, amounts ...Money) (Money, error) {
	total := Money{Currency: cur}

	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return Money{}, err
		}
	}

	return total, nil
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

// Decimal renders the amount in major units using the currency's standard scale.
func (m Money) Decimal() decimal.Decimal {
	scale, _ := currency.Standard.Rounding(m.Currency)
	return decimal.New(m.Amount, -int32(scale))
}

func (m Money) String() string {
	scale, _ := currency.Standard.Rounding(m.Currency)
	return m.Decimal().StringFixed(int32(scale)) + " " + m.Currency.String()
}

type moneyJSON struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.Amount, Currency: m.Currency.String()})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	parsed, err := NewMoney(raw.Amount, strings.ToUpper(raw.Currency))
	if err != nil {
		return err
	}

	*m = parsed
	return nil
}
