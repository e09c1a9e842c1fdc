package domain

import (
	"errors"

	"github.com/samber/lo"
)

type LineItemKind string

// remember to add new kinds to the validLineItemKinds map
const (
	LineItemKindProduct LineItemKind = "PRODUCT"
	LineItemKindService LineItemKind = "SERVICE"
	LineItemKindDigital LineItemKind = "DIGITAL"
	LineItemKindTour    LineItemKind = "TOUR"
)

var validLineItemKinds = map[LineItemKind]struct{}{
	LineItemKindProduct: {},
	LineItemKindService: {},
	LineItemKindDigital: {},
	LineItemKindTour:    {},
}

func ToLineItemKind(s string) (LineItemKind, error) {
	kind := LineItemKind(s)
	if _, ok := validLineItemKinds[kind]; ok {
		return kind, nil
	}

	return "", errors.New("invalid line item kind")
}

type LineItem struct {
	ID    string       `json:"id"`
	Kind  LineItemKind `json:"kind"`
	Title string       `json:"title"`
	Price Money        `json:"price"`
}

// IsDigitalOnly reports whether no item needs physical delivery.
func IsDigitalOnly(items []LineItem) bool {
	return !lo.ContainsBy(items, func(i LineItem) bool {
		return i.Kind == LineItemKindProduct
	})
}

func HasServices(items []LineItem) bool {
	return lo.ContainsBy(items, func(i LineItem) bool {
		return i.Kind == LineItemKindService
	})
}

type IntentType string

const (
	IntentTypeSetup   IntentType = "SETUP"
	IntentTypePayment IntentType = "PAYMENT"
)

func ToIntentType(s string) (IntentType, error) {
	switch t := IntentType(s); t {
	case IntentTypeSetup, IntentTypePayment:
		return t, nil
	}

	return "", errors.New("invalid intent type")
}
