package checkout

import (
	"fmt"
	"strings"
	"time"
)

// Section is a checkout panel. Completed panels stay visible; one is expanded.
type Section string

const (
	SectionBilling         Section = "billing"
	SectionShipping        Section = "shipping"
	SectionShippingOptions Section = "shipping-options"
	SectionPayment         Section = "payment"
)

func sectionsFor(digitalOnly bool) []Section {
	if digitalOnly {
		return []Section{SectionBilling, SectionPayment}
	}
	return []Section{SectionBilling, SectionShipping, SectionShippingOptions, SectionPayment}
}

func ToSection(s string) (Section, error) {
	switch sec := Section(s); sec {
	case SectionBilling, SectionShipping, SectionShippingOptions, SectionPayment:
		return sec, nil
	}

	return "", fmt.Errorf("invalid section[%s]", s)
}

// StepName names a remote operation of the checkout. Carrier steps are per shipment.
type StepName string

const (
	StepBillingAddress  StepName = "billing-address"
	StepShippingAddress StepName = "shipping-address"
	StepSalesTax        StepName = "sales-tax"
	StepShipments       StepName = "shipments"
	StepPayment         StepName = "payment"

	carrierStepPrefix = "carrier:"
)

func CarrierStep(shipmentID string) StepName {
	return StepName(carrierStepPrefix + shipmentID)
}

func (n StepName) shipmentID() (string, bool) {
	return strings.CutPrefix(string(n), carrierStepPrefix)
}

// Kind drops the shipment id of carrier steps, for low-cardinality labels.
func (n StepName) Kind() string {
	if _, ok := n.shipmentID(); ok {
		return "carrier"
	}
	return string(n)
}

type StepStatus string

const (
	StepIdle           StepStatus = "idle"
	StepPending        StepStatus = "pending"
	StepConfirmed      StepStatus = "confirmed"
	StepFailed         StepStatus = "failed"
	StepAwaitingAction StepStatus = "awaiting-action"
)

type StepState struct {
	Status    StepStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
