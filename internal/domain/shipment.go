package domain

import "fmt"

type CarrierOption struct {
	RateID                string `json:"rate_id"`
	CarrierFriendlyName   string `json:"carrier_friendly_name"`
	CarrierCode           string `json:"carrier_code"`
	ServiceCode           string `json:"service_code"`
	ServiceType           string `json:"service_type"`
	DeliveryDays          *int   `json:"delivery_days"`
	EstimatedDeliveryDate string `json:"estimated_delivery_date,omitempty"`
	TaxAmount             Money  `json:"tax_amount"`
	TotalRate             Money  `json:"total_rate"`
	StripeFee             Money  `json:"stripe_fee"`
}

// Cost is what the buyer pays for the option: rate, tax on the rate and processing fee.
func (o CarrierOption) Cost() (Money, error) {
	total, err := Sum(o.TotalRate.Currency, o.TotalRate, o.TaxAmount, o.StripeFee)
	if err != nil {
		return Money{}, fmt.Errorf("rate[%s]: %w", o.RateID, err)
	}
	return total, nil
}

func (o CarrierOption) Selection() CarrierSelection {
	return CarrierSelection{CarrierCode: o.CarrierCode, ServiceCode: o.ServiceCode}
}

type CarrierSelection struct {
	CarrierCode string `json:"carrier_code"`
	ServiceCode string `json:"service_code"`
}

// Shipment is one merchant location's part of an order.
type Shipment struct {
	ID             string            `json:"id"`
	SendFromName   string            `json:"send_from_name"`
	CarrierOptions []CarrierOption   `json:"carrier_options"`
	Selected       *CarrierSelection `json:"selected_carrier_and_service,omitempty"`
}

func (s Shipment) HasSelection() bool {
	return s.Selected != nil
}
