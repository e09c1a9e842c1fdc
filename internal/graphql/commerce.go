package graphql

import (
	"context"
	"fmt"

	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/samber/lo"
)

const updateOrderAddressMutation = `
mutation UpdateOrderAddress($orderRef: String!, $kind: String!, $name: String!, $address: AddressInput!) {
  update_order_address(orderRef: $orderRef, kind: $kind, name: $name, address: $address) {
    id
  }
}`

const updateOrderAddressesMutation = `
mutation UpdateOrderAddresses($orderRef: String!, $billing: NamedAddressInput!, $shipping: NamedAddressInput) {
  update_order_addresses(orderRef: $orderRef, billing: $billing, shipping: $shipping) {
    id
  }
}`

const generateSalesTaxMutation = `
mutation GenerateSalesTax($orderRef: String!) {
  generate_sales_tax(orderRef: $orderRef) {
    amount
    currency
  }
}`

const generateShipmentsMutation = `
mutation GenerateShipments($orderRef: String!) {
  generate_shipments(orderRef: $orderRef) {
    id
    sendFrom { name }
    carrierOptions {
      rate_id
      carrier_friendly_name
      carrier_code
      service_code
      service_type
      delivery_days
      estimated_delivery_date
      tax_amount { amount currency }
      total_rate { amount currency }
      stripe_fee { amount currency }
    }
    selectedCarrierAndService { carrier_code service_code }
  }
}`

const setRateForShipmentMutation = `
mutation SetRateForShipment($orderRef: String!, $shipmentId: String!, $rateId: String!) {
  set_rate_for_shipment(orderRef: $orderRef, shipmentId: $shipmentId, rateId: $rateId) {
    id
  }
}`

const defaultAddressQuery = `
query DefaultAddress {
  me {
    defaultAddress {
      name
      address { line1 line2 city state postal_code country }
    }
  }
}`

type shipmentDTO struct {
	ID       string `json:"id"`
	SendFrom struct {
		Name string `json:"name"`
	} `json:"sendFrom"`
	CarrierOptions            []domain.CarrierOption   `json:"carrierOptions"`
	SelectedCarrierAndService *domain.CarrierSelection `json:"selectedCarrierAndService"`
}

func (c *Client) UpdateOrderAddress(ctx context.Context, orderRef string, kind domain.AddressKind, address domain.NamedAddress) error {
	var resp map[string]any

	return c.run(ctx, "update_order_address", updateOrderAddressMutation, map[string]any{
		"orderRef": orderRef,
		"kind":     string(kind),
		"name":     address.Name,
		"address":  address.Address,
	}, &resp)
}

func (c *Client) UpdateOrderAddresses(ctx context.Context, orderRef string, billing domain.NamedAddress, shipping *domain.NamedAddress) error {
	var resp map[string]any

	return c.run(ctx, "update_order_addresses", updateOrderAddressesMutation, map[string]any{
		"orderRef": orderRef,
		"billing":  billing,
		"shipping": shipping,
	}, &resp)
}

func (c *Client) GenerateSalesTax(ctx context.Context, orderRef string) (domain.Money, error) {
	var resp struct {
		GenerateSalesTax *domain.Money `json:"generate_sales_tax"`
	}

	if err := c.run(ctx, "generate_sales_tax", generateSalesTaxMutation,
		map[string]any{"orderRef": orderRef}, &resp); err != nil {
		return domain.Money{}, err
	}

	if resp.GenerateSalesTax == nil {
		return domain.Money{}, fmt.Errorf("generate_sales_tax: empty result for order[%s]", orderRef)
	}

	return *resp.GenerateSalesTax, nil
}

func (c *Client) GenerateShipments(ctx context.Context, orderRef string) ([]domain.Shipment, error) {
	var resp struct {
		GenerateShipments []shipmentDTO `json:"generate_shipments"`
	}

	if err := c.run(ctx, "generate_shipments", generateShipmentsMutation,
		map[string]any{"orderRef": orderRef}, &resp); err != nil {
		return nil, err
	}

	return lo.Map(resp.GenerateShipments, func(s shipmentDTO, _ int) domain.Shipment {
		return domain.Shipment{
			ID:             s.ID,
			SendFromName:   s.SendFrom.Name,
			CarrierOptions: s.CarrierOptions,
			Selected:       s.SelectedCarrierAndService,
		}
	}), nil
}

func (c *Client) SetRateForShipment(ctx context.Context, orderRef, shipmentID, rateID string) error {
	var resp map[string]any

	return c.run(ctx, "set_rate_for_shipment", setRateForShipmentMutation, map[string]any{
		"orderRef":   orderRef,
		"shipmentId": shipmentID,
		"rateId":     rateID,
	}, &resp)
}

func (c *Client) DefaultAddress(ctx context.Context) (*domain.NamedAddress, error) {
	var resp struct {
		Me *struct {
			DefaultAddress *domain.NamedAddress `json:"defaultAddress"`
		} `json:"me"`
	}

	if err := c.run(ctx, "me.defaultAddress", defaultAddressQuery, nil, &resp); err != nil {
		return nil, err
	}

	if resp.Me == nil {
		return nil, nil
	}

	return resp.Me.DefaultAddress, nil
}
