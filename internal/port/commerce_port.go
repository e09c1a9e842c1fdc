package port

import (
	"context"

	"github.com/nikolayk812/checkoutflow/internal/domain"
)

// CommerceAPI is the remote order service. Every call targets the order by reference.
type CommerceAPI interface {
	UpdateOrderAddress(ctx context.Context, orderRef string, kind domain.AddressKind, address domain.NamedAddress) error
	UpdateOrderAddresses(ctx context.Context, orderRef string, billing domain.NamedAddress, shipping *domain.NamedAddress) error

	GenerateSalesTax(ctx context.Context, orderRef string) (domain.Money, error)
	GenerateShipments(ctx context.Context, orderRef string) ([]domain.Shipment, error)
	SetRateForShipment(ctx context.Context, orderRef, shipmentID, rateID string) error

	// DefaultAddress returns the saved default of the signed-in identity, nil if none.
	DefaultAddress(ctx context.Context) (*domain.NamedAddress, error)
}
