// Package address resolves billing and shipping addresses from autocomplete
// selections or manual entry.
package address

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nikolayk812/checkoutflow/internal/domain"
)

var ErrInvalid = errors.New("invalid address")

// PlaceSelection is a result picked from the place-autocomplete widget.
type PlaceSelection struct {
	PlaceID          string         `json:"placeId"`
	FormattedAddress string         `json:"formattedAddress"`
	Components       domain.Address `json:"components"`
}

// Input carries exactly one of Place or Manual.
type Input struct {
	Name   string          `json:"name"`
	Place  *PlaceSelection `json:"place,omitempty"`
	Manual *domain.Address `json:"manual,omitempty"`
}

// ValidationError lists messages per field; it matches ErrInvalid.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}

	return fmt.Sprintf("%s: %s", ErrInvalid, strings.Join(parts, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// Resolve returns the address to persist on the order.
func (in Input) Resolve() (domain.NamedAddress, error) {
	fields := make(map[string]string)

	if strings.TrimSpace(in.Name) == "" {
		fields["name"] = "is required"
	}

	var addr domain.Address

	switch {
	case in.Place != nil && in.Manual != nil:
		fields["address"] = "either place or manual entry, not both"
	case in.Place != nil:
		if in.Place.PlaceID == "" {
			fields["place"] = "is not a selected place"
		}
		addr = in.Place.Components
		for _, f := range addr.MissingFields() {
			fields[f] = "is missing from the selected place"
		}
	case in.Manual != nil:
		addr = *in.Manual
		for _, f := range addr.MissingFields() {
			fields[f] = "is required"
		}
	default:
		fields["address"] = "is required"
	}

	if len(fields) > 0 {
		return domain.NamedAddress{}, &ValidationError{Fields: fields}
	}

	addr.Country = strings.ToUpper(strings.TrimSpace(addr.Country))

	return domain.NamedAddress{Name: strings.TrimSpace(in.Name), Address: addr}, nil
}
