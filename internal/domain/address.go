package domain

import "strings"

type AddressKind string

const (
	AddressKindBilling  AddressKind = "billing"
	AddressKindShipping AddressKind = "shipping"
)

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type NamedAddress struct {
	Name    string  `json:"name"`
	Address Address `json:"address"`
}

// MissingFields returns the json names of required fields that are blank.
func (a Address) MissingFields() []string {
	var missing []string

	required := []struct {
		name  string
		value string
	}{
		{"line1", a.Line1},
		{"city", a.City},
		{"postal_code", a.PostalCode},
		{"country", a.Country},
	}

	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}

	return missing
}

// Equal compares addresses ignoring surrounding whitespace and country case.
func (a Address) Equal(other Address) bool {
	norm := func(s string) string { return strings.TrimSpace(s) }

	return norm(a.Line1) == norm(other.Line1) &&
		norm(a.Line2) == norm(other.Line2) &&
		norm(a.City) == norm(other.City) &&
		norm(a.State) == norm(other.State) &&
		norm(a.PostalCode) == norm(other.PostalCode) &&
		strings.EqualFold(norm(a.Country), norm(other.Country))
}
