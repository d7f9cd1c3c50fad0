package types

import "strings"

// DeliveryAddress is persisted as jsonb on the order.
type DeliveryAddress struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	Locality   string `json:"locality"`
	Region     string `json:"region"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode,omitempty"`
	Phone      string `json:"phone"`
}

// Normalize trims every field in place.
func (a *DeliveryAddress) Normalize() {
	a.Line1 = strings.TrimSpace(a.Line1)
	a.Line2 = strings.TrimSpace(a.Line2)
	a.Locality = strings.TrimSpace(a.Locality)
	a.Region = strings.TrimSpace(a.Region)
	a.Country = strings.TrimSpace(a.Country)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Phone = strings.TrimSpace(a.Phone)
}
