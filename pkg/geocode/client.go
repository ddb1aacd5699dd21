// Package geocode resolves free-text incident locations to coordinates using a
// cached, rate-gated external geocoder (Nominatim by default; Google, the
// Census Bureau geocoder and a PostGIS TIGER database are alternatives).
package geocode

import (
	"context"
)

// Precision is a qualitative confidence label attached to a resolved location.
type Precision string

// Precision classes, most authoritative first.
const (
	PrecisionIntersection Precision = "intersection"
	PrecisionStreet       Precision = "street"
	PrecisionApproximate  Precision = "approximate"
)

// Rank orders precision classes: intersection > street > approximate > unknown.
func (p Precision) Rank() int {
	switch p {
	case PrecisionIntersection:
		return 3
	case PrecisionStreet:
		return 2
	case PrecisionApproximate:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is one of the known precision classes.
func (p Precision) Valid() bool {
	return p.Rank() > 0
}

// Result is a resolved location. It is returned to callers and stored verbatim
// in the forward cache.
type Result struct {
	Latitude  float64   `json:"latitude" yaml:"latitude"`
	Longitude float64   `json:"longitude" yaml:"longitude"`
	Precision Precision `json:"precision" yaml:"precision"`
}

// Match is a single provider hit for a query string.
type Match struct {
	Latitude       float64
	Longitude      float64
	DisplayAddress string
}

// Address holds the components of a reverse geocode. Every field is optional.
type Address struct {
	Country       *string `json:"country,omitempty" yaml:"country,omitempty"`
	State         *string `json:"state,omitempty" yaml:"state,omitempty"`
	City          *string `json:"city,omitempty" yaml:"city,omitempty"`
	County        *string `json:"county,omitempty" yaml:"county,omitempty"`
	Suburb        *string `json:"suburb,omitempty" yaml:"suburb,omitempty"`
	Neighbourhood *string `json:"neighbourhood,omitempty" yaml:"neighbourhood,omitempty"`
	Road          *string `json:"road,omitempty" yaml:"road,omitempty"`
	Postcode      *string `json:"postcode,omitempty" yaml:"postcode,omitempty"`
}

// Empty reports whether no address component is set.
func (a Address) Empty() bool {
	for _, f := range []*string{a.Country, a.State, a.City, a.County, a.Suburb, a.Neighbourhood, a.Road, a.Postcode} {
		if f != nil && *f != "" {
			return false
		}
	}
	return true
}

// Provider is an external geocoding backend. Implementations return nil, nil
// when the provider answered but found nothing.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, query string) (*Match, error)
	Reverse(ctx context.Context, lat, lon float64) (*Address, error)
}

// strPtr returns nil for empty strings so optional fields stay unset.
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
