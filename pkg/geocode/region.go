package geocode

import (
	"fmt"
	"math"
	"strings"

	"github.com/twpayne/go-geom"
)

// Rejection reasons reported by Region.Accept.
const (
	ReasonOutsideBounds  = "outside_bounds"
	ReasonRegionMismatch = "region_mismatch"
)

// RejectionError explains why a provider hit was not accepted for a region.
type RejectionError struct {
	Reason    string
	Latitude  float64
	Longitude float64
	Address   string
}

func (e *RejectionError) Error() string {
	switch e.Reason {
	case ReasonOutsideBounds:
		return fmt.Sprintf("outside region bounds (%f, %f)", e.Latitude, e.Longitude)
	case ReasonRegionMismatch:
		addr := e.Address
		if len(addr) > 80 {
			addr = addr[:80]
		}
		return fmt.Sprintf("address does not mention region: %q", addr)
	default:
		return e.Reason
	}
}

// Region is the target metro area: a lat/lon bounding box, the textual markers
// a provider address must mention, and the suffix appended to every query.
type Region struct {
	Name    string
	Suffix  string
	Markers []string
	// StripSuffixes are removed from the end of incoming queries before the
	// suffix is appended, so it is never duplicated. Suffix is always included.
	StripSuffixes []string

	bounds *geom.Bounds
}

// NewRegion builds a Region from inclusive latitude and longitude bounds.
func NewRegion(name, suffix string, minLat, maxLat, minLon, maxLon float64, markers ...string) Region {
	return Region{
		Name:    name,
		Suffix:  suffix,
		Markers: markers,
		bounds:  geom.NewBounds(geom.XY).Set(minLon, minLat, maxLon, maxLat),
	}
}

// SanDiego is the default region for SDPD/SDFD dispatch feeds.
func SanDiego() Region {
	r := NewRegion("San Diego", ", San Diego, CA", 32.5, 33.3, -117.6, -116.9, "California", "San Diego")
	r.StripSuffixes = []string{", San Diego County, CA"}
	return r
}

// Bounds returns min/max latitude and longitude.
func (r Region) Bounds() (minLat, maxLat, minLon, maxLon float64) {
	if r.bounds == nil {
		return 0, 0, 0, 0
	}
	return r.bounds.Min(1), r.bounds.Max(1), r.bounds.Min(0), r.bounds.Max(0)
}

// Contains is an inclusive bounding-box test. NaN is never contained.
func (r Region) Contains(lat, lon float64) bool {
	if r.bounds == nil || math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return r.bounds.OverlapsPoint(geom.XY, geom.Coord{lon, lat})
}

// LooksLike reports whether address mentions at least one region marker.
func (r Region) LooksLike(address string) bool {
	for _, m := range r.Markers {
		if m != "" && strings.Contains(address, m) {
			return true
		}
	}
	return false
}

// Accept applies both the bounding-box and the textual check. The box alone
// over-accepts places at its edges that belong to a differently named area.
func (r Region) Accept(lat, lon float64, address string) error {
	if !r.Contains(lat, lon) {
		return &RejectionError{Reason: ReasonOutsideBounds, Latitude: lat, Longitude: lon, Address: address}
	}
	if !r.LooksLike(address) {
		return &RejectionError{Reason: ReasonRegionMismatch, Latitude: lat, Longitude: lon, Address: address}
	}
	return nil
}

// StripSuffix removes a trailing region suffix (case-insensitive) already
// present in q.
func (r Region) StripSuffix(q string) string {
	suffixes := append([]string{r.Suffix}, r.StripSuffixes...)
	for changed := true; changed; {
		changed = false
		for _, s := range suffixes {
			if s == "" || len(q) < len(s) {
				continue
			}
			if strings.EqualFold(q[len(q)-len(s):], s) {
				q = strings.TrimSpace(q[:len(q)-len(s)])
				changed = true
				break
			}
		}
	}
	return q
}

// WithSuffix appends the region suffix to q.
func (r Region) WithSuffix(q string) string {
	return q + r.Suffix
}
