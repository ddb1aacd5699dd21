package geocode

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
)

// Cache persists forward and reverse results. Get and GetReverse return
// nil, nil on a miss. Put and PutReverse are upserts: last write wins.
type Cache interface {
	Get(ctx context.Context, normalized string) (*Result, error)
	Put(ctx context.Context, normalized string, r Result) error
	GetReverse(ctx context.Context, lat, lon float64) (*Address, error)
	PutReverse(ctx context.Context, lat, lon float64, a Address) error
}

// QueryKey returns the SHA-256 hex of the lowercased, trimmed normalized query.
func QueryKey(normalized string) string {
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(normalized))))
	return fmt.Sprintf("%x", h)
}

// CoordKey returns the SHA-256 hex of the coordinates rounded to 5 decimals
// (~1.1 m), so float jitter does not fragment the reverse cache.
func CoordKey(lat, lon float64) string {
	h := sha256.Sum256([]byte(CoordString(lat, lon)))
	return fmt.Sprintf("%x", h)
}

// CoordString formats a coordinate pair the way it is keyed.
func CoordString(lat, lon float64) string {
	return fmt.Sprintf("%.5f,%.5f", lat, lon)
}
