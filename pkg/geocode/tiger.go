package geocode

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// DefaultTigerMaxRating is the worst PostGIS geocoder rating accepted.
// Lower is better; 0 is an exact match.
const DefaultTigerMaxRating = 20

// Querier is the subset of pgxpool.Pool the TIGER provider needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tiger geocodes against a PostGIS database loaded with the TIGER geocoder
// extension and Census TIGER/Line data.
type Tiger struct {
	db        Querier
	maxRating int
	log       *zap.Logger
}

// TigerOption configures a Tiger provider.
type TigerOption func(*Tiger)

// WithTigerLogger sets the logger. Defaults to zap.L().
func WithTigerLogger(l *zap.Logger) TigerOption {
	return func(t *Tiger) {
		if l != nil {
			t.log = l
		}
	}
}

// NewTiger creates a Tiger provider. A non-positive maxRating uses
// DefaultTigerMaxRating.
func NewTiger(db Querier, maxRating int, opts ...TigerOption) *Tiger {
	if maxRating <= 0 {
		maxRating = DefaultTigerMaxRating
	}
	t := &Tiger{db: db, maxRating: maxRating, log: zap.L()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements Provider.
func (t *Tiger) Name() string { return "tiger" }

// Geocode implements Provider.
func (t *Tiger) Geocode(ctx context.Context, query string) (*Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	var (
		lat, lon  float64
		rating    int
		matched   string
		stateAbbr *string
	)
	err := t.db.QueryRow(ctx, `
		SELECT
			ST_Y(ST_Transform(geomout, 4326)) AS lat,
			ST_X(ST_Transform(geomout, 4326)) AS lon,
			rating,
			pprint_addy(addy) AS matched_address,
			(addy).stateabbrev
		FROM geocode($1, 1)`,
		query,
	).Scan(&lat, &lon, &rating, &matched, &stateAbbr)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &ProviderError{Provider: t.Name(), Kind: KindQuery, Err: err}
	}

	if rating > t.maxRating {
		t.log.Debug("tiger: rating exceeds threshold",
			zap.String("query", query),
			zap.Int("rating", rating),
			zap.Int("max_rating", t.maxRating),
		)
		return nil, nil
	}

	display := matched
	if stateAbbr != nil {
		if name, ok := stateNames[*stateAbbr]; ok {
			display += ", " + name
		}
	}
	return &Match{Latitude: lat, Longitude: lon, DisplayAddress: display}, nil
}

// Reverse implements Provider.
func (t *Tiger) Reverse(ctx context.Context, lat, lon float64) (*Address, error) {
	var road, city, state, zip *string
	err := t.db.QueryRow(ctx, `
		SELECT
			NULLIF(concat_ws(' ', (addy[1]).streetname, (addy[1]).streettypeabbrev), ''),
			(addy[1]).location,
			(addy[1]).stateabbrev,
			(addy[1]).zip
		FROM reverse_geocode(ST_SetSRID(ST_Point($1, $2), 4269), true)`,
		lon, lat,
	).Scan(&road, &city, &state, &zip)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &ProviderError{Provider: t.Name(), Kind: KindQuery, Err: err}
	}

	addr := Address{Road: road, City: city, Postcode: zip}
	if state != nil {
		if name, ok := stateNames[*state]; ok {
			addr.State = strPtr(name)
			addr.Country = strPtr("United States")
		}
	}
	if addr.Empty() {
		return nil, nil
	}
	return &addr, nil
}

// stateNames maps the USPS abbreviations TIGER returns to full names. Only
// the states this tool is deployed in are listed.
var stateNames = map[string]string{
	"AZ": "Arizona",
	"CA": "California",
	"NV": "Nevada",
	"OR": "Oregon",
	"WA": "Washington",
}
