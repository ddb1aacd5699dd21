package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	censusBaseURL   = "https://geocoding.geo.census.gov/geocoder"
	censusBenchmark = "Public_AR_Current"
	censusVintage   = "Current_Current"
	censusLayers    = "States,Counties,Incorporated Places"
)

// Census geocodes with the US Census Bureau geocoder. It needs no API key and
// only knows US addresses.
type Census struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// CensusOption configures a Census provider.
type CensusOption func(*Census)

// WithCensusBaseURL overrides the geocoder base URL.
func WithCensusBaseURL(u string) CensusOption {
	return func(c *Census) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithCensusHTTPClient sets a custom HTTP client.
func WithCensusHTTPClient(hc *http.Client) CensusOption {
	return func(c *Census) {
		c.httpClient = hc
	}
}

// NewCensus creates a Census provider.
func NewCensus(opts ...CensusOption) *Census {
	c := &Census{
		baseURL:    censusBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Provider.
func (c *Census) Name() string { return "census" }

type censusGeography struct {
	Name     string `json:"NAME"`
	BaseName string `json:"BASENAME"`
}

// censusGeographies is keyed by layer name.
type censusGeographies map[string][]censusGeography

func (g censusGeographies) first(layer string) (censusGeography, bool) {
	if gs := g[layer]; len(gs) > 0 {
		return gs[0], true
	}
	return censusGeography{}, false
}

type censusAddressMatch struct {
	Coordinates struct {
		X float64 `json:"x"` // longitude
		Y float64 `json:"y"` // latitude
	} `json:"coordinates"`
	MatchedAddress string            `json:"matchedAddress"`
	Geographies    censusGeographies `json:"geographies"`
}

type censusResponse struct {
	Result struct {
		AddressMatches []censusAddressMatch `json:"addressMatches"`
		Geographies    censusGeographies    `json:"geographies"`
	} `json:"result"`
}

// Geocode implements Provider. The matched address is upper-case and
// abbreviated, so the county and state names are appended for region checks.
func (c *Census) Geocode(ctx context.Context, query string) (*Match, error) {
	params := url.Values{"address": {query}}

	var resp censusResponse
	if err := c.get(ctx, "/geographies/onelineaddress", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Result.AddressMatches) == 0 {
		return nil, nil
	}

	m := resp.Result.AddressMatches[0]
	display := []string{m.MatchedAddress}
	if county, ok := m.Geographies.first("Counties"); ok {
		display = append(display, county.Name)
	}
	if state, ok := m.Geographies.first("States"); ok {
		display = append(display, state.Name)
	}
	return &Match{
		Latitude:       m.Coordinates.Y,
		Longitude:      m.Coordinates.X,
		DisplayAddress: strings.Join(display, ", "),
	}, nil
}

// Reverse implements Provider. Census only resolves area geographies, so
// road and postcode stay unset.
func (c *Census) Reverse(ctx context.Context, lat, lon float64) (*Address, error) {
	params := url.Values{
		"x": {strconv.FormatFloat(lon, 'f', -1, 64)},
		"y": {strconv.FormatFloat(lat, 'f', -1, 64)},
	}

	var resp censusResponse
	if err := c.get(ctx, "/geographies/coordinates", params, &resp); err != nil {
		return nil, err
	}

	geos := resp.Result.Geographies
	var addr Address
	if state, ok := geos.first("States"); ok {
		addr.State = strPtr(state.Name)
		addr.Country = strPtr("United States")
	}
	if county, ok := geos.first("Counties"); ok {
		addr.County = strPtr(county.Name)
	}
	if place, ok := geos.first("Incorporated Places"); ok {
		addr.City = strPtr(place.BaseName)
	}
	if addr.Empty() {
		return nil, nil
	}
	return &addr, nil
}

func (c *Census) get(ctx context.Context, path string, params url.Values, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "geocode: census rate limit")
	}

	params.Set("benchmark", censusBenchmark)
	params.Set("vintage", censusVintage)
	params.Set("layers", censusLayers)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "geocode: census build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(c.Name(), err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return statusError(c.Name(), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(c.Name(), err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &ProviderError{Provider: c.Name(), Kind: KindDecode, Err: err}
	}
	return nil
}
