package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Google geocodes with the Google Geocoding API.
type Google struct {
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// GoogleOption configures a Google provider.
type GoogleOption func(*Google)

// WithGoogleHTTPClient sets a custom HTTP client.
func WithGoogleHTTPClient(hc *http.Client) GoogleOption {
	return func(g *Google) {
		g.httpClient = hc
	}
}

// WithGoogleRateLimit caps requests per second sent by this provider.
func WithGoogleRateLimit(rps float64) GoogleOption {
	return func(g *Google) {
		if rps <= 0 {
			g.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), int(max(rps, 1)))
	}
}

// NewGoogle creates a Google provider.
func NewGoogle(apiKey string, opts ...GoogleOption) *Google {
	g := &Google{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(50, 50),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name implements Provider.
func (g *Google) Name() string { return "google" }

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results []googleResult `json:"results"`
	Status  string         `json:"status"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress  string                   `json:"formatted_address"`
	AddressComponents []googleAddressComponent `json:"address_components"`
}

type googleAddressComponent struct {
	LongName string   `json:"long_name"`
	Types    []string `json:"types"`
}

// Geocode implements Provider.
func (g *Google) Geocode(ctx context.Context, query string) (*Match, error) {
	resp, err := g.call(ctx, url.Values{"address": {query}, "region": {"us"}})
	if err != nil || resp == nil {
		return nil, err
	}
	r := resp.Results[0]
	return &Match{
		Latitude:       r.Geometry.Location.Lat,
		Longitude:      r.Geometry.Location.Lng,
		DisplayAddress: r.FormattedAddress,
	}, nil
}

// Reverse implements Provider.
func (g *Google) Reverse(ctx context.Context, lat, lon float64) (*Address, error) {
	resp, err := g.call(ctx, url.Values{"latlng": {fmt.Sprintf("%f,%f", lat, lon)}})
	if err != nil || resp == nil {
		return nil, err
	}

	var addr Address
	for _, c := range resp.Results[0].AddressComponents {
		for _, t := range c.Types {
			target := googleComponentField(&addr, t)
			if target != nil && *target == nil {
				*target = strPtr(c.LongName)
			}
		}
	}
	if addr.Empty() {
		return nil, nil
	}
	return &addr, nil
}

// googleComponentField maps a Google address component type to an Address field.
func googleComponentField(a *Address, componentType string) **string {
	switch componentType {
	case "country":
		return &a.Country
	case "administrative_area_level_1":
		return &a.State
	case "locality":
		return &a.City
	case "administrative_area_level_2":
		return &a.County
	case "sublocality", "sublocality_level_1":
		return &a.Suburb
	case "neighborhood":
		return &a.Neighbourhood
	case "route":
		return &a.Road
	case "postal_code":
		return &a.Postcode
	default:
		return nil
	}
}

// call returns nil, nil when Google answered with no results.
func (g *Google) call(ctx context.Context, params url.Values) (*googleGeocodeResponse, error) {
	if g.apiKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	params.Set("key", g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleGeocodeURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, transportError(g.Name(), err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(g.Name(), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(g.Name(), err)
	}

	var googleResp googleGeocodeResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, &ProviderError{Provider: g.Name(), Kind: KindDecode, Err: err}
	}

	switch googleResp.Status {
	case "OK":
		if len(googleResp.Results) == 0 {
			return nil, nil
		}
		return &googleResp, nil
	case "ZERO_RESULTS":
		return nil, nil
	case "OVER_QUERY_LIMIT":
		return nil, &ProviderError{Provider: g.Name(), Kind: KindRateLimited, Err: eris.New(googleResp.Status)}
	default:
		return nil, &ProviderError{Provider: g.Name(), Kind: KindStatus, Err: eris.New(googleResp.Status)}
	}
}
