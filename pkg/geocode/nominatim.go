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
	nominatimBaseURL   = "https://nominatim.openstreetmap.org"
	nominatimUserAgent = "incident_geocoder"
)

// Nominatim geocodes against an OpenStreetMap Nominatim server.
type Nominatim struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NominatimOption configures a Nominatim provider.
type NominatimOption func(*Nominatim)

// WithNominatimBaseURL points the provider at a self-hosted server.
func WithNominatimBaseURL(u string) NominatimOption {
	return func(n *Nominatim) {
		if u != "" {
			n.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithNominatimUserAgent sets the User-Agent the usage policy requires.
func WithNominatimUserAgent(ua string) NominatimOption {
	return func(n *Nominatim) {
		if ua != "" {
			n.userAgent = ua
		}
	}
}

// WithNominatimHTTPClient sets a custom HTTP client.
func WithNominatimHTTPClient(hc *http.Client) NominatimOption {
	return func(n *Nominatim) {
		n.httpClient = hc
	}
}

// WithNominatimRateLimit caps requests per second sent by this provider.
func WithNominatimRateLimit(rps float64) NominatimOption {
	return func(n *Nominatim) {
		if rps <= 0 {
			n.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		n.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewNominatim creates a Nominatim provider.
func NewNominatim(opts ...NominatimOption) *Nominatim {
	n := &Nominatim{
		baseURL:    nominatimBaseURL,
		userAgent:  nominatimUserAgent,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(1, 1), // public server policy: 1 req/s
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Name implements Provider.
func (n *Nominatim) Name() string { return "nominatim" }

type nominatimPlace struct {
	Lat         string           `json:"lat"`
	Lon         string           `json:"lon"`
	DisplayName string           `json:"display_name"`
	Address     nominatimAddress `json:"address"`
	Error       string           `json:"error"`
}

type nominatimAddress struct {
	Country       string `json:"country"`
	State         string `json:"state"`
	City          string `json:"city"`
	Town          string `json:"town"`
	Village       string `json:"village"`
	County        string `json:"county"`
	Suburb        string `json:"suburb"`
	Neighbourhood string `json:"neighbourhood"`
	Road          string `json:"road"`
	Postcode      string `json:"postcode"`
}

func (a nominatimAddress) toAddress() Address {
	city := a.City
	if city == "" {
		city = a.Town
	}
	if city == "" {
		city = a.Village
	}
	return Address{
		Country:       strPtr(a.Country),
		State:         strPtr(a.State),
		City:          strPtr(city),
		County:        strPtr(a.County),
		Suburb:        strPtr(a.Suburb),
		Neighbourhood: strPtr(a.Neighbourhood),
		Road:          strPtr(a.Road),
		Postcode:      strPtr(a.Postcode),
	}
}

// Geocode implements Provider using /search.
func (n *Nominatim) Geocode(ctx context.Context, query string) (*Match, error) {
	params := url.Values{
		"q":              {query},
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
		"limit":          {"1"},
	}

	var places []nominatimPlace
	if err := n.get(ctx, "/search", params, &places); err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, nil
	}

	lat, lon, err := parseLatLon(places[0].Lat, places[0].Lon)
	if err != nil {
		return nil, &ProviderError{Provider: n.Name(), Kind: KindDecode, Err: err}
	}
	return &Match{Latitude: lat, Longitude: lon, DisplayAddress: places[0].DisplayName}, nil
}

// Reverse implements Provider using /reverse.
func (n *Nominatim) Reverse(ctx context.Context, lat, lon float64) (*Address, error) {
	params := url.Values{
		"lat":            {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":            {strconv.FormatFloat(lon, 'f', -1, 64)},
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
	}

	var place nominatimPlace
	if err := n.get(ctx, "/reverse", params, &place); err != nil {
		return nil, err
	}
	if place.Error != "" {
		return nil, nil
	}

	addr := place.Address.toAddress()
	if addr.Empty() {
		return nil, nil
	}
	return &addr, nil
}

func (n *Nominatim) get(ctx context.Context, path string, params url.Values, dst any) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "geocode: nominatim rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "geocode: nominatim build request")
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return transportError(n.Name(), err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return statusError(n.Name(), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(n.Name(), err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &ProviderError{Provider: n.Name(), Kind: KindDecode, Err: err}
	}
	return nil
}

func parseLatLon(latStr, lonStr string) (float64, float64, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "parse latitude %q", latStr)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "parse longitude %q", lonStr)
	}
	return lat, lon, nil
}
