package geocode

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// newTestLimiter creates a rate limiter that effectively does not limit for tests.
func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// newRewriteClient creates an HTTP client that rewrites requests to a test server URL.
// All requests matching the target prefix are redirected to the test server.
func newRewriteClient(testServerURL, targetPrefix string) *http.Client {
	return &http.Client{
		Transport: &rewriteTransport{
			base:         http.DefaultTransport,
			testServer:   testServerURL,
			targetPrefix: targetPrefix,
		},
	}
}

type rewriteTransport struct {
	base         http.RoundTripper
	testServer   string
	targetPrefix string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	origURL := req.URL.String()
	if strings.HasPrefix(origURL, t.targetPrefix) {
		suffix := origURL[len(t.targetPrefix):]
		newURL := t.testServer + suffix
		newReq := req.Clone(req.Context())
		parsed, err := req.URL.Parse(newURL)
		if err != nil {
			return nil, err
		}
		newReq.URL = parsed
		newReq.Host = parsed.Host
		return t.base.RoundTrip(newReq)
	}
	return t.base.RoundTrip(req)
}

// fakeProvider answers from a map keyed by query string and records calls.
type fakeProvider struct {
	mu       sync.Mutex
	matches  map[string]*Match
	errs     map[string]error
	reverse  *Address
	revErr   error
	calls    []string
	revCalls int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Geocode(_ context.Context, query string) (*Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, query)
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	return f.matches[query], nil
}

func (f *fakeProvider) Reverse(_ context.Context, _, _ float64) (*Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revCalls++
	return f.reverse, f.revErr
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// memCache is an in-memory Cache keyed the same way as the real stores.
type memCache struct {
	mu      sync.Mutex
	forward map[string]Result
	reverse map[string]Address
	getErr  error
	putErr  error
	puts    int
}

func newMemCache() *memCache {
	return &memCache{forward: map[string]Result{}, reverse: map[string]Address{}}
}

func (c *memCache) Get(_ context.Context, normalized string) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	r, ok := c.forward[QueryKey(normalized)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (c *memCache) Put(_ context.Context, normalized string, r Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	if c.putErr != nil {
		return c.putErr
	}
	c.forward[QueryKey(normalized)] = r
	return nil
}

func (c *memCache) GetReverse(_ context.Context, lat, lon float64) (*Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.reverse[CoordKey(lat, lon)]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (c *memCache) PutReverse(_ context.Context, lat, lon float64, a Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.reverse[CoordKey(lat, lon)] = a
	return nil
}
