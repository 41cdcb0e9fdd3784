// Package backend provides a client for the index-generation service that
// serves the tract GeoJSON and computes composite indices.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/equity-map/internal/dataset"
)

// Client defines the backend operations the dashboard depends on.
type Client interface {
	// Dataset fetches the full tract FeatureCollection.
	Dataset(ctx context.Context) (*dataset.Dataset, error)
	// IndexFields lists the variables selectable for index creation.
	IndexFields(ctx context.Context) ([]string, error)
	// Generate computes a new index of the given kind ("residential" or
	// "activity") and returns the dataset with the index field merged in.
	Generate(ctx context.Context, kind string, req GenerateRequest) (*dataset.Dataset, error)
}

// GenerateRequest is the JSON body of both generation endpoints.
type GenerateRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Variables   []string `json:"variables"`
}

// APIError is a non-2xx response. Message comes from the {"error": ...} body
// when the service sends one.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend: status %d: %s", e.StatusCode, e.Message)
}

// Endpoint paths.
const (
	PathGeoJSON          = "/geojson"
	PathIndexFields      = "/get_index_fields"
	PathActivityIndex    = "/generate_index"
	PathResidentialIndex = "/generate_residential_index"
)

const (
	defaultUserAgent = "equity-map/1.0"
	maxErrorMessage  = 512
)

// GeneratePath returns the endpoint for an index kind.
func GeneratePath(kind string) (string, error) {
	switch kind {
	case "residential":
		return PathResidentialIndex, nil
	case "activity":
		return PathActivityIndex, nil
	}
	return "", eris.Errorf("backend: unknown index kind %q", kind)
}

// Option configures the backend client.
type Option func(*httpClient)

// WithBaseURL sets the service root.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout bounds every request. Zero leaves requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

// WithRateLimit throttles outgoing requests to perSec. Zero disables it.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a backend client. Requests are never retried and have
// no timeout unless WithTimeout is given.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   "http://localhost:5000",
		userAgent: defaultUserAgent,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends req and returns the body of a 2xx response.
func (c *httpClient) do(ctx context.Context, req *http.Request) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "backend: rate limit wait")
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "backend: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "backend: read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, body)
	}
	return body, nil
}

func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Error string `json:"error"`
	}
	var msg string
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	} else {
		msg = strings.TrimSpace(string(body))
		if len(msg) > maxErrorMessage {
			msg = msg[:maxErrorMessage]
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: msg}
}

func (c *httpClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, eris.Wrap(err, "backend: create request")
	}
	return c.do(ctx, req)
}

func (c *httpClient) Dataset(ctx context.Context) (*dataset.Dataset, error) {
	body, err := c.get(ctx, PathGeoJSON)
	if err != nil {
		return nil, err
	}
	ds, err := dataset.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "backend: parse geojson")
	}
	return ds, nil
}

func (c *httpClient) IndexFields(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, PathIndexFields)
	if err != nil {
		return nil, err
	}
	var fields []string
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, eris.Wrap(err, "backend: unmarshal index fields")
	}
	return fields, nil
}

func (c *httpClient) Generate(ctx context.Context, kind string, gr GenerateRequest) (*dataset.Dataset, error) {
	path, err := GeneratePath(kind)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(gr)
	if err != nil {
		return nil, eris.Wrap(err, "backend: marshal generate request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "backend: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	ds, err := dataset.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "backend: parse %s response", kind)
	}
	return ds, nil
}
