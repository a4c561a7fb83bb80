// Package eodhd provides a price provider and an exchange rate provider
// backed by the EODHD real-time API.
package eodhd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/valuation"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 5 // requests per second
)

// Client fetches latest quotes and forex rates from EODHD.
//
// Assets are looked up in the asset repository: their symbol is the EODHD
// ticker (e.g. "AAPL.US", "VOD.LSE"), and their currency the quote currency,
// except on the London Stock Exchange which quotes in pence.
type Client struct {
	baseURL    string
	apiKey     string
	assets     valuation.AssetRepository
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithDiskCache caches successful responses in dir for ttl. An empty dir
// means the system temporary directory.
func WithDiskCache(dir string, ttl time.Duration) ClientOption {
	return func(c *Client) {
		if dir == "" {
			dir = os.TempDir()
		}
		base := c.httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		c.httpClient.Transport = &diskCache{base: base, dir: dir, ttl: ttl, now: time.Now, logger: c.logger}
	}
}

// NewClient creates a new EODHD client.
func NewClient(apiKey string, assets valuation.AssetRepository, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		assets:  assets,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("EODHD API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request and decodes the JSON response into
// a generic value.
func (c *Client) get(ctx context.Context, path string) (any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.logger.Debug().Str("url", c.baseURL+path).Msg("EODHD API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}
	var jobj any
	if err := json.NewDecoder(resp.Body).Decode(&jobj); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return jobj, nil
}

// number extracts a number at path. ok is false when the API has no value,
// which it reports as "NA".
func number(jobj any, path string) (v float64, ok bool, err error) {
	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return 0, false, fmt.Errorf("error parsing %q: %w", path, err)
	}
	// jsonpath may return a list of one answer instead of the answer.
	if jlist, isList := jval.([]any); isList && len(jlist) > 0 {
		jval = jlist[0]
	}
	switch x := jval.(type) {
	case float64:
		return x, true, nil
	case string:
		if x == "NA" || x == "" {
			return 0, false, nil
		}
	case nil:
		return 0, false, nil
	}
	return 0, false, fmt.Errorf("error parsing %q: not a number %v", path, jval)
}

// realTime returns the latest close of ticker and its timestamp.
func (c *Client) realTime(ctx context.Context, ticker string) (last *decimal.Decimal, at time.Time, err error) {
	jobj, err := c.get(ctx, "/real-time/"+url.PathEscape(ticker))
	if err != nil {
		return nil, time.Time{}, err
	}
	v, ok, err := number(jobj, "$.close")
	if err != nil || !ok {
		return nil, time.Time{}, err
	}
	d := decimal.NewFromFloat(v)
	if ts, ok, _ := number(jobj, "$.timestamp"); ok {
		at = time.Unix(int64(ts), 0).UTC()
	}
	return &d, at, nil
}

// quoteCurrency returns the currency EODHD quotes ticker in.
func quoteCurrency(ticker, assetCurrency string) string {
	if strings.HasSuffix(strings.ToUpper(ticker), ".LSE") && (assetCurrency == "GBP" || assetCurrency == "") {
		return "GBX"
	}
	return assetCurrency
}

// LatestPrice implements valuation.PriceProvider.
func (c *Client) LatestPrice(ctx context.Context, assetID string) (*valuation.Quote, error) {
	asset, err := c.assets.GetAsset(ctx, assetID)
	if errors.Is(err, valuation.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ticker := asset.Symbol
	if ticker == "" {
		ticker = asset.ID
	}
	last, at, err := c.realTime(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("cannot get %s quote: %w", ticker, err)
	}
	if last == nil || !last.IsPositive() {
		c.logger.Debug().Str("ticker", ticker).Msg("no quote available")
		return nil, nil
	}
	return &valuation.Quote{
		Price:     valuation.M(*last, quoteCurrency(ticker, asset.Currency)),
		FetchedAt: at,
	}, nil
}

// Rate implements valuation.RateProvider.
func (c *Client) Rate(ctx context.Context, from, to string) (*decimal.Decimal, error) {
	ticker := from + to + ".FOREX"
	last, _, err := c.realTime(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("cannot get %s/%s rate: %w", from, to, err)
	}
	if last == nil || !last.IsPositive() {
		return nil, nil
	}
	return last, nil
}

var (
	_ valuation.PriceProvider = (*Client)(nil)
	_ valuation.RateProvider  = (*Client)(nil)
)
