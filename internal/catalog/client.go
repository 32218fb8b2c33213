package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/boskobot/internal/logger"
)

const (
	authParamName = "sessionId"

	loginPath    = "/JSON/Authorization/login"
	shopsPath    = "/JSON/Shops/getAll"
	productsPath = "/JSON/Products/getAll"
	searchPath   = "/JSON/Products/search"
)

// Metrics counts failed catalog requests; nil disables reporting.
type Metrics interface {
	CatalogError()
}

// Client talks to the catalog API. It authenticates with a session token passed
// as a query parameter on every request.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
	metrics Metrics

	mu    sync.RWMutex
	token string
}

// ClientOptions configure NewClient.
type ClientOptions struct {
	BaseURL string
	// RatePerSecond bounds outbound requests; <= 0 selects a default.
	RatePerSecond float64
	HTTPClient    *http.Client
	Metrics       Metrics
}

// NewClient builds a catalog client with a retrying transport.
func NewClient(opts ClientOptions) *Client {
	rps := opts.RatePerSecond
	if rps <= 0 {
		rps = 5
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = buildHTTPClient()
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		log:     logger.Component("catalog"),
		metrics: opts.Metrics,
	}
}

// Login authenticates and stores the session token for subsequent requests.
func (c *Client) Login(ctx context.Context, email, password string) error {
	params := url.Values{}
	params.Set("email", email)
	params.Set("password", password)
	params.Set("isMobile", "true")

	var envelope struct {
		Result bool   `json:"result"`
		Data   string `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, loginPath, params, false, &envelope); err != nil {
		return err
	}
	if envelope.Data == "" {
		return fmt.Errorf("%w: login returned no session token", ErrUnavailable)
	}

	c.mu.Lock()
	c.token = envelope.Data
	c.mu.Unlock()

	c.log.Info("logged in", slog.String("event", "catalog.login"))
	return nil
}

// ListShops fetches up to limit shops.
func (c *Client) ListShops(ctx context.Context, limit int) ([]Shop, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var envelope struct {
		Result bool          `json:"result"`
		Data   []shopPayload `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, shopsPath, params, true, &envelope); err != nil {
		return nil, fmt.Errorf("list shops: %w", err)
	}

	shops := make([]Shop, 0, len(envelope.Data))
	for _, p := range envelope.Data {
		shops = append(shops, p.toShop())
	}
	return shops, nil
}

// ListProducts fetches the products currently offered at a shop.
func (c *Client) ListProducts(ctx context.Context, shopID int64) ([]Product, error) {
	params := url.Values{}
	params.Set("shopId", strconv.FormatInt(shopID, 10))

	var envelope struct {
		Result bool             `json:"result"`
		Data   []productPayload `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, productsPath, params, true, &envelope); err != nil {
		return nil, fmt.Errorf("list products for shop %d: %w", shopID, err)
	}

	products := make([]Product, 0, len(envelope.Data))
	for _, p := range envelope.Data {
		products = append(products, Product{ID: p.ID, Name: p.Name})
	}
	return products, nil
}

// SearchProducts queries the API-side product search.
func (c *Client) SearchProducts(ctx context.Context, phrase string) ([]Product, error) {
	params := url.Values{}
	params.Set("query", phrase)

	var envelope struct {
		Result bool             `json:"result"`
		Data   []productPayload `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, searchPath, params, true, &envelope); err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}

	products := make([]Product, 0, len(envelope.Data))
	for _, p := range envelope.Data {
		products = append(products, Product{ID: p.ID, Name: p.Name})
	}
	return products, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, auth bool, out any) (err error) {
	defer func() {
		if err != nil && c.metrics != nil {
			c.metrics.CatalogError()
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if auth {
		c.mu.RLock()
		token := c.token
		c.mu.RUnlock()
		if token == "" {
			return fmt.Errorf("%w: not logged in", ErrUnavailable)
		}
		params.Set(authParamName, token)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request failed",
			slog.String("event", "catalog.request"),
			slog.String("path", path),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %s", ErrUnavailable, resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("%w: unexpected content type %q", ErrUnavailable, ct)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}

	c.log.Debug("request done",
		slog.String("event", "catalog.request"),
		slog.String("path", path),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}
