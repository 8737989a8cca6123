package cloudfleet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client is an HTTP client for the CloudFleet API. All collection fetches go
// through page-based pagination with a global inter-request throttle; 404s are
// end-of-data, 429s are retried with exponential backoff.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *Cache

	// sleep is swapped out by tests to observe backoff waits.
	sleep func(ctx context.Context, d time.Duration)
}

// NewClient creates a new CloudFleet API client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestDelay == 0 {
		cfg.RequestDelay = DefaultRequestDelay
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	// Drain the initial token so the very first post-response Wait already
	// enforces the inter-request delay.
	limiter := rate.NewLimiter(rate.Every(cfg.RequestDelay), 1)
	limiter.Allow()
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: limiter,
		cache:   NewCache(cfg.CacheTTL),
		sleep:   sleepCtx,
	}
}

// Cache exposes the client's memo cache, mainly so tests and operational
// tooling can invalidate or bypass it.
func (c *Client) Cache() *Cache { return c.cache }

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// backoffDelay implements the 429 backoff curve: 1.5^attempt + 1 seconds.
func backoffDelay(attempt int) time.Duration {
	secs := math.Pow(1.5, float64(attempt)) + 1
	return time.Duration(secs * float64(time.Second))
}

func (c *Client) newRequest(ctx context.Context, path string, params url.Values) (*http.Request, error) {
	full := c.cfg.BaseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		full += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, "GET", full, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	return req, nil
}

// doThrottled issues one GET and waits out the global inter-request delay on
// success, keeping every caller under the upstream rate limit.
func (c *Client) doThrottled(ctx context.Context, path string, params url.Values) (int, []byte, error) {
	req, err := c.newRequest(ctx, path, params)
	if err != nil {
		return 0, nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		LogError("fetch", err)
		return 0, nil, fmt.Errorf("cloudfleet request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_ = c.limiter.Wait(ctx)
	}
	return resp.StatusCode, body, nil
}

// envelopeFields are the alternate array wrappers CloudFleet responses use,
// tried in priority order.
var envelopeFields = []string{"items", "data", "results", "records"}

// identityFields mark a body as a single resource rather than an envelope.
var identityFields = []string{"id", "number"}

// unwrapPage extracts the item array from one page body. A raw array is used
// as-is; a wrapping object is unwrapped through the known field names; a lone
// resource object becomes a one-element page; anything else degrades to an
// empty page rather than an error.
func unwrapPage(body []byte) []json.RawMessage {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil
	}
	switch trimmed[0] {
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &arr); err != nil {
			return nil
		}
		return arr
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
			return nil
		}
		for _, f := range envelopeFields {
			raw, ok := obj[f]
			if !ok {
				continue
			}
			var arr []json.RawMessage
			if err := json.Unmarshal(raw, &arr); err == nil {
				return arr
			}
		}
		for _, f := range identityFields {
			if _, ok := obj[f]; ok {
				return []json.RawMessage{json.RawMessage(trimmed)}
			}
		}
	}
	return nil
}

// PageOptions bounds a paginated fetch.
type PageOptions struct {
	// MaxPages caps the number of pages fetched; 0 means no cap.
	MaxPages int
	// Budget caps the wall-clock time spent on the whole fetch; 0 means
	// no budget.
	Budget time.Duration
}

// GetPaginated fetches every page of a collection resource. It preserves
// first-seen order across pages, treats 404 as a clean end-of-data signal and
// retries 429s with exponential backoff up to the configured ceiling. Any
// other non-2xx status fails immediately.
func (c *Client) GetPaginated(ctx context.Context, path string, params url.Values, opts PageOptions) ([]json.RawMessage, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	var all []json.RawMessage
	page := 1
	retries := 0

	for {
		if opts.Budget > 0 && time.Since(start) > opts.Budget {
			break
		}

		q := url.Values{}
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		q.Set("page", strconv.Itoa(page))
		q.Set("pageSize", strconv.Itoa(PageSize))

		LogRequest("GET", c.cfg.BaseURL+"/"+path, map[string]interface{}{"page": page})
		status, body, err := c.doThrottled(ctx, path, q)
		if err != nil {
			return nil, err
		}

		switch {
		case status == http.StatusNotFound:
			// End of data; return what we have.
			return all, nil
		case status == http.StatusTooManyRequests:
			if retries >= c.cfg.MaxRetries {
				err := fmt.Errorf("cloudfleet: GET %s: %d retries exhausted: %w", path, c.cfg.MaxRetries, ErrRateLimited)
				LogError("fetch", err)
				return nil, err
			}
			c.sleep(ctx, backoffDelay(retries))
			retries++
			continue
		case status < 200 || status >= 300:
			err := fmt.Errorf("cloudfleet: GET %s: status %d", path, status)
			LogError("fetch", err)
			return nil, err
		}
		retries = 0

		items := unwrapPage(body)
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
		if len(items) < PageSize {
			break
		}
		if opts.MaxPages > 0 && page >= opts.MaxPages {
			break
		}
		page++
	}

	LogResponse(http.StatusOK, time.Since(start), len(all))
	return all, nil
}

// getJSON fetches a single, non-paginated resource. 404 maps to ErrNotFound;
// 429 follows the same backoff policy as paginated fetches.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}

	retries := 0
	for {
		LogRequest("GET", c.cfg.BaseURL+"/"+path, nil)
		status, body, err := c.doThrottled(ctx, path, params)
		if err != nil {
			return nil, err
		}

		switch {
		case status == http.StatusNotFound:
			return nil, ErrNotFound
		case status == http.StatusTooManyRequests:
			if retries >= c.cfg.MaxRetries {
				return nil, fmt.Errorf("cloudfleet: GET %s: %d retries exhausted: %w", path, c.cfg.MaxRetries, ErrRateLimited)
			}
			c.sleep(ctx, backoffDelay(retries))
			retries++
			continue
		case status < 200 || status >= 300:
			return nil, fmt.Errorf("cloudfleet: GET %s: status %d", path, status)
		}
		return json.RawMessage(body), nil
	}
}

// decodeAll decodes each raw page item into T, skipping items that do not
// parse; a malformed record must not sink the rest of the page.
func decodeAll[T any](raw []json.RawMessage) []T {
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			LogError("decode", err)
			continue
		}
		out = append(out, v)
	}
	return out
}

// ---- Resource wrappers ----

// Customers fetches the full customer list. Results are memoized.
func (c *Client) Customers(ctx context.Context) ([]Customer, error) {
	if v, ok := c.cache.get("customers"); ok {
		return v.([]Customer), nil
	}
	raw, err := c.GetPaginated(ctx, "customers/", nil, PageOptions{})
	if err != nil {
		return nil, err
	}
	out := decodeAll[Customer](raw)
	c.cache.put("customers", out)
	return out, nil
}

// Customer fetches one customer by id. Results are memoized.
func (c *Client) Customer(ctx context.Context, id string) (*Customer, error) {
	key := "customer:" + id
	if v, ok := c.cache.get(key); ok {
		return v.(*Customer), nil
	}
	raw, err := c.getJSON(ctx, "customers/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var out Customer
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode customer: %w", err)
	}
	c.cache.put(key, &out)
	return &out, nil
}

// Locations fetches locations, optionally filtered by customer. Results are
// memoized per customer id.
func (c *Client) Locations(ctx context.Context, customerID string) ([]Location, error) {
	key := "locations:" + customerID
	if v, ok := c.cache.get(key); ok {
		return v.([]Location), nil
	}
	params := url.Values{}
	if customerID != "" {
		params.Set("customerId", customerID)
	}
	raw, err := c.GetPaginated(ctx, "locations/", params, PageOptions{})
	if err != nil {
		return nil, err
	}
	out := decodeAll[Location](raw)
	c.cache.put(key, out)
	return out, nil
}

// LocationByID fetches one location by id.
func (c *Client) LocationByID(ctx context.Context, id string) (*Location, error) {
	raw, err := c.getJSON(ctx, "locations/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var out Location
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode location: %w", err)
	}
	return &out, nil
}

// Routes fetches native routes, optionally filtered by customer. Results are
// memoized per customer id and page bound.
func (c *Client) Routes(ctx context.Context, customerID string, opts PageOptions) ([]Route, error) {
	key := fmt.Sprintf("routes:%s:%d", customerID, opts.MaxPages)
	if v, ok := c.cache.get(key); ok {
		return v.([]Route), nil
	}
	params := url.Values{}
	if customerID != "" {
		params.Set("customerId", customerID)
	}
	raw, err := c.GetPaginated(ctx, "routes/", params, opts)
	if err != nil {
		return nil, err
	}
	out := decodeAll[Route](raw)
	c.cache.put(key, out)
	return out, nil
}

// VehicleFilter narrows a vehicle listing upstream.
type VehicleFilter struct {
	Code       string
	CustomerID string
}

// Vehicles fetches vehicles with optional upstream filters.
func (c *Client) Vehicles(ctx context.Context, f VehicleFilter) ([]Vehicle, error) {
	params := url.Values{}
	if f.Code != "" {
		params.Set("code", f.Code)
	}
	if f.CustomerID != "" {
		params.Set("customerId", f.CustomerID)
	}
	raw, err := c.GetPaginated(ctx, "vehicles/", params, PageOptions{})
	if err != nil {
		return nil, err
	}
	return decodeAll[Vehicle](raw), nil
}

// VehicleByCode fetches a single vehicle by its code; nil when absent.
func (c *Client) VehicleByCode(ctx context.Context, code string) (*Vehicle, error) {
	vehicles, err := c.Vehicles(ctx, VehicleFilter{Code: code})
	if err != nil {
		return nil, err
	}
	if len(vehicles) == 0 {
		return nil, nil
	}
	return &vehicles[0], nil
}

// People fetches the full person list.
func (c *Client) People(ctx context.Context) ([]Person, error) {
	raw, err := c.GetPaginated(ctx, "people/", nil, PageOptions{})
	if err != nil {
		return nil, err
	}
	return decodeAll[Person](raw), nil
}

// TravelQuery filters a travels listing. CloudFleet requires at least one
// filter and caps every date range at 62 days.
type TravelQuery struct {
	CustomerID  string
	VehicleCode string
	RouteCode   string
	ViaCode     string
	Number      string

	CreatedFrom, CreatedTo     time.Time
	DepartureFrom, DepartureTo time.Time
	ArrivalFrom, ArrivalTo     time.Time
	FinishedFrom, FinishedTo   time.Time
}

// timestampLayout is the upstream-compatible timestamp format.
const timestampLayout = "2006-01-02T15:04:05Z"

func checkSpan(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return nil
	}
	if to.Sub(from) > MaxDateRange {
		return ErrDateSpan
	}
	return nil
}

// Validate rejects unfilterable or over-long queries before any network call.
func (q TravelQuery) Validate() error {
	hasFilter := q.CustomerID != "" || q.VehicleCode != "" || q.RouteCode != "" ||
		q.ViaCode != "" || q.Number != "" ||
		!q.CreatedFrom.IsZero() || !q.CreatedTo.IsZero() ||
		!q.DepartureFrom.IsZero() || !q.DepartureTo.IsZero() ||
		!q.ArrivalFrom.IsZero() || !q.ArrivalTo.IsZero() ||
		!q.FinishedFrom.IsZero() || !q.FinishedTo.IsZero()
	if !hasFilter {
		return ErrNoFilter
	}

	spans := [][2]time.Time{
		{q.CreatedFrom, q.CreatedTo},
		{q.DepartureFrom, q.DepartureTo},
		{q.ArrivalFrom, q.ArrivalTo},
		{q.FinishedFrom, q.FinishedTo},
	}
	for _, s := range spans {
		if err := checkSpan(s[0], s[1]); err != nil {
			return err
		}
	}
	return nil
}

func (q TravelQuery) params() url.Values {
	p := url.Values{}
	set := func(k, v string) {
		if v != "" {
			p.Set(k, v)
		}
	}
	setTime := func(k string, t time.Time) {
		if !t.IsZero() {
			p.Set(k, t.UTC().Format(timestampLayout))
		}
	}
	set("customerId", q.CustomerID)
	set("vehicleCode", q.VehicleCode)
	set("routeCode", q.RouteCode)
	set("viaCode", q.ViaCode)
	set("number", q.Number)
	setTime("createdFrom", q.CreatedFrom)
	setTime("createdTo", q.CreatedTo)
	setTime("departureFrom", q.DepartureFrom)
	setTime("departureTo", q.DepartureTo)
	setTime("arrivalFrom", q.ArrivalFrom)
	setTime("arrivalTo", q.ArrivalTo)
	setTime("finishedFrom", q.FinishedFrom)
	setTime("finishedTo", q.FinishedTo)
	return p
}

// Travels fetches historical travels matching the query.
func (c *Client) Travels(ctx context.Context, q TravelQuery, opts PageOptions) ([]Travel, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	raw, err := c.GetPaginated(ctx, "travels/", q.params(), opts)
	if err != nil {
		return nil, err
	}
	return decodeAll[Travel](raw), nil
}

// Travel fetches one travel by its number.
func (c *Client) Travel(ctx context.Context, number string) (*Travel, error) {
	raw, err := c.getJSON(ctx, "travels/"+url.PathEscape(number), nil)
	if err != nil {
		return nil, err
	}
	var out Travel
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode travel: %w", err)
	}
	return &out, nil
}
