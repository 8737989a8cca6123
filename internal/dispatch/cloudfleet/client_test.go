package cloudfleet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"
)

// newTestClient builds a client against a test server with throttling and
// real sleeping disabled.
func newTestClient(t *testing.T, srv *httptest.Server) (*Client, *[]time.Duration) {
	t.Helper()
	c := NewClient(Config{
		BaseURL:      srv.URL,
		Token:        "test-token",
		RequestDelay: time.Millisecond,
		MaxRetries:   3,
	})
	var waits []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) {
		waits = append(waits, d)
	}
	return c, &waits
}

// pageOfItems renders n objects with sequential ids starting at first.
func pageOfItems(first, n int) string {
	out := "["
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"id":%d}`, first+i)
	}
	return out + "]"
}

// TestGetPaginatedPageCountAndOrder verifies that pages of sizes
// [50, 50, 10] produce exactly 3 requests and 110 items in original order.
func TestGetPaginatedPageCountAndOrder(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if r.URL.Query().Get("pageSize") != strconv.Itoa(PageSize) {
			t.Errorf("pageSize = %q, want %d", r.URL.Query().Get("pageSize"), PageSize)
		}
		switch page {
		case 1:
			fmt.Fprint(w, pageOfItems(0, 50))
		case 2:
			fmt.Fprint(w, pageOfItems(50, 50))
		case 3:
			fmt.Fprint(w, pageOfItems(100, 10))
		default:
			t.Errorf("unexpected request for page %d", page)
			fmt.Fprint(w, "[]")
		}
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	items, err := c.GetPaginated(context.Background(), "vehicles/", nil, PageOptions{})
	if err != nil {
		t.Fatalf("GetPaginated: %v", err)
	}
	if requests != 3 {
		t.Errorf("requests = %d, want 3", requests)
	}
	if len(items) != 110 {
		t.Fatalf("items = %d, want 110", len(items))
	}
	for i, raw := range items {
		var obj struct {
			ID int `json:"id"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			t.Fatalf("item %d: %v", i, err)
		}
		if obj.ID != i {
			t.Fatalf("item %d has id %d, order not preserved", i, obj.ID)
		}
	}
}

// TestGetPaginatedNotFoundMidStream verifies that a 404 on a later page
// returns what was accumulated without raising.
func TestGetPaginatedNotFoundMidStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprint(w, pageOfItems(0, 50))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	items, err := c.GetPaginated(context.Background(), "people/", nil, PageOptions{})
	if err != nil {
		t.Fatalf("expected accumulated items, got error: %v", err)
	}
	if len(items) != 50 {
		t.Errorf("items = %d, want 50", len(items))
	}
}

// TestGetPaginatedRateLimitBackoff verifies strictly increasing backoff waits
// and a hard failure on the (N+1)th consecutive 429.
func TestGetPaginatedRateLimitBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, waits := newTestClient(t, srv)
	_, err := c.GetPaginated(context.Background(), "travels/", nil, PageOptions{})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if len(*waits) != c.cfg.MaxRetries {
		t.Fatalf("waits = %d, want %d", len(*waits), c.cfg.MaxRetries)
	}
	for i := 1; i < len(*waits); i++ {
		if (*waits)[i] <= (*waits)[i-1] {
			t.Errorf("wait %d (%v) not greater than wait %d (%v)",
				i, (*waits)[i], i-1, (*waits)[i-1])
		}
	}
}

// TestGetPaginatedRateLimitRecovers verifies the retry counter resets after a
// successful page.
func TestGetPaginatedRateLimitRecovers(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, pageOfItems(0, 2))
	}))
	defer srv.Close()

	c, waits := newTestClient(t, srv)
	items, err := c.GetPaginated(context.Background(), "routes/", nil, PageOptions{})
	if err != nil {
		t.Fatalf("GetPaginated: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("items = %d, want 2", len(items))
	}
	if len(*waits) != 1 {
		t.Errorf("waits = %d, want 1", len(*waits))
	}
}

// TestGetPaginatedHardFailure verifies any other status fails immediately
// with no retry.
func TestGetPaginatedHardFailure(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	_, err := c.GetPaginated(context.Background(), "customers/", nil, PageOptions{})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if requests != 1 {
		t.Errorf("requests = %d, want 1 (no retry on hard failure)", requests)
	}
}

// TestGetPaginatedMaxPages verifies the optional page-count cap.
func TestGetPaginatedMaxPages(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, pageOfItems(0, 50))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	items, err := c.GetPaginated(context.Background(), "travels/", nil, PageOptions{MaxPages: 2})
	if err != nil {
		t.Fatalf("GetPaginated: %v", err)
	}
	if requests != 2 {
		t.Errorf("requests = %d, want 2", requests)
	}
	if len(items) != 100 {
		t.Errorf("items = %d, want 100", len(items))
	}
}

// TestGetPaginatedMissingConfig verifies the configuration error is raised on
// first use, before any network call.
func TestGetPaginatedMissingConfig(t *testing.T) {
	c := NewClient(Config{})
	_, err := c.GetPaginated(context.Background(), "vehicles/", nil, PageOptions{})
	if !errors.Is(err, ErrMissingConfig) {
		t.Fatalf("expected ErrMissingConfig, got %v", err)
	}
}

// TestUnwrapPage covers the envelope shapes: raw array, wrapped array under
// the alternate field names, single resource, and graceful degradation.
func TestUnwrapPage(t *testing.T) {
	if got := unwrapPage([]byte(`[{"id":1},{"id":2}]`)); len(got) != 2 {
		t.Errorf("raw array: got %d items, want 2", len(got))
	}
	if got := unwrapPage([]byte(`{"items":[{"id":1}]}`)); len(got) != 1 {
		t.Errorf("items envelope: got %d items, want 1", len(got))
	}
	if got := unwrapPage([]byte(`{"data":[{"id":1},{"id":2},{"id":3}]}`)); len(got) != 3 {
		t.Errorf("data envelope: got %d items, want 3", len(got))
	}
	// items wins over data when both are present.
	if got := unwrapPage([]byte(`{"data":[{"id":1},{"id":2}],"items":[{"id":9}]}`)); len(got) != 1 {
		t.Errorf("priority order: got %d items, want 1", len(got))
	}
	if got := unwrapPage([]byte(`{"id":"abc","name":"lone resource"}`)); len(got) != 1 {
		t.Errorf("single resource by id: got %d items, want 1", len(got))
	}
	if got := unwrapPage([]byte(`{"number":"T-100"}`)); len(got) != 1 {
		t.Errorf("single resource by number: got %d items, want 1", len(got))
	}
	if got := unwrapPage([]byte(`{"message":"no clue"}`)); got != nil {
		t.Errorf("unknown object should degrade to empty, got %v", got)
	}
	if got := unwrapPage([]byte(`not json at all`)); got != nil {
		t.Errorf("garbage should degrade to empty, got %v", got)
	}
	if got := unwrapPage(nil); got != nil {
		t.Errorf("empty body should degrade to empty, got %v", got)
	}
}

// TestTravelQueryValidate covers the pre-network rejections.
func TestTravelQueryValidate(t *testing.T) {
	if err := (TravelQuery{}).Validate(); !errors.Is(err, ErrNoFilter) {
		t.Errorf("empty query: got %v, want ErrNoFilter", err)
	}

	now := time.Now().UTC()
	q := TravelQuery{CreatedFrom: now.AddDate(0, 0, -63), CreatedTo: now}
	if err := q.Validate(); !errors.Is(err, ErrDateSpan) {
		t.Errorf("63-day created span: got %v, want ErrDateSpan", err)
	}

	// Each date pair is validated independently.
	q = TravelQuery{
		CustomerID:    "123",
		DepartureFrom: now.AddDate(0, 0, -70),
		DepartureTo:   now,
	}
	if err := q.Validate(); !errors.Is(err, ErrDateSpan) {
		t.Errorf("departure span: got %v, want ErrDateSpan", err)
	}

	q = TravelQuery{VehicleCode: "ABC123"}
	if err := q.Validate(); err != nil {
		t.Errorf("single filter: got %v, want nil", err)
	}

	q = TravelQuery{CreatedFrom: now.AddDate(0, 0, -30), CreatedTo: now}
	if err := q.Validate(); err != nil {
		t.Errorf("30-day span: got %v, want nil", err)
	}
}

// TestNewClientThrottleStartsEmpty verifies the limiter carries no initial
// token: the first post-response wait must already enforce the full
// inter-request delay.
func TestNewClientThrottleStartsEmpty(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://example.test", Token: "t", RequestDelay: time.Hour})
	if c.limiter.Allow() {
		t.Error("initial limiter token should be drained at construction")
	}
}

// TestVehicleByCode covers the single-vehicle convenience wrapper, including
// the nil result for an unknown code.
func TestVehicleByCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("code") == "ABC123" {
			fmt.Fprint(w, `[{"id": 9, "code": "ABC123", "city": "Yumbo"}]`)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	v, err := c.VehicleByCode(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("VehicleByCode: %v", err)
	}
	if v == nil || v.ID.String() != "9" {
		t.Fatalf("vehicle = %+v, want id 9", v)
	}

	v, err = c.VehicleByCode(context.Background(), "NOPE")
	if err != nil {
		t.Fatalf("VehicleByCode unknown: %v", err)
	}
	if v != nil {
		t.Errorf("unknown code should yield nil, got %+v", v)
	}
}

// TestTravelByNumber covers the single-travel fetch and its 404 mapping.
func TestTravelByNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/travels/T-100" {
			fmt.Fprint(w, `{"number": "T-100", "routeCode": "CHL-YMB-VAR", "finished": true}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	tr, err := c.Travel(context.Background(), "T-100")
	if err != nil {
		t.Fatalf("Travel: %v", err)
	}
	if tr.Number.String() != "T-100" || tr.ResolvedRouteCode() != "CHL-YMB-VAR" || !tr.Finished {
		t.Errorf("travel = %+v", tr)
	}

	if _, err := c.Travel(context.Background(), "T-999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing travel: got %v, want ErrNotFound", err)
	}
}

// TestGetSingleNotFound verifies ErrNotFound on single-resource 404s.
func TestGetSingleNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	_, err := c.Customer(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestTravelsQueryParams verifies filter and timestamp formatting on the wire.
func TestTravelsQueryParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `[{"number":"T-1","routeCode":"CHL-YMB-VAR"}]`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	travels, err := c.Travels(context.Background(), TravelQuery{
		RouteCode:   "CHL-YMB-VAR",
		CreatedFrom: from,
		CreatedTo:   to,
	}, PageOptions{MaxPages: 1})
	if err != nil {
		t.Fatalf("Travels: %v", err)
	}
	if len(travels) != 1 || travels[0].ResolvedRouteCode() != "CHL-YMB-VAR" {
		t.Fatalf("unexpected travels: %+v", travels)
	}

	q, err := url.ParseQuery(gotQuery)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	if q.Get("routeCode") != "CHL-YMB-VAR" {
		t.Errorf("routeCode = %q", q.Get("routeCode"))
	}
	if q.Get("createdFrom") != "2025-06-01T00:00:00Z" {
		t.Errorf("createdFrom = %q", q.Get("createdFrom"))
	}
	if q.Get("createdTo") != "2025-06-15T00:00:00Z" {
		t.Errorf("createdTo = %q", q.Get("createdTo"))
	}
}
