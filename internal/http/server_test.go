package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"daoledger/internal/core"
	"daoledger/internal/storage"
)

type stubService struct {
	payments  []core.PaymentRecord
	subUnits  []core.SubUnit
	enqueued  []core.SubUnit
	callCount int
	err       error
}

func (s *stubService) Payments(ctx context.Context, f storage.Filter) ([]core.PaymentRecord, error) {
	s.callCount++
	if s.err != nil {
		return nil, s.err
	}
	var out []core.PaymentRecord
	for _, rec := range s.payments {
		if f.Category != "" && rec.Category != f.Category {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *stubService) StoredSubUnits(ctx context.Context) ([]core.SubUnit, error) {
	return s.subUnits, s.err
}

func (s *stubService) DiscoverSubUnits(ctx context.Context, daoAddress string) ([]core.SubUnit, error) {
	return s.subUnits, s.err
}

func (s *stubService) EnqueueRefresh(ctx context.Context, sub core.SubUnit) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.enqueued = append(s.enqueued, sub)
	return fmt.Sprintf("job-%d", len(s.enqueued)), nil
}

func (s *stubService) LastFetched(ctx context.Context) (time.Time, error) {
	return time.Now(), s.err
}

func testPayment(recipient string, usd int64, category core.RecipientCategory) core.PaymentRecord {
	return core.PaymentRecord{
		ProposalID: 1,
		SubUnit:    core.SubUnit{Name: "grants", Address: "osmo1grants"},
		Network:    core.NetworkOsmosis,
		Recipient:  recipient,
		Category:   category,
		Amount:     core.Coin{Amount: decimal.NewFromInt(100), Denom: "uosmo"},
		Adjusted:   decimal.NewFromInt(100),
		USDValue:   decimal.NewFromInt(usd),
		Kind:       core.KindBankSend,
		PaidAt:     time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}
}

func newTestServer(t *testing.T, svc *stubService) *Server {
	t.Helper()
	subs := []core.SubUnit{
		{Name: "grants", Address: "osmo1grants"},
		{Name: "ops", Address: "osmo1ops"},
	}
	srv := NewServer(":0", svc, subs, "osmo1main")
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubService{})
	rec := do(t, srv, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestReadyEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubService{})
	if rec := do(t, srv, http.MethodGet, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	failing := newTestServer(t, &stubService{err: errors.New("db gone")})
	if rec := do(t, failing, http.MethodGet, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPaymentsEndpoint(t *testing.T) {
	svc := &stubService{payments: []core.PaymentRecord{
		testPayment("osmo1a", 10, core.CategoryExternal),
		testPayment("osmo1b", 20, core.CategoryCoreTeam),
	}}
	srv := newTestServer(t, svc)

	rec := do(t, srv, http.MethodGet, "/api/payments")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var body struct {
		Count    int               `json:"count"`
		Payments []json.RawMessage `json:"payments"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 || len(body.Payments) != 2 {
		t.Fatalf("body = %+v", body)
	}
}

func TestPaymentsEndpointCaches(t *testing.T) {
	svc := &stubService{payments: []core.PaymentRecord{testPayment("osmo1a", 10, core.CategoryExternal)}}
	srv := newTestServer(t, svc)

	do(t, srv, http.MethodGet, "/api/payments")
	do(t, srv, http.MethodGet, "/api/payments")
	if svc.callCount != 1 {
		t.Fatalf("service called %d times, want 1", svc.callCount)
	}

	// A different filter is a different cache key.
	do(t, srv, http.MethodGet, "/api/payments?category=core_team")
	if svc.callCount != 2 {
		t.Fatalf("service called %d times, want 2", svc.callCount)
	}
}

func TestReportsEndpoint(t *testing.T) {
	svc := &stubService{payments: []core.PaymentRecord{
		testPayment("osmo1a", 10, core.CategoryExternal),
		testPayment("osmo1b", 20, core.CategoryCoreTeam),
	}}
	srv := newTestServer(t, svc)

	rec := do(t, srv, http.MethodGet, "/api/reports?group_by=denom")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var rep struct {
		Rows  []json.RawMessage `json:"rows"`
		Count int               `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Count != 2 || len(rep.Rows) != 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestReportsEndpointRejectsBadGroupBy(t *testing.T) {
	srv := newTestServer(t, &stubService{})
	if rec := do(t, srv, http.MethodGet, "/api/reports?group_by=bogus"); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	svc := &stubService{}
	srv := newTestServer(t, svc)

	rec := do(t, srv, http.MethodPost, "/api/refresh?sub_unit=grants")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if len(svc.enqueued) != 1 || svc.enqueued[0].Name != "grants" {
		t.Fatalf("enqueued = %+v", svc.enqueued)
	}

	// No sub_unit refreshes every configured one.
	svc.enqueued = nil
	rec = do(t, srv, http.MethodPost, "/api/refresh")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(svc.enqueued) != 2 {
		t.Fatalf("enqueued = %+v", svc.enqueued)
	}
}

func TestRefreshEndpointUnknownSubUnit(t *testing.T) {
	srv := newTestServer(t, &stubService{})
	if rec := do(t, srv, http.MethodPost, "/api/refresh?sub_unit=nope"); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRefreshEndpointRequiresPost(t *testing.T) {
	srv := newTestServer(t, &stubService{})
	if rec := do(t, srv, http.MethodGet, "/api/refresh"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestExportCSVEndpoint(t *testing.T) {
	svc := &stubService{payments: []core.PaymentRecord{testPayment("osmo1a", 10, core.CategoryExternal)}}
	srv := newTestServer(t, svc)

	rec := do(t, srv, http.MethodGet, "/api/reports/export.csv")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Fatalf("content type = %q", ct)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("empty csv body")
	}
}

func TestSummaryEndpoint(t *testing.T) {
	svc := &stubService{payments: []core.PaymentRecord{
		testPayment("osmo1a", 30, core.CategoryCoreTeam),
		testPayment("osmo1b", 70, core.CategoryExternal),
	}}
	srv := newTestServer(t, svc)

	rec := do(t, srv, http.MethodGet, "/api/reports/summary")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Summary struct {
			TotalPayments    int    `json:"total_payments"`
			CoreTeamUSDShare string `json:"core_team_usd_share"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Summary.TotalPayments != 2 {
		t.Fatalf("summary = %+v", body.Summary)
	}
	if body.Summary.CoreTeamUSDShare != "30" {
		t.Fatalf("share = %q", body.Summary.CoreTeamUSDShare)
	}
}

func TestLRUCacheEviction(t *testing.T) {
	cache := newLRUCache[int](2, time.Minute)
	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("c", 3) // evicts a

	if _, ok := cache.Get("a"); ok {
		t.Fatal("a should have been evicted")
	}
	if v, ok := cache.Get("c"); !ok || v != 3 {
		t.Fatalf("c = %d, %v", v, ok)
	}
}

func TestLRUCacheTTL(t *testing.T) {
	cache := newLRUCache[int](10, -time.Second) // already expired
	cache.Set("a", 1)
	if _, ok := cache.Get("a"); ok {
		t.Fatal("expired entry served")
	}
}
