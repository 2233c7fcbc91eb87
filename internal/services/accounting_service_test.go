package services

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"daoledger/internal/core"
	"daoledger/internal/extract"
	"daoledger/internal/storage"
)

type stubFetcher struct {
	proposals map[string][]core.ProposalRecord
	subDAOs   []core.SubUnit
	err       error
	calls     int
}

func (f *stubFetcher) Proposals(ctx context.Context, sub core.SubUnit, status string) ([]core.ProposalRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.proposals[sub.Address], nil
}

func (f *stubFetcher) ListSubDAOs(ctx context.Context, daoAddress string) ([]core.SubUnit, error) {
	return f.subDAOs, f.err
}

func bankSendProposal(t *testing.T, sub core.SubUnit, id int64, to, amount string) core.ProposalRecord {
	t.Helper()
	msg, err := json.Marshal(map[string]any{
		"bank_send": map[string]string{"to": to, "amount": amount, "denom": "uosmo"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return core.ProposalRecord{
		ID:          id,
		SubUnit:     sub,
		Network:     core.NetworkOsmosis,
		Status:      "passed",
		Title:       "Payment",
		Messages:    []json.RawMessage{msg},
		SubmittedAt: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}
}

func testService(t *testing.T, fetcher *stubFetcher) *AccountingService {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { repo.Close() })

	extractor := extract.New(core.NewCoreTeamSet(nil), nil, nil)
	return NewAccountingService(core.NetworkOsmosis, "passed", fetcher, extractor, repo, nil)
}

func TestRefreshSubUnit(t *testing.T) {
	sub := core.SubUnit{Name: "grants", Address: "osmo1grants"}
	fetcher := &stubFetcher{proposals: map[string][]core.ProposalRecord{
		sub.Address: {
			bankSendProposal(t, sub, 1, "osmo1alice", "1000"),
			bankSendProposal(t, sub, 2, "osmo1bob", "2000"),
		},
	}}
	svc := testService(t, fetcher)

	stats, err := svc.RefreshSubUnit(context.Background(), sub)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Proposals != 2 || stats.Payments != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	stored, err := svc.Payments(context.Background(), storage.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 {
		t.Fatalf("got %d stored payments, want 2", len(stored))
	}
}

func TestRefreshSubUnitValidatesAddress(t *testing.T) {
	svc := testService(t, &stubFetcher{})

	_, err := svc.RefreshSubUnit(context.Background(), core.SubUnit{Name: "grants"})
	if !errors.Is(err, core.ErrEmptyAddress) {
		t.Fatalf("err = %v", err)
	}
}

func TestRefreshSubUnitWrapsFetchError(t *testing.T) {
	fetchErr := errors.New("indexer down")
	svc := testService(t, &stubFetcher{err: fetchErr})

	_, err := svc.RefreshSubUnit(context.Background(), core.SubUnit{Name: "grants", Address: "osmo1grants"})
	if !errors.Is(err, fetchErr) {
		t.Fatalf("err = %v", err)
	}
}

func TestRefreshAllContinuesOnFailure(t *testing.T) {
	grants := core.SubUnit{Name: "grants", Address: "osmo1grants"}
	ops := core.SubUnit{Name: "ops", Address: "osmo1ops"}

	// Only grants has proposals; ops fetches fine but stores nothing.
	fetcher := &stubFetcher{proposals: map[string][]core.ProposalRecord{
		grants.Address: {bankSendProposal(t, grants, 1, "osmo1alice", "1000")},
	}}
	svc := testService(t, fetcher)

	// An invalid sub-unit in the middle must not stop the rest.
	subs := []core.SubUnit{grants, {Name: "broken"}, ops}
	if err := svc.RefreshAll(context.Background(), subs); err != nil {
		t.Fatal(err)
	}
	if fetcher.calls != 2 {
		t.Fatalf("fetcher called %d times, want 2", fetcher.calls)
	}
}

func TestRefreshAllFailsWhenAllFail(t *testing.T) {
	svc := testService(t, &stubFetcher{err: errors.New("indexer down")})

	subs := []core.SubUnit{
		{Name: "grants", Address: "osmo1grants"},
		{Name: "ops", Address: "osmo1ops"},
	}
	if err := svc.RefreshAll(context.Background(), subs); err == nil {
		t.Fatal("expected error when every refresh fails")
	}
}

func TestRefreshAllStopsOnCancel(t *testing.T) {
	fetcher := &stubFetcher{}
	svc := testService(t, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.RefreshAll(ctx, []core.SubUnit{{Name: "grants", Address: "osmo1grants"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if fetcher.calls != 0 {
		t.Fatalf("fetcher called %d times after cancel", fetcher.calls)
	}
}

func TestEnqueueRefreshInlineFallback(t *testing.T) {
	sub := core.SubUnit{Name: "grants", Address: "osmo1grants"}
	fetcher := &stubFetcher{proposals: map[string][]core.ProposalRecord{
		sub.Address: {bankSendProposal(t, sub, 1, "osmo1alice", "1000")},
	}}
	svc := testService(t, fetcher)

	// Without AMQP the refresh runs inline and no job id is issued.
	jobID, err := svc.EnqueueRefresh(context.Background(), sub)
	if err != nil {
		t.Fatal(err)
	}
	if jobID != "" {
		t.Fatalf("job id = %q, want empty for inline refresh", jobID)
	}
	if fetcher.calls != 1 {
		t.Fatalf("fetcher called %d times, want 1", fetcher.calls)
	}
}

func TestDiscoverSubUnits(t *testing.T) {
	want := []core.SubUnit{
		{Name: "grants", Address: "osmo1grants"},
		{Name: "ops", Address: "osmo1ops"},
	}
	svc := testService(t, &stubFetcher{subDAOs: want})

	got, err := svc.DiscoverSubUnits(context.Background(), "osmo1main")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name != "grants" {
		t.Fatalf("got %+v", got)
	}
}
