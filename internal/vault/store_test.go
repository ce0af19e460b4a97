package vault

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vault.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ptr(v float64) *float64 { return &v }

func TestUpsert_Idempotent(t *testing.T) {
	s := openTestStore(t)

	first := []WalkRecord{{Date: "2026-03-01", Steps: 1000}}
	if _, err := s.Upsert(1, first, "wearable"); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := []WalkRecord{{Date: "2026-03-01", Steps: 2500, Kcalories: ptr(80)}}
	n, err := s.Upsert(1, second, "wearable")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if n != 1 {
		t.Errorf("upsert count = %d, want 1", n)
	}

	res, err := s.Fetch(1, FetchOptions{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %d, want exactly 1 row for the key", len(res.Records))
	}
	if res.Records[0].Steps != 2500 {
		t.Errorf("steps = %d, want latest value 2500", res.Records[0].Steps)
	}
}

func TestFetch_OneRowPerDay_PreferSource(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Upsert(1, []WalkRecord{{Date: "2026-03-01", Steps: 100}}, "wearable"); err != nil {
		t.Fatalf("upsert wearable: %v", err)
	}
	if _, err := s.Upsert(1, []WalkRecord{{Date: "2026-03-01", Steps: 200}}, "gamehub"); err != nil {
		t.Fatalf("upsert gamehub: %v", err)
	}

	// Preferred source wins for the shared day.
	res, err := s.Fetch(1, FetchOptions{PreferSource: "wearable"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %d, want 1 (never two rows for one day)", len(res.Records))
	}
	if res.Records[0].Source != "wearable" || res.Records[0].Steps != 100 {
		t.Errorf("got %+v, want the wearable row", res.Records[0])
	}

	// Without a preference, the most recently inserted row wins.
	res, err = s.Fetch(1, FetchOptions{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Records[0].Source != "gamehub" {
		t.Errorf("source = %s, want most recent insert (gamehub)", res.Records[0].Source)
	}
}

func TestFetch_WindowStatsAndPagination(t *testing.T) {
	s := openTestStore(t)

	recs := []WalkRecord{
		{Date: "2026-03-01", Steps: 100},
		{Date: "2026-03-02", Steps: 200},
		{Date: "2026-03-03", Steps: 300},
		{Date: "2026-03-04", Steps: 400},
	}
	if _, err := s.Upsert(7, recs, "wearable"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	res, err := s.Fetch(7, FetchOptions{From: "2026-03-02", To: "2026-03-04", Page: 1, PerPage: 2})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Total != 3 {
		t.Errorf("total = %d, want 3 days in window", res.Total)
	}
	if len(res.Records) != 2 {
		t.Errorf("page size = %d, want 2", len(res.Records))
	}
	if res.Records[0].Date != "2026-03-02" || res.Records[1].Date != "2026-03-03" {
		t.Errorf("page 1 = %v/%v, want 03-02 and 03-03", res.Records[0].Date, res.Records[1].Date)
	}
	// Stats cover the whole window, not the page.
	if res.Stats.Days != 3 || res.Stats.TotalSteps != 900 || res.Stats.AvgSteps != 300 {
		t.Errorf("stats = %+v, want days=3 total=900 avg=300", res.Stats)
	}

	res, err = s.Fetch(7, FetchOptions{From: "2026-03-02", To: "2026-03-04", Page: 2, PerPage: 2})
	if err != nil {
		t.Fatalf("fetch page 2: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].Date != "2026-03-04" {
		t.Errorf("page 2 = %+v, want just 03-04", res.Records)
	}
}

func TestFetch_EmptyStore(t *testing.T) {
	s := openTestStore(t)
	res, err := s.Fetch(99, FetchOptions{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.Records) != 0 || res.Stats.Days != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestMaintain_EmptyStore(t *testing.T) {
	s := openTestStore(t)
	deleted, err := s.Maintain(30)
	if err != nil {
		t.Fatalf("maintain: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0 on empty store", deleted)
	}
}

func TestMaintain_KeepsFreshRows(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Upsert(1, []WalkRecord{{Date: "2026-03-01", Steps: 10}}, "wearable"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	deleted, err := s.Maintain(30)
	if err != nil {
		t.Fatalf("maintain: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, fresh rows must survive retention", deleted)
	}

	// Backdate the insertion timestamp to simulate an old row. Record
	// date stays recent — retention is measured from insertion time.
	s.mu.Lock()
	_, err = s.db.Exec(`UPDATE walk_days SET inserted_at = '2020-01-01T00:00:00Z'`)
	s.mu.Unlock()
	if err != nil {
		t.Fatalf("backdate: %v", err)
	}

	deleted, err = s.Maintain(30)
	if err != nil {
		t.Fatalf("maintain: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1 backdated row", deleted)
	}

	// A second sweep on the already-pruned store is a no-op.
	deleted, err = s.Maintain(30)
	if err != nil {
		t.Fatalf("maintain again: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0 on pruned store", deleted)
	}
}
