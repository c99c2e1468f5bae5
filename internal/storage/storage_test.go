package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"uvcal/internal/response"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "uvcal.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRequest() response.Request {
	return response.Request{
		Band:     response.FUV,
		RA:       176.9195,
		Dec:      0.2557,
		Aperture: 0.01,
		Ranges:   []response.TimeRange{{Start: 766525332.995, End: 766526576.995}},
	}
}

func TestQueryLifecycle(t *testing.T) {
	s := newStore(t)

	if err := s.RecordQueryQueued("q-1", "aperture", testRequest()); err != nil {
		t.Fatalf("RecordQueryQueued: %v", err)
	}
	if err := s.RecordQueryStart("q-1"); err != nil {
		t.Fatalf("RecordQueryStart: %v", err)
	}
	res := response.Result{Response: 0.894, Exposure: 1244, Product: 1112.1, Ticks: 1244}
	if err := s.RecordQueryResult("q-1", res, nil); err != nil {
		t.Fatalf("RecordQueryResult: %v", err)
	}

	recs, err := s.RecentQueries(10)
	if err != nil {
		t.Fatalf("RecentQueries: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.Status != "completed" || rec.Method != "aperture" || rec.Band != "FUV" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.StartedAt == nil || rec.CompletedAt == nil {
		t.Fatalf("timestamps not recorded: %+v", rec)
	}

	got, err := s.QueryResult("q-1")
	if err != nil {
		t.Fatalf("QueryResult: %v", err)
	}
	if got.Response != res.Response || got.Ticks != res.Ticks {
		t.Fatalf("stored result mismatch: %+v", got)
	}
}

func TestFailedQueryStoresError(t *testing.T) {
	s := newStore(t)

	if err := s.RecordQueryQueued("q-2", "map", testRequest()); err != nil {
		t.Fatalf("RecordQueryQueued: %v", err)
	}
	if err := s.RecordQueryResult("q-2", response.Result{}, errors.New("no aspect coverage")); err != nil {
		t.Fatalf("RecordQueryResult: %v", err)
	}

	recs, err := s.RecentQueries(10)
	if err != nil {
		t.Fatalf("RecentQueries: %v", err)
	}
	if recs[0].Status != "failed" || recs[0].Error != "no aspect coverage" {
		t.Fatalf("failure not recorded: %+v", recs[0])
	}
	if _, err := s.QueryResult("q-2"); err == nil {
		t.Fatalf("failed query should have no stored result")
	}
}

func TestRecentQueriesLimit(t *testing.T) {
	s := newStore(t)
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		if err := s.RecordQueryQueued(id, "aperture", testRequest()); err != nil {
			t.Fatalf("RecordQueryQueued: %v", err)
		}
	}
	recs, err := s.RecentQueries(3)
	if err != nil {
		t.Fatalf("RecentQueries: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("limit not honored: got %d records", len(recs))
	}
}
