package aspect

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestTableLookup(t *testing.T) {
	tbl := NewTable()
	tbl.Set(100, Sample{RA: 150.0, Dec: 10.0, Roll: 30.0, ExpFrac: 0.7})

	s, ok := tbl.Lookup(100)
	if !ok {
		t.Fatalf("expected sample at tick 100")
	}
	if s.ExpFrac != 0.7 {
		t.Fatalf("exposure fraction not preserved: %v", s.ExpFrac)
	}
	if _, ok := tbl.Lookup(101); ok {
		t.Fatalf("tick 101 should be a gap")
	}
	if tbl.Len() != 1 {
		t.Fatalf("expected 1 sample, got %d", tbl.Len())
	}
}

func TestTablePreservesDeadTick(t *testing.T) {
	tbl := NewTable()
	tbl.Set(200, Sample{RA: 150.0, Dec: 10.0, ExpFrac: 0})

	s, ok := tbl.Lookup(200)
	if !ok {
		t.Fatalf("expected sample at tick 200")
	}
	if s.ExpFrac != 0 {
		t.Fatalf("a dead tick must keep zero exposure fraction, got %v", s.ExpFrac)
	}
}

func writeAspectDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aspect.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE aspect (time REAL, ra REAL, dec REAL, roll REAL, exp_frac REAL, flag INTEGER);`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	rows := []struct {
		time, ra, dec, roll, expFrac float64
		flag                         int
	}{
		{1000.995, 176.91, 0.25, 27.0, 1.0, 0},
		{1001.995, 176.92, 0.26, 27.1, 0.8, 0},
		{1002.995, 176.93, 0.27, 27.2, 1.0, 2}, // flagged, must be skipped
		{1003.995, 176.94, 0.28, 27.3, 1.0, 0},
		{1004.995, 176.95, 0.29, 27.4, 0.0, 0}, // dead tick, must be a gap
		{2000.995, 176.96, 0.30, 27.5, 1.0, 0}, // outside the loaded range
	}
	for _, r := range rows {
		if _, err := db.Exec(`INSERT INTO aspect VALUES (?, ?, ?, ?, ?, ?);`,
			r.time, r.ra, r.dec, r.roll, r.expFrac, r.flag); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	// Legacy products leave exp_frac unpopulated; those ticks count in full.
	if _, err := db.Exec(`INSERT INTO aspect VALUES (1005.995, 176.97, 0.31, 27.6, NULL, 0);`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return path
}

func TestDBLoadRange(t *testing.T) {
	path := writeAspectDB(t)

	adb, err := NewDB(path)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	if err := adb.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer adb.Close()

	tbl, err := adb.LoadRange(1000, 1007)
	if err != nil {
		t.Fatalf("LoadRange: %v", err)
	}
	if tbl.Len() != 4 {
		t.Fatalf("expected 4 usable samples, got %d", tbl.Len())
	}
	if _, ok := tbl.Lookup(1002); ok {
		t.Fatalf("flagged tick 1002 should be excluded")
	}
	if _, ok := tbl.Lookup(1004); ok {
		t.Fatalf("dead tick 1004 should be excluded")
	}
	s, ok := tbl.Lookup(1001)
	if !ok {
		t.Fatalf("expected sample at tick 1001")
	}
	if s.ExpFrac != 0.8 {
		t.Fatalf("exposure fraction not preserved: %v", s.ExpFrac)
	}
	s, ok = tbl.Lookup(1005)
	if !ok {
		t.Fatalf("expected sample at tick 1005")
	}
	if s.ExpFrac != 1.0 {
		t.Fatalf("unpopulated exp_frac should default to 1.0, got %v", s.ExpFrac)
	}

	stats, err := adb.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["samples"].(int) != 7 {
		t.Fatalf("expected 7 total rows, got %v", stats["samples"])
	}
}

func TestNewDBMissingFile(t *testing.T) {
	if _, err := NewDB(filepath.Join(t.TempDir(), "nope.db")); err == nil {
		t.Fatalf("expected error for missing aspect database")
	}
}
