package aspect

import (
	"database/sql"
	"fmt"
	"math"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// DB provides read-only access to a mission-produced aspect-solution SQLite
// database. The file is an external calibration product; it is never written
// by this program.
type DB struct {
	path string
	db   *sql.DB
}

// NewDB validates the database path. Call Connect before querying.
func NewDB(path string) (*DB, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("aspect database not found at %s", path)
	}
	return &DB{path: path}, nil
}

// Connect opens a read-only connection.
func (a *DB) Connect() error {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", a.path))
	if err != nil {
		return fmt.Errorf("failed to open aspect database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to aspect database: %w", err)
	}
	a.db = db
	return nil
}

// Close closes the connection.
func (a *DB) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// LoadRange materializes the aspect samples covering [t0, t1) mission seconds
// into an in-memory Table. Rows with a nonzero quality flag are skipped; they
// represent ticks where the aspect reconstruction is unusable, which the
// estimator must treat as gaps.
func (a *DB) LoadRange(t0, t1 float64) (*Table, error) {
	if a.db == nil {
		return nil, fmt.Errorf("aspect database not connected")
	}
	rows, err := a.db.Query(
		`SELECT time, ra, dec, roll, exp_frac, flag FROM aspect WHERE time >= ? AND time < ? ORDER BY time;`,
		math.Floor(t0), math.Ceil(t1))
	if err != nil {
		return nil, fmt.Errorf("aspect query failed: %w", err)
	}
	defer rows.Close()

	table := NewTable()
	for rows.Next() {
		var (
			t, ra, dec, roll float64
			expFrac          sql.NullFloat64
			flag             int
		)
		if err := rows.Scan(&t, &ra, &dec, &roll, &expFrac, &flag); err != nil {
			return nil, fmt.Errorf("aspect row scan failed: %w", err)
		}
		if flag != 0 {
			continue
		}
		// A NULL exp_frac means the column was never populated and the tick
		// counts as a full second. An explicit nonpositive value is a dead
		// tick and is dropped, leaving a gap for the estimator.
		frac := 1.0
		if expFrac.Valid {
			if expFrac.Float64 <= 0 {
				continue
			}
			frac = expFrac.Float64
		}
		table.Set(int64(math.Floor(t)), Sample{RA: ra, Dec: dec, Roll: roll, ExpFrac: frac})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aspect row iteration failed: %w", err)
	}
	return table, nil
}

// Stats reports basic coverage information for diagnostics.
func (a *DB) Stats() (map[string]any, error) {
	if a.db == nil {
		return nil, fmt.Errorf("aspect database not connected")
	}
	var count int
	var tMin, tMax sql.NullFloat64
	err := a.db.QueryRow(`SELECT COUNT(*), MIN(time), MAX(time) FROM aspect;`).Scan(&count, &tMin, &tMax)
	if err != nil {
		return nil, err
	}
	stats := map[string]any{"samples": count}
	if tMin.Valid {
		stats["first_tick"] = tMin.Float64
	}
	if tMax.Valid {
		stats["last_tick"] = tMax.Float64
	}
	return stats, nil
}
