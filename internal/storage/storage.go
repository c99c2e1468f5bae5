package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"uvcal/internal/response"
)

// Store wraps SQLite-backed persistence for response queries and results.
type Store struct {
	DB *sql.DB // Export for direct database access
}

// New opens (or creates) the database at path and ensures schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS response_queries (
            id TEXT PRIMARY KEY,
            method TEXT NOT NULL,
            status TEXT NOT NULL,
            band TEXT NOT NULL,
            ra REAL NOT NULL,
            dec REAL NOT NULL,
            aperture REAL NOT NULL,
            ranges_json TEXT,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            started_at TIMESTAMP,
            completed_at TIMESTAMP,
            error_message TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS response_results (
            query_id TEXT,
            response REAL,
            exposure REAL,
            product REAL,
            ticks INTEGER,
            gap_ticks INTEGER,
            off_ticks INTEGER,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_response_queries_status ON response_queries(status);`,
		`CREATE INDEX IF NOT EXISTS idx_response_results_query_id ON response_results(query_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// QueryRecord captures persisted query info.
type QueryRecord struct {
	ID          string
	Method      string
	Status      string
	Band        string
	RA          float64
	Dec         float64
	Aperture    float64
	RangesJSON  string
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// RecordQueryQueued inserts a pending query.
func (s *Store) RecordQueryQueued(id, method string, req response.Request) error {
	if s == nil {
		return nil
	}
	rangesJSON, _ := json.Marshal(req.Ranges)
	_, err := s.DB.Exec(`INSERT OR REPLACE INTO response_queries (id, method, status, band, ra, dec, aperture, ranges_json) VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
		id, method, "queued", string(req.Band), req.RA, req.Dec, req.Aperture, string(rangesJSON))
	return err
}

// RecordQueryStart marks a query as running.
func (s *Store) RecordQueryStart(id string) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE response_queries SET status='running', started_at=CURRENT_TIMESTAMP WHERE id=?;`, id)
	return err
}

// RecordQueryResult finalizes a query with its computed result or error.
func (s *Store) RecordQueryResult(id string, res response.Result, resErr error) error {
	if s == nil {
		return nil
	}
	status := "completed"
	errMsg := ""
	if resErr != nil {
		status = "failed"
		errMsg = resErr.Error()
	}
	_, err := s.DB.Exec(`UPDATE response_queries SET status=?, completed_at=CURRENT_TIMESTAMP, error_message=? WHERE id=?;`, status, errMsg, id)
	if err != nil {
		return err
	}
	if resErr != nil {
		return nil
	}
	_, err = s.DB.Exec(`INSERT INTO response_results (query_id, response, exposure, product, ticks, gap_ticks, off_ticks) VALUES (?, ?, ?, ?, ?, ?, ?);`,
		id, res.Response, res.Exposure, res.Product, res.Ticks, res.GapTicks, res.OffTicks)
	return err
}

// RecentQueries returns the latest queries up to limit.
func (s *Store) RecentQueries(limit int) ([]QueryRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT id, method, status, band, ra, dec, aperture, ranges_json, created_at, started_at, completed_at, error_message FROM response_queries ORDER BY created_at DESC, id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []QueryRecord
	for rows.Next() {
		var rec QueryRecord
		var created time.Time
		var started, completed sql.NullTime
		var rangesJSON, errorMsg sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Method, &rec.Status, &rec.Band, &rec.RA, &rec.Dec, &rec.Aperture, &rangesJSON, &created, &started, &completed, &errorMsg); err != nil {
			return nil, err
		}
		rec.CreatedAt = created
		if rangesJSON.Valid {
			rec.RangesJSON = rangesJSON.String
		}
		if started.Valid {
			rec.StartedAt = &started.Time
		}
		if completed.Valid {
			rec.CompletedAt = &completed.Time
		}
		if errorMsg.Valid {
			rec.Error = errorMsg.String
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// QueryResult fetches the stored result for a completed query.
func (s *Store) QueryResult(id string) (response.Result, error) {
	if s == nil {
		return response.Result{}, errors.New("store not initialized")
	}
	var res response.Result
	err := s.DB.QueryRow(`SELECT response, exposure, product, ticks, gap_ticks, off_ticks FROM response_results WHERE query_id=? ORDER BY created_at DESC LIMIT 1;`, id).
		Scan(&res.Response, &res.Exposure, &res.Product, &res.Ticks, &res.GapTicks, &res.OffTicks)
	if err != nil {
		return response.Result{}, fmt.Errorf("no result for query %s: %w", id, err)
	}
	return res, nil
}
