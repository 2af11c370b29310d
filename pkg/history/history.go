// Package history persists scan verdicts to SQLite so the stats endpoint
// and retention jobs have something to work from. Writes are fire-and-forget
// from the caller's point of view; a storage failure never affects a verdict.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/phishguard/phishguard/pkg/threat"
	"github.com/phishguard/phishguard/pkg/urlnorm"
)

const schema = `
CREATE TABLE IF NOT EXISTS scan_history (
	id          TEXT PRIMARY KEY,
	url         TEXT NOT NULL,
	domain      TEXT NOT NULL,
	malicious   INTEGER NOT NULL,
	threat_level TEXT NOT NULL,
	confidence  REAL NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT '',
	blocked     INTEGER NOT NULL,
	scanned_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scan_history_scanned_at ON scan_history(scanned_at);
CREATE INDEX IF NOT EXISTS idx_scan_history_domain ON scan_history(domain);
`

// Record is one persisted verdict.
type Record struct {
	ID         string       `json:"id"`
	URL        string       `json:"url"`
	Domain     string       `json:"domain"`
	Malicious  bool         `json:"malicious"`
	Level      threat.Level `json:"threat_level"`
	Confidence float64      `json:"confidence"`
	Reason     string       `json:"reason"`
	Source     string       `json:"source"`
	Blocked    bool         `json:"blocked"`
	ScannedAt  time.Time    `json:"scanned_at"`
}

// Filter narrows Count queries. Nil pointer fields are not applied.
type Filter struct {
	Malicious *bool
	Blocked   *bool
	Source    string
	Since     time.Time
}

// Summary is the aggregate view served by the stats endpoint.
type Summary struct {
	Total     int64            `json:"total"`
	Malicious int64            `json:"malicious"`
	Blocked   int64            `json:"blocked"`
	ByLevel   map[string]int64 `json:"by_level"`
}

// Store wraps the history table. Safe for concurrent use; SQLite handles
// serialization at the connection level.
type Store struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// Open opens (or creates) the history database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)
	return NewStore(db)
}

// NewStore applies the schema to an existing handle.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add persists one scan result.
func (s *Store) Add(ctx context.Context, res threat.ScanResult) error {
	ts := res.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	q := s.sb.Insert("scan_history").
		Columns("id", "url", "domain", "malicious", "threat_level",
			"confidence", "reason", "source", "blocked", "scanned_at").
		Values(res.ID, res.URL, urlnorm.Host(res.URL), boolToInt(res.Malicious),
			res.Level.String(), res.Confidence, res.Reason, res.Source,
			boolToInt(res.Blocked), ts.Unix())

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert scan record: %w", err)
	}
	return nil
}

// Publish satisfies the verdict publisher interface used by the interceptor;
// a failed write is logged and dropped, never surfaced to the scan path.
func (s *Store) Publish(res threat.ScanResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Add(ctx, res); err != nil {
		log.Printf("[history] persist verdict for %s: %v", res.URL, err)
	}
}

// Range returns records scanned in [from, to), newest first, capped at
// limit.
func (s *Store) Range(ctx context.Context, from, to time.Time, limit int) ([]Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	q := s.sb.Select("id", "url", "domain", "malicious", "threat_level",
		"confidence", "reason", "source", "blocked", "scanned_at").
		From("scan_history").
		Where(sq.GtOrEq{"scanned_at": from.Unix()}).
		Where(sq.Lt{"scanned_at": to.Unix()}).
		OrderBy("scanned_at DESC", "id DESC").
		Limit(uint64(limit))

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build range query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query scan history: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			r         Record
			malicious int
			blocked   int
			level     string
			scannedAt int64
		)
		if err := rows.Scan(&r.ID, &r.URL, &r.Domain, &malicious, &level,
			&r.Confidence, &r.Reason, &r.Source, &blocked, &scannedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		r.Malicious = malicious == 1
		r.Blocked = blocked == 1
		r.Level = threat.ParseLevel(level)
		r.ScannedAt = time.Unix(scannedAt, 0)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return out, nil
}

// Count returns how many records match the filter.
func (s *Store) Count(ctx context.Context, f Filter) (int64, error) {
	q := s.sb.Select("COUNT(*)").From("scan_history")
	if f.Malicious != nil {
		q = q.Where(sq.Eq{"malicious": boolToInt(*f.Malicious)})
	}
	if f.Blocked != nil {
		q = q.Where(sq.Eq{"blocked": boolToInt(*f.Blocked)})
	}
	if f.Source != "" {
		q = q.Where(sq.Eq{"source": f.Source})
	}
	if !f.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"scanned_at": f.Since.Unix()})
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count scan history: %w", err)
	}
	return n, nil
}

// Summarize aggregates the whole table for the stats endpoint.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	out := Summary{ByLevel: make(map[string]int64)}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(malicious), 0),
			COALESCE(SUM(blocked), 0)
		FROM scan_history
	`)
	if err := row.Scan(&out.Total, &out.Malicious, &out.Blocked); err != nil {
		return Summary{}, fmt.Errorf("summarize history: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT threat_level, COUNT(*)
		FROM scan_history
		GROUP BY threat_level
	`)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize by level: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var level string
		var n int64
		if err := rows.Scan(&level, &n); err != nil {
			return Summary{}, fmt.Errorf("scan level count: %w", err)
		}
		out.ByLevel[level] = n
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("iterate level counts: %w", err)
	}
	return out, nil
}

// PurgeOlderThan deletes records scanned before cutoff and returns how many
// were removed. Retention job entry point.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	q := s.sb.Delete("scan_history").Where(sq.Lt{"scanned_at": cutoff.Unix()})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build purge query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("purge scan history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected: %w", err)
	}
	return n, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
