package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/i474232898/climate-stripes-data/internal/climate"
)

// SQLiteStore implements climate.Store on a SQLite file (pure Go driver
// modernc.org/sqlite), so run history survives restarts.
type SQLiteStore struct {
	db         *sql.DB
	maxHistory int
	maxAge     time.Duration
	now        func() time.Time
}

const schema = `CREATE TABLE IF NOT EXISTS snapshots (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	location_key  TEXT    NOT NULL,
	location_name TEXT    NOT NULL,
	run_id        TEXT    NOT NULL,
	generated_at  INTEGER NOT NULL,
	data_source   TEXT    NOT NULL,
	series        TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_location_time ON snapshots(location_key, generated_at);`

// NewSQLite opens (or creates) the database at path and applies the schema.
// maxHistory <= 0 and maxAge <= 0 disable the respective retention rule.
func NewSQLite(path string, maxHistory int, maxAge time.Duration, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		logger.Warn().Err(err).Msg("could not set WAL mode")
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db, maxHistory: maxHistory, maxAge: maxAge, now: time.Now}, nil
}

// SaveSnapshot inserts snap and applies retention; the newest snapshot of a
// location is always kept.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, loc climate.Location, snap climate.Snapshot) error {
	payload, err := json.Marshal(snap.Series)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots(location_key, location_name, run_id, generated_at, data_source, series) VALUES(?,?,?,?,?,?)`,
		loc.Key(), loc.Name, snap.RunID, snap.GeneratedAt.UTC().UnixNano(), string(snap.Series.DataSource), string(payload))
	if err != nil {
		return err
	}

	if s.maxHistory > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM snapshots WHERE location_key = ? AND id NOT IN (
				SELECT id FROM snapshots WHERE location_key = ? ORDER BY generated_at DESC, id DESC LIMIT ?
			)`, loc.Key(), loc.Key(), s.maxHistory)
		if err != nil {
			return err
		}
	}

	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge).UTC().UnixNano()
		_, err = tx.ExecContext(ctx,
			`DELETE FROM snapshots WHERE location_key = ? AND generated_at < ? AND id <> (
				SELECT id FROM snapshots WHERE location_key = ? ORDER BY generated_at DESC, id DESC LIMIT 1
			)`, loc.Key(), cutoff, loc.Key())
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetLatest returns the most recent snapshot for a location.
func (s *SQLiteStore) GetLatest(ctx context.Context, loc climate.Location) (climate.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, generated_at, series FROM snapshots WHERE location_key = ? ORDER BY generated_at DESC, id DESC LIMIT 1`,
		loc.Key())

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return climate.Snapshot{}, ErrNotFound
	}
	return snap, err
}

// GetRange returns the snapshots generated between from and to (inclusive), oldest first.
func (s *SQLiteStore) GetRange(ctx context.Context, loc climate.Location, from, to time.Time) ([]climate.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, generated_at, series FROM snapshots
		 WHERE location_key = ? AND generated_at >= ? AND generated_at <= ?
		 ORDER BY generated_at, id`,
		loc.Key(), from.UTC().UnixNano(), to.UTC().UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []climate.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (climate.Snapshot, error) {
	var (
		snap    climate.Snapshot
		nanos   int64
		payload string
	)
	if err := row.Scan(&snap.RunID, &nanos, &payload); err != nil {
		return climate.Snapshot{}, err
	}
	snap.GeneratedAt = time.Unix(0, nanos).UTC()
	if err := json.Unmarshal([]byte(payload), &snap.Series); err != nil {
		return climate.Snapshot{}, fmt.Errorf("decode series: %w", err)
	}
	return snap, nil
}
