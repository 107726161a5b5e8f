// Package store persists board sessions in SQLite so counting resumes across restarts.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/nvr-ai/galton-goalie/controller"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// ErrNoSession is returned when no session has been recorded yet.
var ErrNoSession = errors.New("no session")

// Store handles SQLite operations for sessions, counts and the detection log.
type Store struct {
	db *sql.DB
}

// Session is one counting run of the board.
type Session struct {
	ID        string    `json:"id"`
	Buckets   int       `json:"buckets"`
	StartedAt time.Time `json:"started_at"`
}

// DetectionRecord is one logged detection.
type DetectionRecord struct {
	SessionID string    `json:"session_id"`
	Bucket    int       `json:"bucket"`
	Count     uint64    `json:"count"`
	Frame     uint64    `json:"frame"`
	Timestamp time.Time `json:"timestamp"`
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	// SQLite serialises writers; a single connection avoids SQLITE_BUSY between them.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable WAL mode")
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable foreign keys")
	}

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			buckets INTEGER NOT NULL,
			started_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bucket_counts (
			session_id TEXT NOT NULL,
			bucket INTEGER NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (session_id, bucket),
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS detections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			bucket INTEGER NOT NULL,
			count INTEGER NOT NULL,
			frame INTEGER NOT NULL,
			timestamp INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_session_time ON detections(session_id, timestamp DESC)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return errors.Wrap(err, "migration failed")
		}
	}
	return nil
}

// StartSession creates a new session with all counts at zero.
func (s *Store) StartSession(ctx context.Context, buckets int) (Session, error) {
	session := Session{
		ID:        uuid.NewString(),
		Buckets:   buckets,
		StartedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, errors.Wrap(err, "begin session")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO sessions (id, buckets, started_at) VALUES (?, ?, ?)`,
		session.ID, session.Buckets, session.StartedAt.UnixMilli()); err != nil {
		return Session{}, errors.Wrap(err, "insert session")
	}
	for i := 0; i < buckets; i++ {
		if _, err := tx.ExecContext(ctx, `INSERT INTO bucket_counts (session_id, bucket, count) VALUES (?, ?, 0)`,
			session.ID, i); err != nil {
			return Session{}, errors.Wrap(err, "insert bucket count")
		}
	}
	if err := tx.Commit(); err != nil {
		return Session{}, errors.Wrap(err, "commit session")
	}
	return session, nil
}

// LatestSession returns the most recently started session.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	var (
		session Session
		started int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, buckets, started_at FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT 1`).
		Scan(&session.ID, &session.Buckets, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, errors.Wrap(err, "query latest session")
	}
	session.StartedAt = time.UnixMilli(started).UTC()
	return session, nil
}

// Resume returns the latest session and its counts when it has the given bucket count;
// otherwise it starts a new session.
func (s *Store) Resume(ctx context.Context, buckets int) (Session, []uint64, error) {
	session, err := s.LatestSession(ctx)
	switch {
	case errors.Is(err, ErrNoSession):
	case err != nil:
		return Session{}, nil, err
	case session.Buckets == buckets:
		counts, err := s.Counts(ctx, session.ID)
		if err != nil {
			return Session{}, nil, err
		}
		return session, counts, nil
	}

	session, err = s.StartSession(ctx, buckets)
	if err != nil {
		return Session{}, nil, err
	}
	return session, make([]uint64, buckets), nil
}

// Counts returns the per-bucket counts of a session.
func (s *Store) Counts(ctx context.Context, sessionID string) ([]uint64, error) {
	var buckets int
	err := s.db.QueryRowContext(ctx, `SELECT buckets FROM sessions WHERE id = ?`, sessionID).Scan(&buckets)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNoSession, "session %s", sessionID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "query session")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT bucket, count FROM bucket_counts WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "query counts")
	}
	defer rows.Close()

	counts := make([]uint64, buckets)
	for rows.Next() {
		var (
			bucket int
			count  int64
		)
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, errors.Wrap(err, "scan count")
		}
		if bucket >= 0 && bucket < buckets {
			counts[bucket] = uint64(count)
		}
	}
	return counts, errors.Wrap(rows.Err(), "iterate counts")
}

// RecordDetection appends event to the detection log and stores the bucket's new count.
func (s *Store) RecordDetection(ctx context.Context, sessionID string, event controller.DetectionEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin detection")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO detections (session_id, bucket, count, frame, timestamp) VALUES (?, ?, ?, ?, ?)`,
		sessionID, event.Bucket, int64(event.Count), int64(event.Frame), event.Timestamp.UnixMilli()); err != nil {
		return errors.Wrap(err, "insert detection")
	}
	if _, err := tx.ExecContext(ctx, upsertCount, sessionID, event.Bucket, int64(event.Count)); err != nil {
		return errors.Wrap(err, "update count")
	}
	return errors.Wrap(tx.Commit(), "commit detection")
}

const upsertCount = `INSERT INTO bucket_counts (session_id, bucket, count) VALUES (?, ?, ?)
	ON CONFLICT(session_id, bucket) DO UPDATE SET count = excluded.count`

// SaveCounts overwrites every bucket count of a session.
func (s *Store) SaveCounts(ctx context.Context, sessionID string, counts []uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin counts")
	}
	defer tx.Rollback()

	for i, c := range counts {
		if _, err := tx.ExecContext(ctx, upsertCount, sessionID, i, int64(c)); err != nil {
			return errors.Wrapf(err, "save count of bucket %d", i)
		}
	}
	return errors.Wrap(tx.Commit(), "commit counts")
}

// ResetCounts zeroes a session's counts. The detection log is kept.
func (s *Store) ResetCounts(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE bucket_counts SET count = 0 WHERE session_id = ?`, sessionID)
	return errors.Wrap(err, "reset counts")
}

// Detections returns up to limit of a session's most recent detections, newest first.
func (s *Store) Detections(ctx context.Context, sessionID string, limit int) ([]DetectionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT bucket, count, frame, timestamp FROM detections
		WHERE session_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query detections")
	}
	defer rows.Close()

	var out []DetectionRecord
	for rows.Next() {
		var (
			rec         DetectionRecord
			count, fr   int64
			timestampMs int64
		)
		if err := rows.Scan(&rec.Bucket, &count, &fr, &timestampMs); err != nil {
			return nil, errors.Wrap(err, "scan detection")
		}
		rec.SessionID = sessionID
		rec.Count = uint64(count)
		rec.Frame = uint64(fr)
		rec.Timestamp = time.UnixMilli(timestampMs).UTC()
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate detections")
}
