// Package archive persists forwarded final transcripts to SQLite so a
// meeting's history survives worker restarts. Interim updates and
// suppressed events are never stored.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/scribelabs/scribe-core/internal/config"
	"github.com/scribelabs/scribe-core/internal/transcript"
)

// Entry is one stored transcript line.
type Entry struct {
	ID         int64
	MeetingID  string
	UserID     string
	Locale     string
	Text       string
	Confidence *float64
	Start      float64
	End        float64
	CreatedAt  time.Time
}

// Store wraps the SQLite-backed transcript archive. With Ephemeral set in
// config every method is a no-op, so callers never branch on persistence.
type Store struct {
	db    *sql.DB
	cfg   config.ArchiveConfig
	log   zerolog.Logger
	clock func() time.Time
}

// Open initializes the archive according to config.
func Open(ctx context.Context, cfg config.ArchiveConfig, log zerolog.Logger) (*Store, error) {
	log = log.With().Str("component", "archive").Logger()

	if cfg.Ephemeral {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn().Err(err).Msg("archive prune on start failed")
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS meetings (
    meeting_id TEXT PRIMARY KEY,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS transcripts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    meeting_id TEXT NOT NULL,
    user_id TEXT,
    locale TEXT,
    transcript TEXT,
    confidence REAL,
    started_at REAL,
    ended_at REAL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(meeting_id) REFERENCES meetings(meeting_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_transcripts_meeting_created ON transcripts(meeting_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartMeeting ensures a meeting row exists.
func (s *Store) StartMeeting(ctx context.Context, meetingID string) error {
	if s.cfg.Ephemeral || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meetings(meeting_id, created_at) VALUES(?, ?)
		 ON CONFLICT(meeting_id) DO NOTHING`,
		meetingID, s.clock().UTC())
	return err
}

// AppendTranscript stores one forwarded final event for a meeting. The event
// must already be normalized to seconds.
func (s *Store) AppendTranscript(ctx context.Context, meetingID, locale string, ev transcript.Event) error {
	if s.cfg.Ephemeral || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts(meeting_id, user_id, locale, transcript, confidence, started_at, ended_at, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		meetingID, ev.UserID, locale, ev.Text, ev.Confidence, ev.Start, ev.End, s.clock().UTC())
	return err
}

// ListMeetingTranscripts retrieves up to limit lines for a meeting ordered
// ascending by insertion time.
func (s *Store) ListMeetingTranscripts(ctx context.Context, meetingID string, limit int) ([]Entry, error) {
	if s.cfg.Ephemeral || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, meeting_id, user_id, locale, transcript, confidence, started_at, ended_at, created_at
		 FROM transcripts WHERE meeting_id = ? ORDER BY id ASC LIMIT ?`, meetingID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var conf sql.NullFloat64
		var created string
		if err := rows.Scan(&e.ID, &e.MeetingID, &e.UserID, &e.Locale, &e.Text, &conf, &e.Start, &e.End, &created); err != nil {
			return nil, err
		}
		if conf.Valid {
			v := conf.Float64
			e.Confidence = &v
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune applies the configured retention. Called on startup; safe to call
// again from a scheduler.
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.Ephemeral || s.db == nil {
		return nil
	}
	if s.cfg.RetentionDays <= 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UTC()
	if _, err = tx.ExecContext(ctx, `DELETE FROM transcripts WHERE created_at < ?`, cutoff); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM meetings WHERE created_at < ?`, cutoff); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}
