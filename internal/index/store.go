package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-cache/internal/logging"
	"media-cache/internal/metrics"
)

// Default timeout for manifest operations
const defaultTimeout = 5 * time.Second

// Entry is one finished rendition tracked by the manifest.
type Entry struct {
	DedupKey   string
	SourcePath string
	Codec      string
	OutputPath string
	SizeBytes  int64
	CreatedAt  time.Time
}

// Store manages the manifest database. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open opens (creating if necessary) the manifest at dbPath. The parent
// directory must already exist and be writable.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	// busy_timeout prevents "database is locked" errors when workers
	// finalize concurrently.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close manifest after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("connect to manifest: %w", err)
	}

	// Finalize paths are short writes; a small pool is plenty.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}

	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close manifest after schema failure: %v", closeErr)
		}
		return nil, fmt.Errorf("initialize manifest schema: %w", err)
	}

	logging.Info("Cache manifest opened at %s", dbPath)
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		dedup_key TEXT PRIMARY KEY,
		source_path TEXT NOT NULL,
		codec TEXT NOT NULL,
		output_path TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_entries_codec ON entries(codec);
	CREATE INDEX IF NOT EXISTS idx_entries_source ON entries(source_path);
	`

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	s.refreshGauges(ctx)
	return nil
}

// Record inserts or replaces the manifest row for a finished rendition.
func (s *Store) Record(ctx context.Context, e Entry) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO entries (dedup_key, source_path, codec, output_path, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.DedupKey, e.SourcePath, e.Codec, e.OutputPath, e.SizeBytes, createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record manifest entry: %w", err)
	}

	s.refreshGauges(ctx)
	return nil
}

// Remove deletes the manifest row for a dedup key. Removing a key that
// was never recorded is not an error.
func (s *Store) Remove(ctx context.Context, dedupKey string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE dedup_key = ?`, dedupKey); err != nil {
		return fmt.Errorf("remove manifest entry: %w", err)
	}

	s.refreshGauges(ctx)
	return nil
}

// Entries returns every tracked rendition, oldest first.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT dedup_key, source_path, codec, output_path, size_bytes, created_at
		FROM entries ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list manifest entries: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Warn("failed to close manifest rows: %v", err)
		}
	}()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt int64
		if err := rows.Scan(&e.DedupKey, &e.SourcePath, &e.Codec, &e.OutputPath, &e.SizeBytes, &createdAt); err != nil {
			return nil, fmt.Errorf("scan manifest entry: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns the number of tracked renditions and their total size.
func (s *Store) Stats(ctx context.Context) (count int, totalBytes int64, err error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM entries`)
	if err := row.Scan(&count, &totalBytes); err != nil {
		return 0, 0, fmt.Errorf("manifest stats: %w", err)
	}
	return count, totalBytes, nil
}

// Clear deletes every manifest row and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM entries`)
	if err != nil {
		return 0, fmt.Errorf("clear manifest: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	s.refreshGauges(ctx)
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) refreshGauges(ctx context.Context) {
	count, totalBytes, err := s.Stats(ctx)
	if err != nil {
		logging.Debug("failed to refresh manifest gauges: %v", err)
		return
	}
	metrics.ManifestEntries.Set(float64(count))
	metrics.CacheSizeBytes.Set(float64(totalBytes))
}
