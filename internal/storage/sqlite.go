package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/pagestash/internal/models"
)

const (
	keySettings  = "settings"
	keyServers   = "chromaServers"
	keySelection = "selection:"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

// connParams are applied by the driver to every pooled connection.
var connParams = url.Values{
	"_journal_mode": {"WAL"},
	"_synchronous":  {"NORMAL"},
	"_busy_timeout": {"5000"},
}

// dsn appends connParams to dbPath.
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + connParams.Encode()
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS captured_pages (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		title TEXT,
		type TEXT,
		captured_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_captured_pages_captured_at ON captured_pages(captured_at);
	`
	_, err := db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *SQLiteStorage) getJSON(ctx context.Context, key string, dst interface{}) error {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

func putJSON(ctx context.Context, db execer, key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(b), time.Now().UTC(),
	)
	return err
}

// GetSettings returns the stored settings or ErrNotFound.
func (s *SQLiteStorage) GetSettings(ctx context.Context) (*models.Settings, error) {
	var settings models.Settings
	if err := s.getJSON(ctx, keySettings, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// SaveSettings replaces the stored settings.
func (s *SQLiteStorage) SaveSettings(ctx context.Context, settings *models.Settings) error {
	return putJSON(ctx, s.db, keySettings, settings)
}

// GetServers returns the stored server list or ErrNotFound.
func (s *SQLiteStorage) GetServers(ctx context.Context) ([]models.Server, error) {
	var servers []models.Server
	if err := s.getJSON(ctx, keyServers, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

// SaveServers replaces the stored server list.
func (s *SQLiteStorage) SaveServers(ctx context.Context, servers []models.Server) error {
	if servers == nil {
		servers = []models.Server{}
	}
	return putJSON(ctx, s.db, keyServers, servers)
}

// GetSelection returns the selected collection names of kind; nothing stored
// reads as an empty selection.
func (s *SQLiteStorage) GetSelection(ctx context.Context, kind models.SelectionKind) ([]string, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown selection %q", models.ErrInvalidInput, kind)
	}
	var names []string
	err := s.getJSON(ctx, keySelection+string(kind), &names)
	if errors.Is(err, ErrNotFound) {
		return []string{}, nil
	}
	return names, err
}

// SaveSelection replaces the selected collection names of kind.
func (s *SQLiteStorage) SaveSelection(ctx context.Context, kind models.SelectionKind, names []string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown selection %q", models.ErrInvalidInput, kind)
	}
	if names == nil {
		names = []string{}
	}
	return putJSON(ctx, s.db, keySelection+string(kind), names)
}

func savePage(ctx context.Context, db execer, page *models.CapturedPageRecord) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO captured_pages (id, url, title, type, captured_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET url = excluded.url, title = excluded.title,
		 type = excluded.type, captured_at = excluded.captured_at`,
		page.ID, page.URL, page.Title, page.Type, page.Timestamp.UnixMilli(),
	)
	return err
}

// SavePage inserts page, replacing any record with the same id.
func (s *SQLiteStorage) SavePage(ctx context.Context, page *models.CapturedPageRecord) error {
	if page.ID == "" {
		return fmt.Errorf("%w: page id is empty", models.ErrInvalidInput)
	}
	return savePage(ctx, s.db, page)
}

// ListPages returns page records newest first. A limit of zero or less means no limit.
func (s *SQLiteStorage) ListPages(ctx context.Context, offset, limit int) ([]*models.CapturedPageRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, title, type, captured_at
		 FROM captured_pages ORDER BY captured_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pages := []*models.CapturedPageRecord{}
	for rows.Next() {
		var (
			page  models.CapturedPageRecord
			title sql.NullString
			typ   sql.NullString
			ms    int64
		)
		if err := rows.Scan(&page.ID, &page.URL, &title, &typ, &ms); err != nil {
			return nil, err
		}
		page.Title = title.String
		page.Type = typ.String
		page.Timestamp = time.UnixMilli(ms).UTC()
		pages = append(pages, &page)
	}
	return pages, rows.Err()
}

// DeletePage removes the record with id, or returns ErrNotFound.
func (s *SQLiteStorage) DeletePage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM captured_pages WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("page %s: %w", id, ErrNotFound)
	}
	return nil
}

// ClearPages removes every record and returns how many there were.
func (s *SQLiteStorage) ClearPages(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM captured_pages`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// PrunePages removes records captured at or before the cutoff.
func (s *SQLiteStorage) PrunePages(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM captured_pages WHERE captured_at <= ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountPages returns the number of page records.
func (s *SQLiteStorage) CountPages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM captured_pages`).Scan(&n)
	return n, err
}

// Export returns a snapshot of the whole store.
func (s *SQLiteStorage) Export(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Selections: make(map[models.SelectionKind][]string),
		ExportedAt: time.Now().UTC(),
	}
	settings, err := s.GetSettings(ctx)
	switch {
	case err == nil:
		snap.Settings = settings
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	servers, err := s.GetServers(ctx)
	switch {
	case err == nil:
		snap.Servers = servers
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	for _, kind := range []models.SelectionKind{models.SelectionCapture, models.SelectionSearch} {
		names, err := s.GetSelection(ctx, kind)
		if err != nil {
			return nil, err
		}
		snap.Selections[kind] = names
	}
	pages, err := s.ListPages(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	snap.Pages = pages
	return snap, nil
}

// Import replaces the whole store with snap in one transaction.
func (s *SQLiteStorage) Import(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: empty snapshot", models.ErrInvalidInput)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM kv`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM captured_pages`); err != nil {
		return err
	}
	if snap.Settings != nil {
		if err := putJSON(ctx, tx, keySettings, snap.Settings); err != nil {
			return err
		}
	}
	if snap.Servers != nil {
		if err := putJSON(ctx, tx, keyServers, snap.Servers); err != nil {
			return err
		}
	}
	for kind, names := range snap.Selections {
		if !kind.Valid() {
			return fmt.Errorf("%w: unknown selection %q", models.ErrInvalidInput, kind)
		}
		if err := putJSON(ctx, tx, keySelection+string(kind), names); err != nil {
			return err
		}
	}
	for _, page := range snap.Pages {
		if page == nil || page.ID == "" {
			continue
		}
		if err := savePage(ctx, tx, page); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Info reports stored keys, the page count and the on-disk size.
func (s *SQLiteStorage) Info(ctx context.Context) (*Info, error) {
	info := &Info{Path: s.path, Keys: []string{}}
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		info.Keys = append(info.Keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if info.Pages, err = s.CountPages(ctx); err != nil {
		return nil, err
	}
	size, err := DiskUsageBytes(DatabaseFiles(s.path)...)
	if err != nil {
		return nil, err
	}
	info.SizeBytes = size
	info.Size = humanize.Bytes(uint64(size))
	return info, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
