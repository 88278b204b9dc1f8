package library

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"lectern/internal/logging"
	"lectern/internal/services"
)

//go:embed schema.sql
var schemaSQL string

// Entry is one indexed paper.
type Entry struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	TranslatedTitle string    `json:"translated_title"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Metadata is the on-disk metadata.json of a paper.
type Metadata struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	TranslatedTitle string `json:"translated_title"`
}

// Store reads and writes the output tree and its index.
type Store struct {
	root   string
	db     *sql.DB
	logger *slog.Logger
}

// Open prepares outputDir and opens (or creates) the index at dbPath.
func Open(outputDir, dbPath string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure output dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure index dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	db.SetMaxOpenConns(1)
	ctx := context.Background()
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create index schema: %w", err)
	}
	return &Store{root: outputDir, db: db, logger: logging.NewComponentLogger(logger, "library")}, nil
}

// Close releases the index handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Root returns the output directory.
func (s *Store) Root() string { return s.root }

// Paths resolves artifact locations for id.
func (s *Store) Paths(id string) Paths { return PathsFor(s.root, id) }

// ListIndex returns indexed papers ordered by id.
func (s *Store) ListIndex(ctx context.Context) ([]Entry, error) {
	query, args, err := sq.Select("id", "title", "translated_title", "updated_at").
		From("papers").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build index query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Get returns the index entry for id or services.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	query, args, err := sq.Select("id", "title", "translated_title", "updated_at").
		From("papers").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return Entry{}, fmt.Errorf("build entry query: %w", err)
	}
	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, services.Wrap(services.ErrNotFound, "library", "get", fmt.Sprintf("paper %q is not indexed", id), nil)
	}
	return entry, err
}

// Known reports whether id is in the index.
func (s *Store) Known(ctx context.Context, id string) (bool, error) {
	_, err := s.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, services.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Register upserts an index entry.
func (s *Store) Register(ctx context.Context, meta Metadata) error {
	if !ValidID(meta.ID) {
		return services.Wrap(services.ErrValidation, "library", "register", fmt.Sprintf("invalid paper id %q", meta.ID), nil)
	}
	query, args, err := sq.Insert("papers").
		Columns("id", "title", "translated_title", "updated_at").
		Values(meta.ID, meta.Title, meta.TranslatedTitle, time.Now().UTC().Format(time.RFC3339Nano)).
		Suffix("ON CONFLICT(id) DO UPDATE SET title = excluded.title, translated_title = excluded.translated_title, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build register query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("register %s: %w", meta.ID, err)
	}
	return nil
}

// RefreshIndex registers every paper directory carrying a metadata.json.
// Directories with unreadable metadata are skipped and logged.
func (s *Store) RefreshIndex(ctx context.Context) error {
	dirs, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("read output dir: %w", err)
	}
	registered := 0
	for _, dir := range dirs {
		if !dir.IsDir() || !ValidID(dir.Name()) {
			continue
		}
		meta, err := s.LoadMetadata(dir.Name())
		if err != nil {
			if !errors.Is(err, services.ErrNotFound) {
				logging.WarnWithContext(s.logger, "skipping paper with unreadable metadata", "library_metadata_invalid",
					logging.String(logging.FieldJobID, dir.Name()),
					logging.Error(err),
					logging.String(logging.FieldImpact, "paper missing from the index until metadata is fixed"),
				)
			}
			continue
		}
		if err := s.Register(ctx, meta); err != nil {
			return err
		}
		registered++
	}
	s.logger.Debug("library index refreshed", logging.Int("papers", registered))
	return nil
}

// Delete removes the paper directory and its index row.
func (s *Store) Delete(ctx context.Context, id string) error {
	if !ValidID(id) {
		return services.Wrap(services.ErrValidation, "library", "delete", fmt.Sprintf("invalid paper id %q", id), nil)
	}
	known, err := s.Known(ctx, id)
	if err != nil {
		return err
	}
	dir := s.Paths(id).Dir
	_, statErr := os.Stat(dir)
	if !known && errors.Is(statErr, os.ErrNotExist) {
		return services.Wrap(services.ErrNotFound, "library", "delete", fmt.Sprintf("paper %q does not exist", id), nil)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove %s: %w", dir, err)
	}
	query, args, err := sq.Delete("papers").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	s.logger.Info("paper deleted", logging.String(logging.FieldJobID, id))
	return nil
}

// Deduplicate drops index rows whose paper directory no longer exists and
// returns the removed ids.
func (s *Store) Deduplicate(ctx context.Context) ([]string, error) {
	entries, err := s.ListIndex(ctx)
	if err != nil {
		return nil, err
	}
	var stale []string
	for _, entry := range entries {
		if _, err := os.Stat(s.Paths(entry.ID).Dir); errors.Is(err, os.ErrNotExist) {
			stale = append(stale, entry.ID)
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}
	query, args, err := sq.Delete("papers").Where(sq.Eq{"id": stale}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build dedupe query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("dedupe index: %w", err)
	}
	sort.Strings(stale)
	s.logger.Info("stale index entries removed", logging.Strings("papers", stale))
	return stale, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		entry   Entry
		updated string
	)
	if err := row.Scan(&entry.ID, &entry.Title, &entry.TranslatedTitle, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan index row: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		entry.UpdatedAt = ts
	}
	return entry, nil
}

func decodeMetadata(id string, data []byte) (Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, services.Wrap(services.ErrMalformed, "library", "metadata", fmt.Sprintf("metadata for %q is not valid JSON", id), err)
	}
	if strings.TrimSpace(meta.ID) == "" {
		meta.ID = id
	}
	if meta.ID != id {
		return Metadata{}, services.Wrap(services.ErrMalformed, "library", "metadata", fmt.Sprintf("metadata id %q does not match directory %q", meta.ID, id), nil)
	}
	return meta, nil
}
