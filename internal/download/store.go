package download

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"seedkeeper/internal/config"
)

// Store manages acquisition and controller persistence backed by SQLite.
// All cross-component coordination flows through it: the loops never share
// in-process state beyond the lifecycle monitor's disposable observation
// map, so a restart resumes from the database alone.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.LogDir(), "seedkeeper.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// NewAcquisitionParams carries the fields required to queue an acquisition.
type NewAcquisitionParams struct {
	Title           string
	Author          string
	Narrator        string
	ReleaseType     ReleaseType
	QualityScore    float64
	ClientHandle    string
	SourceURL       string
	DownloadDir     string
	ExpectedFiles   int
	ExpectedBytes   int64
	ExpectedSeconds float64
}

// NewAcquisition inserts a queued acquisition and returns the stored row.
func (s *Store) NewAcquisition(ctx context.Context, params NewAcquisitionParams) (*Acquisition, error) {
	if params.Title == "" {
		return nil, errors.New("acquisition title is required")
	}
	if params.ReleaseType == "" {
		params.ReleaseType = ReleaseStandardPaid
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO acquisitions (
            uuid, title, author, narrator, release_type, quality_score, status,
            client_handle, source_url, download_dir, integrity_status,
            expected_files, expected_bytes, expected_seconds,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		params.Title,
		nullableString(params.Author),
		nullableString(params.Narrator),
		params.ReleaseType,
		params.QualityScore,
		StatusQueued,
		nullableString(params.ClientHandle),
		nullableString(params.SourceURL),
		nullableString(params.DownloadDir),
		IntegrityPending,
		params.ExpectedFiles,
		params.ExpectedBytes,
		params.ExpectedSeconds,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert acquisition: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches an acquisition by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Acquisition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+acquisitionColumns+` FROM acquisitions WHERE id = ?`, id)
	item, err := scanAcquisition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get acquisition: %w", err)
	}
	return item, nil
}

// GetByClientHandle returns the acquisition bound to a transfer-client item.
func (s *Store) GetByClientHandle(ctx context.Context, handle string) (*Acquisition, error) {
	if handle == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+acquisitionColumns+` FROM acquisitions WHERE client_handle = ? ORDER BY id LIMIT 1`,
		handle,
	)
	item, err := scanAcquisition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get by client handle: %w", err)
	}
	return item, nil
}

// FindAcceptedByWork returns the newest non-terminal acquisition for a work,
// used by the rules engine to detect duplicates and replacement targets.
func (s *Store) FindAcceptedByWork(ctx context.Context, title, author string) (*Acquisition, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+acquisitionColumns+` FROM acquisitions
         WHERE title = ? AND COALESCE(author, '') = ?
           AND status NOT IN (?, ?, ?)
         ORDER BY id DESC LIMIT 1`,
		title,
		author,
		StatusSuperseded,
		StatusAbandoned,
		StatusFailed,
	)
	item, err := scanAcquisition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by work: %w", err)
	}
	return item, nil
}

// Update persists changes to an existing acquisition.
func (s *Store) Update(ctx context.Context, item *Acquisition) error {
	if item == nil {
		return errors.New("acquisition is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE acquisitions
         SET title = ?, author = ?, narrator = ?, release_type = ?, quality_score = ?,
             status = ?, client_handle = ?, source_url = ?, download_dir = ?, retry_count = ?,
             integrity_status = ?, blocked = ?, superseded_by = ?,
             expected_files = ?, expected_bytes = ?, expected_seconds = ?,
             error_message = ?, updated_at = ?
         WHERE id = ?`,
		item.Title,
		nullableString(item.Author),
		nullableString(item.Narrator),
		item.ReleaseType,
		item.QualityScore,
		item.Status,
		nullableString(item.ClientHandle),
		nullableString(item.SourceURL),
		nullableString(item.DownloadDir),
		item.RetryCount,
		item.IntegrityStatus,
		boolToInt(item.Blocked),
		nullableInt64(item.SupersededBy),
		item.ExpectedFiles,
		item.ExpectedBytes,
		item.ExpectedSeconds,
		nullableString(item.ErrorMessage),
		item.UpdatedAt.Format(time.RFC3339Nano),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update acquisition: %w", err)
	}
	return nil
}

// TransitionStatus moves an acquisition from one status to another as a
// single conditional write. It returns false when the row was not in the
// expected source status, which is how replayed completion events become
// no-ops.
func (s *Store) TransitionStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE acquisitions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		from,
	)
	if err != nil {
		return false, fmt.Errorf("transition status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// List returns acquisitions filtered by status set (or all when no status is
// provided), oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Acquisition, error) {
	baseQuery := `SELECT ` + acquisitionColumns + ` FROM acquisitions`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list acquisitions: %w", err)
	}
	defer rows.Close()

	var items []*Acquisition
	for rows.Next() {
		item, err := scanAcquisition(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Stats returns a count of acquisitions grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM acquisitions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("acquisition stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates acquisition state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusQueued:
			health.Queued += count
		case StatusBlocked:
			health.Blocked += count
		case StatusDownloading:
			health.Downloading += count
		case StatusCorrupt:
			health.Corrupt += count
		case StatusSettled:
			health.Settled += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}
