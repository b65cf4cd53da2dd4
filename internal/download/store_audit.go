package download

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendAudit writes one structured audit record. Details are serialized to
// JSON so the trace survives schema-free.
func (s *Store) AppendAudit(ctx context.Context, task string, details map[string]any) (*AuditRecord, error) {
	if task == "" {
		return nil, fmt.Errorf("audit task is required")
	}
	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal audit details: %w", err)
	}
	record := AuditRecord{
		UUID:      uuid.NewString(),
		Task:      task,
		Details:   string(payload),
		CreatedAt: time.Now().UTC(),
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO audit_log (uuid, task, details, created_at) VALUES (?, ?, ?, ?)`,
		record.UUID,
		record.Task,
		record.Details,
		record.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("append audit record: %w", err)
	}
	record.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &record, nil
}

// ListAudit returns the most recent audit records, newest first, optionally
// filtered by task.
func (s *Store) ListAudit(ctx context.Context, task string, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, uuid, task, details, created_at FROM audit_log`
	args := []any{}
	if task != "" {
		query += ` WHERE task = ?`
		args = append(args, task)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []AuditRecord
	for rows.Next() {
		var (
			record     AuditRecord
			createdRaw string
		)
		if err := rows.Scan(&record.ID, &record.UUID, &record.Task, &record.Details, &createdRaw); err != nil {
			return nil, err
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			record.CreatedAt = created
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// AuditCountSince returns how many records for a task were written at or
// after the cutoff.
func (s *Store) AuditCountSince(ctx context.Context, task string, cutoff time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM audit_log WHERE task = ? AND created_at >= ?`,
		task,
		cutoff.UTC().Format(time.RFC3339Nano),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return count, nil
}
