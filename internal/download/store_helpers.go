package download

import (
	"database/sql"
	"errors"
	"time"
)

const acquisitionColumns = "id, uuid, title, author, narrator, release_type, quality_score, status, client_handle, source_url, download_dir, retry_count, integrity_status, blocked, superseded_by, expected_files, expected_bytes, expected_seconds, error_message, created_at, updated_at"

func scanAcquisition(scanner interface{ Scan(dest ...any) error }) (*Acquisition, error) {
	var (
		id              int64
		uid             string
		title           string
		author          sql.NullString
		narrator        sql.NullString
		releaseType     string
		qualityScore    float64
		statusStr       string
		clientHandle    sql.NullString
		sourceURL       sql.NullString
		downloadDir     sql.NullString
		retryCount      int
		integrityStatus string
		blocked         sql.NullInt64
		supersededBy    sql.NullInt64
		expectedFiles   int
		expectedBytes   int64
		expectedSeconds float64
		errorMessage    sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&uid,
		&title,
		&author,
		&narrator,
		&releaseType,
		&qualityScore,
		&statusStr,
		&clientHandle,
		&sourceURL,
		&downloadDir,
		&retryCount,
		&integrityStatus,
		&blocked,
		&supersededBy,
		&expectedFiles,
		&expectedBytes,
		&expectedSeconds,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Acquisition{
		ID:              id,
		UUID:            uid,
		Title:           title,
		Author:          author.String,
		Narrator:        narrator.String,
		ReleaseType:     ReleaseType(releaseType),
		QualityScore:    qualityScore,
		Status:          Status(statusStr),
		ClientHandle:    clientHandle.String,
		SourceURL:       sourceURL.String,
		DownloadDir:     downloadDir.String,
		RetryCount:      retryCount,
		IntegrityStatus: IntegrityStatus(integrityStatus),
		ExpectedFiles:   expectedFiles,
		ExpectedBytes:   expectedBytes,
		ExpectedSeconds: expectedSeconds,
		ErrorMessage:    errorMessage.String,
	}
	if blocked.Valid {
		item.Blocked = blocked.Int64 != 0
	}
	if supersededBy.Valid {
		value := supersededBy.Int64
		item.SupersededBy = &value
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func parseTimePtr(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
