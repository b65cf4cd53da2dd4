package download

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AddWishlistEntry records a wanted work for later auto-promotion.
func (s *Store) AddWishlistEntry(ctx context.Context, title, author, narrator string) (*WishlistEntry, error) {
	if title == "" {
		return nil, errors.New("wishlist title is required")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO wishlist (title, author, narrator, added_at) VALUES (?, ?, ?, ?)`,
		title,
		nullableString(author),
		nullableString(narrator),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert wishlist entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &WishlistEntry{ID: id, Title: title, Author: author, Narrator: narrator, AddedAt: now}, nil
}

// PendingWishlist returns entries not yet promoted, oldest first.
func (s *Store) PendingWishlist(ctx context.Context) ([]WishlistEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, title, author, narrator, added_at, promoted_at
         FROM wishlist WHERE promoted_at IS NULL ORDER BY added_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("query wishlist: %w", err)
	}
	defer rows.Close()

	var entries []WishlistEntry
	for rows.Next() {
		var (
			entry       WishlistEntry
			author      sql.NullString
			narrator    sql.NullString
			addedRaw    string
			promotedRaw sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.Title, &author, &narrator, &addedRaw, &promotedRaw); err != nil {
			return nil, err
		}
		entry.Author = author.String
		entry.Narrator = narrator.String
		if added, err := parseTimeString(addedRaw); err == nil {
			entry.AddedAt = added
		}
		entry.PromotedAt = parseTimePtr(promotedRaw)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkWishlistPromoted stamps an entry as promoted; the conditional write
// keeps a concurrent double-promotion from firing twice.
func (s *Store) MarkWishlistPromoted(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE wishlist SET promoted_at = ? WHERE id = ? AND promoted_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("mark wishlist promoted: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
