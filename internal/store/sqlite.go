package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
)

const recordColumns = "id, kind, created_at, updated_at, deleted_at, external_id, title, owner_id, favorite, skip, memo"

// SQLiteStore keeps every record in the "records" table.
//
// Scans return rows in insertion order, taken from the records_sequence counter.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps a migrated database. The store owns db and closes it in [SQLiteStore.Close].
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Scan returns every record matching f.
func (s *SQLiteStore) Scan(ctx context.Context, f Filter) ([]models.Record, error) {
	query := "SELECT " + recordColumns + " FROM records WHERE 1 = 1"
	args := []any{}

	if f.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(f.Kind))
	}
	if f.ExternalID != "" {
		query += " AND external_id = ?"
		args = append(args, f.ExternalID)
	}
	if f.OwnerID != "" {
		query += " AND owner_id = ?"
		args = append(args, f.OwnerID)
	}
	if !f.IncludeDeleted {
		query += " AND deleted_at = ''"
	}
	query += " ORDER BY seq ASC, id ASC"

	var records []models.Record
	err := withRetry(ctx, func() error {
		records = records[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				return err
			}
			records = append(records, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, unavailable("scan records", err)
	}
	return records, nil
}

// Put inserts r, or replaces every attribute of the record with the same key.
//
// A replaced record keeps its original position in scan order.
func (s *SQLiteStore) Put(ctx context.Context, r models.Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	err := withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		seq, err := nextSequence(ctx, tx)
		if err != nil {
			return err
		}

		query := `
			INSERT INTO records (` + recordColumns + `, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id, kind) DO UPDATE SET
				created_at = excluded.created_at,
				updated_at = excluded.updated_at,
				deleted_at = excluded.deleted_at,
				external_id = excluded.external_id,
				title = excluded.title,
				owner_id = excluded.owner_id,
				favorite = excluded.favorite,
				skip = excluded.skip,
				memo = excluded.memo
		`
		if _, err := tx.ExecContext(ctx, query,
			r.ID,
			string(r.Kind),
			r.CreatedAt,
			r.UpdatedAt,
			r.DeletedAt,
			r.ExternalID,
			r.Title,
			r.OwnerID,
			r.Favorite,
			r.Skip,
			r.Memo,
			seq,
		); err != nil {
			return err
		}

		return tx.Commit()
	})
	if err != nil {
		return unavailable("put record "+KeyOf(r).String(), err)
	}
	return nil
}

// Update sets the patched attributes of the record at k.
func (s *SQLiteStore) Update(ctx context.Context, k Key, p Patch) error {
	if p.Empty() {
		return fmt.Errorf("%w: empty patch for %s", shared.ErrInvalidInput, k)
	}

	sets := []string{}
	args := []any{}

	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if p.ExternalID != nil {
		add("external_id", *p.ExternalID)
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.OwnerID != nil {
		add("owner_id", *p.OwnerID)
	}
	if p.Memo != nil {
		add("memo", *p.Memo)
	}
	if p.Favorite != nil {
		add("favorite", *p.Favorite)
	}
	if p.Skip != nil {
		add("skip", *p.Skip)
	}
	if p.UpdatedAt != "" {
		add("updated_at", p.UpdatedAt)
	}
	query := "UPDATE records SET " + strings.Join(sets, ", ") + " WHERE id = ? AND kind = ?"
	args = append(args, k.ID, string(k.Kind))

	var affected int64
	err := withRetry(ctx, func() error {
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return unavailable("update record "+k.String(), err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRecordNotFound, k)
	}
	return nil
}

// Delete removes the record at k.
func (s *SQLiteStore) Delete(ctx context.Context, k Key) error {
	err := withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE id = ? AND kind = ?", k.ID, string(k.Kind))
		return err
	})
	if err != nil {
		return unavailable("delete record "+k.String(), err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nextSequence increments and returns the scan-order counter inside tx.
func nextSequence(ctx context.Context, tx *sql.Tx) (int64, error) {
	if _, err := tx.ExecContext(ctx, "UPDATE records_sequence SET value = value + 1 WHERE id = 1"); err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	var seq int64
	err := tx.QueryRowContext(ctx, "SELECT value FROM records_sequence WHERE id = 1").Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("records_sequence is not seeded")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get sequence value: %w", err)
	}
	return seq, nil
}

func scanRecord(rows *sql.Rows) (models.Record, error) {
	var (
		r    models.Record
		kind string
	)
	err := rows.Scan(&r.ID, &kind, &r.CreatedAt, &r.UpdatedAt, &r.DeletedAt, &r.ExternalID, &r.Title, &r.OwnerID, &r.Favorite, &r.Skip, &r.Memo)
	if err != nil {
		return models.Record{}, fmt.Errorf("failed to scan record: %w", err)
	}
	r.Kind = models.Kind(kind)
	return r, nil
}
