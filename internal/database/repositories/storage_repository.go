package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"match-connect/internal/database"
)

// StorageRepository persists client key/value storage and the change log
// other processes poll to notice writes.
type StorageRepository struct {
	db *database.DB
}

func NewStorageRepository(db *database.DB) *StorageRepository {
	return &StorageRepository{db: db}
}

// Get returns the value stored under key and whether it exists
func (r *StorageRepository) Get(ctx context.Context, key string) (string, bool, error) {
	query := r.db.Rebind(`SELECT value FROM client_storage WHERE storage_key = ?`)

	var value string
	err := r.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// GetMany reads keys in one statement and returns the ones that exist, so
// values written together are read together
func (r *StorageRepository) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return values, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
	query := r.db.Rebind(`SELECT storage_key, value FROM client_storage WHERE storage_key IN (` + placeholders + `)`)

	args := make([]interface{}, len(keys))
	for i, key := range keys {
		args[i] = key
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	return values, rows.Err()
}

// Put upserts every value and records one change event per key whose value
// changed, atomically
func (r *StorageRepository) Put(ctx context.Context, origin string, values map[string]string) error {
	upsert := r.db.Rebind(`
        INSERT INTO client_storage (storage_key, value, origin, updated_at)
        VALUES (?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT (storage_key) DO UPDATE
        SET value = excluded.value, origin = excluded.origin, updated_at = CURRENT_TIMESTAMP
        WHERE client_storage.value <> excluded.value
    `)

	return r.inTx(ctx, func(tx *sql.Tx) error {
		for key, value := range values {
			result, err := tx.ExecContext(ctx, upsert, key, value, origin)
			if err != nil {
				return fmt.Errorf("failed to store %s: %w", key, err)
			}
			if n, err := result.RowsAffected(); err != nil || n == 0 {
				continue
			}
			if err := r.recordEvent(ctx, tx, key, origin); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes keys and records one change event per key that existed,
// atomically
func (r *StorageRepository) Delete(ctx context.Context, origin string, keys ...string) error {
	del := r.db.Rebind(`DELETE FROM client_storage WHERE storage_key = ?`)

	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, key := range keys {
			result, err := tx.ExecContext(ctx, del, key)
			if err != nil {
				return fmt.Errorf("failed to remove %s: %w", key, err)
			}
			if n, err := result.RowsAffected(); err != nil || n == 0 {
				continue
			}
			if err := r.recordEvent(ctx, tx, key, origin); err != nil {
				return err
			}
		}
		return nil
	})
}

// EventsSince returns change events with id > afterID written by any origin
// other than excludeOrigin, oldest first.
func (r *StorageRepository) EventsSince(ctx context.Context, afterID int64, excludeOrigin string, limit int) ([]database.StorageEvent, error) {
	query := r.db.Rebind(`
        SELECT id, storage_key, origin, created_at
        FROM storage_events
        WHERE id > ? AND origin <> ?
        ORDER BY id ASC
        LIMIT ?
    `)

	rows, err := r.db.QueryContext(ctx, query, afterID, excludeOrigin, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []database.StorageEvent
	for rows.Next() {
		var ev database.StorageEvent
		if err := rows.Scan(&ev.ID, &ev.Key, &ev.Origin, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

// LatestEventID returns the id of the newest change event, or 0
func (r *StorageRepository) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(id) FROM storage_events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

// PruneEvents keeps the newest keep change events and drops the rest. It
// returns how many were dropped.
func (r *StorageRepository) PruneEvents(ctx context.Context, keep int) (int64, error) {
	query := r.db.Rebind(`
        DELETE FROM storage_events
        WHERE id <= (SELECT MAX(id) FROM storage_events) - ?
    `)

	result, err := r.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *StorageRepository) recordEvent(ctx context.Context, tx *sql.Tx, key, origin string) error {
	query := r.db.Rebind(`INSERT INTO storage_events (storage_key, origin) VALUES (?, ?)`)
	if _, err := tx.ExecContext(ctx, query, key, origin); err != nil {
		return fmt.Errorf("failed to record storage event: %w", err)
	}
	return nil
}

func (r *StorageRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
