package repositories

import (
	"context"
	"time"

	"match-connect/internal/database"
)

type AuditLogRepository struct {
	db *database.DB
}

func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// InsertAuditLog inserts a new audit log entry
func (r *AuditLogRepository) InsertAuditLog(ctx context.Context, log *database.AuditLog) error {
	query := `
        INSERT INTO audit_logs (action, user_id, details, ip_address)
        VALUES (?, ?, ?, ?)
    `
	id, err := r.db.InsertReturningID(ctx, query, log.Action, log.UserID, log.Details, log.IPAddress)
	if err != nil {
		return err
	}

	log.ID = id
	return nil
}

// GetAuditLogs retrieves audit logs with pagination and filtering
func (r *AuditLogRepository) GetAuditLogs(ctx context.Context, limit, offset int, action string, startTime, endTime *time.Time) ([]database.AuditLog, error) {
	query := `
        SELECT id, action, user_id, details, ip_address, created_at
        FROM audit_logs
        WHERE 1=1
    `
	args := []interface{}{}

	if action != "" {
		query += " AND action = ?"
		args = append(args, action)
	}

	if startTime != nil {
		query += " AND created_at >= ?"
		args = append(args, startTime.UTC())
	}

	if endTime != nil {
		query += " AND created_at <= ?"
		args = append(args, endTime.UTC())
	}

	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]database.AuditLog, 0)
	for rows.Next() {
		var log database.AuditLog
		err := rows.Scan(&log.ID, &log.Action, &log.UserID, &log.Details, &log.IPAddress, &log.CreatedAt)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}

	return logs, rows.Err()
}

// CountByAction returns how many entries exist per action
func (r *AuditLogRepository) CountByAction(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT action, COUNT(*) AS count
        FROM audit_logs
        GROUP BY action
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		counts[action] = count
	}
	return counts, rows.Err()
}
