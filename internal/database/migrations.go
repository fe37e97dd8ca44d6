package database

import (
	"fmt"
	"strings"
)

// RunClientMigrations creates the tables backing the persistent token store
func RunClientMigrations(db *DB) error {
	return runMigrations(db, []string{
		createClientStorageTable,
		createStorageEventsTable,
		createClientIndices,
	})
}

// RunServerMigrations creates the tables of the reference backend
func RunServerMigrations(db *DB) error {
	return runMigrations(db, []string{
		createUsersTable,
		createJobPostingsTable,
		createJobApplicationsTable,
		createResumesTable,
		createRevokedTokensTable,
		createAuditLogsTable,
		createServerIndices,
	})
}

func runMigrations(db *DB, migrations []string) error {
	for i, migration := range migrations {
		for _, stmt := range splitStatements(dialectize(db.Dialect, migration)) {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("migration %d failed: %w", i+1, err)
			}
		}
	}

	return nil
}

// dialectize replaces the {{id}} column placeholder with the auto-increment
// primary key syntax of the dialect.
func dialectize(d Dialect, stmt string) string {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if d == Postgres {
		id = "BIGSERIAL PRIMARY KEY"
	}
	return strings.ReplaceAll(stmt, "{{id}}", id)
}

func splitStatements(block string) []string {
	var out []string
	for _, stmt := range strings.Split(block, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Client-side storage schema
const createClientStorageTable = `
CREATE TABLE IF NOT EXISTS client_storage (
    storage_key VARCHAR(64) PRIMARY KEY,
    value TEXT NOT NULL,
    origin VARCHAR(64) NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

const createStorageEventsTable = `
CREATE TABLE IF NOT EXISTS storage_events (
    id {{id}},
    storage_key VARCHAR(64) NOT NULL,
    origin VARCHAR(64) NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

const createClientIndices = `
CREATE INDEX IF NOT EXISTS idx_storage_events_origin ON storage_events(origin, id);
`

// Reference backend schema
const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
    id {{id}},
    email VARCHAR(255) UNIQUE NOT NULL,
    password_hash VARCHAR(255) NOT NULL,
    first_name VARCHAR(100),
    last_name VARCHAR(100),
    role VARCHAR(20) NOT NULL DEFAULT 'candidate',
    company_name VARCHAR(255),
    is_active BOOLEAN DEFAULT TRUE,
    last_login TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

const createJobPostingsTable = `
CREATE TABLE IF NOT EXISTS job_postings (
    id {{id}},
    recruiter_id INTEGER NOT NULL REFERENCES users(id),
    title VARCHAR(255) NOT NULL,
    location VARCHAR(255) NOT NULL,
    type VARCHAR(50) NOT NULL,
    experience_level VARCHAR(50) NOT NULL,
    salary_range VARCHAR(100),
    description TEXT NOT NULL,
    skills TEXT NOT NULL, -- JSON array
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

const createJobApplicationsTable = `
CREATE TABLE IF NOT EXISTS job_applications (
    id {{id}},
    job_posting_id INTEGER NOT NULL REFERENCES job_postings(id),
    user_id INTEGER NOT NULL REFERENCES users(id),
    full_name VARCHAR(255) NOT NULL,
    email VARCHAR(255) NOT NULL,
    phone VARCHAR(50),
    cover_letter TEXT NOT NULL,
    years_of_experience VARCHAR(50),
    expected_salary VARCHAR(100),
    resume_url TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

const createResumesTable = `
CREATE TABLE IF NOT EXISTS resumes (
    id {{id}},
    candidate_id INTEGER NOT NULL REFERENCES users(id),
    file_name VARCHAR(255) NOT NULL,
    file_path TEXT NOT NULL,
    size_bytes INTEGER NOT NULL,
    uploaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

const createRevokedTokensTable = `
CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti VARCHAR(64) PRIMARY KEY,
    user_id INTEGER NOT NULL,
    expires_at TIMESTAMP NOT NULL,
    revoked_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

const createAuditLogsTable = `
CREATE TABLE IF NOT EXISTS audit_logs (
    id {{id}},
    action VARCHAR(100) NOT NULL,
    user_id VARCHAR(255),
    details TEXT,
    ip_address VARCHAR(45),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

const createServerIndices = `
CREATE INDEX IF NOT EXISTS idx_job_postings_recruiter ON job_postings(recruiter_id);
CREATE INDEX IF NOT EXISTS idx_job_applications_posting ON job_applications(job_posting_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_composite ON audit_logs(action, created_at);
CREATE INDEX IF NOT EXISTS idx_revoked_tokens_expiry ON revoked_tokens(expires_at);
`
