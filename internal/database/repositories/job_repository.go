package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"match-connect/internal/database"
)

type JobPostingRepository struct {
	db *database.DB
}

func NewJobPostingRepository(db *database.DB) *JobPostingRepository {
	return &JobPostingRepository{db: db}
}

const jobColumns = `id, recruiter_id, title, location, type, experience_level,
               salary_range, description, skills, created_at, updated_at`

// Create inserts a posting and fills in its id
func (r *JobPostingRepository) Create(ctx context.Context, job *database.JobPosting) error {
	skills, err := json.Marshal(job.Skills)
	if err != nil {
		return fmt.Errorf("failed to encode skills: %w", err)
	}

	query := `
        INSERT INTO job_postings (recruiter_id, title, location, type, experience_level,
                                  salary_range, description, skills)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `
	id, err := r.db.InsertReturningID(ctx, query, job.RecruiterID, job.Title, job.Location,
		job.Type, job.ExperienceLevel, job.SalaryRange, job.Description, string(skills))
	if err != nil {
		return err
	}

	stored, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	*job = *stored
	return nil
}

// GetByID retrieves a posting
func (r *JobPostingRepository) GetByID(ctx context.Context, id int64) (*database.JobPosting, error) {
	query := r.db.Rebind(`SELECT ` + jobColumns + ` FROM job_postings WHERE id = ?`)

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// List returns postings newest first
func (r *JobPostingRepository) List(ctx context.Context, limit, offset int) ([]database.JobPosting, error) {
	query := r.db.Rebind(`SELECT ` + jobColumns + ` FROM job_postings ORDER BY id DESC LIMIT ? OFFSET ?`)
	return r.query(ctx, query, limit, offset)
}

// ListByRecruiter returns one recruiter's postings newest first
func (r *JobPostingRepository) ListByRecruiter(ctx context.Context, recruiterID int64, limit, offset int) ([]database.JobPosting, error) {
	query := r.db.Rebind(`
        SELECT ` + jobColumns + `
        FROM job_postings
        WHERE recruiter_id = ?
        ORDER BY id DESC
        LIMIT ? OFFSET ?
    `)
	return r.query(ctx, query, recruiterID, limit, offset)
}

// Update overwrites the mutable fields of a posting
func (r *JobPostingRepository) Update(ctx context.Context, job *database.JobPosting) error {
	skills, err := json.Marshal(job.Skills)
	if err != nil {
		return fmt.Errorf("failed to encode skills: %w", err)
	}

	query := r.db.Rebind(`
        UPDATE job_postings
        SET title = ?, location = ?, type = ?, experience_level = ?, salary_range = ?,
            description = ?, skills = ?, updated_at = CURRENT_TIMESTAMP
        WHERE id = ?
    `)
	result, err := r.db.ExecContext(ctx, query, job.Title, job.Location, job.Type,
		job.ExperienceLevel, job.SalaryRange, job.Description, string(skills), job.ID)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

// Delete removes a posting
func (r *JobPostingRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM job_postings WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

func (r *JobPostingRepository) query(ctx context.Context, query string, args ...interface{}) ([]database.JobPosting, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]database.JobPosting, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}

	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*database.JobPosting, error) {
	var job database.JobPosting
	var skills string
	err := row.Scan(&job.ID, &job.RecruiterID, &job.Title, &job.Location, &job.Type,
		&job.ExperienceLevel, &job.SalaryRange, &job.Description, &skills,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(skills), &job.Skills); err != nil {
		return nil, fmt.Errorf("failed to decode skills of job %d: %w", job.ID, err)
	}
	return &job, nil
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
