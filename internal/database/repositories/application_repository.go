package repositories

import (
	"context"

	"match-connect/internal/database"
)

// ApplicationRepository stores job applications and uploaded resumes
type ApplicationRepository struct {
	db *database.DB
}

func NewApplicationRepository(db *database.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// CreateApplication inserts an application
func (r *ApplicationRepository) CreateApplication(ctx context.Context, app *database.JobApplication) error {
	query := `
        INSERT INTO job_applications (job_posting_id, user_id, full_name, email, phone,
                                      cover_letter, years_of_experience, expected_salary, resume_url)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	id, err := r.db.InsertReturningID(ctx, query, app.JobPostingID, app.UserID, app.FullName,
		app.Email, app.Phone, app.CoverLetter, app.YearsOfExperience, app.ExpectedSalary, app.ResumeURL)
	if err != nil {
		return err
	}

	app.ID = id
	return nil
}

// CountByPosting returns how many applications a posting received
func (r *ApplicationRepository) CountByPosting(ctx context.Context, jobPostingID int64) (int, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM job_applications WHERE job_posting_id = ?`)
	err := r.db.QueryRowContext(ctx, query, jobPostingID).Scan(&n)
	return n, err
}

// CreateResume records the metadata of an uploaded resume
func (r *ApplicationRepository) CreateResume(ctx context.Context, resume *database.Resume) error {
	query := `
        INSERT INTO resumes (candidate_id, file_name, file_path, size_bytes)
        VALUES (?, ?, ?, ?)
    `
	id, err := r.db.InsertReturningID(ctx, query, resume.CandidateID, resume.FileName,
		resume.FilePath, resume.SizeBytes)
	if err != nil {
		return err
	}

	resume.ID = id
	return nil
}
