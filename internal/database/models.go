package database

import "time"

// StorageEntry is one persisted client storage value
type StorageEntry struct {
	Key       string    `db:"storage_key" json:"key"`
	Value     string    `db:"value" json:"value"`
	Origin    string    `db:"origin" json:"origin"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StorageEvent records that a storage key was written or removed
type StorageEvent struct {
	ID        int64     `db:"id" json:"id"`
	Key       string    `db:"storage_key" json:"key"`
	Origin    string    `db:"origin" json:"origin"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// User represents a marketplace account
type User struct {
	ID           int64      `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"` // Never include in JSON
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	Role         string     `db:"role" json:"role"`
	CompanyName  string     `db:"company_name" json:"company_name,omitempty"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// JobPosting represents a recruiter's job posting
type JobPosting struct {
	ID              int64     `db:"id" json:"id"`
	RecruiterID     int64     `db:"recruiter_id" json:"recruiter_profile_id"`
	Title           string    `db:"title" json:"title"`
	Location        string    `db:"location" json:"location"`
	Type            string    `db:"type" json:"type"`
	ExperienceLevel string    `db:"experience_level" json:"experience_level"`
	SalaryRange     string    `db:"salary_range" json:"salary_range,omitempty"`
	Description     string    `db:"description" json:"description"`
	Skills          []string  `db:"skills" json:"skills"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// JobApplication represents a candidate's application to a posting
type JobApplication struct {
	ID                int64     `db:"id" json:"id"`
	JobPostingID      int64     `db:"job_posting_id" json:"job_posting_id"`
	UserID            int64     `db:"user_id" json:"user_id"`
	FullName          string    `db:"full_name" json:"full_name"`
	Email             string    `db:"email" json:"email"`
	Phone             string    `db:"phone" json:"phone,omitempty"`
	CoverLetter       string    `db:"cover_letter" json:"cover_letter"`
	YearsOfExperience string    `db:"years_of_experience" json:"years_of_experience,omitempty"`
	ExpectedSalary    string    `db:"expected_salary" json:"expected_salary,omitempty"`
	ResumeURL         string    `db:"resume_url" json:"resume_url,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Resume is the metadata of an uploaded CV
type Resume struct {
	ID          int64     `db:"id" json:"id"`
	CandidateID int64     `db:"candidate_id" json:"candidate_id"`
	FileName    string    `db:"file_name" json:"file_name"`
	FilePath    string    `db:"file_path" json:"file_path"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
	UploadedAt  time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// AuditLog represents an audit log entry
type AuditLog struct {
	ID        int64     `db:"id" json:"id"`
	Action    string    `db:"action" json:"action"`
	UserID    string    `db:"user_id" json:"user_id"`
	Details   string    `db:"details" json:"details"`
	IPAddress string    `db:"ip_address" json:"ip_address"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
