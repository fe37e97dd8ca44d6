package models

// LoginForm is the OAuth2 password form of POST /auth/token
type LoginForm struct {
	Username string `form:"username" binding:"required" example:"ada@example.com"`
	Password string `form:"password" binding:"required" example:"password123"`
}

// RefreshRequest carries the refresh token to rotate
type RefreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

// RegisterRequest represents account creation
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email" example:"ada@example.com"`
	Password    string `json:"password" binding:"required,min=8" example:"securepass123"`
	FirstName   string `json:"first_name" binding:"required" example:"Ada"`
	LastName    string `json:"last_name" binding:"required" example:"Lovelace"`
	Role        string `json:"role" binding:"required,oneof=candidate recruiter" example:"recruiter"`
	CompanyName string `json:"company_name,omitempty" binding:"required_if=Role recruiter" example:"Analytical Engines"`
}

// JobPostingRequest is the body of a new posting
type JobPostingRequest struct {
	Title           string   `json:"title" binding:"required,max=255"`
	Location        string   `json:"location" binding:"required"`
	Type            string   `json:"type" binding:"required,employment_type"`
	ExperienceLevel string   `json:"experience_level" binding:"required"`
	SalaryRange     string   `json:"salary_range"`
	Description     string   `json:"description" binding:"required"`
	Skills          []string `json:"skills" binding:"required,min=1,dive,required"`
}

// JobPostingPatch updates the non-nil fields of a posting
type JobPostingPatch struct {
	Title           *string  `json:"title" binding:"omitempty,min=1,max=255"`
	Location        *string  `json:"location" binding:"omitempty,min=1"`
	Type            *string  `json:"type" binding:"omitempty,employment_type"`
	ExperienceLevel *string  `json:"experience_level" binding:"omitempty,min=1"`
	SalaryRange     *string  `json:"salary_range"`
	Description     *string  `json:"description" binding:"omitempty,min=1"`
	Skills          []string `json:"skills" binding:"omitempty,dive,required"`
}

// ApplicationRequest is a candidate's application
type ApplicationRequest struct {
	JobPostingID      int64  `json:"job_posting_id" binding:"required,gt=0"`
	FullName          string `json:"full_name" binding:"required"`
	Email             string `json:"email" binding:"required,email"`
	Phone             string `json:"phone"`
	CoverLetter       string `json:"cover_letter" binding:"required"`
	YearsOfExperience string `json:"years_of_experience"`
	ExpectedSalary    string `json:"expected_salary"`
	ResumeURL         string `json:"resume_url" binding:"omitempty,url"`
}

// PaginationRequest binds skip/limit query parameters
type PaginationRequest struct {
	Skip  int `form:"skip" binding:"omitempty,min=0"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// AuditLogFilterRequest represents audit log filtering
type AuditLogFilterRequest struct {
	StartTime string `form:"start_time" binding:"omitempty" example:"2024-01-01T00:00:00Z"`
	EndTime   string `form:"end_time" binding:"omitempty" example:"2024-01-02T00:00:00Z"`
	Action    string `form:"action" example:"login_succeeded"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=1000" example:"50"`
	Offset    int    `form:"offset" binding:"omitempty,min=0" example:"0"`
}
