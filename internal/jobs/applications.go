package jobs

import (
	"context"
	"fmt"
	"time"

	"match-connect/internal/apiclient"
)

// ApplicationInput is a candidate's application to a posting
type ApplicationInput struct {
	JobPostingID      int64  `json:"job_posting_id" validate:"required,gt=0"`
	FullName          string `json:"full_name" validate:"required"`
	Email             string `json:"email" validate:"required,email"`
	Phone             string `json:"phone,omitempty"`
	CoverLetter       string `json:"cover_letter" validate:"required"`
	YearsOfExperience string `json:"years_of_experience,omitempty"`
	ExpectedSalary    string `json:"expected_salary,omitempty"`
	ResumeURL         string `json:"resume_url,omitempty" validate:"omitempty,url"`
}

// Application is a stored application
type Application struct {
	ID           int64     `json:"id"`
	JobPostingID int64     `json:"job_posting_id"`
	UserID       int64     `json:"user_id"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	CoverLetter  string    `json:"cover_letter"`
	CreatedAt    time.Time `json:"created_at"`
}

type Applications struct {
	client *apiclient.Client
}

func NewApplications(client *apiclient.Client) *Applications {
	return &Applications{client: client}
}

// Submit sends an application as the signed-in candidate
func (a *Applications) Submit(ctx context.Context, in ApplicationInput) (*Application, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	var out Application
	if err := a.client.PostJSON(ctx, "/job-applications/", in, &out); err != nil {
		return nil, fmt.Errorf("failed to submit application: %w", err)
	}
	return &out, nil
}
