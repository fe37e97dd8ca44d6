// Package jobs holds typed clients for the marketplace resources, all
// sending through the shared authenticating client.
package jobs

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"match-connect/internal/apiclient"
)

const defaultPageSize = 100

// PostingInput is the payload of a new job posting
type PostingInput struct {
	Title           string   `json:"title" validate:"required,max=255"`
	Location        string   `json:"location" validate:"required"`
	Type            string   `json:"type" validate:"required,employment_type"`
	ExperienceLevel string   `json:"experience_level" validate:"required"`
	SalaryRange     string   `json:"salary_range,omitempty"`
	Description     string   `json:"description" validate:"required"`
	Skills          []string `json:"skills" validate:"required,min=1,dive,required"`
}

// PostingPatch carries the fields to change; nil fields are left alone
type PostingPatch struct {
	Title           *string  `json:"title,omitempty" validate:"omitempty,min=1,max=255"`
	Location        *string  `json:"location,omitempty" validate:"omitempty,min=1"`
	Type            *string  `json:"type,omitempty" validate:"omitempty,employment_type"`
	ExperienceLevel *string  `json:"experience_level,omitempty" validate:"omitempty,min=1"`
	SalaryRange     *string  `json:"salary_range,omitempty"`
	Description     *string  `json:"description,omitempty" validate:"omitempty,min=1"`
	Skills          []string `json:"skills,omitempty" validate:"omitempty,dive,required"`
}

// Posting is a job posting as returned by the backend
type Posting struct {
	ID                 int64     `json:"id"`
	Title              string    `json:"title"`
	Location           string    `json:"location"`
	Type               string    `json:"type"`
	ExperienceLevel    string    `json:"experience_level"`
	SalaryRange        string    `json:"salary_range,omitempty"`
	Description        string    `json:"description"`
	Skills             []string  `json:"skills"`
	RecruiterProfileID int64     `json:"recruiter_profile_id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Postings is the job postings client
type Postings struct {
	client *apiclient.Client
}

func NewPostings(client *apiclient.Client) *Postings {
	return &Postings{client: client}
}

// Create publishes a posting for the signed-in recruiter
func (p *Postings) Create(ctx context.Context, in PostingInput) (*Posting, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	var out Posting
	if err := p.client.PostJSON(ctx, "/job-postings/", in, &out); err != nil {
		return nil, fmt.Errorf("failed to create job posting: %w", err)
	}
	return &out, nil
}

// ListMine returns the signed-in recruiter's postings
func (p *Postings) ListMine(ctx context.Context, skip, limit int) ([]Posting, error) {
	var out []Posting
	if err := p.client.GetJSON(ctx, "/job-postings/by-recruiter/me?"+page(skip, limit), &out); err != nil {
		return nil, fmt.Errorf("could not fetch your job postings: %w", err)
	}
	return out, nil
}

// ListAll returns every posting on the platform
func (p *Postings) ListAll(ctx context.Context, skip, limit int) ([]Posting, error) {
	var out []Posting
	if err := p.client.GetJSON(ctx, "/job-postings/?"+page(skip, limit), &out); err != nil {
		return nil, fmt.Errorf("could not fetch job postings: %w", err)
	}
	return out, nil
}

// Get returns one posting
func (p *Postings) Get(ctx context.Context, id int64) (*Posting, error) {
	var out Posting
	if err := p.client.GetJSON(ctx, postingPath(id), &out); err != nil {
		return nil, fmt.Errorf("could not find job posting %d: %w", id, err)
	}
	return &out, nil
}

// Update applies patch to a posting
func (p *Postings) Update(ctx context.Context, id int64, patch PostingPatch) (*Posting, error) {
	if err := validateStruct(patch); err != nil {
		return nil, err
	}

	var out Posting
	if err := p.client.PutJSON(ctx, postingPath(id), patch, &out); err != nil {
		return nil, fmt.Errorf("failed to update job posting %d: %w", id, err)
	}
	return &out, nil
}

// Delete removes a posting
func (p *Postings) Delete(ctx context.Context, id int64) error {
	if err := p.client.Delete(ctx, postingPath(id)); err != nil {
		return fmt.Errorf("could not delete job posting %d: %w", id, err)
	}
	return nil
}

func postingPath(id int64) string {
	return "/job-postings/" + strconv.FormatInt(id, 10)
}

func page(skip, limit int) string {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))
	return q.Encode()
}
