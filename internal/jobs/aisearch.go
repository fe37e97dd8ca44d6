package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrSearchTimeout is returned when the AI service does not answer in time
var ErrSearchTimeout = errors.New("the request to the AI service timed out, please try again")

const defaultSearchTimeout = 60 * time.Second

// SearchRequest asks the AI service to rank candidates for a posting
type SearchRequest struct {
	JobID        int64   `json:"job_id" validate:"required,gt=0"`
	CandidateIDs []int64 `json:"candidate_ids" validate:"required,min=1"`
}

type ScoreDetails struct {
	RelevanceScore  float64 `json:"relevance_score"`
	ExperienceScore float64 `json:"experience_score"`
	SkillScore      float64 `json:"skill_score"`
	EducationScore  float64 `json:"education_score"`
}

type ExtractedInfo struct {
	RequiredSkills      []string `json:"required_skills"`
	CandidateSkills     []string `json:"candidate_skills"`
	RequiredExperience  float64  `json:"required_experience"`
	CandidateExperience float64  `json:"candidate_experience"`
}

type ContactInfo struct {
	CandidateName *string `json:"candidate_name"`
	LinkedInURL   *string `json:"linkedin_url"`
}

type RankedCandidate struct {
	CandidateID   string        `json:"candidate_id"`
	FinalScore    float64       `json:"final_score"`
	Details       ScoreDetails  `json:"details"`
	ExtractedInfo ExtractedInfo `json:"extracted_info"`
	ContactInfo   *ContactInfo  `json:"contact_info,omitempty"`
}

// SearchResult is the AI service's analysis
type SearchResult struct {
	Summary          string            `json:"summary"`
	RankedCandidates []RankedCandidate `json:"ranked_candidates"`
}

// AISearch talks to the external AI matching service. It is not
// authenticated and has its own, longer timeout.
type AISearch struct {
	baseURL    string
	httpClient *http.Client
}

// NewAISearch creates a client for the AI service at baseURL. A zero timeout
// means 60 seconds.
func NewAISearch(baseURL string, timeout time.Duration) *AISearch {
	if timeout <= 0 {
		timeout = defaultSearchTimeout
	}
	return &AISearch{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search ranks the given candidates against a posting
func (s *AISearch) Search(ctx context.Context, in SearchRequest) (*SearchResult, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/v1/ai-search", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, ErrSearchTimeout
		}
		return nil, fmt.Errorf("failed to connect to the AI service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body struct {
			Detail string `json:"detail"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if json.Unmarshal(raw, &body) != nil || body.Detail == "" {
			body.Detail = fmt.Sprintf("API request failed with status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("ai search failed: %s", body.Detail)
	}

	var out SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode ai search response: %w", err)
	}
	return &out, nil
}

// Health checks that the AI service answers
func (s *AISearch) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ai service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ai service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
