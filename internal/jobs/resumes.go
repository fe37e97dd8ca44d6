package jobs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"match-connect/internal/apiclient"
)

// Resume is the metadata of an uploaded resume
type Resume struct {
	ID          int64     `json:"id"`
	FileName    string    `json:"file_name"`
	FilePath    string    `json:"file_path"`
	CandidateID int64     `json:"candidate_id"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

type Resumes struct {
	client *apiclient.Client
}

func NewResumes(client *apiclient.Client) *Resumes {
	return &Resumes{client: client}
}

// Upload sends a resume file as multipart form data. candidateID 0 leaves
// the association to the backend.
func (r *Resumes) Upload(ctx context.Context, fileName string, file io.Reader, candidateID int64) (*Resume, error) {
	if fileName == "" {
		return nil, fmt.Errorf("file name is required")
	}

	body, contentType, err := multipartBody(fileName, file, candidateID)
	if err != nil {
		return nil, err
	}

	req, err := r.client.NewRequest(ctx, http.MethodPost, "/resumes/", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	var out Resume
	if err := r.client.DoJSON(req, &out); err != nil {
		return nil, fmt.Errorf("failed to upload resume: %w", err)
	}
	return &out, nil
}

// multipartBody encodes the upload into memory so the request can be
// replayed after a token refresh
func multipartBody(fileName string, file io.Reader, candidateID int64) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("failed to read resume: %w", err)
	}
	if candidateID > 0 {
		if err := w.WriteField("candidate_id", strconv.FormatInt(candidateID, 10)); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
