package jobs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"match-connect/internal/apiclient"
	"match-connect/internal/tokenstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   []byte
}

type recorder struct {
	mu       sync.Mutex
	requests []recorded
}

func (r *recorder) last(t *testing.T) recorded {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.requests)
	return r.requests[len(r.requests)-1]
}

func newAPI(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*apiclient.Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.requests = append(rec.requests, recorded{
			Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery,
			Auth: r.Header.Get("Authorization"), Body: body,
		})
		rec.mu.Unlock()
		r.Body = io.NopCloser(strings.NewReader(string(body)))
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	store := tokenstore.NewMemory()
	require.NoError(t, store.Set(context.Background(), "A1", "R1"))
	client, err := apiclient.New(server.URL+"/api/v1", store)
	require.NoError(t, err)
	return client, rec
}

func respond(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func validPosting() PostingInput {
	return PostingInput{
		Title:           "Go Engineer",
		Location:        "Remote",
		Type:            "full-time",
		ExperienceLevel: "senior",
		Description:     "Build the platform",
		Skills:          []string{"go", "postgres"},
	}
}

func TestPostings_CreateValidates(t *testing.T) {
	client, rec := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusCreated, map[string]interface{}{"id": 1})
	})
	postings := NewPostings(client)

	in := validPosting()
	in.Type = "gig"
	in.Skills = nil
	_, err := postings.Create(context.Background(), in)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "employment_type", verr.Fields["Type"])
	assert.Equal(t, "required", verr.Fields["Skills"])
	assert.Empty(t, rec.requests)
}

func TestPostings_CRUD(t *testing.T) {
	client, rec := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/job-postings/":
			var in PostingInput
			_ = json.NewDecoder(r.Body).Decode(&in)
			respond(w, http.StatusCreated, Posting{ID: 9, Title: in.Title, Skills: in.Skills, RecruiterProfileID: 3})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/job-postings/by-recruiter/me":
			respond(w, http.StatusOK, []Posting{{ID: 9}})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/job-postings/":
			respond(w, http.StatusOK, []Posting{{ID: 9}, {ID: 10}})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/job-postings/9":
			respond(w, http.StatusOK, Posting{ID: 9, Title: "Go Engineer"})
		case r.Method == http.MethodPut && r.URL.Path == "/api/v1/job-postings/9":
			respond(w, http.StatusOK, Posting{ID: 9, Title: "Staff Go Engineer"})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/job-postings/9":
			w.WriteHeader(http.StatusNoContent)
		default:
			respond(w, http.StatusNotFound, map[string]string{"detail": "Job posting not found"})
		}
	})
	postings := NewPostings(client)
	ctx := context.Background()

	created, err := postings.Create(ctx, validPosting())
	require.NoError(t, err)
	assert.EqualValues(t, 9, created.ID)
	assert.EqualValues(t, 3, created.RecruiterProfileID)
	assert.Equal(t, "Bearer A1", rec.last(t).Auth)

	mine, err := postings.ListMine(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	assert.Equal(t, "limit=100&skip=0", rec.last(t).Query)

	all, err := postings.ListAll(ctx, 20, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "limit=10&skip=20", rec.last(t).Query)

	got, err := postings.Get(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "Go Engineer", got.Title)

	title := "Staff Go Engineer"
	updated, err := postings.Update(ctx, 9, PostingPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.JSONEq(t, `{"title":"Staff Go Engineer"}`, string(rec.last(t).Body))

	require.NoError(t, postings.Delete(ctx, 9))

	err = postings.Delete(ctx, 404)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, apiclient.StatusCode(err))
	assert.Contains(t, err.Error(), "Job posting not found")
}

func TestApplications_Submit(t *testing.T) {
	client, rec := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusCreated, Application{ID: 5, JobPostingID: 9})
	})
	apps := NewApplications(client)

	_, err := apps.Submit(context.Background(), ApplicationInput{JobPostingID: 9, FullName: "C", Email: "bad", CoverLetter: "hi"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Fields["Email"])

	app, err := apps.Submit(context.Background(), ApplicationInput{
		JobPostingID: 9, FullName: "Cand Idate", Email: "c@example.com", CoverLetter: "hire me",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 5, app.ID)
	assert.Equal(t, "/api/v1/job-applications/", rec.last(t).Path)
}

func TestResumes_UploadSurvivesRefresh(t *testing.T) {
	var calls int
	var mu sync.Mutex
	client, _ := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/auth/token/refresh" {
			respond(w, http.StatusOK, map[string]string{"access_token": "A2"})
			return
		}
		if r.Header.Get("Authorization") != "Bearer A2" {
			respond(w, http.StatusUnauthorized, map[string]string{"detail": "expired"})
			return
		}

		mu.Lock()
		calls++
		mu.Unlock()

		file, header, err := r.FormFile("file")
		if err != nil {
			respond(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)

		candidateID, _ := strconv.ParseInt(r.FormValue("candidate_id"), 10, 64)
		respond(w, http.StatusCreated, Resume{
			ID: 1, FileName: header.Filename, SizeBytes: int64(len(content)), CandidateID: candidateID,
		})
	})

	resume, err := NewResumes(client).Upload(context.Background(), "cv.pdf", strings.NewReader("%PDF-1.4"), 42)
	require.NoError(t, err)
	assert.Equal(t, "cv.pdf", resume.FileName)
	assert.EqualValues(t, 8, resume.SizeBytes)
	assert.EqualValues(t, 42, resume.CandidateID)
	assert.Equal(t, 1, calls)

	_, err = NewResumes(client).Upload(context.Background(), "", strings.NewReader(""), 0)
	assert.Error(t, err)
}

func TestAISearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/api/v1/ai-search":
			var in SearchRequest
			_ = json.NewDecoder(r.Body).Decode(&in)
			if in.JobID == 99 {
				time.Sleep(300 * time.Millisecond)
			}
			if in.JobID == 500 {
				respond(w, http.StatusBadGateway, map[string]string{"detail": "model offline"})
				return
			}
			respond(w, http.StatusOK, SearchResult{
				Summary:          "2 candidates ranked",
				RankedCandidates: []RankedCandidate{{CandidateID: "1", FinalScore: 0.9}, {CandidateID: "2", FinalScore: 0.4}},
			})
		}
	}))
	defer server.Close()

	search := NewAISearch(server.URL, 100*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, search.Health(ctx))

	result, err := search.Search(ctx, SearchRequest{JobID: 1, CandidateIDs: []int64{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, "2 candidates ranked", result.Summary)
	require.Len(t, result.RankedCandidates, 2)
	assert.Equal(t, 0.9, result.RankedCandidates[0].FinalScore)

	_, err = search.Search(ctx, SearchRequest{JobID: 99, CandidateIDs: []int64{1}})
	assert.ErrorIs(t, err, ErrSearchTimeout)

	_, err = search.Search(ctx, SearchRequest{JobID: 500, CandidateIDs: []int64{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model offline")

	_, err = search.Search(ctx, SearchRequest{JobID: 1})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	assert.Equal(t, defaultSearchTimeout, NewAISearch(server.URL, 0).httpClient.Timeout)
}
