package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"match-connect/internal/api/interfaces"
	"match-connect/internal/api/models"
	"match-connect/internal/database"
	"match-connect/internal/database/repositories"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 100
	maxResumeSize   = 5 << 20
)

var resumeExtensions = map[string]bool{".pdf": true, ".doc": true, ".docx": true}

func page(c *gin.Context) (limit, offset int, ok bool) {
	var req models.PaginationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondError(c, bindingError(err))
		return 0, 0, false
	}
	if req.Limit == 0 {
		req.Limit = defaultPageSize
	}
	return req.Limit, req.Skip, true
}

// CreateJobPosting publishes a posting owned by the calling recruiter
func CreateJobPosting(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.JobPostingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, bindingError(err))
			return
		}

		job := &database.JobPosting{
			RecruiterID:     currentClaims(c).UserID,
			Title:           req.Title,
			Location:        req.Location,
			Type:            req.Type,
			ExperienceLevel: req.ExperienceLevel,
			SalaryRange:     req.SalaryRange,
			Description:     req.Description,
			Skills:          req.Skills,
		}
		if err := services.JobPostingRepository().Create(c.Request.Context(), job); err != nil {
			respondInternal(c, services, "Failed to create job posting", err)
			return
		}

		services.GetLogger().Info("Job posting created", "job_id", job.ID, "recruiter_id", job.RecruiterID)
		c.JSON(http.StatusCreated, job)
	}
}

// ListJobPostings lists every posting
func ListJobPostings(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset, ok := page(c)
		if !ok {
			return
		}

		jobs, err := services.JobPostingRepository().List(c.Request.Context(), limit, offset)
		if err != nil {
			respondInternal(c, services, "Failed to list job postings", err)
			return
		}
		c.JSON(http.StatusOK, jobs)
	}
}

// ListMyJobPostings lists the calling recruiter's postings
func ListMyJobPostings(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset, ok := page(c)
		if !ok {
			return
		}

		jobs, err := services.JobPostingRepository().ListByRecruiter(c.Request.Context(), currentClaims(c).UserID, limit, offset)
		if err != nil {
			respondInternal(c, services, "Failed to list job postings", err)
			return
		}
		c.JSON(http.StatusOK, jobs)
	}
}

// GetJobPosting returns one posting
func GetJobPosting(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		job, err := services.JobPostingRepository().GetByID(c.Request.Context(), id)
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(c, models.NotFound(models.ErrCodePostingNotFound, "Job posting not found"))
			return
		}
		if err != nil {
			respondInternal(c, services, "Failed to load job posting", err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// ownedPosting loads a posting the caller may change. Admins may change any.
func ownedPosting(c *gin.Context, services interfaces.Services) (*database.JobPosting, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}

	job, err := services.JobPostingRepository().GetByID(c.Request.Context(), id)
	if errors.Is(err, repositories.ErrNotFound) {
		respondError(c, models.NotFound(models.ErrCodePostingNotFound, "Job posting not found"))
		return nil, false
	}
	if err != nil {
		respondInternal(c, services, "Failed to load job posting", err)
		return nil, false
	}

	claims := currentClaims(c)
	if job.RecruiterID != claims.UserID && claims.Role != "admin" {
		respondError(c, models.NewAPIError(models.ErrCodeNotOwner, "Not authorized to modify this job posting", http.StatusForbidden))
		return nil, false
	}
	return job, true
}

// UpdateJobPosting applies the fields present in the body
func UpdateJobPosting(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := ownedPosting(c, services)
		if !ok {
			return
		}

		var patch models.JobPostingPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			respondError(c, bindingError(err))
			return
		}

		if patch.Title != nil {
			job.Title = *patch.Title
		}
		if patch.Location != nil {
			job.Location = *patch.Location
		}
		if patch.Type != nil {
			job.Type = *patch.Type
		}
		if patch.ExperienceLevel != nil {
			job.ExperienceLevel = *patch.ExperienceLevel
		}
		if patch.SalaryRange != nil {
			job.SalaryRange = *patch.SalaryRange
		}
		if patch.Description != nil {
			job.Description = *patch.Description
		}
		if len(patch.Skills) > 0 {
			job.Skills = patch.Skills
		}

		ctx := c.Request.Context()
		if err := services.JobPostingRepository().Update(ctx, job); err != nil {
			respondInternal(c, services, "Failed to update job posting", err)
			return
		}
		updated, err := services.JobPostingRepository().GetByID(ctx, job.ID)
		if err != nil {
			respondInternal(c, services, "Failed to load job posting", err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

// DeleteJobPosting removes a posting
func DeleteJobPosting(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := ownedPosting(c, services)
		if !ok {
			return
		}

		if err := services.JobPostingRepository().Delete(c.Request.Context(), job.ID); err != nil {
			respondInternal(c, services, "Failed to delete job posting", err)
			return
		}

		createAuditLog(c.Request.Context(), services, "job_posting_deleted",
			strconv.FormatInt(currentClaims(c).UserID, 10), fmt.Sprintf("job posting %d", job.ID), getClientIP(c))
		c.Status(http.StatusNoContent)
	}
}

// SubmitApplication records a candidate's application
func SubmitApplication(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ApplicationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, bindingError(err))
			return
		}

		ctx := c.Request.Context()
		if _, err := services.JobPostingRepository().GetByID(ctx, req.JobPostingID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				respondError(c, models.NotFound(models.ErrCodePostingNotFound, "Job posting not found"))
				return
			}
			respondInternal(c, services, "Failed to load job posting", err)
			return
		}

		app := &database.JobApplication{
			JobPostingID:      req.JobPostingID,
			UserID:            currentClaims(c).UserID,
			FullName:          req.FullName,
			Email:             req.Email,
			Phone:             req.Phone,
			CoverLetter:       req.CoverLetter,
			YearsOfExperience: req.YearsOfExperience,
			ExpectedSalary:    req.ExpectedSalary,
			ResumeURL:         req.ResumeURL,
			CreatedAt:         time.Now().UTC(),
		}
		if err := services.ApplicationRepository().CreateApplication(ctx, app); err != nil {
			respondInternal(c, services, "Failed to submit application", err)
			return
		}
		c.JSON(http.StatusCreated, app)
	}
}

// UploadResume stores a multipart resume file and records its metadata
func UploadResume(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxResumeSize+1<<20)

		header, err := c.FormFile("file")
		if err != nil {
			respondError(c, models.NewAPIError(models.ErrCodeInvalidUpload, "A resume file is required", http.StatusUnprocessableEntity))
			return
		}
		ext := strings.ToLower(filepath.Ext(header.Filename))
		if !resumeExtensions[ext] {
			respondError(c, models.NewAPIError(models.ErrCodeInvalidUpload, "Resume must be a PDF or Word document", http.StatusUnprocessableEntity))
			return
		}
		if header.Size > maxResumeSize {
			respondError(c, models.NewAPIError(models.ErrCodeInvalidUpload, "Resume must be at most 5 MB", http.StatusRequestEntityTooLarge))
			return
		}

		claims := currentClaims(c)
		candidateID := claims.UserID
		if raw := c.PostForm("candidate_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				respondError(c, models.BadRequest("Invalid candidate_id"))
				return
			}
			if id != claims.UserID && claims.Role != "admin" {
				respondError(c, models.Forbidden("Cannot upload a resume for another candidate"))
				return
			}
			candidateID = id
		}

		dir := services.GetConfig().Server.UploadDir
		if err := os.MkdirAll(dir, 0o755); err != nil {
			respondInternal(c, services, "Failed to store resume", err)
			return
		}
		dest := filepath.Join(dir, uuid.NewString()+ext)
		if err := c.SaveUploadedFile(header, dest); err != nil {
			respondInternal(c, services, "Failed to store resume", err)
			return
		}

		resume := &database.Resume{
			CandidateID: candidateID,
			FileName:    filepath.Base(header.Filename),
			FilePath:    dest,
			SizeBytes:   header.Size,
			UploadedAt:  time.Now().UTC(),
		}
		if err := services.ApplicationRepository().CreateResume(c.Request.Context(), resume); err != nil {
			os.Remove(dest)
			respondInternal(c, services, "Failed to record resume", err)
			return
		}
		c.JSON(http.StatusCreated, resume)
	}
}
