package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/api/dto"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
	"github.com/michaeladamstrickland/Convexa-sub009/internal/store"
)

var zipPattern = regexp.MustCompile(`^\d{5}$`)

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger            *slog.Logger
	jobs              JobReader
	enqueuer          JobEnqueuer
	ingestMaxAttempts int
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:            deps.Logger,
		jobs:              deps.Jobs,
		enqueuer:          deps.Enqueuer,
		ingestMaxAttempts: deps.IngestMaxAttempts,
	}
}

// CreateIngestJob handles POST /api/v1/jobs/ingest
// Enqueues a scrape ingestion job for a source and zip code.
func (h *JobHandler) CreateIngestJob(c *gin.Context) {
	var req dto.CreateIngestJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if !domain.IsAllowedScrapeSource(req.Source) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "source must be one of the supported scrape sources",
		})
		return
	}

	if !zipPattern.MatchString(req.Zip) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "zip must be a 5-digit code",
		})
		return
	}

	payload := domain.IngestPayload{
		Source:  req.Source,
		Zip:     req.Zip,
		Filters: req.Filters,
	}

	jobID, err := h.enqueuer.Enqueue(c.Request.Context(), domain.JobTypeIngest, payload, h.ingestMaxAttempts)
	if err != nil {
		h.logger.Error("Failed to enqueue ingestion job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.CreateJobResponse{
		JobID:  jobID,
		Status: domain.JobStatusQueued,
	})
}

// CreateMatchmakingJob handles POST /api/v1/jobs/matchmake
// Enqueues a matchmaking run over the record base.
func (h *JobHandler) CreateMatchmakingJob(c *gin.Context) {
	var req dto.CreateMatchmakingJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if req.Source != "" && !domain.IsAllowedScrapeSource(req.Source) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "source must be one of the supported scrape sources",
		})
		return
	}

	if req.MinScore != nil && (*req.MinScore < 0 || *req.MinScore > 100) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "min_score must be between 0 and 100",
		})
		return
	}

	payload := domain.MatchmakePayload{
		MinScore:    req.MinScore,
		Source:      req.Source,
		RecordID:    req.RecordID,
		TriggeredBy: "manual",
	}

	jobID, err := h.enqueuer.Enqueue(c.Request.Context(), domain.JobTypeMatchmake, payload, 1)
	if err != nil {
		h.logger.Error("Failed to enqueue matchmaking job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.CreateJobResponse{
		JobID:  jobID,
		Status: domain.JobStatusQueued,
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Retrieves detailed information about a specific job
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, jobToDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs with optional filtering and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.jobs.ListJobs(c.Request.Context(), store.JobFilter{
		JobType:  req.JobType,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	response := dto.ListJobsResponse{
		Jobs: make([]dto.JobDTO, len(jobs)),
	}
	for i := range jobs {
		response.Jobs[i] = *jobToDTO(&jobs[i])
	}

	if hasMore {
		last := jobs[len(jobs)-1]
		response.NextCursor = EncodeCursor(&domain.ListCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	c.JSON(http.StatusOK, response)
}

func jobToDTO(job *domain.Job) *dto.JobDTO {
	out := &dto.JobDTO{
		JobID:          job.ID,
		JobType:        job.Type,
		Payload:        job.Payload,
		Status:         job.Status,
		Attempt:        job.Attempt,
		MaxAttempts:    job.MaxAttempts,
		PreviousErrors: job.PreviousErrors,
		Result:         job.Result,
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      job.UpdatedAt.Format(time.RFC3339),
	}
	if job.StartedAt != nil {
		out.StartedAt = job.StartedAt.Format(time.RFC3339)
	}
	if job.FinishedAt != nil {
		out.FinishedAt = job.FinishedAt.Format(time.RFC3339)
	}
	return out
}
