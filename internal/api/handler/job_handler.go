package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/genomics-pipeline/internal/api/dto"
	"github.com/cuongbtq/genomics-pipeline/internal/domain"
	"github.com/cuongbtq/genomics-pipeline/internal/jobstore"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CreateJob handles POST /api/v1/jobs
// Records a PENDING job for an uploaded input and requests its annotation
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		abortWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	job, err := h.submitter.Submit(c.Request.Context(), req.Bucket, req.Key)
	if err != nil {
		h.logger.Error("Failed to submit job",
			slog.String("s3_key_input_file", req.Key),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, domain.ErrMissingAttachment):
			abortWithError(c, http.StatusConflict, "No file was attached to the upload")
		case domain.KindOf(err) == domain.KindMalformed:
			abortWithError(c, http.StatusBadRequest, "Upload key must be <user_id>/<job_id>~<filename>")
		default:
			abortWithError(c, http.StatusInternalServerError, "Failed to submit job")
		}
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job, false))
}

// GetJob handles GET /api/v1/jobs/:job_id
// Retrieves a job including whether its result is archived
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to get job", slog.String("job_id", jobID), slog.String("error", err.Error()))
		abortWithError(c, statusFor(err), "Failed to get job")
		return
	}

	restoring := false
	if job.IsArchived() {
		tier, err := h.accounts.Tier(c.Request.Context(), job.UserID)
		if err != nil {
			h.logger.Error("Failed to get user tier", slog.String("user_id", job.UserID), slog.String("error", err.Error()))
			abortWithError(c, http.StatusInternalServerError, "Failed to get job")
			return
		}
		restoring = tier.IsPremium()
	}

	c.JSON(http.StatusOK, toJobDTO(job, restoring))
}

// GetJobLog handles GET /api/v1/jobs/:job_id/log
// Streams the annotation log from the hot tier
func (h *JobHandler) GetJobLog(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to get job", slog.String("job_id", jobID), slog.String("error", err.Error()))
		abortWithError(c, statusFor(err), "Failed to get job")
		return
	}

	if job.Status != domain.JobStatusCompleted || job.LogKey == nil || job.ResultsBucket == nil {
		abortWithError(c, http.StatusNotFound, "Job has no log yet")
		return
	}

	data, err := h.artifacts.Get(c.Request.Context(), *job.ResultsBucket, *job.LogKey)
	if err != nil {
		h.logger.Error("Failed to read job log",
			slog.String("job_id", jobID),
			slog.String("s3_key_log_file", *job.LogKey),
			slog.String("error", err.Error()),
		)
		abortWithError(c, statusFor(err), "Failed to read job log")
		return
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

// GetJobResult handles GET /api/v1/jobs/:job_id/result
// Streams the annotated result while it is in the hot tier
func (h *JobHandler) GetJobResult(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to get job", slog.String("job_id", jobID), slog.String("error", err.Error()))
		abortWithError(c, statusFor(err), "Failed to get job")
		return
	}

	switch {
	case job.Status != domain.JobStatusCompleted:
		abortWithError(c, http.StatusNotFound, "Job has no result yet")
		return
	case !job.HasHotResult() || job.ResultsBucket == nil:
		abortWithError(c, http.StatusNotFound, "Result is archived")
		return
	}

	h.sendArtifact(c, *job.ResultsBucket, *job.ResultKey, domain.ResultFileName(job.InputFileName))
}

// GetJobInput handles GET /api/v1/jobs/:job_id/input
// Streams the uploaded input file
func (h *JobHandler) GetJobInput(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to get job", slog.String("job_id", jobID), slog.String("error", err.Error()))
		abortWithError(c, statusFor(err), "Failed to get job")
		return
	}

	h.sendArtifact(c, job.InputBucket, job.InputKey, job.InputFileName)
}

func (h *JobHandler) sendArtifact(c *gin.Context, bucket, key, fileName string) {
	data, err := h.artifacts.Get(c.Request.Context(), bucket, key)
	if err != nil {
		h.logger.Error("Failed to read artifact",
			slog.String("bucket", bucket),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		abortWithError(c, statusFor(err), "Failed to read file")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// ListJobs handles GET /api/v1/jobs
// Lists one user's jobs, newest first, with cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		abortWithError(c, http.StatusBadRequest, "Invalid query parameters")
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		abortWithError(c, http.StatusBadRequest, "Invalid cursor")
		return
	}

	jobs, err := h.jobs.ListByUser(c.Request.Context(), jobstore.ListFilter{
		UserID:   req.UserID,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		abortWithError(c, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, len(jobs))}
	for i := range jobs {
		resp.Jobs[i] = toJobDTO(&jobs[i], false)
	}

	if hasMore {
		last := jobs[len(jobs)-1]
		resp.NextCursor = EncodeJobCursor(&jobstore.Cursor{
			SubmitTime: last.SubmitTime,
			JobID:      last.JobID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

func toJobDTO(job *domain.Job, restoring bool) dto.JobDTO {
	out := dto.JobDTO{
		JobID:         job.JobID,
		UserID:        job.UserID,
		InputFileName: job.InputFileName,
		InputBucket:   job.InputBucket,
		InputKey:      job.InputKey,
		Status:        job.Status,
		SubmitTime:    time.Unix(job.SubmitTime, 0).UTC().Format(time.RFC3339),
		Archived:      job.IsArchived(),
		Restoring:     restoring,
	}
	if job.CompleteTime != nil {
		out.CompleteTime = time.Unix(*job.CompleteTime, 0).UTC().Format(time.RFC3339)
	}
	if job.ResultsBucket != nil {
		out.ResultsBucket = *job.ResultsBucket
	}
	if job.ResultKey != nil {
		out.ResultKey = *job.ResultKey
	}
	if job.LogKey != nil {
		out.LogKey = *job.LogKey
	}
	return out
}
