package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/genomics-pipeline/internal/artifact"
	"github.com/cuongbtq/genomics-pipeline/internal/bus"
	"github.com/cuongbtq/genomics-pipeline/internal/domain"
	"github.com/cuongbtq/genomics-pipeline/internal/jobstore"
	"github.com/gin-gonic/gin"
)

// JobReader is the subset of the job store the API reads
type JobReader interface {
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	ListByUser(ctx context.Context, filter jobstore.ListFilter) ([]domain.Job, error)
}

// JobSubmitter records a job for an uploaded input
type JobSubmitter interface {
	Submit(ctx context.Context, bucket, key string) (*domain.Job, error)
}

// AccountStore reads and writes user tiers
type AccountStore interface {
	Tier(ctx context.Context, userID string) (domain.Tier, error)
	SetTier(ctx context.Context, userID string, tier domain.Tier) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	ServiceName  string
	Jobs         JobReader
	Submitter    JobSubmitter
	Accounts     AccountStore
	Artifacts    artifact.HotStore
	Publisher    bus.Publisher
	UpgradeTopic string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	jobs      JobReader
	submitter JobSubmitter
	accounts  AccountStore
	artifacts artifact.HotStore
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		jobs:      deps.Jobs,
		submitter: deps.Submitter,
		accounts:  deps.Accounts,
		artifacts: deps.Artifacts,
	}
}

// UserHandler handles account-related HTTP requests
type UserHandler struct {
	logger    *slog.Logger
	accounts  AccountStore
	publisher bus.Publisher
	topic     string
}

// NewUserHandler creates a new UserHandler instance
func NewUserHandler(deps *Dependencies) *UserHandler {
	return &UserHandler{
		logger:    deps.Logger,
		accounts:  deps.Accounts,
		publisher: deps.Publisher,
		topic:     deps.UpgradeTopic,
	}
}

func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// statusFor maps a pipeline error to an HTTP status
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindMalformed:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConditionFailed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
