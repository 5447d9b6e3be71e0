package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/genomics-pipeline/internal/api/dto"
	"github.com/cuongbtq/genomics-pipeline/internal/bus"
	"github.com/cuongbtq/genomics-pipeline/internal/consumer"
	"github.com/cuongbtq/genomics-pipeline/internal/domain"
	"github.com/gin-gonic/gin"
)

// Poller drains one batch from a queue
type Poller interface {
	PollOnce(ctx context.Context) (consumer.Result, error)
}

// SubscriptionConfirmer completes the subscription handshake
type SubscriptionConfirmer interface {
	Confirm(ctx context.Context, env bus.Envelope) error
}

// RetrievalCompleter restores a retrieved archive
type RetrievalCompleter interface {
	Complete(ctx context.Context, completion domain.RetrievalCompletion) error
}

// WebhookDependencies holds what the push endpoints need
type WebhookDependencies struct {
	Logger      *slog.Logger
	ServiceName string
	Confirmer   SubscriptionConfirmer
	JobRequests Poller
	Restores    Poller
	Completer   RetrievalCompleter
}

// WebhookHandler turns push notifications into queue polls
type WebhookHandler struct {
	logger    *slog.Logger
	confirmer SubscriptionConfirmer
	requests  Poller
	restores  Poller
	completer RetrievalCompleter
}

// NewWebhookHandler creates a new WebhookHandler instance
func NewWebhookHandler(deps *WebhookDependencies) *WebhookHandler {
	return &WebhookHandler{
		logger:    deps.Logger,
		confirmer: deps.Confirmer,
		requests:  deps.JobRequests,
		restores:  deps.Restores,
		completer: deps.Completer,
	}
}

// ProcessJobRequest handles POST /process-job-request
// A notification triggers one poll of the job request queue
func (h *WebhookHandler) ProcessJobRequest(c *gin.Context) {
	h.handle(c, func(ctx context.Context, _ bus.Envelope) (dto.WebhookResponse, int) {
		return h.poll(ctx, h.requests)
	})
}

// Restore handles POST /restore
// A notification carrying a retrieval completion is restored directly;
// any other notification triggers one poll of the restore queue
func (h *WebhookHandler) Restore(c *gin.Context) {
	h.handle(c, func(ctx context.Context, env bus.Envelope) (dto.WebhookResponse, int) {
		completion, err := domain.Decode[domain.RetrievalCompletion]([]byte(env.Message))
		if err != nil || h.completer == nil {
			return h.poll(ctx, h.restores)
		}

		resp := dto.WebhookResponse{Type: bus.TypeNotification, Received: 1}
		err = h.completer.Complete(ctx, completion)
		switch consumer.Classify(err) {
		case consumer.Delete:
			resp.Deleted = 1
			return resp, http.StatusOK
		case consumer.Reject:
			h.logger.Error("Retrieval completion rejected",
				slog.String("job_id", completion.JobDescription),
				slog.String("error", err.Error()),
			)
			resp.Rejected = 1
			return resp, http.StatusOK
		default:
			h.logger.Error("Retrieval completion failed",
				slog.String("job_id", completion.JobDescription),
				slog.String("error", err.Error()),
			)
			resp.Released = 1
			return resp, http.StatusInternalServerError
		}
	})
}

type notificationFunc func(ctx context.Context, env bus.Envelope) (dto.WebhookResponse, int)

func (h *WebhookHandler) handle(c *gin.Context, onNotification notificationFunc) {
	body, err := c.GetRawData()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Failed to read body")
		return
	}

	env, err := bus.ParseEnvelope(body)
	if err != nil {
		h.logger.Error("Invalid envelope", slog.String("error", err.Error()))
		abortWithError(c, http.StatusBadRequest, "Invalid envelope")
		return
	}

	msgType := c.GetHeader(bus.HeaderMessageType)
	if msgType == "" {
		msgType = env.Type
	}

	ctx := c.Request.Context()
	switch msgType {
	case bus.TypeSubscriptionConfirmation:
		if err := h.confirmer.Confirm(ctx, env); err != nil {
			h.logger.Error("Failed to confirm subscription",
				slog.String("topic", env.Topic),
				slog.String("error", err.Error()),
			)
			abortWithError(c, http.StatusBadGateway, "Failed to confirm subscription")
			return
		}
		c.JSON(http.StatusOK, dto.WebhookResponse{Type: msgType})

	case bus.TypeUnsubscribeConfirmation:
		h.logger.Warn("Subscription removed", slog.String("topic", env.Topic))
		c.JSON(http.StatusOK, dto.WebhookResponse{Type: msgType})

	case bus.TypeNotification:
		resp, status := onNotification(ctx, env)
		c.JSON(status, resp)

	default:
		abortWithError(c, http.StatusBadRequest, "Unknown message type")
	}
}

func (h *WebhookHandler) poll(ctx context.Context, poller Poller) (dto.WebhookResponse, int) {
	if poller == nil {
		h.logger.Warn("Notification ignored, no queue to poll")
		return dto.WebhookResponse{Type: bus.TypeNotification}, http.StatusBadRequest
	}

	result, err := poller.PollOnce(ctx)
	if err != nil {
		h.logger.Error("Failed to poll queue", slog.String("error", err.Error()))
		return dto.WebhookResponse{Type: bus.TypeNotification}, http.StatusInternalServerError
	}

	return dto.WebhookResponse{
		Type:     bus.TypeNotification,
		Received: result.Received,
		Deleted:  result.Deleted,
		Released: result.Released,
		Rejected: result.Rejected,
	}, http.StatusOK
}
