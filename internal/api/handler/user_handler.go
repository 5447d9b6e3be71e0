package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/genomics-pipeline/internal/api/dto"
	"github.com/cuongbtq/genomics-pipeline/internal/domain"
	"github.com/gin-gonic/gin"
)

// Upgrade handles POST /api/v1/users/:user_id/upgrade
// Moves the user to the premium tier and announces the upgrade so archived
// results are restored
func (h *UserHandler) Upgrade(c *gin.Context) {
	userID := c.Param("user_id")
	ctx := c.Request.Context()

	if err := h.accounts.SetTier(ctx, userID, domain.TierPremium); err != nil {
		h.logger.Error("Failed to set tier", slog.String("user_id", userID), slog.String("error", err.Error()))
		abortWithError(c, http.StatusInternalServerError, "Failed to upgrade user")
		return
	}

	if err := h.publisher.Publish(ctx, h.topic, domain.UpgradeEvent{UserID: userID}); err != nil {
		h.logger.Error("Failed to publish upgrade event", slog.String("user_id", userID), slog.String("error", err.Error()))
		abortWithError(c, http.StatusInternalServerError, "Failed to upgrade user")
		return
	}

	h.logger.Info("User upgraded", slog.String("user_id", userID))
	c.JSON(http.StatusOK, dto.UpgradeResponse{UserID: userID, Tier: string(domain.TierPremium)})
}
