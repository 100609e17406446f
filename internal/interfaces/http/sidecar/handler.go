// Package sidecar serves the loopback identity token endpoint that deployed
// processes call. It is used locally and in tests in place of the platform
// sidecar.
package sidecar

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/modelfarm/internal/infrastructure/strategy"
	"github.com/turtacn/modelfarm/pkg/logger"
)

// Signer mints an identity token scoped to audience.
type Signer interface {
	Sign(audience string) (string, error)
}

// Handler answers identity token requests.
type Handler struct {
	signer Signer
	log    logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(signer Signer, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Handler{signer: signer, log: log}
}

type tokenRequest struct {
	Audience string `json:"audience" binding:"required"`
}

// IssueToken handles POST /getIdentityToken.
func (h *Handler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audience is required"})
		return
	}

	token, err := h.signer.Sign(req.Audience)
	if err != nil {
		h.log.Error(c.Request.Context(), "Failed to sign identity token", err, logger.Fields{"audience": req.Audience})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign identity token"})
		return
	}

	h.log.Debug(c.Request.Context(), "Issued identity token", logger.Fields{"audience": req.Audience})
	c.JSON(http.StatusOK, strategy.SidecarResponse{IdentityToken: token})
}
