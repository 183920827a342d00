package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maqua/membership-api/internal/logger"
)

type Handler struct {
	gate *Gate
	log  *logger.Logger
}

func NewHandler(log *logger.Logger, gate *Gate) *Handler {
	if log == nil {
		log = logger.Production()
	}
	return &Handler{
		gate: gate,
		log:  log,
	}
}

type sessionRequest struct {
	Password   string    `json:"password" binding:"required"`
	Expiration *Duration `json:"expiration,omitempty"`
}

// CreateSession handles POST /api/session. It exchanges the gate password
// for a short-lived bearer token.
func (h *Handler) CreateSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "password is required"})
		return
	}

	if !h.gate.CheckPassword(req.Password) {
		h.log.Warn("Session request with wrong password", "remote_addr", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "wrong password"})
		return
	}

	var ttl Duration
	if req.Expiration != nil {
		if req.Expiration.Duration < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "expiration must be positive"})
			return
		}
		ttl = *req.Expiration
	}

	session, err := h.gate.Issue(ttl.Duration)
	if err != nil {
		h.log.Error("Failed to issue session token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to issue session token"})
		return
	}

	c.JSON(http.StatusCreated, session)
}
