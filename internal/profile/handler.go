package profile

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/maqua/membership-api/internal/logger"
)

// Lookuper resolves a query key to a member profile.
type Lookuper interface {
	Lookup(ctx context.Context, identifier string) (*Profile, error)
}

// Handler exposes the lookup over HTTP.
type Handler struct {
	service Lookuper
	log     *logger.Logger
}

func NewHandler(service Lookuper, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Production()
	}
	return &Handler{service: service, log: log}
}

type lookupRequest struct {
	Identifier string `json:"identifier"`
}

// Lookup handles POST /api/profile. The upstream gateway is only contacted
// once the identifier passes validation; upstream failures surface as an
// opaque 502 with the cause kept in the server log.
func (h *Handler) Lookup(c *gin.Context) {
	var req lookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"found":   false,
			"message": "請輸入客戶編碼、電話或姓名",
		})
		return
	}

	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"found":   false,
			"message": "請輸入客戶編碼、電話或姓名",
		})
		return
	}

	profile, err := h.service.Lookup(c.Request.Context(), identifier)
	if err != nil {
		var ambiguous *AmbiguousError
		var notFound *NotFoundError
		switch {
		case errors.Is(err, ErrEmptyQuery):
			c.JSON(http.StatusBadRequest, gin.H{
				"found":   false,
				"message": "請輸入客戶編碼、電話或姓名",
			})
		case errors.As(err, &ambiguous):
			c.JSON(http.StatusOK, gin.H{
				"found":   false,
				"code":    "CHOICES",
				"message": ambiguous.Message,
				"matches": ambiguous.Matches,
				"keyword": identifier,
			})
		case errors.As(err, &notFound):
			c.JSON(http.StatusNotFound, gin.H{
				"found":   false,
				"message": notFound.Message,
			})
		default:
			h.log.WithError(err).Error("Member profile lookup failed", "keyword", identifier)
			c.JSON(http.StatusBadGateway, gin.H{
				"found":   false,
				"message": "查詢時發生錯誤，請稍後再試。",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"found":   true,
		"profile": profile,
	})
}
