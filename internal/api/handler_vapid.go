package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"laundryonline/internal/apperr"
)

// GetVAPIDPublicKey returns the VAPID public key to the client.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.WebPush == nil || h.WebPush.VAPIDPublicKey == "" {
		respondError(c, apperr.Unsupported("api.vapid", "vapid keys are not configured"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"public_key": h.WebPush.VAPIDPublicKey})
}
