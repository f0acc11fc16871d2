package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"laundryonline/internal/apperr"
	"laundryonline/internal/messaging"
	"laundryonline/internal/notification"
)

type permissionRequest struct {
	Notifications string `json:"notifications"`
	Messaging     string `json:"messaging"`
}

// ListNotifications handles GET /api/notifications, newest first.
func (h *Handler) ListNotifications(c *gin.Context) {
	inbox := h.Dispatcher.Inbox()
	list := inbox.List()
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "unread": inbox.Unread()})
}

// MarkNotificationRead handles POST /api/notifications/:id/read.
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	if err := h.Dispatcher.Inbox().MarkRead(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetPermission handles GET /api/notifications/permission.
func (h *Handler) GetPermission(c *gin.Context) {
	c.JSON(http.StatusOK, h.permissions())
}

// PutPermission handles PUT /api/notifications/permission. Omitted fields
// are left as they are.
func (h *Handler) PutPermission(c *gin.Context) {
	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var next, nextMsg notification.Permission
	var err error
	if req.Notifications != "" {
		if next, err = notification.ParsePermission(req.Notifications); err != nil {
			respondError(c, err)
			return
		}
	}
	if req.Messaging != "" {
		if nextMsg, err = notification.ParsePermission(req.Messaging); err != nil {
			respondError(c, err)
			return
		}
	}
	if next != "" {
		h.Dispatcher.Gate().Set(next)
	}
	if nextMsg != "" {
		h.Dispatcher.MessageGate().Set(nextMsg)
	}
	c.JSON(http.StatusOK, h.permissions())
}

func (h *Handler) permissions() gin.H {
	return gin.H{
		"notifications": h.Dispatcher.Gate().State(),
		"messaging":     h.Dispatcher.MessageGate().State(),
	}
}

// GetMessagingToken handles GET /api/messaging/token. It answers 501 when no
// messaging relay is configured.
func (h *Handler) GetMessagingToken(c *gin.Context) {
	if h.Messaging == nil {
		respondError(c, messaging.ErrUnsupported)
		return
	}
	if !h.Dispatcher.MessageGate().Granted() {
		respondError(c, apperr.PermissionDenied("api.messaging_token", "messaging permission has not been granted"))
		return
	}
	token, err := h.Messaging.RequestToken(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
