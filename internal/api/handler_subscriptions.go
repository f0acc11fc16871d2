package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"laundryonline/internal/model"
)

type putPushSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

type deletePushSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// GetMachineSubscription handles GET /api/machines/:id/subscription.
func (h *Handler) GetMachineSubscription(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.Store.Get(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	ids, err := h.Store.SubscribedMachines(c.Request.Context(), identity(c).UID)
	if err != nil {
		respondError(c, err)
		return
	}
	subscribed := false
	for _, m := range ids {
		if m == id {
			subscribed = true
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"machineId": id, "subscribed": subscribed})
}

// PutMachineSubscription handles PUT /api/machines/:id/subscription.
func (h *Handler) PutMachineSubscription(c *gin.Context) {
	id := c.Param("id")
	if err := h.Store.AddSubscriber(c.Request.Context(), id, identity(c).UID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"machineId": id, "subscribed": true})
}

// DeleteMachineSubscription handles DELETE /api/machines/:id/subscription.
func (h *Handler) DeleteMachineSubscription(c *gin.Context) {
	if err := h.Store.RemoveSubscriber(c.Request.Context(), c.Param("id"), identity(c).UID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/subscriptions.
func (h *Handler) ListSubscriptions(c *gin.Context) {
	ids, err := h.Store.SubscribedMachines(c.Request.Context(), identity(c).UID)
	if err != nil {
		respondError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"subscribedMachines": ids})
}

// PutPushSubscription handles the creation or replacement of a browser
// push endpoint for the caller.
func (h *Handler) PutPushSubscription(c *gin.Context) {
	var req putPushSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	err := h.Store.SavePushSubscription(c.Request.Context(), model.PushSubscription{
		Endpoint: req.Endpoint,
		UserID:   identity(c).UID,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

// DeletePushSubscription handles the deletion of a push endpoint.
func (h *Handler) DeletePushSubscription(c *gin.Context) {
	var req deletePushSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.Store.DeletePushSubscription(c.Request.Context(), req.Endpoint); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
