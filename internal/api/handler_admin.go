package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"laundryonline/internal/admin"
)

// CreateMachine handles POST /api/admin/machines.
func (h *Handler) CreateMachine(c *gin.Context) {
	var req admin.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.Admin.CreateMachine(c.Request.Context(), identity(c).UID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// UpdateMachineStatus handles PATCH /api/admin/machines/:id/status.
func (h *Handler) UpdateMachineStatus(c *gin.Context) {
	var req admin.StatusUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.Admin.UpdateStatus(c.Request.Context(), identity(c).UID, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// DeleteMachine handles DELETE /api/admin/machines/:id.
func (h *Handler) DeleteMachine(c *gin.Context) {
	if err := h.Admin.DeleteMachine(c.Request.Context(), identity(c).UID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
