package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/foodtrust/foodtrust_backend/models"
)

func (h *Handler) registerAuditor(c *gin.Context) {
	var input models.NewAuditor
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request")
		return
	}
	reg, err := h.engine.RegisterAuditor(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reg)
}

func (h *Handler) listAuditors(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active", "false"))
	list, err := h.engine.ListAuditors(c.Request.Context(), activeOnly, c.Query("specialization"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auditors": list})
}

func (h *Handler) getAuditor(c *gin.Context) {
	a, err := h.engine.GetAuditor(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) auditorStats(c *gin.Context) {
	stats, err := h.engine.AuditorStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) setAuditorActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := h.engine.SetAuditorActive(c.Request.Context(), c.Param("id"), active)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}
