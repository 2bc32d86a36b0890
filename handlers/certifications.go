package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/foodtrust/foodtrust_backend/models"
	"github.com/foodtrust/foodtrust_backend/utils"
)

func (h *Handler) requestCertification(c *gin.Context) {
	var input models.NewCertificationRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	if !mayRequestFor(c, strings.TrimSpace(input.RestaurantId)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "token is not bound to this restaurant"})
		return
	}
	cert, err := h.engine.Request(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cert)
}

func (h *Handler) listPending(c *gin.Context) {
	pending, err := h.engine.ListPending(c.Request.Context(), c.Query("cert_type"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"certifications": pending, "total": len(pending)})
}

func (h *Handler) restaurantCertifications(c *gin.Context) {
	view, err := h.engine.GetRestaurantCertifications(c.Request.Context(), c.Param("restaurantId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) getCertification(c *gin.Context) {
	detail, err := h.engine.GetCertification(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// mayRequestFor lets admins request for any restaurant and restaurant users
// only for the restaurant their token is bound to.
func mayRequestFor(c *gin.Context, restaurantId string) bool {
	role, _ := utils.GetRoleFromContext(c.Request.Context())
	if models.UserRole(role) == models.UserRoleAdmin {
		return true
	}
	bound, ok := utils.GetRestaurantIdFromContext(c.Request.Context())
	return ok && bound != "" && bound == restaurantId
}

// deciderId is the auditor the caller's token acts for.
func deciderId(c *gin.Context) (string, bool) {
	id, ok := utils.GetAuditorIdFromContext(c.Request.Context())
	return id, ok && id != ""
}

func (h *Handler) approve(c *gin.Context) {
	auditorId, ok := deciderId(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "token is not bound to an auditor"})
		return
	}
	res, err := h.engine.Approve(c.Request.Context(), c.Param("id"), auditorId)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) reject(c *gin.Context) {
	auditorId, ok := deciderId(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "token is not bound to an auditor"})
		return
	}
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	cert, err := h.engine.Reject(c.Request.Context(), c.Param("id"), auditorId, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cert)
}

func (h *Handler) checkIssuance(c *gin.Context) {
	res, err := h.engine.CheckIssuance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
