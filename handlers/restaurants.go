package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/foodtrust/foodtrust_backend/models"
)

func (h *Handler) registerRestaurant(c *gin.Context) {
	var input models.NewRestaurant
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request")
		return
	}
	reg, err := h.engine.RegisterRestaurant(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reg)
}

func (h *Handler) listRestaurants(c *gin.Context) {
	list, err := h.engine.ListRestaurants(c.Request.Context(), c.Query("name"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restaurants": list})
}

// searchRestaurants accepts ?certifications=VEGAN&certifications=HALAL or a
// comma separated list.
func (h *Handler) searchRestaurants(c *gin.Context) {
	var codes []string
	for _, v := range c.QueryArray("certifications") {
		codes = append(codes, strings.Split(v, ",")...)
	}
	if len(codes) == 0 {
		badRequest(c, "certifications is required")
		return
	}
	results, err := h.engine.SearchByCertifications(c.Request.Context(), codes)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restaurants": results, "total": len(results)})
}

func (h *Handler) getRestaurant(c *gin.Context) {
	view, err := h.engine.GetRestaurantCertifications(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) deleteRestaurant(c *gin.Context) {
	if err := h.engine.DeleteRestaurant(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "restaurant_id": c.Param("id")})
}

type trustlineRequest struct {
	LedgerSecret string `json:"ledger_secret"`
	AssetCode    string `json:"asset_code"`
}

func (h *Handler) establishTrustline(c *gin.Context) {
	var req trustlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	if req.LedgerSecret == "" || req.AssetCode == "" {
		badRequest(c, "ledger_secret and asset_code are required")
		return
	}
	res, err := h.engine.EstablishTrustline(c.Request.Context(), c.Param("id"), req.LedgerSecret, req.AssetCode)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
