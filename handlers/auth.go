package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/foodtrust/foodtrust_backend/middlewares"
	"github.com/foodtrust/foodtrust_backend/models"
	"github.com/foodtrust/foodtrust_backend/utils"
)

func (h *Handler) registerUser(c *gin.Context) {
	var input models.NewUser
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request")
		return
	}
	actor := models.UserRoleConsumer
	if role, ok := utils.GetRoleFromContext(c.Request.Context()); ok {
		actor = models.UserRole(role)
	}
	user, err := h.engine.RegisterUser(c.Request.Context(), input, actor)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) login(c *gin.Context) {
	var input models.LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request")
		return
	}
	info, err := h.engine.Login(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) logout(c *gin.Context) {
	claim := middlewares.CtxValue(c.Request.Context())
	token, _ := utils.GetTokenFromContext(c.Request.Context())
	ttl := time.Until(time.Unix(claim.ExpiresAt, 0))
	if err := h.sessions.Revoke(c.Request.Context(), token, ttl); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logged_out": true})
}

func (h *Handler) me(c *gin.Context) {
	claim := middlewares.CtxValue(c.Request.Context())
	user, err := h.engine.GetUser(c.Request.Context(), claim.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) updateMe(c *gin.Context) {
	var input models.UpdateUser
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request")
		return
	}
	claim := middlewares.CtxValue(c.Request.Context())
	user, err := h.engine.UpdateMe(c.Request.Context(), claim.ID, input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.engine.ListUsers(c.Request.Context(), c.Query("name"), c.Query("email"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": len(users)})
}

// getUser returns any user to an admin and only the caller's own record otherwise.
func (h *Handler) getUser(c *gin.Context) {
	claim := middlewares.CtxValue(c.Request.Context())
	id := c.Param("id")
	if claim.ID != id && models.UserRole(claim.Role) != models.UserRoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		return
	}
	user, err := h.engine.GetUser(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) deleteUser(c *gin.Context) {
	claim := middlewares.CtxValue(c.Request.Context())
	if err := h.engine.DeleteUser(c.Request.Context(), claim.ID, models.UserRole(claim.Role), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
