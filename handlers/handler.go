// Package handlers exposes the certification workflow over HTTP with gin.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/foodtrust/foodtrust_backend/middlewares"
	"github.com/foodtrust/foodtrust_backend/models"
	"github.com/foodtrust/foodtrust_backend/utils"
	"github.com/foodtrust/foodtrust_backend/workflow"
)

const serviceName = "foodtrust-certification"

type Handler struct {
	engine   *workflow.Engine
	sessions *middlewares.Sessions
	gatherer prometheus.Gatherer
	logger   *logrus.Logger
	info     gin.H
}

// New builds the HTTP surface. sessions and gatherer may be nil.
func New(engine *workflow.Engine, sessions *middlewares.Sessions, gatherer prometheus.Gatherer, logger *logrus.Logger, info gin.H) *Handler {
	return &Handler{engine: engine, sessions: sessions, gatherer: gatherer, logger: logger, info: info}
}

// Register mounts every route on r. AuthMiddleware must already be installed.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/", h.serviceInfo)
	if h.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	admin := middlewares.RequireRole(models.UserRoleAdmin)
	auditor := middlewares.RequireRole(models.UserRoleAuditor)
	authenticated := middlewares.RequireRole(models.UserRoleAdmin, models.UserRoleAuditor, models.UserRoleRestaurant, models.UserRoleConsumer)

	auth := r.Group("/auth")
	auth.POST("/register", h.registerUser)
	auth.POST("/login", h.login)
	auth.POST("/logout", authenticated, h.logout)
	auth.GET("/me", authenticated, h.me)
	auth.PUT("/me", authenticated, h.updateMe)

	users := r.Group("/users")
	users.GET("", admin, h.listUsers)
	users.GET("/:id", authenticated, h.getUser)
	users.DELETE("/:id", authenticated, h.deleteUser)

	restaurants := r.Group("/restaurants")
	restaurants.POST("", h.registerRestaurant)
	restaurants.GET("", h.listRestaurants)
	restaurants.GET("/search", h.searchRestaurants)
	restaurants.GET("/:id", h.getRestaurant)
	restaurants.DELETE("/:id", admin, h.deleteRestaurant)
	restaurants.POST("/:id/trustline", h.establishTrustline)

	auditors := r.Group("/auditors")
	auditors.POST("", admin, h.registerAuditor)
	auditors.GET("", h.listAuditors)
	auditors.GET("/:id", h.getAuditor)
	auditors.GET("/:id/stats", h.auditorStats)
	auditors.POST("/:id/activate", admin, h.setAuditorActive(true))
	auditors.POST("/:id/deactivate", admin, h.setAuditorActive(false))

	certs := r.Group("/certifications")
	certs.POST("/request", middlewares.RequireRole(models.UserRoleAdmin, models.UserRoleRestaurant), h.requestCertification)
	certs.GET("/pending", middlewares.RequireRole(models.UserRoleAdmin, models.UserRoleAuditor), h.listPending)
	certs.GET("/restaurant/:restaurantId", h.restaurantCertifications)
	certs.GET("/:id", h.getCertification)
	certs.POST("/:id/approve", auditor, h.approve)
	certs.POST("/:id/reject", auditor, h.reject)
	certs.GET("/:id/issuance", admin, h.checkIssuance)
}

func (h *Handler) serviceInfo(c *gin.Context) {
	body := gin.H{"service": serviceName}
	for k, v := range h.info {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// statusFor maps an engine error category to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, workflow.ErrInvalidCredentials) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, workflow.ErrIssuanceInProgress) {
		return http.StatusServiceUnavailable
	}
	switch workflow.Classify(err) {
	case workflow.CategoryNotFound:
		return http.StatusNotFound
	case workflow.CategoryConflict:
		return http.StatusConflict
	case workflow.CategoryUnauthorized:
		return http.StatusForbidden
	case workflow.CategoryUpstreamFailure:
		return http.StatusBadGateway
	case workflow.CategoryInvalidInput:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error(), "category": workflow.Classify(err).String()}
	if status == http.StatusInternalServerError {
		// internal details stay in the log
		_ = c.Error(err)
		body["error"] = "internal server error"
	}
	if workflow.Classify(err) == workflow.CategoryUpstreamFailure {
		body["retryable"] = workflow.Retryable(err)
	}
	if id, ok := utils.GetCorrelationIdFromContext(c.Request.Context()); ok {
		body["correlation_id"] = id
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "category": workflow.CategoryInvalidInput.String()})
}
