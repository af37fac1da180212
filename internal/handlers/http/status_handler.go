package http

import (
	"net/http"
	"strconv"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/internal/core/services"
	"huddle/internal/infrastructure/monitoring"
	"huddle/internal/infrastructure/signal"

	"github.com/gin-gonic/gin"
)

// StatusHandler exposes the operational HTTP surface next to the websocket
// endpoint: health, runtime counters, metrics and the location history API.
type StatusHandler struct {
	hub       *signal.Hub
	groups    *services.GroupService
	locations *services.LocationService
	health    *monitoring.HealthChecker

	wsHandler      http.HandlerFunc
	metricsHandler http.Handler
}

func NewStatusHandler(
	hub *signal.Hub,
	groups *services.GroupService,
	locations *services.LocationService,
	health *monitoring.HealthChecker,
	wsHandler http.HandlerFunc,
	metricsHandler http.Handler,
) *StatusHandler {
	return &StatusHandler{
		hub:            hub,
		groups:         groups,
		locations:      locations,
		health:         health,
		wsHandler:      wsHandler,
		metricsHandler: metricsHandler,
	}
}

// SetupRoutes registers the HTTP surface. Middleware listed in
// apiMiddleware applies to the /api/v1 group only, not to health, metrics
// or the websocket endpoint.
func (h *StatusHandler) SetupRoutes(router *gin.Engine, apiMiddleware ...gin.HandlerFunc) {
	router.GET("/healthz", h.Healthz)
	router.GET("/status", h.Status)
	router.GET("/ws", gin.WrapF(h.wsHandler))

	if h.metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(h.metricsHandler))
	}

	api := router.Group("/api/v1")
	api.Use(apiMiddleware...)
	{
		api.GET("/groups/:id/locations", h.GroupLocationHistory)
	}
}

func (h *StatusHandler) Healthz(c *gin.Context) {
	status := h.health.CheckAll(c.Request.Context())

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *StatusHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connections": h.hub.Count(),
		"rooms":       h.groups.RoomCount(),
		"timestamp":   time.Now().Unix(),
	})
}

// GroupLocationHistory reads the durable location log for a group.
// Supported query parameters: user, since, until (RFC 3339) and limit.
func (h *StatusHandler) GroupLocationHistory(c *gin.Context) {
	groupID := domain.GroupID(c.Param("id"))
	if groupID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group id is required"})
		return
	}

	var q ports.LocationQuery
	q.UserID = domain.UserID(c.Query("user"))

	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since timestamp"})
			return
		}
		q.Since = &t
	}
	if raw := c.Query("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid until timestamp"})
			return
		}
		q.Until = &t
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		q.Limit = limit
	}

	samples, err := h.locations.GetLocationHistory(c.Request.Context(), groupID, q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "location history lookup failed"})
		return
	}
	if samples == nil {
		samples = []*domain.LocationSample{}
	}

	c.JSON(http.StatusOK, gin.H{
		"group_id": groupID,
		"samples":  samples,
		"count":    len(samples),
	})
}
