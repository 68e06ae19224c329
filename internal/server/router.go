// Package server exposes the HTTP surface: the presence websocket, manual rule triggers,
// notification history, metrics and health.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"eventRelay/internal/automation"
	"eventRelay/internal/model"
	"eventRelay/internal/storage"
)

// UserHeader carries the authenticated caller id, set by the fronting gateway.
const UserHeader = "X-User-ID"

const defaultListLimit = 50

// Triggerer runs a rule on demand.
type Triggerer interface {
	TriggerRule(ctx context.Context, ruleID, userID string, testEvent *model.BlockchainEvent) (automation.TriggerResult, error)
}

// Deps are the components the router serves.
type Deps struct {
	WS            gin.HandlerFunc
	Triggerer     Triggerer
	Notifications storage.NotificationStore
	Gatherer      prometheus.Gatherer
	Logger        *zap.Logger
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type handler struct {
	triggerer     Triggerer
	notifications storage.NotificationStore
	logger        *zap.Logger
}

func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{
		triggerer:     deps.Triggerer,
		notifications: deps.Notifications,
		logger:        logger,
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	if deps.WS != nil {
		r.GET("/ws", deps.WS)
	}

	api := r.Group("/v1", requireUser)
	{
		api.POST("/rules/:id/trigger", h.TriggerRule)
		api.GET("/notifications", h.ListNotifications)
	}
	return r
}

func requireUser(c *gin.Context) {
	if c.GetHeader(UserHeader) == "" {
		writeAPIError(c, http.StatusUnauthorized, "missing "+UserHeader+" header")
		c.Abort()
		return
	}
	c.Next()
}

// TriggerRule executes a rule manually. The body, when present, is a test event.
func (h *handler) TriggerRule(c *gin.Context) {
	userID := c.GetHeader(UserHeader)
	ruleID := c.Param("id")

	var testEvent *model.BlockchainEvent
	if c.Request.ContentLength > 0 {
		var event model.BlockchainEvent
		if err := c.ShouldBindJSON(&event); err != nil {
			writeAPIError(c, http.StatusBadRequest, "invalid test event: "+err.Error())
			return
		}
		testEvent = &event
	}

	result, err := h.triggerer.TriggerRule(c.Request.Context(), ruleID, userID, testEvent)
	if err != nil {
		if errors.Is(err, automation.ErrRuleNotFound) {
			writeAPIError(c, http.StatusNotFound, "rule not found")
			return
		}
		h.logger.Error("manual trigger failed", zap.String("rule_id", ruleID), zap.String("user_id", userID), zap.Error(err))
		writeAPIError(c, http.StatusInternalServerError, "trigger failed")
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListNotifications returns the caller's notifications, newest first.
func (h *handler) ListNotifications(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeAPIError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	items, err := h.notifications.ListNotifications(c.Request.Context(), c.GetHeader(UserHeader), limit)
	if err != nil {
		h.logger.Error("list notifications failed", zap.Error(err))
		writeAPIError(c, http.StatusInternalServerError, "list failed")
		return
	}
	if items == nil {
		items = []model.Notification{}
	}
	c.JSON(http.StatusOK, items)
}

func writeAPIError(c *gin.Context, status int, msg string) {
	c.JSON(status, ErrorResponse{Error: msg})
}
