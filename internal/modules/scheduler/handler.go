package scheduler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"prodreport/internal/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Handler struct {
	service *Service
	hub     *Hub
	log     *logrus.Logger
}

func NewHandler(service *Service, hub *Hub, log *logrus.Logger) *Handler {
	return &Handler{service: service, hub: hub, log: log}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/status", h.GetStatus)
	rg.GET("/logs", h.GetLogs)
	rg.POST("/run-now", h.RunNow)
	rg.POST("/stop", h.Stop)
	rg.POST("/start", h.Start)
	rg.POST("/cancel", h.Cancel)
	rg.POST("/unlock", h.Unlock)
	rg.PUT("/interval", h.SetInterval)
	rg.GET("/ws", h.StreamRuns)
}

func (h *Handler) GetStatus(c *gin.Context) {
	settings, logs, err := h.service.Status(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load scheduler status")
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"settings":    settings,
		"recent_runs": logs,
	})
}

func (h *Handler) GetLogs(c *gin.Context) {
	_, logs, err := h.service.Status(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load run logs")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"runs": logs})
}

// RunNow triggers a run immediately. A run already holding the flag
// answers 409 rather than queueing a second one.
func (h *Handler) RunNow(c *gin.Context) {
	outcome, err := h.service.RunOnce(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, ErrDisabled):
			response.Error(c, http.StatusConflict, "SCHEDULER_DISABLED", "scheduler is disabled")
		case errors.Is(err, ErrAlreadyRunning):
			response.Error(c, http.StatusConflict, "RUN_IN_PROGRESS", "a run is already in progress")
		default:
			h.log.WithError(err).Error("manual run failed")
			response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "run failed")
		}
		return
	}
	response.Success(c, http.StatusOK, outcome)
}

func (h *Handler) Stop(c *gin.Context) {
	if err := h.service.Stop(c.Request.Context()); err != nil {
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to disable scheduler")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"enabled": false})
}

func (h *Handler) Start(c *gin.Context) {
	if err := h.service.Enable(c.Request.Context()); err != nil {
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to enable scheduler")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"enabled": true})
}

// Cancel asks the in-flight run to stop at the next workorder boundary.
func (h *Handler) Cancel(c *gin.Context) {
	h.service.Cancel()
	response.Success(c, http.StatusAccepted, gin.H{"cancel_requested": true})
}

// Unlock force-clears the is_running flag after a crashed run.
func (h *Handler) Unlock(c *gin.Context) {
	if err := h.service.ClearStuck(c.Request.Context()); err != nil {
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to clear run flag")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"is_running": false})
}

type setIntervalRequest struct {
	IntervalMinutes int `json:"interval_minutes" binding:"required"`
}

func (h *Handler) SetInterval(c *gin.Context) {
	var req setIntervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "interval_minutes is required")
		return
	}
	if err := h.service.SetInterval(c.Request.Context(), req.IntervalMinutes); err != nil {
		if errors.Is(err, ErrBadInterval) {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to update interval")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"interval_minutes": req.IntervalMinutes})
}

// StreamRuns upgrades to a websocket and pushes RunEvents until the
// client disconnects.
func (h *Handler) StreamRuns(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	h.hub.Register(conn)

	// Reader loop only to detect disconnect; clients do not send data.
	go func() {
		defer h.hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
