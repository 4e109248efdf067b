package reports

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"prodreport/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/workorders", h.CreateWorkorder)
	rg.POST("/workorders/:id/allocate", h.TriggerAllocation)
	rg.POST("/reports", h.CreateReport)
	rg.GET("/reports/:id", h.GetReport)
	rg.POST("/reports/:id/approve", h.Approve)
	rg.POST("/reports/:id/reject", h.Reject)
}

func (h *Handler) CreateWorkorder(c *gin.Context) {
	var req CreateWorkorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	wo, err := h.service.CreateWorkorder(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrDuplicateWorkorder) {
			response.Error(c, http.StatusConflict, "DUPLICATE", err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to create workorder")
		return
	}
	response.Success(c, http.StatusCreated, wo)
}

func (h *Handler) CreateReport(c *gin.Context) {
	var req CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	r, err := h.service.CreateReport(c.Request.Context(), req)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	response.Success(c, http.StatusCreated, r)
}

func (h *Handler) GetReport(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	r, err := h.service.GetReport(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrReportNotFound) {
			response.Error(c, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load report")
		return
	}
	response.Success(c, http.StatusOK, r)
}

func (h *Handler) Approve(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	out, err := h.service.Approve(c.Request.Context(), id)
	if err != nil {
		h.decisionError(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

func (h *Handler) Reject(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	r, err := h.service.Reject(c.Request.Context(), id)
	if err != nil {
		h.decisionError(c, err)
		return
	}
	response.Success(c, http.StatusOK, r)
}

func (h *Handler) TriggerAllocation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.service.TriggerAllocation(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrWorkorderNotFound):
			response.Error(c, http.StatusNotFound, "NOT_FOUND", err.Error())
		case errors.Is(err, ErrAllocationRunning):
			response.Error(c, http.StatusConflict, "RUN_IN_PROGRESS", err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "allocation failed")
		}
		return
	}
	response.Success(c, http.StatusOK, res)
}

func (h *Handler) decisionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrReportNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, ErrAlreadyDecided):
		response.Error(c, http.StatusConflict, "ALREADY_DECIDED", err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to update report")
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "id must be an integer")
		return 0, false
	}
	return id, true
}
