package reporting

import (
	"net/http"
	"strconv"
	"time"

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
	rg.GET("/summaries", h.GetSummaries)
}

// GetSummaries serves the rollups behind the dashboards:
// GET /summaries?grouping=daily&from=2026-03-01&to=2026-03-31
func (h *Handler) GetSummaries(c *gin.Context) {
	grouping := Grouping(c.DefaultQuery("grouping", string(GroupDaily)))

	from, err := time.Parse("2006-01-02", c.Query("from"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "from must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", c.Query("to"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "to must be YYYY-MM-DD")
		return
	}
	if to.Before(from) {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "to is before from")
		return
	}

	q := Query{
		Grouping:     grouping,
		From:         from,
		To:           to,
		Kind:         c.Query("kind"),
		OperatorCode: c.Query("operator"),
	}
	if raw := c.Query("workorder_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "workorder_id must be an integer")
			return
		}
		q.WorkorderID = &id
	}

	summaries, err := h.service.Summarize(c.Request.Context(), q)
	if err != nil {
		if err == ErrBadGrouping {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "unknown grouping")
			return
		}
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to compute summaries")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"grouping":  grouping,
		"from":      from.Format("2006-01-02"),
		"to":        to.Format("2006-01-02"),
		"summaries": summaries,
	})
}
