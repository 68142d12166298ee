package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/researchpulse/internal/pulse"
	"github.com/ppiankov/researchpulse/internal/store"
)

const defaultListLimit = 20

// Runner is the part of the pulse engine the handlers drive.
type Runner interface {
	Run(ctx context.Context) (pulse.Report, error)
	Search(ctx context.Context, query string, names []string) (string, error)
}

// ReportStore persists and looks up reports. *store.Store satisfies it.
type ReportStore interface {
	SaveReport(ctx context.Context, report pulse.Report) error
	GetReport(ctx context.Context, id string) (pulse.Report, error)
	LatestReport(ctx context.Context) (pulse.Report, error)
	ListReports(ctx context.Context, limit int) ([]store.ReportSummary, error)
}

// Handler serves the HTTP API.
type Handler struct {
	engine  Runner
	reports ReportStore
	logger  *slog.Logger
}

// NewHandler creates a handler. reports may be nil, in which case reports
// are not persisted and the report endpoints answer 503.
func NewHandler(engine Runner, reports ReportStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: engine, reports: reports, logger: logger}
}

type reportSummary struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	DaysBack    int       `json:"days_back"`
	Sources     int       `json:"sources"`
	Degraded    int       `json:"degraded"`
	Items       int       `json:"items"`
}

type searchResponse struct {
	Query   string   `json:"query"`
	Sources []string `json:"sources,omitempty"`
	Results string   `json:"results"`
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Pulse runs one pass over every source and returns the report.
func (h *Handler) Pulse(c *gin.Context) {
	ctx := c.Request.Context()
	report, err := h.engine.Run(ctx)
	if err != nil {
		h.logger.Warn("pulse aborted", "error", err)
		abort(c, http.StatusServiceUnavailable, "pulse aborted: "+err.Error())
		return
	}

	if h.reports != nil {
		if err := h.reports.SaveReport(ctx, report); err != nil {
			h.logger.Error("save report failed", "id", report.ID, "error", err)
		}
	}
	c.JSON(http.StatusOK, report)
}

// Search runs a targeted query. sources is a comma separated list of names;
// empty means all sources.
func (h *Handler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		abort(c, http.StatusBadRequest, "missing 'q' parameter")
		return
	}

	var names []string
	for name := range strings.SplitSeq(c.Query("sources"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}

	out, err := h.engine.Search(c.Request.Context(), query, names)
	if err != nil {
		abort(c, http.StatusServiceUnavailable, "search aborted: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, searchResponse{Query: query, Sources: names, Results: out})
}

func (h *Handler) ListReports(c *gin.Context) {
	if !h.hasStore(c) {
		return
	}

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			abort(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := h.reports.ListReports(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("list reports failed", "error", err)
		abort(c, http.StatusInternalServerError, "failed to list reports")
		return
	}

	out := make([]reportSummary, 0, len(list))
	for _, r := range list {
		out = append(out, reportSummary(r))
	}
	c.JSON(http.StatusOK, gin.H{"reports": out})
}

func (h *Handler) LatestReport(c *gin.Context) {
	if !h.hasStore(c) {
		return
	}
	report, err := h.reports.LatestReport(c.Request.Context())
	h.respondReport(c, report, err)
}

func (h *Handler) GetReport(c *gin.Context) {
	if !h.hasStore(c) {
		return
	}
	report, err := h.reports.GetReport(c.Request.Context(), c.Param("id"))
	h.respondReport(c, report, err)
}

func (h *Handler) respondReport(c *gin.Context, report pulse.Report, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		abort(c, http.StatusNotFound, "report not found")
	case err != nil:
		h.logger.Error("load report failed", "error", err)
		abort(c, http.StatusInternalServerError, "failed to load report")
	default:
		c.JSON(http.StatusOK, report)
	}
}

func (h *Handler) hasStore(c *gin.Context) bool {
	if h.reports == nil {
		abort(c, http.StatusServiceUnavailable, "report storage is not configured")
		return false
	}
	return true
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
