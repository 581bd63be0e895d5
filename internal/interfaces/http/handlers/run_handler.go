package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	domain "github.com/turtacn/KeyIP-Protonate/internal/domain/protonation"
)

// Listing limits for GET /runs.
const (
	DefaultRunListLimit = 50
	MaxRunListLimit     = 500
)

// RunListResponse wraps a page of runs.
type RunListResponse struct {
	Runs  []*domain.Run `json:"runs"`
	Count int           `json:"count"`
}

// RunHandler exposes the run ledger.
type RunHandler struct {
	repo domain.RunRepository
}

// NewRunHandler creates a handler over repo.
func NewRunHandler(repo domain.RunRepository) *RunHandler {
	return &RunHandler{repo: repo}
}

// RegisterRoutes mounts GET /runs and GET /runs/:id.
func (h *RunHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/runs", h.List)
	r.GET("/runs/:id", h.Get)
}

// Get handles GET /runs/:id.
func (h *RunHandler) Get(c *gin.Context) {
	run, err := h.repo.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// List handles GET /runs.  ?batch_id returns one batch in start order;
// otherwise the newest ?limit runs come back.
func (h *RunHandler) List(c *gin.Context) {
	var (
		runs []*domain.Run
		err  error
	)
	if batchID := c.Query("batch_id"); batchID != "" {
		runs, err = h.repo.ListByBatch(c.Request.Context(), batchID)
	} else {
		var limit int
		if limit, err = queryLimit(c, DefaultRunListLimit, MaxRunListLimit); err == nil {
			runs, err = h.repo.ListRecent(c.Request.Context(), limit)
		}
	}
	if err != nil {
		writeAppError(c, err)
		return
	}
	if runs == nil {
		runs = []*domain.Run{}
	}
	c.JSON(http.StatusOK, RunListResponse{Runs: runs, Count: len(runs)})
}

//Personal.AI order the ending
