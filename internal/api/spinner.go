package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"liminal/internal/service"
	"liminal/internal/spin"
	"liminal/internal/types"
)

const (
	defaultArchiveLimit = 50
	maxArchiveLimit     = 500
)

// spinRequest accepts explicit options or the id of a preset.
type spinRequest struct {
	Options []string `json:"options"`
	Mode    string   `json:"mode"`
	Preset  string   `json:"preset"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, types.APIResponse{Success: false, Error: msg})
}

func (s *Server) handleSpin(c *gin.Context) {
	var req spinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if len(req.Options) == 0 && req.Preset != "" {
		preset, err := service.GetPreset(req.Preset)
		if err != nil {
			fail(c, http.StatusBadRequest, "Unknown preset: "+req.Preset)
			return
		}
		req.Options = preset.Options
		if req.Mode == "" {
			req.Mode = preset.ID
		}
	}

	resp, err := s.deps.Spins.Spin(c.Request.Context(), types.SpinRequest{Options: req.Options, Mode: req.Mode})
	switch {
	case err == nil:
		ok(c, resp)
	case errors.Is(err, spin.ErrNoOptions):
		fail(c, http.StatusBadRequest, "No options provided")
	case errors.Is(err, spin.ErrShuttingDown):
		fail(c, http.StatusServiceUnavailable, "Server is shutting down")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.log.Debug("spin submitter went away", "error", err)
		c.Status(http.StatusRequestTimeout)
	default:
		s.log.Error("spin failed", "error", err)
		fail(c, http.StatusInternalServerError, "Spin failed")
	}
}

// parseLimit reads ?limit=, falling back to def and rejecting values outside [1, max].
func parseLimit(c *gin.Context, def, max int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		fail(c, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(max))
		return 0, false
	}
	return n, true
}

func (s *Server) handleHistory(c *gin.Context) {
	limit, valid := parseLimit(c, s.deps.Spinner.HistoryLimit, s.deps.History.Cap())
	if !valid {
		return
	}
	ok(c, s.deps.History.Recent(limit))
}

func (s *Server) handleActive(c *gin.Context) {
	ok(c, s.deps.Active.Active())
}

func (s *Server) handlePresets(c *gin.Context) {
	ok(c, service.GetPresets())
}

func (s *Server) handleArchive(c *gin.Context) {
	if s.deps.Archive == nil {
		fail(c, http.StatusNotFound, "Archive is disabled")
		return
	}
	limit, valid := parseLimit(c, defaultArchiveLimit, maxArchiveLimit)
	if !valid {
		return
	}

	records, err := s.deps.Archive.Recent(c.Request.Context(), limit)
	if err != nil {
		s.log.Error("read archive", "error", err)
		fail(c, http.StatusInternalServerError, "Failed to read archive")
		return
	}
	ok(c, records)
}

func (s *Server) handleArchiveStats(c *gin.Context) {
	if s.deps.Archive == nil {
		fail(c, http.StatusNotFound, "Archive is disabled")
		return
	}

	ctx := c.Request.Context()
	total, err := s.deps.Archive.Count(ctx)
	if err != nil {
		s.log.Error("count archive", "error", err)
		fail(c, http.StatusInternalServerError, "Failed to read archive")
		return
	}
	results, err := s.deps.Archive.ResultCounts(ctx, c.Query("mode"))
	if err != nil {
		s.log.Error("tally archive", "error", err)
		fail(c, http.StatusInternalServerError, "Failed to read archive")
		return
	}
	ok(c, gin.H{"total": total, "results": results})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Health.Check())
}
