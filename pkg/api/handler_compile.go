package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/brandbrain/compiler/pkg/compile"
	"github.com/brandbrain/compiler/pkg/models"
)

// compileHandler handles POST /api/brands/:id/brandbrain/compile.
func (s *Server) compileHandler(c *echo.Context) error {
	tenantID, err := parseUUIDParam(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var req CompileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := s.orchestrator.Kickoff(c.Request().Context(), tenantID, req.ForceRefresh)
	if err != nil {
		return mapServiceError(err)
	}

	switch result.Status {
	case compile.KickoffUnchanged:
		return c.JSON(http.StatusOK, &CompileResponse{
			Status:   string(result.Status),
			Snapshot: toSnapshotResponseFromModel(result.Snapshot),
		})
	default:
		runID := result.CompileRunID.String()
		return c.JSON(http.StatusAccepted, &CompileResponse{
			CompileRunID: runID,
			Status:       string(result.Status),
			PollURL:      fmt.Sprintf("/api/brands/%s/brandbrain/compile/%s/status", tenantID, runID),
		})
	}
}

// statusHandler handles GET /api/brands/:id/brandbrain/compile/:run/status.
func (s *Server) statusHandler(c *echo.Context) error {
	tenantID, err := parseUUIDParam(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	runID, err := parseUUIDParam(c, "run")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	status, err := s.reader.GetStatus(c.Request().Context(), tenantID, runID)
	if err != nil {
		return mapServiceError(err)
	}

	resp := &StatusResponse{
		CompileRunID:   status.CompileRunID.String(),
		Status:         status.Status,
		EvidenceStatus: status.EvidenceStatus,
		Error:          status.Error,
	}
	if status.Snapshot != nil {
		resp.Snapshot = &SnapshotResponse{
			ID:           status.Snapshot.ID.String(),
			CreatedAt:    status.Snapshot.CreatedAt,
			SnapshotJSON: status.Snapshot.SnapshotJSON,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// latestHandler handles GET /api/brands/:id/brandbrain/latest.
// The `?include=` query parameter is accepted for forward compatibility
// (spec.md §6) but the full snapshot document is always returned, since
// nothing in this implementation materializes partial snapshot views.
func (s *Server) latestHandler(c *echo.Context) error {
	tenantID, err := parseUUIDParam(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := s.reader.Latest(c.Request().Context(), tenantID)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &LatestResponse{
		CompileRunID: result.RunID.String(),
		Snapshot:     toSnapshotResponse(result.Snapshot),
	})
}

// historyHandler handles GET /api/brands/:id/brandbrain/history.
func (s *Server) historyHandler(c *echo.Context) error {
	tenantID, err := parseUUIDParam(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	page := parseIntQuery(c, "page", 1)
	pageSize := parseIntQuery(c, "page_size", 10)

	entries, total, err := s.reader.History(c.Request().Context(), tenantID, page, pageSize)
	if err != nil {
		return mapServiceError(err)
	}

	items := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, HistoryEntryResponse{
			CompileRunID: e.CompileRunID.String(),
			Status:       e.Status,
			StartedAt:    e.StartedAt,
		})
	}
	return c.JSON(http.StatusOK, &HistoryResponse{
		Entries:  items,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	})
}

// getOverridesHandler handles GET /api/brands/:id/brandbrain/overrides.
func (s *Server) getOverridesHandler(c *echo.Context) error {
	tenantID, err := parseUUIDParam(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	doc, pinned, err := s.reader.GetOverrides(c.Request().Context(), tenantID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &OverridesResponse{OverridesJSON: doc, PinnedPaths: pinned})
}

// patchOverridesHandler handles PATCH /api/brands/:id/brandbrain/overrides.
func (s *Server) patchOverridesHandler(c *echo.Context) error {
	tenantID, err := parseUUIDParam(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var req OverridesPatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	doc, pinned, err := s.reader.PatchOverrides(c.Request().Context(), tenantID, req.OverridesJSON, req.PinnedPaths)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &OverridesResponse{OverridesJSON: doc, PinnedPaths: pinned})
}

func toSnapshotResponse(s *compile.SnapshotView) *SnapshotResponse {
	if s == nil {
		return nil
	}
	return &SnapshotResponse{ID: s.ID.String(), CreatedAt: s.CreatedAt, SnapshotJSON: s.SnapshotJSON}
}

func toSnapshotResponseFromModel(s *models.Snapshot) *SnapshotResponse {
	if s == nil {
		return nil
	}
	return &SnapshotResponse{
		ID:           s.ID.String(),
		CreatedAt:    s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		SnapshotJSON: s.SnapshotJSON,
	}
}

func parseIntQuery(c *echo.Context, name string, def int) int {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
