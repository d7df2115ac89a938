package api

import (
	"net/http"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/brant/roofpipeline/pkg/models"
)

// getStatusHandler handles GET /api/v1/pipeline/status/:id. Reads are
// lock-free and may be momentarily stale.
func (s *Server) getStatusHandler(c *echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "document id must be a UUID")
	}

	doc, err := s.store.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}

	resp := StatusResponse{Status: string(doc.Status)}
	switch doc.Status {
	case models.StatusPending:
		resp.Progress = progressPtr(0)
	case models.StatusProcessing:
		resp.Stage = doc.CurrentStage
		if p, ok := stageProgress[doc.CurrentStage]; ok {
			resp.Progress = progressPtr(p)
		}
	case models.StatusCompleted:
		resp.Progress = progressPtr(1)
	case models.StatusFailed:
		resp.Error = doc.ErrorKind
		if doc.ErrorMessage != "" {
			resp.Error = doc.ErrorKind + ": " + doc.ErrorMessage
		}
	}

	return c.JSON(http.StatusOK, &resp)
}

// stageProgress maps the stage in flight to a coarse completion fraction
// for polling clients. The worker records stage boundaries only, never
// intra-stage progress, so each stage gets a fixed fraction.
var stageProgress = map[string]float64{
	"analyze":   0.1,
	"extract":   0.3,
	"measure":   0.55,
	"interpret": 0.75,
	"compose":   0.9,
}

func progressPtr(v float64) *float64 { return &v }

// getResultsHandler handles GET /api/v1/pipeline/results/:id. Fails with
// NotReadyError unless status = COMPLETED, and with the stored failure
// reason when status = FAILED.
func (s *Server) getResultsHandler(c *echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "document id must be a UUID")
	}

	ctx := c.Request().Context()
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	switch doc.Status {
	case models.StatusCompleted:
		estimate, err := s.store.GetResult(ctx, id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, estimate)
	case models.StatusFailed:
		return echo.NewHTTPError(http.StatusConflict,
			"processing failed: "+doc.ErrorKind+": "+doc.ErrorMessage)
	default:
		c.Response().Header().Set("Retry-After", "5")
		return echo.NewHTTPError(http.StatusConflict, "results are not ready")
	}
}

// cancelHandler handles POST /api/v1/pipeline/cancel/:id. Legal only from
// PENDING or PROCESSING; the worker observes cancellation at the next
// stage boundary.
func (s *Server) cancelHandler(c *echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "document id must be a UUID")
	}

	if _, err := s.store.RequestCancel(c.Request().Context(), id); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &CancelResponse{Status: string(models.StatusCancelled)})
}
