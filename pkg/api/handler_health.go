package api

import (
	"context"
	"net/http"
	"os"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/brant/roofpipeline/pkg/database"
	"github.com/brant/roofpipeline/pkg/version"
)

// healthHandler handles GET /api/v1/pipeline/health: aggregate liveness of
// the API process and its dependencies (db, broker, blob, llm). The LLM
// adapter has no cheap probe, so its entry reports whether the adapter is
// configured rather than issuing a billable completion.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	deps := make(map[string]DepHealth, 4)
	status := "healthy"
	code := http.StatusOK

	dbHealth, err := database.Health(reqCtx, s.dbClient.DB())
	if err != nil {
		deps["db"] = DepHealth{Status: "unhealthy", Message: "database unreachable"}
		status = "degraded"
		code = http.StatusServiceUnavailable
	} else {
		deps["db"] = DepHealth{Status: "healthy"}
	}

	if err := s.broker.Healthy(); err != nil {
		deps["broker"] = DepHealth{Status: "unhealthy", Message: "broker connection down"}
		status = "degraded"
	} else {
		deps["broker"] = DepHealth{Status: "healthy"}
	}

	if !s.blobs.Enabled() {
		deps["blob"] = DepHealth{Status: "healthy", Message: "local-only mode"}
	} else if err := s.blobs.Healthy(reqCtx); err != nil {
		deps["blob"] = DepHealth{Status: "unhealthy", Message: "bucket unreachable"}
		status = "degraded"
	} else {
		deps["blob"] = DepHealth{Status: "healthy"}
	}

	if s.cfg == nil || s.cfg.LLM == nil || os.Getenv(s.cfg.LLM.APIKeyEnv) == "" {
		deps["llm"] = DepHealth{Status: "unhealthy", Message: "llm api key not configured"}
		status = "degraded"
	} else {
		deps["llm"] = DepHealth{Status: "healthy"}
	}

	return c.JSON(code, &HealthResponse{
		Status:   status,
		Version:  version.Full(),
		Deps:     deps,
		Database: dbHealth,
	})
}
