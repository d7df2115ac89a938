package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/brant/roofpipeline/pkg/pipeline"
)

// mapServiceError maps pipeline error kinds to HTTP error responses.
// Unclassified errors are logged and surfaced as an opaque 500; stack
// traces and wrapped driver messages never reach clients.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *pipeline.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}

	switch {
	case errors.Is(err, pipeline.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	case errors.Is(err, pipeline.ErrTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file exceeds maximum size")
	case errors.Is(err, pipeline.ErrInvalidPdf):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, "file is not a valid PDF")
	case errors.Is(err, pipeline.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	case errors.Is(err, pipeline.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "illegal state transition")
	case errors.Is(err, pipeline.ErrNotReady):
		he := echo.NewHTTPError(http.StatusConflict, "results are not ready")
		return he
	case errors.Is(err, pipeline.ErrUpstream):
		slog.Error("Upstream dependency failure", "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "a dependency is unavailable, retry later")
	}

	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

// kindFromStatus maps an HTTP status back to an error kind for errors built
// directly as echo.HTTPError (handler-local validation), which carry no
// pipeline sentinel to classify.
func kindFromStatus(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusRequestEntityTooLarge:
		return "too_large"
	case http.StatusUnsupportedMediaType:
		return "invalid_pdf"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusServiceUnavailable:
		return "upstream_error"
	default:
		return "internal_error"
	}
}

// errorKindOf names the error kind for the uniform error body.
func errorKindOf(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrValidation):
		return "validation_error"
	case errors.Is(err, pipeline.ErrTooLarge):
		return "too_large"
	case errors.Is(err, pipeline.ErrInvalidPdf):
		return "invalid_pdf"
	case errors.Is(err, pipeline.ErrNotFound):
		return "not_found"
	case errors.Is(err, pipeline.ErrConflict):
		return "conflict"
	case errors.Is(err, pipeline.ErrNotReady):
		return "not_ready"
	case errors.Is(err, pipeline.ErrUpstream):
		return "upstream_error"
	default:
		return "internal_error"
	}
}
