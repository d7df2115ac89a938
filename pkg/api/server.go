// Package api provides the ingest API's HTTP surface (C10): presigned-URL
// handoff, streamed upload, status, results, cancel, and the aggregate
// health endpoint, versioned under /api/v1.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/go-playground/validator/v10"
	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/brant/roofpipeline/pkg/blobstore"
	"github.com/brant/roofpipeline/pkg/config"
	"github.com/brant/roofpipeline/pkg/database"
	"github.com/brant/roofpipeline/pkg/documents"
	"github.com/brant/roofpipeline/pkg/queue"
)

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	cfg        *config.Config
	dbClient   *database.Client
	store      *documents.Store
	blobs      *blobstore.Store
	broker     *queue.Broker
	validate   *validator.Validate

	// uploadDir receives streamed direct uploads when the blob store is
	// not configured.
	uploadDir string
}

// NewServer creates a new API server with Echo v5.
func NewServer(
	cfg *config.Config,
	dbClient *database.Client,
	store *documents.Store,
	blobs *blobstore.Store,
	broker *queue.Broker,
	uploadDir string,
) *Server {
	e := echo.New()

	s := &Server{
		echo:      e,
		cfg:       cfg,
		dbClient:  dbClient,
		store:     store,
		blobs:     blobs,
		broker:    broker,
		validate:  validator.New(),
		uploadDir: uploadDir,
	}

	e.HTTPErrorHandler = s.errorResponseHandler
	s.setupRoutes()
	return s
}

// setupRoutes registers all API routes.
func (s *Server) setupRoutes() {
	// The streamed upload route must admit up to the configured file-size
	// cap plus multipart envelope overhead; the cap itself is enforced
	// byte-by-byte during streaming by the file validator.
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.BodyLimit(s.cfg.MaxFileSizeBytes + 1024*1024))

	v1 := s.echo.Group("/api/v1")

	v1.POST("/documents/generate-url", s.generateURLHandler)
	v1.POST("/documents/start-processing", s.startProcessingHandler)
	v1.POST("/documents/upload", s.uploadHandler)
	v1.GET("/documents/:id", s.getDocumentHandler)

	v1.GET("/pipeline/status/:id", s.getStatusHandler)
	v1.GET("/pipeline/results/:id", s.getResultsHandler)
	v1.POST("/pipeline/cancel/:id", s.cancelHandler)
	v1.GET("/pipeline/health", s.healthHandler)
}

// errorResponseHandler renders every handler error as the uniform
// {error_kind, message, document_id?, request_id} body.
func (s *Server) errorResponseHandler(c *echo.Context, err error) {
	if r, _ := echo.UnwrapResponse(c.Response()); r != nil && r.Committed {
		return
	}

	var he *echo.HTTPError
	if !errors.As(err, &he) {
		he = mapServiceError(err)
	}

	kind := errorKindOf(err)
	if kind == "internal_error" && he.Code != http.StatusInternalServerError {
		kind = kindFromStatus(he.Code)
	}
	if kind == "not_ready" {
		c.Response().Header().Set("Retry-After", "5")
	}

	message := he.Message
	if message == "" {
		message = http.StatusText(he.Code)
	}

	body := ErrorResponse{
		ErrorKind:  kind,
		Message:    message,
		DocumentID: c.Param("id"),
		RequestID:  c.Response().Header().Get(echo.HeaderXRequestID),
	}
	_ = c.JSON(he.Code, body)
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.echo,
	}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener.
// Used by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
