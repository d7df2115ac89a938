package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/brant/roofpipeline/pkg/blobstore"
	"github.com/brant/roofpipeline/pkg/documents"
	"github.com/brant/roofpipeline/pkg/pipeline"
	"github.com/brant/roofpipeline/pkg/validation"
)

// generateURLHandler handles POST /api/v1/documents/generate-url: issues a
// presigned upload slot against the external blob store.
func (s *Server) generateURLHandler(c *echo.Context) error {
	var req GenerateURLRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !s.blobs.Enabled() {
		return echo.NewHTTPError(http.StatusServiceUnavailable,
			"blob store is not configured; use the direct upload endpoint")
	}

	sanitized := validation.SanitizeFilename(req.Filename)
	blobName := blobstore.ObjectName(s.blobs.Prefix(), uuid.New().String(), sanitized)

	url, err := s.blobs.PresignPut(c.Request().Context(), blobName, req.ContentType)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &GenerateURLResponse{UploadURL: url, BlobName: blobName})
}

// startProcessingHandler handles POST /api/v1/documents/start-processing:
// registers the Document row and enqueues exactly one job.
func (s *Server) startProcessingHandler(c *echo.Context) error {
	var req StartProcessingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	doc, created, err := s.store.Create(c.Request().Context(), documents.CreateInput{
		OriginalFilename: validation.SanitizeFilename(req.OriginalFilename),
		BlobRef:          req.BlobName,
	})
	if err != nil {
		return err
	}

	if created {
		if err := s.broker.Enqueue(c.Request().Context(), doc.ID, 1); err != nil {
			return err
		}
	}

	return c.JSON(http.StatusAccepted, &StartProcessingResponse{
		DocumentID: doc.ID,
		Status:     string(doc.Status),
	})
}

// uploadHandler handles POST /api/v1/documents/upload: the streamed
// alternative path used when the blob store is not configured. Bytes flow
// through the file validator while being written to the local upload
// directory; the partial file is removed on every failure
// path, so a rejected upload leaves nothing behind.
func (s *Server) uploadHandler(c *echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field 'file' is required")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read uploaded file")
	}
	defer src.Close()

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return fmt.Errorf("%w: creating upload dir: %v", pipeline.ErrInternal, err)
	}
	scratch, err := os.CreateTemp(s.uploadDir, "upload-*.partial")
	if err != nil {
		return fmt.Errorf("%w: creating scratch file: %v", pipeline.ErrInternal, err)
	}
	scratchPath := scratch.Name()

	result, err := validation.Validate(io.TeeReader(src, scratch), fileHeader.Filename, s.cfg.MaxFileSizeBytes)
	closeErr := scratch.Close()
	if err != nil {
		_ = os.Remove(scratchPath)
		return err
	}
	if closeErr != nil {
		_ = os.Remove(scratchPath)
		return fmt.Errorf("%w: flushing upload: %v", pipeline.ErrInternal, closeErr)
	}

	finalPath := filepath.Join(s.uploadDir, uuid.New().String()+"-"+result.CanonicalName)
	if err := os.Rename(scratchPath, finalPath); err != nil {
		_ = os.Remove(scratchPath)
		return fmt.Errorf("%w: placing upload: %v", pipeline.ErrInternal, err)
	}

	doc, created, err := s.store.Create(c.Request().Context(), documents.CreateInput{
		OriginalFilename: result.CanonicalName,
		BlobRef:          finalPath,
		ContentLength:    result.SizeBytes,
	})
	if err != nil {
		_ = os.Remove(finalPath)
		return err
	}
	if !created {
		// Duplicate of an already-registered upload: the earlier blob ref
		// stays authoritative, this copy is redundant.
		_ = os.Remove(finalPath)
	} else {
		if err := s.broker.Enqueue(c.Request().Context(), doc.ID, 1); err != nil {
			return err
		}
	}

	return c.JSON(http.StatusAccepted, &StartProcessingResponse{
		DocumentID: doc.ID,
		Status:     string(doc.Status),
	})
}

// getDocumentHandler handles GET /api/v1/documents/:id.
func (s *Server) getDocumentHandler(c *echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "document id must be a UUID")
	}

	doc, err := s.store.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &DocumentResponse{
		ID:        doc.ID,
		Filename:  doc.OriginalFilename,
		Status:    string(doc.Status),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	})
}
