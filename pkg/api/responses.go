package api

import (
	"time"

	"github.com/brant/roofpipeline/pkg/database"
)

// GenerateURLResponse is returned by POST /api/v1/documents/generate-url.
type GenerateURLResponse struct {
	UploadURL string `json:"upload_url"`
	BlobName  string `json:"blob_name"`
}

// StartProcessingResponse is returned by POST /api/v1/documents/start-processing
// and POST /api/v1/documents/upload.
type StartProcessingResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// DocumentResponse is returned by GET /api/v1/documents/:id.
type DocumentResponse struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusResponse is returned by GET /api/v1/pipeline/status/:id.
type StatusResponse struct {
	Status   string   `json:"status"`
	Stage    string   `json:"stage,omitempty"`
	Progress *float64 `json:"progress,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// CancelResponse is returned by POST /api/v1/pipeline/cancel/:id.
type CancelResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	ErrorKind  string `json:"error_kind"`
	Message    string `json:"message"`
	DocumentID string `json:"document_id,omitempty"`
	RequestID  string `json:"request_id"`
}

// DepHealth is one dependency's entry in the aggregate health document.
type DepHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /api/v1/pipeline/health.
type HealthResponse struct {
	Status   string                  `json:"status"`
	Version  string                  `json:"version"`
	Deps     map[string]DepHealth    `json:"deps"`
	Database *database.HealthStatus  `json:"database,omitempty"`
}
