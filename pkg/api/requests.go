package api

// GenerateURLRequest is the HTTP request body for POST /api/v1/documents/generate-url.
type GenerateURLRequest struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required,eq=application/pdf"`
}

// StartProcessingRequest is the HTTP request body for POST /api/v1/documents/start-processing.
type StartProcessingRequest struct {
	BlobName         string `json:"blob_name" validate:"required,max=1024"`
	OriginalFilename string `json:"original_filename" validate:"required,max=255"`
	DocumentKindHint string `json:"document_kind_hint,omitempty" validate:"omitempty,oneof=blueprint inspection_report existing_estimate photo unknown"`
}
