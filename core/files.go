package core

import (
	"context"
	"io"
)

// FileStore persists user uploads and returns the public path they are served from.
type FileStore interface {
	// Save stores r when its detected content type is one of allowed (any type when empty).
	// Rejected uploads yield a ValidationError on the "file" field.
	Save(ctx context.Context, r io.Reader, filename string, allowed ...string) (string, error)
	Delete(ctx context.Context, path string) error
}

var (
	ImageContentTypes = []string{"image/jpeg", "image/png", "image/webp"}
	ProofContentTypes = []string{"image/jpeg", "image/png", "image/webp", "application/pdf"}
)
