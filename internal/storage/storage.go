// Package storage uploads event thumbnails to object storage.
//
// Failures never propagate: Upload logs and returns an empty URL, Delete
// logs and returns. Callers decide whether a missing URL is fatal.
package storage

import (
	"context"
	"io"
)

// Image is an uploaded file as received from a multipart form.
type Image struct {
	Body        io.Reader
	Size        int64
	Filename    string
	ContentType string
}

// ImageStore is the thumbnail storage adapter.
type ImageStore interface {
	// Upload stores img and returns its public URL, or "" on failure.
	Upload(ctx context.Context, img Image) string
	// Delete removes the object behind url. Unknown URLs are ignored.
	Delete(ctx context.Context, url string)
}

// Nop is used when no object storage is configured. Every upload fails.
type Nop struct{}

func (Nop) Upload(context.Context, Image) string { return "" }
func (Nop) Delete(context.Context, string)       {}
