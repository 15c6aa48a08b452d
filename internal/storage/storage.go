package storage

import (
	"context"
	"fmt"
	"net/http"

	"govtender/internal/models"
)

const MaxImageSize = 5 << 20

type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// ImageStore keeps profile images and returns a public URL for each.
type ImageStore interface {
	UploadImage(ctx context.Context, f File) (string, error)
}

// DocumentStore pins documents to content-addressed storage and returns the
// content hash that references all of them.
type DocumentStore interface {
	Pin(ctx context.Context, files []File) (string, error)
}

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// ValidateImage checks size and sniffed content type, and fixes the
// ContentType to the sniffed value.
func ValidateImage(f *File) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%w: profile image is required", models.ErrValidation)
	}
	if len(f.Data) > MaxImageSize {
		return fmt.Errorf("%w: profile image exceeds %d bytes", models.ErrValidation, MaxImageSize)
	}

	ct := http.DetectContentType(f.Data)
	if !allowedImageTypes[ct] {
		return fmt.Errorf("%w: profile image must be jpeg or png, got %s", models.ErrValidation, ct)
	}
	f.ContentType = ct
	return nil
}
