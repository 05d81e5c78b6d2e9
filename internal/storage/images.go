package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// PublicPrefix is the URL path uploaded images are served under.
const PublicPrefix = "/uploads"

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// ImageStore keeps uploaded images on local disk.
type ImageStore struct {
	dir      string
	maxBytes int64
}

// NewImageStore creates dir if needed.
func NewImageStore(dir string, maxBytes int64) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &ImageStore{dir: dir, maxBytes: maxBytes}, nil
}

// Dir is the directory served at PublicPrefix.
func (s *ImageStore) Dir() string { return s.dir }

// Save validates an uploaded JPEG, PNG or GIF and returns its public URL.
// The type is sniffed from the content, not taken from the client.
func (s *ImageStore) Save(fh *multipart.FileHeader) (string, error) {
	if fh.Size > s.maxBytes {
		return "", apperrors.NewValidationError("image too large", map[string]any{"max_bytes": s.maxBytes})
	}
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	ext, ok := imageExtensions[http.DetectContentType(head[:n])]
	if !ok {
		return "", apperrors.NewValidationError("invalid file type, only JPEG, PNG and GIF images are allowed", nil)
	}

	name := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := dst.Write(head[:n]); err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return PublicPrefix + "/" + name, nil
}
