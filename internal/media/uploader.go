package media

import (
	"context"
	"errors"
	"io"
)

// ErrUploaderDisabled indicates that uploads are not currently enabled.
var ErrUploaderDisabled = errors.New("media uploader disabled")

// Kind classifies an artifact so the backing store can group uploaded room
// photos apart from generated renders.
type Kind string

const (
	KindRoomPhoto Kind = "rooms"
	KindRender    Kind = "renders"
)

// UploadInput wraps the payload required for persisting an image artifact.
type UploadInput struct {
	Filename    string
	ContentType string
	Body        io.Reader
	Size        int64
	Kind        Kind
	ProjectID   string
}

// UploadResult captures the canonical object key and its accessible URL.
type UploadResult struct {
	Key string
	URL string
}

// Uploader hides the backing implementation for storing room photos and
// generated renders.
type Uploader interface {
	Upload(ctx context.Context, input UploadInput) (UploadResult, error)
}

type disabledUploader struct{}

func (disabledUploader) Upload(_ context.Context, _ UploadInput) (UploadResult, error) {
	return UploadResult{}, ErrUploaderDisabled
}

// Disabled returns an uploader that always signals disabled uploads. Callers
// fall back to inlining images as data URLs.
func Disabled() Uploader {
	return disabledUploader{}
}
