// Package device wraps the capabilities a flow borrows from the host:
// picking a photo and describing it for upload.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"safeplate/internal/domain"
)

var (
	// ErrCaptureCanceled means the user backed out; nothing changes.
	ErrCaptureCanceled = errors.New("capture canceled")
	// ErrPermissionDenied means the image source could not be accessed.
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrTooLarge         = errors.New("image too large")
	ErrNotImage         = errors.New("not an image")
)

// Camera produces a captured image from a source. An empty source cancels.
type Camera interface {
	Capture(ctx context.Context, source string) (domain.CapturedImage, error)
}

// FileCamera treats an image file on disk as the captured photo.
type FileCamera struct {
	MaxBytes int64
}

func (c FileCamera) Capture(ctx context.Context, source string) (domain.CapturedImage, error) {
	source = strings.TrimSpace(strings.TrimPrefix(source, "file://"))
	if source == "" {
		return domain.CapturedImage{}, ErrCaptureCanceled
	}
	if err := ctx.Err(); err != nil {
		return domain.CapturedImage{}, ErrCaptureCanceled
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return domain.CapturedImage{}, err
	}
	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return domain.CapturedImage{}, fmt.Errorf("%w: %s", ErrPermissionDenied, source)
		}
		return domain.CapturedImage{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return domain.CapturedImage{}, err
	}
	if info.IsDir() {
		return domain.CapturedImage{}, fmt.Errorf("%w: %s is a directory", ErrNotImage, source)
	}
	if c.MaxBytes > 0 && info.Size() > c.MaxBytes {
		return domain.CapturedImage{}, fmt.Errorf("%w: %s exceeds %s", ErrTooLarge,
			humanize.Bytes(uint64(info.Size())), humanize.Bytes(uint64(c.MaxBytes)))
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return domain.CapturedImage{}, err
	}
	mt := detectMime(abs, head[:n])
	if !strings.HasPrefix(mt, "image/") {
		return domain.CapturedImage{}, fmt.Errorf("%w: %s (%s)", ErrNotImage, source, mt)
	}
	return domain.CapturedImage{
		URI:            "file://" + abs,
		Name:           filepath.Base(abs),
		SizeDescriptor: Describe(info.Size()),
		MimeType:       mt,
	}, nil
}

// Describe renders a byte count for display, e.g. "1.2 MB".
func Describe(size int64) string {
	if size < 0 {
		size = 0
	}
	return humanize.Bytes(uint64(size))
}

func detectMime(path string, head []byte) string {
	if mt := http.DetectContentType(head); strings.HasPrefix(mt, "image/") {
		return mt
	}
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); mt != "" {
		return strings.SplitN(mt, ";", 2)[0]
	}
	return http.DetectContentType(head)
}

// CameraFunc adapts a function to Camera.
type CameraFunc func(ctx context.Context, source string) (domain.CapturedImage, error)

func (f CameraFunc) Capture(ctx context.Context, source string) (domain.CapturedImage, error) {
	return f(ctx, source)
}
