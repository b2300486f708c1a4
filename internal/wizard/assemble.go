package wizard

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"safeplate/internal/domain"
)

// FormField is a plain multipart part.
type FormField struct {
	Name  string
	Value string
}

// FormFile is a file part backed by a captured image.
type FormFile struct {
	Name     string
	Filename string
	Image    domain.CapturedImage
}

// Submission is the flattened body of a final submit.
type Submission struct {
	Endpoint string
	Fields   []FormField
	Files    []FormFile
}

func NewSubmission(endpoint string) *Submission {
	return &Submission{Endpoint: endpoint}
}

func (s *Submission) Add(name, value string) {
	s.Fields = append(s.Fields, FormField{Name: name, Value: value})
}

// AddIfSet adds the part only when value is not empty.
func (s *Submission) AddIfSet(name, value string) {
	if value != "" {
		s.Add(name, value)
	}
}

// AddList adds items as indexed parts name[i][key], for each key in keys.
// Keys missing from an item are skipped.
func (s *Submission) AddList(name string, items []Item, keys ...string) {
	for i, it := range items {
		for _, k := range keys {
			v, ok := it[k]
			if !ok {
				continue
			}
			s.Add(fmt.Sprintf("%s[%d][%s]", name, i, k), v)
		}
	}
}

// AddImage adds a file part with a synthesized filename. A nil image is skipped.
func (s *Submission) AddImage(name string, img *domain.CapturedImage, prefix string, now time.Time) {
	if img == nil || img.URI == "" {
		return
	}
	s.Files = append(s.Files, FormFile{Name: name, Filename: FileName(prefix, *img, now), Image: *img})
}

// Get returns the value of the first plain part named name.
func (s *Submission) Get(name string) (string, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Map returns plain parts keyed by name.
func (s *Submission) Map() map[string]string {
	out := make(map[string]string, len(s.Fields))
	for _, f := range s.Fields {
		out[f.Name] = f.Value
	}
	return out
}

// Opener reads the bytes behind a captured image URI.
type Opener func(uri string) (io.ReadCloser, error)

// OpenFile opens file:// URIs and plain paths.
func OpenFile(uri string) (io.ReadCloser, error) {
	return os.Open(strings.TrimPrefix(uri, "file://"))
}

// Encode writes the submission as multipart/form-data.
func (s *Submission) Encode(open Opener) (string, *bytes.Buffer, error) {
	if open == nil {
		open = OpenFile
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range s.Fields {
		if err := mw.WriteField(f.Name, f.Value); err != nil {
			return "", nil, err
		}
	}
	for _, f := range s.Files {
		if err := writeFile(mw, f, open); err != nil {
			return "", nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return "", nil, err
	}
	return mw.FormDataContentType(), &buf, nil
}

func writeFile(mw *multipart.Writer, f FormFile, open Opener) error {
	rc, err := open(f.Image.URI)
	if err != nil {
		return fmt.Errorf("open image %s: %w", f.Image.URI, err)
	}
	defer rc.Close()
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, f.Name, f.Filename))
	mime := f.Image.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	h.Set("Content-Type", mime)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, rc)
	return err
}

// FileName builds "<prefix>_<unix>_<short-id>.<ext>" for an uploaded image.
func FileName(prefix string, img domain.CapturedImage, now time.Time) string {
	if prefix == "" {
		prefix = "image"
	}
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s.%s", prefix, now.Unix(), short, imageExt(img))
}

func imageExt(img domain.CapturedImage) string {
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(img.Name)), "."); ext != "" {
		return ext
	}
	switch img.MimeType {
	case "image/png":
		return "png"
	case "image/heic":
		return "heic"
	case "image/webp":
		return "webp"
	}
	return "jpg"
}

// Submitter sends an assembled submission. Exactly one network call.
type Submitter interface {
	Submit(ctx context.Context, sub *Submission) error
}

// SubmitFunc adapts a function to Submitter.
type SubmitFunc func(ctx context.Context, sub *Submission) error

func (f SubmitFunc) Submit(ctx context.Context, sub *Submission) error { return f(ctx, sub) }
