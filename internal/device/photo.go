package device

import (
	"context"
	"errors"
	"strings"

	"safeplate/internal/domain"
	"safeplate/internal/notify"
	"safeplate/internal/wizard"
)

// Photo is an optional image input on a step screen. Captures complete
// asynchronously and are applied as a state transition; a canceled capture
// leaves the current image in place and a denied one raises an alert while
// the flow continues without an image.
type Photo struct {
	label    string
	camera   Camera
	notifier notify.Notifier
	state    *wizard.State[*domain.CapturedImage]
}

func NewPhoto(label string, cam Camera, n notify.Notifier) *Photo {
	if n == nil {
		n = notify.Discard
	}
	return &Photo{label: label, camera: cam, notifier: n, state: wizard.NewState[*domain.CapturedImage](nil)}
}

func (p *Photo) Label() string                { return p.label }
func (p *Photo) Image() *domain.CapturedImage { return p.state.Get() }
func (p *Photo) Present() bool                { return p.state.Get() != nil }

func (p *Photo) String() string {
	img := p.state.Get()
	if img == nil {
		return ""
	}
	if img.SizeDescriptor == "" {
		return img.Name
	}
	return img.Name + " (" + img.SizeDescriptor + ")"
}

// Set replaces the image, e.g. when a screen is hydrated.
func (p *Photo) Set(img *domain.CapturedImage) {
	p.state.Update(func(*domain.CapturedImage) *domain.CapturedImage { return img })
}

func (p *Photo) Clear() { p.Set(nil) }

// OnChange registers fn to observe every applied capture.
func (p *Photo) OnChange(fn func(*domain.CapturedImage)) { p.state.Subscribe(fn) }

// Capture starts a capture and returns a channel that receives its outcome.
func (p *Photo) Capture(ctx context.Context, source string) <-chan error {
	done := make(chan error, 1)
	go func() {
		img, err := p.camera.Capture(ctx, source)
		switch {
		case err == nil:
			p.Set(&img)
		case errors.Is(err, ErrCaptureCanceled):
		case errors.Is(err, ErrPermissionDenied):
			p.notifier.Notify(notify.Notification{Level: notify.Alert, Title: p.label,
				Message: "Camera access was denied. You can continue without a photo."})
		default:
			p.notifier.Notify(notify.Notification{Level: notify.Error, Title: p.label, Message: err.Error()})
		}
		done <- err
	}()
	return done
}

// Enter captures from a path and waits for the result. "-" removes the photo.
func (p *Photo) Enter(raw string) {
	if strings.TrimSpace(raw) == "-" {
		p.Clear()
		return
	}
	<-p.Capture(context.Background(), raw)
}
