package engine

import (
	"safeplate/internal/device"
	"safeplate/internal/field"
	"safeplate/internal/wizard"
)

const (
	FlowTracking     = "tracking"
	EndpointTracking = "simple-tracking"

	StepTrackingLabel    wizard.StepID = "tracking.label"
	StepTrackingFinalize wizard.StepID = "tracking.finalize"
)

type trackingLabel struct {
	form
	photo   *device.Photo
	product *field.Select
	catalog *Catalog
}

func (e Engine) trackingLabel(cat *Catalog) *trackingLabel {
	s := &trackingLabel{
		photo:   device.NewPhoto("Label photo", e.Camera, e.notifier()),
		product: field.NewSelect(field.SelectConfig{Label: "Product", Placeholder: "Search a product", Options: productOptions(cat.State.Get().Products)}, nil),
		catalog: cat,
	}
	s.form = form{
		id:    StepTrackingLabel,
		title: "Label",
		inputs: []wizard.Input{
			{Key: "photo", Collector: s.photo},
			{Key: "product", Collector: s.product},
		},
		checks: func() []wizard.Check {
			return []wizard.Check{
				wizard.Require("Take a photo of the label", s.photo.Present),
				wizard.Require("Please choose the product", s.product.Present),
			}
		},
	}
	return s
}

func (s *trackingLabel) Creates() string   { return KindProducts }
func (s *trackingLabel) Catalog() *Catalog { return s.catalog }
func (s *trackingLabel) Refresh(l Lists)   { s.product.SetOptions(productOptions(l.Products)) }

func (e Engine) trackingFinalize() wizard.Screen {
	opened := field.NewDate(field.DateConfig{Label: "Opened on", Initial: e.today()}, nil)
	expires := field.NewDate(field.DateConfig{Label: "Use by (DLC)"}, nil)
	return &form{
		id:    StepTrackingFinalize,
		title: "Dates",
		inputs: []wizard.Input{
			{Key: "openedAt", Collector: opened},
			{Key: "expiresAt", Collector: expires},
		},
		checks: func() []wizard.Check {
			return []wizard.Check{
				wizard.Require("Please choose the opening date", opened.Present),
				wizard.Require("The use-by date cannot be before the opening date", func() bool {
					return !expires.Present() || !expires.Value().Before(opened.Value())
				}),
			}
		},
	}
}

func (e Engine) trackingFlow(cat *Catalog) wizard.Flow {
	return wizard.Flow{
		Kind:     FlowTracking,
		Title:    "Traceability",
		Screens:  []wizard.Screen{e.trackingLabel(cat), e.trackingFinalize()},
		Assemble: e.assembleTracking,
	}
}

func (e Engine) assembleTracking(f wizard.Values) (*wizard.Submission, error) {
	s := wizard.NewSubmission(EndpointTracking)
	s.Add("product_id", f.Text("product"))
	s.Add("opened_at", f.Text("openedAt"))
	s.AddIfSet("expires_at", f.Text("expiresAt"))
	s.AddImage("image", f.Image("photo"), e.imagePrefix("tracking"), e.now())
	return s, nil
}
