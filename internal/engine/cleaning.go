package engine

import (
	"safeplate/internal/device"
	"safeplate/internal/field"
	"safeplate/internal/wizard"
)

const (
	FlowCleaning     = "cleaning"
	EndpointCleaning = "cleaning-plan/new"

	StepCleaningZones    wizard.StepID = "cleaning.zones"
	StepCleaningFinalize wizard.StepID = "cleaning.finalize"
)

type cleaningZones struct {
	form
	zones   *wizard.SelectionSet
	catalog *Catalog
}

func (e Engine) cleaningZones(cat *Catalog) *cleaningZones {
	s := &cleaningZones{
		zones:   wizard.NewSelectionSet("Zones cleaned", wizard.WithComment, zoneCandidates(cat.State.Get().Zones)),
		catalog: cat,
	}
	s.form = form{
		id:     StepCleaningZones,
		title:  "Zones",
		inputs: []wizard.Input{{Key: "zones", Collector: s.zones}},
		checks: func() []wizard.Check {
			return []wizard.Check{wizard.Require("Select at least one zone", s.zones.Present)}
		},
	}
	return s
}

func (s *cleaningZones) Creates() string   { return KindZones }
func (s *cleaningZones) Catalog() *Catalog { return s.catalog }
func (s *cleaningZones) Refresh(l Lists)   { s.zones.SetCandidates(zoneCandidates(l.Zones)) }

func (e Engine) cleaningFinalize(performer string) wizard.Screen {
	date := field.NewDate(field.DateConfig{Label: "Cleaning date", Initial: e.today()}, nil)
	by := field.NewText(field.TextConfig{Label: "Performed by", MaxLen: 120}, nil)
	by.Set(performer)
	photo := device.NewPhoto("Photo", e.Camera, e.notifier())
	return &form{
		id:    StepCleaningFinalize,
		title: "Sign-off",
		inputs: []wizard.Input{
			{Key: "date", Collector: date},
			{Key: "performedBy", Collector: by},
			{Key: "photo", Collector: photo},
		},
		checks: func() []wizard.Check {
			return []wizard.Check{
				wizard.Require("Please choose the cleaning date", date.Present),
				wizard.Require("Who performed the cleaning?", by.Present),
			}
		},
	}
}

func (e Engine) cleaningFlow(cat *Catalog, performer string) wizard.Flow {
	return wizard.Flow{
		Kind:     FlowCleaning,
		Title:    "Cleaning plan",
		Screens:  []wizard.Screen{e.cleaningZones(cat), e.cleaningFinalize(performer)},
		Assemble: e.assembleCleaning,
	}
}

func (e Engine) assembleCleaning(f wizard.Values) (*wizard.Submission, error) {
	s := wizard.NewSubmission(EndpointCleaning)
	s.Add("date", f.Text("date"))
	s.Add("performed_by", f.Text("performedBy"))
	s.AddList("zones", renameItems(f.Items("zones"), map[string]string{"id": "zone_id"}), "zone_id", "comment")
	s.AddImage("image", f.Image("photo"), e.imagePrefix("cleaning"), e.now())
	return s, nil
}
