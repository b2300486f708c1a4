package engine

import (
	"fmt"
	"time"

	"safeplate/internal/field"
	"safeplate/internal/wizard"
)

// Single-step control flows.
const (
	FlowCooling     = "tcp-cooling"
	FlowReheating   = "tcp-reheating"
	FlowOil         = "oil"
	FlowTemperature = "temperature"

	EndpointCooling     = "tcp/cooling"
	EndpointReheating   = "tcp/reheating"
	EndpointOil         = "oil-control/new"
	EndpointTemperature = "temperature/new"

	StepTCP         wizard.StepID = "tcp.measure"
	StepOil         wizard.StepID = "oil.measure"
	StepTemperature wizard.StepID = "temperature.measure"
)

// Oil actions.
const (
	OilNone     = "none"
	OilFiltered = "filtered"
	OilChanged  = "changed"
)

func (e Engine) today() time.Time {
	y, m, d := e.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type tcpScreen struct {
	form
	product *field.Select
	catalog *Catalog
}

// tcpFlow builds the cooling or reheating control point. Cooling must end
// at or below CoolingMax; reheating must reach ReheatingMin. An end time
// earlier than the start time is read as the next day.
func (e Engine) tcpFlow(cat *Catalog, reheating bool) wizard.Flow {
	kind, endpoint, title := FlowCooling, EndpointCooling, "Cooling"
	if reheating {
		kind, endpoint, title = FlowReheating, EndpointReheating, "Reheating"
	}
	date := field.NewDate(field.DateConfig{Label: "Date", Initial: e.today()}, nil)
	start := field.NewTime(field.DateConfig{Label: "Start time"}, nil)
	end := field.NewTime(field.DateConfig{Label: "End time"}, nil)
	startTemp := field.NewDecimal(field.DecimalConfig{Label: "Start temperature (°C)", Min: -40, Max: 120, Precision: 1}, nil)
	endTemp := field.NewDecimal(field.DecimalConfig{Label: "End temperature (°C)", Min: -40, Max: 120, Precision: 1}, nil)

	s := &tcpScreen{
		product: field.NewSelect(field.SelectConfig{Label: "Product", Placeholder: "Search a product", Options: productOptions(cat.State.Get().Products)}, nil),
		catalog: cat,
	}
	th := e.Config.Thresholds
	s.form = form{
		id:    StepTCP,
		title: title,
		inputs: []wizard.Input{
			{Key: "product", Collector: s.product},
			{Key: "date", Collector: date},
			{Key: "startedAt", Collector: start},
			{Key: "endedAt", Collector: end},
			{Key: "startTemperature", Collector: startTemp},
			{Key: "endTemperature", Collector: endTemp},
		},
		checks: func() []wizard.Check {
			checks := []wizard.Check{
				wizard.Require("Please choose the product", s.product.Present),
				wizard.Require("Please choose the date", date.Present),
				wizard.Require("Enter the start time", start.Present),
				wizard.Require("Enter the end time", end.Present),
				wizard.Require("The end time must differ from the start time", func() bool {
					return !end.Value().Equal(start.Value())
				}),
				wizard.Require("Enter the start temperature", startTemp.Present),
				wizard.Require("Enter the end temperature", endTemp.Present),
			}
			if reheating {
				return append(checks, wizard.Require(
					fmt.Sprintf("Reheating must reach at least %.0f°C", th.ReheatingMin),
					func() bool { return endTemp.Value() >= th.ReheatingMin }))
			}
			return append(checks, wizard.Require(
				fmt.Sprintf("Cooling must end at or below %.0f°C", th.CoolingMax),
				func() bool { return endTemp.Value() <= th.CoolingMax }))
		},
	}
	return wizard.Flow{
		Kind:    kind,
		Title:   title,
		Screens: []wizard.Screen{s},
		Assemble: func(f wizard.Values) (*wizard.Submission, error) {
			sub := wizard.NewSubmission(endpoint)
			sub.Add("product_id", f.Text("product"))
			sub.Add("date", f.Text("date"))
			sub.Add("started_at", f.Text("startedAt"))
			sub.Add("ended_at", f.Text("endedAt"))
			sub.Add("start_temperature", f.Text("startTemperature"))
			sub.Add("end_temperature", f.Text("endTemperature"))
			return sub, nil
		},
	}
}

func (s *tcpScreen) Creates() string   { return KindProducts }
func (s *tcpScreen) Catalog() *Catalog { return s.catalog }
func (s *tcpScreen) Refresh(l Lists)   { s.product.SetOptions(productOptions(l.Products)) }

// oilFlow records a fryer oil check. Polarity above OilPolarityMax
// requires the oil to have been changed.
func (e Engine) oilFlow() wizard.Flow {
	fryer := field.NewText(field.TextConfig{Label: "Fryer", MaxLen: 80}, nil)
	polarity := field.NewDecimal(field.DecimalConfig{Label: "Polar compounds (%)", Min: 0, Max: 40, Precision: 1}, nil)
	action := field.NewSelect(field.SelectConfig{Label: "Action taken", Options: []field.Option{
		{Value: OilNone, Label: "None"},
		{Value: OilFiltered, Label: "Filtered"},
		{Value: OilChanged, Label: "Oil changed"},
	}}, nil)
	date := field.NewDate(field.DateConfig{Label: "Date", Initial: e.today()}, nil)
	limit := e.Config.Thresholds.OilPolarityMax
	screen := &form{
		id:    StepOil,
		title: "Oil control",
		inputs: []wizard.Input{
			{Key: "fryer", Collector: fryer},
			{Key: "polarity", Collector: polarity},
			{Key: "action", Collector: action},
			{Key: "date", Collector: date},
		},
		checks: func() []wizard.Check {
			return []wizard.Check{
				wizard.Require("Name the fryer", fryer.Present),
				wizard.Require("Enter the polar compound reading", polarity.Present),
				wizard.Require("Choose the action taken", action.Present),
				wizard.Require(fmt.Sprintf("Above %.0f%% polar compounds the oil must be changed", limit), func() bool {
					return polarity.Value() <= limit || action.Value() == OilChanged
				}),
				wizard.Require("Please choose the date", date.Present),
			}
		},
	}
	return wizard.Flow{
		Kind:    FlowOil,
		Title:   "Oil control",
		Screens: []wizard.Screen{screen},
		Assemble: func(f wizard.Values) (*wizard.Submission, error) {
			sub := wizard.NewSubmission(EndpointOil)
			sub.Add("fryer", f.Text("fryer"))
			sub.Add("polarity", f.Text("polarity"))
			sub.Add("action", f.Text("action"))
			sub.Add("date", f.Text("date"))
			return sub, nil
		},
	}
}

func (e Engine) temperatureFlow() wizard.Flow {
	equipment := field.NewText(field.TextConfig{Label: "Equipment", Placeholder: "Cold room 1", MaxLen: 80}, nil)
	temp := field.NewDecimal(field.DecimalConfig{Label: "Temperature (°C)", Min: -40, Max: 100, Precision: 1}, nil)
	date := field.NewDate(field.DateConfig{Label: "Date", Initial: e.today()}, nil)
	at := field.NewTime(field.DateConfig{Label: "Time", Initial: e.now()}, nil)
	screen := &form{
		id:    StepTemperature,
		title: "Temperature reading",
		inputs: []wizard.Input{
			{Key: "equipment", Collector: equipment},
			{Key: "temperature", Collector: temp},
			{Key: "date", Collector: date},
			{Key: "time", Collector: at},
		},
		checks: func() []wizard.Check {
			return []wizard.Check{
				wizard.Require("Name the equipment", equipment.Present),
				wizard.Require("Enter the temperature", temp.Present),
				wizard.Require("Please choose the date", date.Present),
				wizard.Require("Enter the time of the reading", at.Present),
			}
		},
	}
	return wizard.Flow{
		Kind:    FlowTemperature,
		Title:   "Temperature reading",
		Screens: []wizard.Screen{screen},
		Assemble: func(f wizard.Values) (*wizard.Submission, error) {
			sub := wizard.NewSubmission(EndpointTemperature)
			sub.Add("equipment", f.Text("equipment"))
			sub.Add("temperature", f.Text("temperature"))
			sub.Add("date", f.Text("date")+" "+f.Text("time")+":00")
			return sub, nil
		},
	}
}
