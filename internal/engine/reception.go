package engine

import (
	"fmt"
	"strings"

	"safeplate/internal/device"
	"safeplate/internal/field"
	"safeplate/internal/wizard"
)

const (
	FlowReception = "reception"

	EndpointReception = "reception/new"

	StepReceptionMetadata wizard.StepID = "reception.metadata"
	StepReceptionProducts wizard.StepID = "reception.products"
	StepReceptionFinalize wizard.StepID = "reception.finalize"
)

// Reception draft keys.
const (
	keyReference     = "reference"
	keyDeliveryDate  = "deliveryDate"
	keySupplier      = "selectedSupplier"
	keyService       = "selectedService"
	keyPhoto         = "photo"
	keyProducts      = "products"
	keyNonConformity = "nonConformity"
	keyNonCompliance = "nonComplianceReason"
	keyTemperature   = "temperature"
)

type receptionMetadata struct {
	form
	reference *field.Text
	date      *field.Date
	supplier  *field.Select
	service   *field.Select
	photo     *device.Photo
	catalog   *Catalog
}

func (e Engine) receptionMetadata(cat *Catalog) *receptionMetadata {
	services := make([]field.Option, 0, len(e.Config.Services))
	for _, s := range e.Config.Services {
		services = append(services, field.Option{Value: s, Label: s})
	}
	s := &receptionMetadata{
		reference: field.NewText(field.TextConfig{Label: "Delivery note reference", Placeholder: "BL-0001", MaxLen: 64}, nil),
		date:      field.NewDate(field.DateConfig{Label: "Delivery date"}, nil),
		supplier:  field.NewSelect(field.SelectConfig{Label: "Supplier", Placeholder: "Search a supplier", Options: supplierOptions(cat.State.Get().Suppliers)}, nil),
		service:   field.NewSelect(field.SelectConfig{Label: "Service", Options: services}, nil),
		photo:     device.NewPhoto("Delivery note photo", e.Camera, e.notifier()),
		catalog:   cat,
	}
	s.form = form{
		id:    StepReceptionMetadata,
		title: "Delivery",
		inputs: []wizard.Input{
			{Key: keyReference, Collector: s.reference},
			{Key: keyDeliveryDate, Collector: s.date},
			{Key: keySupplier, Collector: s.supplier},
			{Key: keyService, Collector: s.service},
			{Key: keyPhoto, Collector: s.photo},
		},
		checks: func() []wizard.Check {
			return []wizard.Check{
				wizard.Require("Please choose the delivery date", s.date.Present),
				wizard.Require("Enter the delivery note reference or take a photo of it", func() bool {
					return s.reference.Present() || s.photo.Present()
				}),
				wizard.Require("Please choose a supplier", s.supplier.Present),
				wizard.Require("Please choose a service", s.service.Present),
			}
		},
	}
	return s
}

func (s *receptionMetadata) Creates() string   { return KindSuppliers }
func (s *receptionMetadata) Catalog() *Catalog { return s.catalog }
func (s *receptionMetadata) Refresh(l Lists)   { s.supplier.SetOptions(supplierOptions(l.Suppliers)) }

type receptionProducts struct {
	form
	products *wizard.SelectionSet
	catalog  *Catalog
}

func (e Engine) receptionProducts(cat *Catalog) *receptionProducts {
	s := &receptionProducts{
		products: wizard.NewSelectionSet("Products received", wizard.WithQuantity, productCandidates(cat.State.Get().Products)),
		catalog:  cat,
	}
	s.products.SetQuantityBounds(field.CounterConfig{Label: "Quantity", Min: 1, Max: e.Config.Reception.MaxQuantity})
	lo, hi := s.products.QuantityBounds()
	s.form = form{
		id:     StepReceptionProducts,
		title:  "Products",
		inputs: []wizard.Input{{Key: keyProducts, Collector: s.products}},
		checks: func() []wizard.Check {
			return []wizard.Check{
				wizard.Require("Select at least one product", s.products.Present),
				// restored drafts bypass the bounds
				wizard.Require(fmt.Sprintf("Every product needs a quantity between %d and %d", lo, hi), func() bool {
					for _, sel := range s.products.Selected() {
						if sel.Quantity < lo || sel.Quantity > hi {
							return false
						}
					}
					return true
				}),
			}
		},
	}
	return s
}

func (s *receptionProducts) Creates() string   { return KindProducts }
func (s *receptionProducts) Catalog() *Catalog { return s.catalog }
func (s *receptionProducts) Refresh(l Lists)   { s.products.SetCandidates(productCandidates(l.Products)) }

func (e Engine) receptionFinalize() wizard.Screen {
	nonConform := field.NewToggle("Non-conformity observed", false, nil)
	reason := field.NewText(field.TextConfig{Label: "Non-compliance reason", MaxLen: 500}, nil)
	temp := field.NewDecimal(field.DecimalConfig{Label: "Product temperature (°C)", Min: -40, Max: 100, Precision: 1}, nil)
	return &form{
		id:    StepReceptionFinalize,
		title: "Conformity",
		inputs: []wizard.Input{
			{Key: keyNonConformity, Collector: nonConform},
			{Key: keyNonCompliance, Collector: reason},
			{Key: keyTemperature, Collector: temp},
		},
		checks: func() []wizard.Check {
			return []wizard.Check{
				wizard.Require("Describe the non-conformity", func() bool {
					return !nonConform.On() || reason.Present()
				}),
			}
		},
	}
}

func (e Engine) receptionFlow(cat *Catalog) wizard.Flow {
	return wizard.Flow{
		Kind:  FlowReception,
		Title: "Goods reception",
		Screens: []wizard.Screen{
			e.receptionMetadata(cat),
			e.receptionProducts(cat),
			e.receptionFinalize(),
		},
		Assemble: e.assembleReception,
	}
}

func (e Engine) assembleReception(f wizard.Values) (*wizard.Submission, error) {
	s := wizard.NewSubmission(EndpointReception)
	s.AddIfSet("reference", strings.TrimSpace(f.Text(keyReference)))
	s.Add("date", f.Text(keyDeliveryDate))
	s.Add("supplier_id", f.Text(keySupplier))
	s.Add("service", f.Text(keyService))
	s.AddList("products", renameItems(f.Items(keyProducts), map[string]string{"id": "product_id"}), "product_id", "quantity")
	if f.Bool(keyNonConformity) {
		s.Add("non_compliance_reason", f.Text(keyNonCompliance))
	}
	s.AddIfSet("temperature", f.Text(keyTemperature))
	s.AddImage("image", f.Image(keyPhoto), e.imagePrefix("reception"), e.now())
	return s, nil
}

// renameItems copies items with keys renamed per names; other keys are kept.
func renameItems(items []wizard.Item, names map[string]string) []wizard.Item {
	out := make([]wizard.Item, len(items))
	for i, it := range items {
		cp := make(wizard.Item, len(it))
		for k, v := range it {
			if n, ok := names[k]; ok {
				k = n
			}
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}

func (e Engine) imagePrefix(flow string) string {
	if e.Config != nil && e.Config.Images.Prefix != "" {
		return e.Config.Images.Prefix + "_" + flow
	}
	return flow
}
