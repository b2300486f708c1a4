package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"safeplate/internal/domain"
	"safeplate/internal/events"
	"safeplate/internal/field"
	"safeplate/internal/wizard"
)

// Catalog kinds.
const (
	KindProducts  = "products"
	KindSuppliers = "suppliers"
	KindZones     = "cleaning-zones"
)

// Lists are the user's reference lists shown in selects.
type Lists struct {
	Products  []domain.Product
	Suppliers []domain.Supplier
	Zones     []domain.CleaningZone
	// Loading is set per kind while a create-and-refetch is in flight.
	Loading map[string]bool
}

func (l Lists) withLoading(kind string, on bool) Lists {
	m := make(map[string]bool, len(l.Loading)+1)
	for k, v := range l.Loading {
		m[k] = v
	}
	if on {
		m[kind] = true
	} else {
		delete(m, kind)
	}
	l.Loading = m
	return l
}

// Catalog fetches reference lists and creates new entries from inside a flow.
type Catalog struct {
	API    API
	UserID int64
	Events events.Writer
	Logger *zap.Logger
	State  *wizard.State[Lists]
}

func newCatalog(e Engine, userID int64) *Catalog {
	return &Catalog{API: e.API, UserID: userID, Events: e.Events, Logger: e.logger(), State: wizard.NewState(Lists{})}
}

// Prefetch loads the given kinds in parallel.
func (c *Catalog) Prefetch(ctx context.Context, kinds ...string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range kinds {
		g.Go(func() error { return c.refetch(gctx, kind) })
	}
	return g.Wait()
}

func (c *Catalog) refetch(ctx context.Context, kind string) error {
	switch kind {
	case KindProducts:
		ps, err := c.API.Products(ctx, c.UserID)
		if err != nil {
			return fmt.Errorf("load products: %w", err)
		}
		c.State.Update(func(l Lists) Lists {
			l.Products = ps
			return l
		})
	case KindSuppliers:
		ss, err := c.API.Suppliers(ctx, c.UserID)
		if err != nil {
			return fmt.Errorf("load suppliers: %w", err)
		}
		c.State.Update(func(l Lists) Lists {
			l.Suppliers = ss
			return l
		})
	case KindZones:
		zs, err := c.API.CleaningZones(ctx, c.UserID)
		if err != nil {
			return fmt.Errorf("load cleaning zones: %w", err)
		}
		c.State.Update(func(l Lists) Lists {
			l.Zones = zs
			return l
		})
	default:
		return fmt.Errorf("unknown catalog kind %q", kind)
	}
	return nil
}

// Create adds an entry of kind named name, then reloads that list. The
// returned lists reflect the reload.
func (c *Catalog) Create(ctx context.Context, kind, name string) (Lists, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return c.State.Get(), fmt.Errorf("a name is required")
	}
	c.State.Update(func(l Lists) Lists { return l.withLoading(kind, true) })
	defer c.State.Update(func(l Lists) Lists { return l.withLoading(kind, false) })

	var id int64
	var err error
	switch kind {
	case KindProducts:
		var p domain.Product
		p, err = c.API.CreateProduct(ctx, name)
		id = p.ID
	case KindSuppliers:
		var s domain.Supplier
		s, err = c.API.CreateSupplier(ctx, name)
		id = s.ID
	case KindZones:
		var z domain.CleaningZone
		z, err = c.API.CreateCleaningZone(ctx, name)
		id = z.ID
	default:
		err = fmt.Errorf("unknown catalog kind %q", kind)
	}
	if err != nil {
		return c.State.Get(), err
	}
	uid := strconv.FormatInt(c.UserID, 10)
	if werr := c.Events.Append(ctx, nil, events.TypeAuxiliaryCreated, kind, strconv.FormatInt(id, 10), uid,
		events.EventPayload{"name": name}); werr != nil && c.Logger != nil {
		c.Logger.Warn("append event", zap.Error(werr))
	}
	if err := c.refetch(ctx, kind); err != nil {
		return c.State.Get(), err
	}
	return c.State.Get().withLoading(kind, false), nil
}

// Loading reports whether a create is in flight for kind.
func (c *Catalog) Loading(kind string) bool {
	return c.State.Get().Loading[kind]
}

func productOptions(ps []domain.Product) []field.Option {
	out := make([]field.Option, len(ps))
	for i, p := range ps {
		out[i] = field.Option{Value: strconv.FormatInt(p.ID, 10), Label: p.Name}
	}
	return out
}

func supplierOptions(ss []domain.Supplier) []field.Option {
	out := make([]field.Option, len(ss))
	for i, s := range ss {
		out[i] = field.Option{Value: strconv.FormatInt(s.ID, 10), Label: s.Name}
	}
	return out
}

func productCandidates(ps []domain.Product) []wizard.Candidate {
	out := make([]wizard.Candidate, len(ps))
	for i, p := range ps {
		out[i] = wizard.Candidate{ID: strconv.FormatInt(p.ID, 10), Label: p.Name}
	}
	return out
}

func zoneCandidates(zs []domain.CleaningZone) []wizard.Candidate {
	out := make([]wizard.Candidate, len(zs))
	for i, z := range zs {
		out[i] = wizard.Candidate{ID: strconv.FormatInt(z.ID, 10), Label: z.Name}
	}
	return out
}

// Creator is implemented by screens offering to create a missing entry
// (supplier, product, zone) without leaving the flow.
type Creator interface {
	wizard.Screen
	// Creates names the catalog kind the screen can add to.
	Creates() string
	Catalog() *Catalog
	// Refresh applies reloaded lists to the screen's inputs.
	Refresh(Lists)
}

// CreateFrom runs an auxiliary create for a screen and refreshes it.
func CreateFrom(ctx context.Context, s Creator, name string) error {
	lists, err := s.Catalog().Create(ctx, s.Creates(), name)
	if err != nil {
		return err
	}
	s.Refresh(lists)
	return nil
}
