package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"safeplate/internal/wizard"
)

// Kinds lists the flows that can be started.
func Kinds() []string {
	k := []string{FlowReception, FlowTracking, FlowCleaning, FlowCooling, FlowReheating, FlowOil, FlowTemperature}
	sort.Strings(k)
	return k
}

// Flow builds the flow named kind for the signed-in user, loading the
// reference lists its screens need.
func (e Engine) Flow(ctx context.Context, kind string) (wizard.Flow, error) {
	u, err := e.Users.RequireUser()
	if err != nil {
		return wizard.Flow{}, err
	}
	cat := newCatalog(e, u.ID)
	switch kind {
	case FlowReception:
		if err := cat.Prefetch(ctx, KindSuppliers, KindProducts); err != nil {
			return wizard.Flow{}, err
		}
		return e.receptionFlow(cat), nil
	case FlowTracking:
		if err := cat.Prefetch(ctx, KindProducts); err != nil {
			return wizard.Flow{}, err
		}
		return e.trackingFlow(cat), nil
	case FlowCleaning:
		if err := cat.Prefetch(ctx, KindZones); err != nil {
			return wizard.Flow{}, err
		}
		return e.cleaningFlow(cat, u.Name), nil
	case FlowCooling, FlowReheating:
		if err := cat.Prefetch(ctx, KindProducts); err != nil {
			return wizard.Flow{}, err
		}
		return e.tcpFlow(cat, kind == FlowReheating), nil
	case FlowOil:
		return e.oilFlow(), nil
	case FlowTemperature:
		return e.temperatureFlow(), nil
	}
	return wizard.Flow{}, fmt.Errorf("unknown flow %q (expected one of %s)", kind, strings.Join(Kinds(), ", "))
}

// Answers maps input keys to raw entries. Several entries for one key are
// entered in order, which is how list inputs receive multiple items.
type Answers map[string][]string

// Fill enters every answer addressed to the current screen's inputs.
func Fill(s wizard.Screen, answers Answers) {
	for _, in := range s.Inputs() {
		for _, raw := range answers[in.Key] {
			in.Enter(raw)
		}
	}
}

// Drive fills and advances each screen in turn until the runner submits or
// a step fails. It is the non-interactive way through a flow.
func Drive(ctx context.Context, r *wizard.Runner, answers Answers) error {
	for {
		Fill(r.Current(), answers)
		if err := r.Next(ctx); err != nil {
			return err
		}
		if r.Phase() == wizard.Done {
			return nil
		}
	}
}
