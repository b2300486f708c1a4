package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"safeplate/internal/history"
)

// History kinds, one per list screen.
const (
	HistoryReceptions   = "receptions"
	HistoryFiles        = "files"
	HistoryOil          = "oil-controls"
	HistoryTemperatures = "temperatures"
	HistoryChanges      = "temperature-changes"
)

// Record is one line of a history screen.
type Record struct {
	ID      int64
	Date    string
	Title   string
	Detail  string
	Flagged bool
}

// HistoryKinds lists the history screens.
func HistoryKinds() []string {
	k := []string{HistoryReceptions, HistoryFiles, HistoryOil, HistoryTemperatures, HistoryChanges}
	sort.Strings(k)
	return k
}

// History loads the records of one history screen grouped by month.
func (e Engine) History(ctx context.Context, kind string) ([]history.Group[Record], error) {
	u, err := e.Users.RequireUser()
	if err != nil {
		return nil, err
	}
	var recs []Record
	switch kind {
	case HistoryReceptions:
		rows, err := e.API.Receptions(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			title := r.Reference
			if title == "" {
				title = "Delivery note photo"
			}
			detail := fmt.Sprintf("%s, %s, %s", r.Supplier, r.Service, pluralProducts(len(r.Products)))
			if r.NonComplianceReason != "" {
				detail += ": " + r.NonComplianceReason
			}
			recs = append(recs, Record{ID: r.ID, Date: r.Date, Title: title, Detail: detail, Flagged: r.NonComplianceReason != ""})
		}
	case HistoryFiles:
		rows, err := e.API.Files(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		for _, f := range rows {
			detail := "opened " + f.OpenedAt
			if f.ExpiresAt != "" {
				detail += ", use by " + f.ExpiresAt
			}
			recs = append(recs, Record{ID: f.ID, Date: f.OpenedAt, Title: f.Product, Detail: detail})
		}
	case HistoryOil:
		rows, err := e.API.OilControls(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		limit := e.Config.Thresholds.OilPolarityMax
		for _, o := range rows {
			recs = append(recs, Record{
				ID:      o.ID,
				Date:    o.Date,
				Title:   o.Fryer,
				Detail:  fmt.Sprintf("%.1f%% polar, %s", o.Polarity, o.Action),
				Flagged: o.Polarity > limit,
			})
		}
	case HistoryTemperatures:
		rows, err := e.API.Temperatures(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		for _, t := range rows {
			recs = append(recs, Record{ID: t.ID, Date: t.Date, Title: t.Equipment, Detail: fmt.Sprintf("%.1f°C", t.Temperature)})
		}
	case HistoryChanges:
		rows, err := e.API.TemperatureChanges(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		th := e.Config.Thresholds
		for _, c := range rows {
			flagged := c.EndTemperature > th.CoolingMax
			if c.Kind == "reheating" {
				flagged = c.EndTemperature < th.ReheatingMin
			}
			recs = append(recs, Record{
				ID:    c.ID,
				Date:  c.Date,
				Title: c.Product,
				Detail: fmt.Sprintf("%s %s-%s, %.1f°C to %.1f°C",
					c.Kind, c.StartedAt, c.EndedAt, c.StartTemperature, c.EndTemperature),
				Flagged: flagged,
			})
		}
	default:
		return nil, fmt.Errorf("unknown history %q (expected one of %s)", kind, strings.Join(HistoryKinds(), ", "))
	}
	return history.ByMonth(recs, func(r Record) string { return r.Date }), nil
}

func pluralProducts(n int) string {
	if n == 1 {
		return "1 product"
	}
	return humanize.Comma(int64(n)) + " products"
}
