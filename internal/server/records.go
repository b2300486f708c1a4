package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"safeplate/internal/domain"
)

// validationError lists the multipart fields that were missing or malformed.
type validationError struct {
	Fields []string
}

func (e *validationError) Error() string {
	return "missing or invalid fields: " + strings.Join(e.Fields, ", ")
}

// formReader reads typed values out of a multipart form and collects the
// names of fields that fail.
type formReader struct {
	form *multipart.Form
	bad  []string
}

func (r *formReader) fail(name string) {
	for _, b := range r.bad {
		if b == name {
			return
		}
	}
	r.bad = append(r.bad, name)
}

func (r *formReader) raw(name string) string {
	if v := r.form.Value[name]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func (r *formReader) text(name string, required bool) string {
	v := r.raw(name)
	if v == "" && required {
		r.fail(name)
	}
	return v
}

func (r *formReader) id(name string) int64 {
	n, err := strconv.ParseInt(r.raw(name), 10, 64)
	if err != nil || n <= 0 {
		r.fail(name)
	}
	return n
}

func (r *formReader) number(name string) float64 {
	f, err := strconv.ParseFloat(r.raw(name), 64)
	if err != nil {
		r.fail(name)
	}
	return f
}

func (r *formReader) optionalNumber(name string) *float64 {
	if r.raw(name) == "" {
		return nil
	}
	f := r.number(name)
	return &f
}

// timeValue checks a required value against layout.
func (r *formReader) timeValue(name, layout string) string {
	v := r.text(name, true)
	if v == "" {
		return ""
	}
	if _, err := time.Parse(layout, v); err != nil {
		r.fail(name)
	}
	return v
}

func (r *formReader) check(ok bool, name string) {
	if !ok {
		r.fail(name)
	}
}

func (r *formReader) err() error {
	if len(r.bad) == 0 {
		return nil
	}
	return &validationError{Fields: r.bad}
}

var indexedKey = regexp.MustCompile(`^([A-Za-z_]+)\[(\d+)\]\[([A-Za-z_]+)\]$`)

// list decodes name[i][key] parts into items ordered by index.
func (r *formReader) list(name string) []map[string]string {
	byIndex := map[int]map[string]string{}
	for k, v := range r.form.Value {
		m := indexedKey.FindStringSubmatch(k)
		if m == nil || m[1] != name || len(v) == 0 {
			continue
		}
		i, _ := strconv.Atoi(m[2])
		if byIndex[i] == nil {
			byIndex[i] = map[string]string{}
		}
		byIndex[i][m[3]] = v[0]
	}
	idx := make([]int, 0, len(byIndex))
	for i := range byIndex {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]map[string]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, byIndex[i])
	}
	return out
}

const (
	dateLayout     = "2006-01-02"
	clockLayout    = "15:04"
	dateTimeLayout = "2006-01-02 15:04:05"
)

type recordHandler func(userID int64, r *formReader, imageURL string) (any, error)

func registerRecords(router chi.Router, cfg Config) {
	routes := map[string]recordHandler{
		"reception/new":     receptionRecord(cfg.Store),
		"simple-tracking":   trackingRecord(cfg.Store),
		"cleaning-plan/new": cleaningRecord(cfg.Store),
		"tcp/cooling":       changeRecord(cfg.Store, "cooling"),
		"tcp/reheating":     changeRecord(cfg.Store, "reheating"),
		"oil-control/new":   oilRecord(cfg.Store),
		"temperature/new":   temperatureRecord(cfg.Store),
	}
	for route, h := range routes {
		router.Post(path.Join(cfg.BasePath, route), multipartHandler(cfg, route, h))
	}
}

func multipartHandler(cfg Config, route string, h recordHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		userID, serr := userIDFromContext(req.Context())
		if serr != nil {
			respondStatusError(w, serr)
			return
		}
		req.Body = http.MaxBytesReader(w, req.Body, cfg.MaxUploadBytes)
		if err := req.ParseMultipartForm(cfg.MaxUploadBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondStatusError(w, newAPIError(http.StatusRequestEntityTooLarge, "too_large", "upload too large", nil))
				return
			}
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "multipart/form-data body required", nil))
			return
		}
		defer req.MultipartForm.RemoveAll()
		imageURL, err := storeImage(cfg.Store, req.MultipartForm)
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil))
			return
		}
		rec, err := h(userID, &formReader{form: req.MultipartForm}, imageURL)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		cfg.logger().Info("record created", zap.String("route", route), zap.Int64("user_id", userID))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(rec)
	}
}

func storeImage(s *Store, form *multipart.Form) (string, error) {
	files := form.File["image"]
	if len(files) == 0 {
		return "", nil
	}
	fh := files[0]
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	if !strings.HasPrefix(ct, "image/") {
		return "", fmt.Errorf("image must be an image, got %s", ct)
	}
	return s.PutUpload(path.Base(fh.Filename), ct, data), nil
}

func receptionRecord(s *Store) recordHandler {
	return func(userID int64, r *formReader, imageURL string) (any, error) {
		rec := domain.Reception{
			Reference:  r.text("reference", false),
			Date:       r.timeValue("date", dateLayout),
			SupplierID: r.id("supplier_id"),
			Service:    r.text("service", true),
			ImageURL:   imageURL,
		}
		r.check(rec.Reference != "" || imageURL != "", "reference")
		if _, ok := s.supplierName(userID, rec.SupplierID); !ok {
			r.fail("supplier_id")
		}
		items := r.list("products")
		r.check(len(items) > 0, "products")
		for i, it := range items {
			pid, err := strconv.ParseInt(it["product_id"], 10, 64)
			qty, qerr := strconv.Atoi(it["quantity"])
			if err != nil || qerr != nil || qty < 1 {
				r.fail(fmt.Sprintf("products[%d]", i))
				continue
			}
			if _, ok := s.productName(userID, pid); !ok {
				r.fail(fmt.Sprintf("products[%d][product_id]", i))
			}
			rec.Products = append(rec.Products, domain.ReceptionProduct{ProductID: pid, Quantity: qty})
		}
		rec.NonComplianceReason = r.text("non_compliance_reason", false)
		rec.Temperature = r.optionalNumber("temperature")
		if err := r.err(); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Now().UTC().Format(time.RFC3339)
		return s.AddReception(userID, rec), nil
	}
}

func trackingRecord(s *Store) recordHandler {
	return func(userID int64, r *formReader, imageURL string) (any, error) {
		rec := domain.TrackingFile{
			ProductID: r.id("product_id"),
			OpenedAt:  r.timeValue("opened_at", dateLayout),
			ImageURL:  imageURL,
		}
		r.check(imageURL != "", "image")
		if _, ok := s.productName(userID, rec.ProductID); !ok {
			r.fail("product_id")
		}
		if v := r.text("expires_at", false); v != "" {
			rec.ExpiresAt = r.timeValue("expires_at", dateLayout)
			r.check(rec.ExpiresAt >= rec.OpenedAt, "expires_at")
		}
		if err := r.err(); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Now().UTC().Format(time.RFC3339)
		return s.AddFile(userID, rec), nil
	}
}

func cleaningRecord(s *Store) recordHandler {
	return func(userID int64, r *formReader, imageURL string) (any, error) {
		rec := domain.CleaningPlan{
			Date:        r.timeValue("date", dateLayout),
			PerformedBy: r.text("performed_by", true),
			ImageURL:    imageURL,
		}
		items := r.list("zones")
		r.check(len(items) > 0, "zones")
		for i, it := range items {
			zid, err := strconv.ParseInt(it["zone_id"], 10, 64)
			if err != nil {
				r.fail(fmt.Sprintf("zones[%d][zone_id]", i))
				continue
			}
			if _, ok := s.zoneName(userID, zid); !ok {
				r.fail(fmt.Sprintf("zones[%d][zone_id]", i))
			}
			rec.Zones = append(rec.Zones, domain.CleaningZoneEntry{ZoneID: zid, Comment: it["comment"]})
		}
		if err := r.err(); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Now().UTC().Format(time.RFC3339)
		return s.AddCleaningPlan(userID, rec), nil
	}
}

func changeRecord(s *Store, kind string) recordHandler {
	return func(userID int64, r *formReader, _ string) (any, error) {
		rec := domain.TemperatureChange{
			Kind:             kind,
			ProductID:        r.id("product_id"),
			Date:             r.timeValue("date", dateLayout),
			StartedAt:        r.timeValue("started_at", clockLayout),
			EndedAt:          r.timeValue("ended_at", clockLayout),
			StartTemperature: r.number("start_temperature"),
			EndTemperature:   r.number("end_temperature"),
		}
		if _, ok := s.productName(userID, rec.ProductID); !ok {
			r.fail("product_id")
		}
		if rec.StartedAt != "" && rec.EndedAt != "" {
			// an end before the start crosses midnight
			r.check(rec.EndedAt != rec.StartedAt, "ended_at")
		}
		if err := r.err(); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Now().UTC().Format(time.RFC3339)
		return s.AddTemperatureChange(userID, rec), nil
	}
}

func oilRecord(s *Store) recordHandler {
	return func(userID int64, r *formReader, _ string) (any, error) {
		rec := domain.OilControl{
			Fryer:    r.text("fryer", true),
			Polarity: r.number("polarity"),
			Action:   r.text("action", true),
			Date:     r.timeValue("date", dateLayout),
		}
		switch rec.Action {
		case "none", "filtered", "changed":
		default:
			r.fail("action")
		}
		r.check(rec.Polarity >= 0 && rec.Polarity <= 100, "polarity")
		if err := r.err(); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Now().UTC().Format(time.RFC3339)
		return s.AddOilControl(userID, rec), nil
	}
}

func temperatureRecord(s *Store) recordHandler {
	return func(userID int64, r *formReader, _ string) (any, error) {
		rec := domain.TemperatureReading{
			Equipment:   r.text("equipment", true),
			Temperature: r.number("temperature"),
			Date:        r.timeValue("date", dateTimeLayout),
		}
		if err := r.err(); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Now().UTC().Format(time.RFC3339)
		return s.AddTemperature(userID, rec), nil
	}
}
