package engine_test

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"safeplate/internal/config"
	"safeplate/internal/db"
	"safeplate/internal/domain"
	"safeplate/internal/engine"
	"safeplate/internal/events"
	"safeplate/internal/migrate"
	"safeplate/internal/notify"
	"safeplate/internal/wizard"
)

type submitted struct {
	endpoint string
	fields   map[string]string
	files    map[string]string
}

type fakeAPI struct {
	mu        sync.Mutex
	products  []domain.Product
	suppliers []domain.Supplier
	zones     []domain.CleaningZone
	fail      error
	submits   []submitted
	creates   int
}

func (f *fakeAPI) Products(context.Context, int64) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Product(nil), f.products...), nil
}

func (f *fakeAPI) Suppliers(context.Context, int64) ([]domain.Supplier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Supplier(nil), f.suppliers...), nil
}

func (f *fakeAPI) CleaningZones(context.Context, int64) ([]domain.CleaningZone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CleaningZone(nil), f.zones...), nil
}

func (f *fakeAPI) CreateProduct(_ context.Context, name string) (domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	p := domain.Product{ID: int64(len(f.products) + 1), Name: name}
	f.products = append(f.products, p)
	return p, nil
}

func (f *fakeAPI) CreateSupplier(_ context.Context, name string) (domain.Supplier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	s := domain.Supplier{ID: int64(len(f.suppliers) + 1), Name: name}
	f.suppliers = append(f.suppliers, s)
	return s, nil
}

func (f *fakeAPI) CreateCleaningZone(_ context.Context, name string) (domain.CleaningZone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	z := domain.CleaningZone{ID: int64(len(f.zones) + 1), Name: name}
	f.zones = append(f.zones, z)
	return z, nil
}

func (f *fakeAPI) Submit(_ context.Context, endpoint, contentType string, body io.Reader, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return err
	}
	form, err := multipart.NewReader(body, params["boundary"]).ReadForm(1 << 20)
	if err != nil {
		return err
	}
	s := submitted{endpoint: endpoint, fields: map[string]string{}, files: map[string]string{}}
	for k, v := range form.Value {
		s.fields[k] = v[0]
	}
	for k, v := range form.File {
		s.files[k] = v[0].Filename
	}
	f.submits = append(f.submits, s)
	return nil
}

func (f *fakeAPI) Receptions(context.Context, int64) ([]domain.Reception, error) {
	return []domain.Reception{
		{ID: 1, Reference: "BL-1", Date: "2024-02-10", Supplier: "Metro", Service: "Matin"},
		{ID: 2, Reference: "BL-2", Date: "2024-03-15", Supplier: "Metro", Service: "Soir", NonComplianceReason: "Warm"},
		{ID: 3, Reference: "BL-3", Date: "2024-03-02 08:00:00", Supplier: "Metro", Service: "Midi"},
	}, nil
}

func (f *fakeAPI) Files(context.Context, int64) ([]domain.TrackingFile, error) { return nil, nil }

func (f *fakeAPI) OilControls(context.Context, int64) ([]domain.OilControl, error) { return nil, nil }

func (f *fakeAPI) Temperatures(context.Context, int64) ([]domain.TemperatureReading, error) {
	return nil, nil
}

func (f *fakeAPI) TemperatureChanges(context.Context, int64) ([]domain.TemperatureChange, error) {
	return nil, nil
}

type fakeUsers struct{}

func (fakeUsers) RequireUser() (domain.SessionUser, error) {
	return domain.SessionUser{Token: "tok", ID: 7, Email: "chef@example.com", Name: "Chef"}, nil
}

type testEnv struct {
	Engine engine.Engine
	API    *fakeAPI
	Notes  *notify.Recorder
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	api := &fakeAPI{
		products:  []domain.Product{{ID: 1, Name: "Lait"}, {ID: 2, Name: "Beurre"}},
		suppliers: []domain.Supplier{{ID: 1, Name: "Metro"}},
		zones:     []domain.CleaningZone{{ID: 1, Name: "Cuisine"}, {ID: 2, Name: "Plonge"}},
	}
	eng := engine.New(conn, config.Default(config.DefaultBaseURL), api, fakeUsers{})
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC) }
	notes := &notify.Recorder{}
	eng.Notifier = notes
	return testEnv{Engine: eng, API: api, Notes: notes, Ctx: context.Background()}
}

func TestReceptionAssembly(t *testing.T) {
	env := newTestEnv(t)
	r, err := env.Engine.Start(env.Ctx, engine.FlowReception)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	landed := ""
	r.OnLanding = func(s string) { landed = s }
	err = engine.Drive(env.Ctx, r, engine.Answers{
		"reference":        {"REF1"},
		"deliveryDate":     {"2024-01-01"},
		"selectedSupplier": {"1"},
		"selectedService":  {"Matin"},
		"products":         {"1=2"},
	})
	if err != nil {
		t.Fatalf("drive: %v", err)
	}
	if len(env.API.submits) != 1 {
		t.Fatalf("expected one submission, got %d", len(env.API.submits))
	}
	got := env.API.submits[0]
	if got.endpoint != engine.EndpointReception {
		t.Fatalf("endpoint = %s", got.endpoint)
	}
	want := map[string]string{
		"reference":               "REF1",
		"date":                    "2024-01-01",
		"supplier_id":             "1",
		"service":                 "Matin",
		"products[0][product_id]": "1",
		"products[0][quantity]":   "2",
	}
	if diff := cmp.Diff(want, got.fields); diff != "" {
		t.Fatalf("parts mismatch (-want +got):\n%s", diff)
	}
	if _, ok := got.fields["non_compliance_reason"]; ok {
		t.Fatalf("non_compliance_reason must be absent for a conform delivery")
	}
	if landed != "home" {
		t.Fatalf("landing = %q", landed)
	}
	if last, _ := env.Notes.Last(); last.Level != notify.Success {
		t.Fatalf("expected success notification, got %+v", last)
	}
}

func TestReceptionQuantityStaysWithinConfiguredMax(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Reception.MaxQuantity = 5
	r, err := env.Engine.Start(env.Ctx, engine.FlowReception)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	err = engine.Drive(env.Ctx, r, engine.Answers{
		"reference":        {"REF1"},
		"deliveryDate":     {"2024-01-01"},
		"selectedSupplier": {"1"},
		"selectedService":  {"Matin"},
		"products":         {"1=9", "2=4", "2=+", "2=+"},
	})
	if err != nil {
		t.Fatalf("drive: %v", err)
	}
	got := env.API.submits[0].fields
	if got["products[0][quantity]"] != "1" || got["products[1][quantity]"] != "5" {
		t.Fatalf("quantities not bounded: %v", got)
	}
}

func TestReceptionNonConformityAndPhoto(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Camera = fakeCamera{}
	env.Engine.Open = func(string) (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("jpeg")), nil }
	r, err := env.Engine.Start(env.Ctx, engine.FlowReception)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	err = engine.Drive(env.Ctx, r, engine.Answers{
		"photo":               {"/tmp/bl.jpg"},
		"deliveryDate":        {"2024-01-01"},
		"selectedSupplier":    {"Metro"},
		"selectedService":     {"Soir"},
		"products":            {"1=2", "2=1"},
		"nonConformity":       {"yes"},
		"nonComplianceReason": {"Broken packaging"},
		"temperature":         {"3.5"},
	})
	if err != nil {
		t.Fatalf("drive: %v", err)
	}
	got := env.API.submits[0]
	if _, ok := got.fields["reference"]; ok {
		t.Fatalf("reference must be omitted when only a photo was taken")
	}
	if got.fields["non_compliance_reason"] != "Broken packaging" || got.fields["temperature"] != "3.5" {
		t.Fatalf("unexpected parts: %v", got.fields)
	}
	if got.fields["products[1][product_id]"] != "2" {
		t.Fatalf("second product missing: %v", got.fields)
	}
	if !strings.HasPrefix(got.files["image"], "safeplate_reception_") || !strings.HasSuffix(got.files["image"], ".jpg") {
		t.Fatalf("image filename = %q", got.files["image"])
	}
}

type fakeCamera struct{}

func (fakeCamera) Capture(_ context.Context, src string) (domain.CapturedImage, error) {
	return domain.CapturedImage{URI: "file://" + src, Name: "bl.jpg", SizeDescriptor: "1 kB", MimeType: "image/jpeg"}, nil
}

func TestReceptionShortCircuitsWithoutReferenceOrPhoto(t *testing.T) {
	env := newTestEnv(t)
	r, err := env.Engine.Start(env.Ctx, engine.FlowReception)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	engine.Fill(r.Current(), engine.Answers{"deliveryDate": {"2024-01-01"}})
	err = r.Next(env.Ctx)
	var ve *wizard.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(ve.Message, "reference") {
		t.Fatalf("expected the reference check to fail first, got %q", ve.Message)
	}
	if pos, _ := r.Position(); pos != 0 {
		t.Fatalf("must not navigate forward, at %d", pos)
	}
	if len(env.API.submits) != 0 {
		t.Fatalf("no network call expected")
	}
}

func TestFailedSubmitIsPersistedAndRetried(t *testing.T) {
	env := newTestEnv(t)
	env.API.fail = errors.New("connection reset")
	r, err := env.Engine.Start(env.Ctx, engine.FlowOil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	err = engine.Drive(env.Ctx, r, engine.Answers{"fryer": {"Fryer A"}, "polarity": {"12"}, "action": {"none"}})
	if err == nil {
		t.Fatalf("expected submit error")
	}
	drafts, err := env.Engine.Drafts(env.Ctx, engine.FlowOil)
	if err != nil || len(drafts) != 1 {
		t.Fatalf("drafts: %v %d", err, len(drafts))
	}
	if drafts[0].LastError != "connection reset" {
		t.Fatalf("last error = %q", drafts[0].LastError)
	}

	env.API.fail = nil
	r2, err := env.Engine.Resume(env.Ctx, drafts[0].ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := r2.Retry(env.Ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	want := map[string]string{"fryer": "Fryer A", "polarity": "12.0", "action": "none", "date": "2024-01-01"}
	if diff := cmp.Diff(want, env.API.submits[0].fields); diff != "" {
		t.Fatalf("parts mismatch (-want +got):\n%s", diff)
	}
	drafts, _ = env.Engine.Drafts(env.Ctx, "")
	if len(drafts) != 0 {
		t.Fatalf("draft should be discarded after success")
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "", "", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	var types []string
	for _, e := range evts {
		types = append(types, e.Type)
	}
	if !contains(types, events.TypeSubmitFailed) || !contains(types, events.TypeSubmitted) {
		t.Fatalf("events = %v", types)
	}
}

func TestOilPolarityRequiresChange(t *testing.T) {
	env := newTestEnv(t)
	r, err := env.Engine.Start(env.Ctx, engine.FlowOil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	err = engine.Drive(env.Ctx, r, engine.Answers{"fryer": {"Fryer A"}, "polarity": {"30"}, "action": {"filtered"}})
	if !wizard.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	engine.Fill(r.Current(), engine.Answers{"action": {"changed"}})
	if err := r.Next(env.Ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	if env.API.submits[0].fields["action"] != "changed" {
		t.Fatalf("unexpected parts %v", env.API.submits[0].fields)
	}
}

func TestTemperatureChangeThresholds(t *testing.T) {
	cases := []struct {
		name      string
		kind      string
		startedAt string
		endedAt   string
		startTemp string
		endTemp   string
		ok        bool
	}{
		{"reheating too cold", engine.FlowReheating, "10:00", "11:30", "40", "60", false},
		{"reheating", engine.FlowReheating, "10:00", "11:30", "40", "65", true},
		{"cooling too warm", engine.FlowCooling, "10:00", "11:30", "40", "12", false},
		{"cooling", engine.FlowCooling, "10:00", "11:30", "40", "8", true},
		{"cooling across midnight", engine.FlowCooling, "23:00", "00:30", "63", "8", true},
		{"same start and end", engine.FlowCooling, "10:00", "10:00", "40", "8", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			r, err := env.Engine.Start(env.Ctx, tc.kind)
			if err != nil {
				t.Fatalf("start: %v", err)
			}
			err = engine.Drive(env.Ctx, r, engine.Answers{
				"product":          {"1"},
				"startedAt":        {tc.startedAt},
				"endedAt":          {tc.endedAt},
				"startTemperature": {tc.startTemp},
				"endTemperature":   {tc.endTemp},
			})
			if tc.ok && err != nil {
				t.Fatalf("expected success, got %v", err)
			}
			if !tc.ok && !wizard.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if tc.ok {
				got := env.API.submits[len(env.API.submits)-1].fields
				if got["started_at"] != tc.startedAt || got["ended_at"] != tc.endedAt {
					t.Fatalf("times sent as %q-%q", got["started_at"], got["ended_at"])
				}
			}
		})
	}
}

func TestCleaningPlanParts(t *testing.T) {
	env := newTestEnv(t)
	r, err := env.Engine.Start(env.Ctx, engine.FlowCleaning)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	err = engine.Drive(env.Ctx, r, engine.Answers{"zones": {"2=Sols et murs", "1"}})
	if err != nil {
		t.Fatalf("drive: %v", err)
	}
	want := map[string]string{
		"date":              "2024-01-01",
		"performed_by":      "Chef",
		"zones[0][zone_id]": "2",
		"zones[0][comment]": "Sols et murs",
		"zones[1][zone_id]": "1",
		"zones[1][comment]": "",
	}
	if diff := cmp.Diff(want, env.API.submits[0].fields); diff != "" {
		t.Fatalf("parts mismatch (-want +got):\n%s", diff)
	}
}

func TestAuxiliaryCreateRefreshesList(t *testing.T) {
	env := newTestEnv(t)
	r, err := env.Engine.Start(env.Ctx, engine.FlowReception)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	screen, ok := r.Current().(engine.Creator)
	if !ok {
		t.Fatalf("metadata screen should offer supplier creation")
	}
	if err := engine.CreateFrom(env.Ctx, screen, "Promocash"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if screen.Catalog().Loading(engine.KindSuppliers) {
		t.Fatalf("loading flag must be cleared")
	}
	engine.Fill(screen, engine.Answers{"selectedSupplier": {"Promocash"}})
	out := screen.Output()
	if out.Text("selectedSupplier") != "2" {
		t.Fatalf("new supplier not selectable: %v", out)
	}
	evts, _ := env.Engine.Repo.LatestEvents(env.Ctx, 5, events.TypeAuxiliaryCreated, "", "")
	if len(evts) != 1 {
		t.Fatalf("expected one creation event, got %d", len(evts))
	}
}

func TestAbandonDraft(t *testing.T) {
	env := newTestEnv(t)
	env.API.fail = errors.New("offline")
	r, err := env.Engine.Start(env.Ctx, engine.FlowTemperature)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = engine.Drive(env.Ctx, r, engine.Answers{"equipment": {"Chambre froide"}, "temperature": {"3"}})
	if err := env.Engine.Abandon(env.Ctx, r.Draft().ID); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if _, err := env.Engine.Resume(env.Ctx, r.Draft().ID); err == nil {
		t.Fatalf("abandoned draft must be gone")
	}
}

func TestUnknownFlow(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Start(env.Ctx, "haccp"); err == nil {
		t.Fatalf("expected error for unknown flow")
	}
}

func contains(xs []string, x string) bool {
	for _, s := range xs {
		if s == x {
			return true
		}
	}
	return false
}

func TestHistoryGroupsByMonth(t *testing.T) {
	env := newTestEnv(t)
	groups, err := env.Engine.History(env.Ctx, engine.HistoryReceptions)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var got []string
	for _, g := range groups {
		ids := ""
		for _, r := range g.Items {
			ids += r.Title + " "
		}
		got = append(got, g.Label()+": "+strings.TrimSpace(ids))
	}
	want := []string{"March 2024: BL-2 BL-3", "February 2024: BL-1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}
	if !groups[0].Items[0].Flagged {
		t.Fatalf("non-conform reception should be flagged")
	}
}
