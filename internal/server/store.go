package server

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"safeplate/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrBadPassword  = errors.New("invalid email or password")
	ErrDuplicateRef = errors.New("name already exists")
)

type account struct {
	domain.SessionUser
	hash []byte
}

type upload struct {
	ContentType string
	Data        []byte
}

// Store holds the dev API state in memory. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	nextID  int64
	users   map[int64]*account
	byEmail map[string]int64
	revoked map[string]time.Time

	products  map[int64][]domain.Product
	suppliers map[int64][]domain.Supplier
	zones     map[int64][]domain.CleaningZone

	receptions map[int64][]domain.Reception
	files      map[int64][]domain.TrackingFile
	plans      map[int64][]domain.CleaningPlan
	oil        map[int64][]domain.OilControl
	temps      map[int64][]domain.TemperatureReading
	changes    map[int64][]domain.TemperatureChange
	uploads    map[string]upload
}

func NewStore() *Store {
	return &Store{
		users:      map[int64]*account{},
		byEmail:    map[string]int64{},
		revoked:    map[string]time.Time{},
		products:   map[int64][]domain.Product{},
		suppliers:  map[int64][]domain.Supplier{},
		zones:      map[int64][]domain.CleaningZone{},
		receptions: map[int64][]domain.Reception{},
		files:      map[int64][]domain.TrackingFile{},
		plans:      map[int64][]domain.CleaningPlan{},
		oil:        map[int64][]domain.OilControl{},
		temps:      map[int64][]domain.TemperatureReading{},
		changes:    map[int64][]domain.TemperatureChange{},
		uploads:    map[string]upload{},
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddUser registers an account. Emails are matched case-insensitively.
func (s *Store) AddUser(name, email, password string) (domain.SessionUser, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.SessionUser{}, err
	}
	key := strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[key]; ok {
		return domain.SessionUser{}, ErrEmailTaken
	}
	a := &account{SessionUser: domain.SessionUser{ID: s.id(), Email: strings.TrimSpace(email), Name: name}, hash: hash}
	s.users[a.ID] = a
	s.byEmail[key] = a.ID
	return a.SessionUser, nil
}

// Authenticate checks credentials and returns the matching user.
func (s *Store) Authenticate(email, password string) (domain.SessionUser, error) {
	s.mu.Lock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	var a *account
	if ok {
		a = s.users[id]
	}
	s.mu.Unlock()
	if a == nil {
		return domain.SessionUser{}, ErrBadPassword
	}
	if bcrypt.CompareHashAndPassword(a.hash, []byte(password)) != nil {
		return domain.SessionUser{}, ErrBadPassword
	}
	return a.SessionUser, nil
}

func (s *Store) User(id int64) (domain.SessionUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.users[id]
	if !ok {
		return domain.SessionUser{}, ErrNotFound
	}
	return a.SessionUser, nil
}

// Revoke marks a token id as logged out until its expiry.
func (s *Store) Revoke(jti string, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[jti] = until
}

func (s *Store) Revoked(jti string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.revoked[jti]
	if ok && now.After(until) {
		delete(s.revoked, jti)
		return false
	}
	return ok
}

// addNamed appends a named reference entry, keeping the list sorted by name.
func addNamed[T any](list []T, name string, nameOf func(T) string, build func() T) ([]T, T, error) {
	var zero T
	for _, it := range list {
		if strings.EqualFold(nameOf(it), name) {
			return list, zero, ErrDuplicateRef
		}
	}
	it := build()
	list = append(list, it)
	sort.SliceStable(list, func(i, j int) bool { return strings.ToLower(nameOf(list[i])) < strings.ToLower(nameOf(list[j])) })
	return list, it, nil
}

func (s *Store) AddProduct(userID int64, name string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, p, err := addNamed(s.products[userID], name, func(p domain.Product) string { return p.Name },
		func() domain.Product { return domain.Product{ID: s.id(), Name: name} })
	s.products[userID] = list
	return p, err
}

func (s *Store) AddSupplier(userID int64, name string) (domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, v, err := addNamed(s.suppliers[userID], name, func(v domain.Supplier) string { return v.Name },
		func() domain.Supplier { return domain.Supplier{ID: s.id(), Name: name} })
	s.suppliers[userID] = list
	return v, err
}

func (s *Store) AddZone(userID int64, name string) (domain.CleaningZone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, z, err := addNamed(s.zones[userID], name, func(z domain.CleaningZone) string { return z.Name },
		func() domain.CleaningZone { return domain.CleaningZone{ID: s.id(), Name: name} })
	s.zones[userID] = list
	return z, err
}

func (s *Store) Products(userID int64) []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Product{}, s.products[userID]...)
}

func (s *Store) Suppliers(userID int64) []domain.Supplier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Supplier{}, s.suppliers[userID]...)
}

func (s *Store) Zones(userID int64) []domain.CleaningZone {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CleaningZone{}, s.zones[userID]...)
}

func (s *Store) productName(userID, id int64) (string, bool) {
	for _, p := range s.products[userID] {
		if p.ID == id {
			return p.Name, true
		}
	}
	return "", false
}

func (s *Store) supplierName(userID, id int64) (string, bool) {
	for _, v := range s.suppliers[userID] {
		if v.ID == id {
			return v.Name, true
		}
	}
	return "", false
}

func (s *Store) zoneName(userID, id int64) (string, bool) {
	for _, z := range s.zones[userID] {
		if z.ID == id {
			return z.Name, true
		}
	}
	return "", false
}

// PutUpload keeps an uploaded image and returns the path it is served at.
func (s *Store) PutUpload(name, contentType string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[name] = upload{ContentType: contentType, Data: data}
	return "uploads/" + name
}

func (s *Store) Upload(name string) (upload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[name]
	return u, ok
}

func (s *Store) AddReception(userID int64, r domain.Reception) domain.Reception {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.id()
	r.Supplier, _ = s.supplierName(userID, r.SupplierID)
	for i := range r.Products {
		r.Products[i].Name, _ = s.productName(userID, r.Products[i].ProductID)
	}
	s.receptions[userID] = append(s.receptions[userID], r)
	return r
}

func (s *Store) AddFile(userID int64, f domain.TrackingFile) domain.TrackingFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.ID = s.id()
	f.Product, _ = s.productName(userID, f.ProductID)
	s.files[userID] = append(s.files[userID], f)
	return f
}

func (s *Store) AddCleaningPlan(userID int64, p domain.CleaningPlan) domain.CleaningPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	for i := range p.Zones {
		p.Zones[i].Name, _ = s.zoneName(userID, p.Zones[i].ZoneID)
	}
	s.plans[userID] = append(s.plans[userID], p)
	return p
}

func (s *Store) AddOilControl(userID int64, o domain.OilControl) domain.OilControl {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.ID = s.id()
	s.oil[userID] = append(s.oil[userID], o)
	return o
}

func (s *Store) AddTemperature(userID int64, t domain.TemperatureReading) domain.TemperatureReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id()
	s.temps[userID] = append(s.temps[userID], t)
	return t
}

func (s *Store) AddTemperatureChange(userID int64, c domain.TemperatureChange) domain.TemperatureChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	c.Product, _ = s.productName(userID, c.ProductID)
	s.changes[userID] = append(s.changes[userID], c)
	return c
}

func (s *Store) Receptions(userID int64) []domain.Reception {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Reception{}, s.receptions[userID]...)
}

func (s *Store) Files(userID int64) []domain.TrackingFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TrackingFile{}, s.files[userID]...)
}

func (s *Store) CleaningPlans(userID int64) []domain.CleaningPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CleaningPlan{}, s.plans[userID]...)
}

func (s *Store) OilControls(userID int64) []domain.OilControl {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OilControl{}, s.oil[userID]...)
}

func (s *Store) Temperatures(userID int64) []domain.TemperatureReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TemperatureReading{}, s.temps[userID]...)
}

func (s *Store) TemperatureChanges(userID int64) []domain.TemperatureChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TemperatureChange{}, s.changes[userID]...)
}
