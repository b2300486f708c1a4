package domain

type SessionUser struct {
	Token string `json:"token"`
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// CapturedImage is a photo taken on the device and held until submission.
type CapturedImage struct {
	URI            string `json:"uri"`
	Name           string `json:"name"`
	SizeDescriptor string `json:"size_descriptor"`
	MimeType       string `json:"mime_type"`
}

type Product struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Supplier struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type CleaningZone struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ReceptionProduct struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
}

type Reception struct {
	ID                  int64              `json:"id"`
	Reference           string             `json:"reference,omitempty"`
	Date                string             `json:"date"`
	SupplierID          int64              `json:"supplier_id"`
	Supplier            string             `json:"supplier,omitempty"`
	Service             string             `json:"service"`
	Products            []ReceptionProduct `json:"products"`
	NonComplianceReason string             `json:"non_compliance_reason,omitempty"`
	Temperature         *float64           `json:"temperature,omitempty"`
	ImageURL            string             `json:"image_url,omitempty"`
	CreatedAt           string             `json:"created_at"`
}

// TrackingFile is a traceability record (label photo of an opened product).
type TrackingFile struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Product   string `json:"product,omitempty"`
	OpenedAt  string `json:"opened_at"`
	ExpiresAt string `json:"expires_at,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	CreatedAt string `json:"created_at"`
}

type CleaningZoneEntry struct {
	ZoneID  int64  `json:"zone_id"`
	Name    string `json:"name,omitempty"`
	Comment string `json:"comment,omitempty"`
}

type CleaningPlan struct {
	ID          int64               `json:"id"`
	Date        string              `json:"date"`
	PerformedBy string              `json:"performed_by"`
	Zones       []CleaningZoneEntry `json:"zones"`
	ImageURL    string              `json:"image_url,omitempty"`
	CreatedAt   string              `json:"created_at"`
}

type OilControl struct {
	ID        int64   `json:"id"`
	Fryer     string  `json:"fryer"`
	Polarity  float64 `json:"polarity"`
	Action    string  `json:"action" enum:"none,filtered,changed"`
	Date      string  `json:"date"`
	CreatedAt string  `json:"created_at"`
}

type TemperatureReading struct {
	ID          int64   `json:"id"`
	Equipment   string  `json:"equipment"`
	Temperature float64 `json:"temperature"`
	Date        string  `json:"date"`
	CreatedAt   string  `json:"created_at"`
}

// TemperatureChange is a cooling or reheating control point.
type TemperatureChange struct {
	ID               int64   `json:"id"`
	Kind             string  `json:"kind" enum:"cooling,reheating"`
	ProductID        int64   `json:"product_id"`
	Product          string  `json:"product,omitempty"`
	StartedAt        string  `json:"started_at"`
	EndedAt          string  `json:"ended_at"`
	StartTemperature float64 `json:"start_temperature"`
	EndTemperature   float64 `json:"end_temperature"`
	Date             string  `json:"date"`
	CreatedAt        string  `json:"created_at"`
}

// Draft is a persisted wizard traversal.
type Draft struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Step      int    `json:"step"`
	Payload   string `json:"payload_json"`
	LastError string `json:"last_error,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
