package exports

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ExportStatus string

const (
	ExportStatusPending    ExportStatus = "pending"
	ExportStatusProcessing ExportStatus = "processing"
	ExportStatusReady      ExportStatus = "ready"
	ExportStatusDownloaded ExportStatus = "downloaded"
	ExportStatusExpired    ExportStatus = "expired"
	ExportStatusFailed     ExportStatus = "failed"
)

// Terminal reports whether polling can stop. `downloaded` and `expired`
// only ever follow `ready` and are reached by the download click and the
// expiry sweep, not by the export build.
func (s ExportStatus) Terminal() bool {
	switch s {
	case ExportStatusReady, ExportStatusDownloaded, ExportStatusExpired, ExportStatusFailed:
		return true
	}
	return false
}

// ExportPrivacy selects the transforms applied to personal data while the
// archive is built. All default to off; the workflow only surfaces them
// when a selected category contains personal data.
type ExportPrivacy struct {
	AnonymizeNames  bool     `json:"anonymize_names" bson:"anonymize_names"`
	MaskEmails      bool     `json:"mask_emails" bson:"mask_emails"`
	RedactFields    []string `json:"redact_fields,omitempty" bson:"redact_fields,omitempty"`
	HashIdentifiers bool     `json:"hash_identifiers" bson:"hash_identifiers"`
}

// ExportJob packages selected categories into a downloadable ZIP archive,
// one CSV per category.
type ExportJob struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID     string             `json:"user_id" bson:"user_id"`
	Categories []string           `json:"categories" bson:"categories"`
	Privacy    ExportPrivacy      `json:"privacy" bson:"privacy"`
	Status     ExportStatus       `json:"status" bson:"status"`

	ProgressPercent int            `json:"progress_percent" bson:"progress_percent"`
	RecordCounts    map[string]int `json:"record_counts,omitempty" bson:"record_counts,omitempty"`

	DownloadURL   string     `json:"download_url,omitempty" bson:"download_url,omitempty"`
	DownloadToken string     `json:"-" bson:"download_token,omitempty"`
	ArchivePath   string     `json:"-" bson:"archive_path,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`

	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// Category is one exportable data category. ContainsPersonalData drives
// the privacy-option surfacing rule in the export workflow.
type Category struct {
	ID                   string   `json:"id"`
	Label                string   `json:"label"`
	ContainsPersonalData bool     `json:"contains_personal_data"`
	Fields               []string `json:"fields"`
}

// Registry is the fixed set of categories this deployment exports.
var Registry = []Category{
	{ID: "buildings", Label: "Buildings", Fields: []string{"name", "address", "city", "postal_code", "units"}},
	{ID: "residents", Label: "Residents", ContainsPersonalData: true, Fields: []string{"first_name", "last_name", "email", "phone", "unit"}},
	{ID: "contacts", Label: "Contacts", ContainsPersonalData: true, Fields: []string{"name", "email", "phone", "company"}},
	{ID: "leases", Label: "Leases", Fields: []string{"unit", "start_date", "end_date", "rent"}},
	{ID: "work_orders", Label: "Work Orders", Fields: []string{"title", "status", "unit", "created_at"}},
}

// CategoryByID looks a category up in the registry.
func CategoryByID(id string) (Category, bool) {
	for _, c := range Registry {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}
