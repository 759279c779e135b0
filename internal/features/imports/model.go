package imports

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ImportStatus string

const (
	ImportStatusPending          ImportStatus = "pending"
	ImportStatusValidating       ImportStatus = "validating"
	ImportStatusValidated        ImportStatus = "validated"
	ImportStatusValidationFailed ImportStatus = "validation_failed"
	ImportStatusImporting        ImportStatus = "importing"
	ImportStatusCompleted        ImportStatus = "completed"
	ImportStatusPartial          ImportStatus = "partially_completed"
	ImportStatusFailed           ImportStatus = "failed"
	ImportStatusCancelled        ImportStatus = "cancelled"
)

// Terminal reports whether no further status change is possible without a
// new (or retried) job.
func (s ImportStatus) Terminal() bool {
	switch s {
	case ImportStatusCompleted, ImportStatusPartial, ImportStatusFailed, ImportStatusCancelled:
		return true
	}
	return false
}

// ValidationSettled reports whether the validation phase is over, either
// way. Used as the terminal predicate while polling for a preview.
func (s ImportStatus) ValidationSettled() bool {
	return s.Terminal() || s == ImportStatusValidated || s == ImportStatusValidationFailed
}

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Rank orders severities for gating: error > warning > info.
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

type Resolution string

const (
	ResolutionSkip      Resolution = "skip"
	ResolutionUpdate    Resolution = "update"
	ResolutionCreateNew Resolution = "create_new"
)

// skipConfidence is the boundary above which a duplicate is treated as
// certain and skipped by default. Inclusive on the skip side.
const skipConfidence = 90.0

// DefaultResolution returns the resolution preselected for a duplicate:
// certain duplicates are skipped, uncertain ones are imported as new rows
// so no data is silently dropped.
func DefaultResolution(confidence float64) Resolution {
	if confidence >= skipConfidence {
		return ResolutionSkip
	}
	return ResolutionCreateNew
}

// ImportOptions are the caller's knobs for a job, carried verbatim from
// upload to commit.
type ImportOptions struct {
	SkipErrors     bool `json:"skip_errors" bson:"skip_errors"`
	UpdateExisting bool `json:"update_existing" bson:"update_existing"`
	DryRun         bool `json:"dry_run" bson:"dry_run"`
}

// RowError describes one row that could not be imported.
type RowError struct {
	RowNumber     int    `json:"row_number" bson:"row_number"`
	Column        string `json:"column,omitempty" bson:"column,omitempty"`
	Code          string `json:"code" bson:"code"`
	Message       string `json:"message" bson:"message"`
	OriginalValue string `json:"original_value,omitempty" bson:"original_value,omitempty"`
}

// ValidationIssue is a single finding from the validation phase. Issues are
// data, not errors: they gate approval but never abort the workflow.
type ValidationIssue struct {
	Severity       Severity `json:"severity" bson:"severity"`
	RowNumber      int      `json:"row_number,omitempty" bson:"row_number,omitempty"`
	Column         string   `json:"column,omitempty" bson:"column,omitempty"`
	Code           string   `json:"code" bson:"code"`
	Message        string   `json:"message" bson:"message"`
	OriginalValue  string   `json:"original_value,omitempty" bson:"original_value,omitempty"`
	SuggestedValue string   `json:"suggested_value,omitempty" bson:"suggested_value,omitempty"`
}

// IssueFilter narrows an issue list; empty fields match everything and
// populated fields compose with AND.
type IssueFilter struct {
	Severity *Severity
	Column   string
	Query    string
}

// Matches applies the filter to one issue. Query is a case-insensitive
// substring match against message, code and original value.
func (f IssueFilter) Matches(issue ValidationIssue) bool {
	if f.Severity != nil && issue.Severity != *f.Severity {
		return false
	}
	if f.Column != "" && issue.Column != f.Column {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(issue.Message), q) &&
			!strings.Contains(strings.ToLower(issue.Code), q) &&
			!strings.Contains(strings.ToLower(issue.OriginalValue), q) {
			return false
		}
	}
	return true
}

// ColumnMappingStatus reports how one source column was mapped, for display
// and required-field completeness checks.
type ColumnMappingStatus struct {
	SourceColumn string   `json:"source_column" bson:"source_column"`
	TargetField  string   `json:"target_field,omitempty" bson:"target_field,omitempty"`
	IsMapped     bool     `json:"is_mapped" bson:"is_mapped"`
	IsRequired   bool     `json:"is_required" bson:"is_required"`
	SampleValues []string `json:"sample_values,omitempty" bson:"sample_values,omitempty"`
}

// RecordCounts breaks importable rows down by what the commit would do.
type RecordCounts struct {
	NewRecords int `json:"new_records" bson:"new_records"`
	Updates    int `json:"updates" bson:"updates"`
	Skipped    int `json:"skipped" bson:"skipped"`
}

// ImportPreview is the validation result shown before approval.
type ImportPreview struct {
	TotalRows       int                      `json:"total_rows" bson:"total_rows"`
	ImportableRows  int                      `json:"importable_rows" bson:"importable_rows"`
	ErrorRows       int                      `json:"error_rows" bson:"error_rows"`
	WarningRows     int                      `json:"warning_rows" bson:"warning_rows"`
	RecordCounts    RecordCounts             `json:"record_counts" bson:"record_counts"`
	Issues          []ValidationIssue        `json:"issues" bson:"issues"`
	TotalIssueCount int                      `json:"total_issue_count" bson:"total_issue_count"`
	ColumnMapping   []ColumnMappingStatus    `json:"column_mapping" bson:"column_mapping"`
	SampleRecords   []map[string]interface{} `json:"sample_records,omitempty" bson:"sample_records,omitempty"`
	IsValid         bool                     `json:"is_valid" bson:"is_valid"`
}

// Filter returns the issues matching f, preserving order.
func (p *ImportPreview) Filter(f IssueFilter) []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range p.Issues {
		if f.Matches(issue) {
			out = append(out, issue)
		}
	}
	return out
}

// FieldDifference shows one field diverging between an import row and the
// existing record it may duplicate.
type FieldDifference struct {
	Field         string `json:"field" bson:"field"`
	ImportValue   string `json:"import_value,omitempty" bson:"import_value,omitempty"`
	ExistingValue string `json:"existing_value,omitempty" bson:"existing_value,omitempty"`
}

// DuplicateRecord is one import row matched against an existing record.
// ImportRow is unique within a job and keys the resolution mapping.
type DuplicateRecord struct {
	ImportRow     int               `json:"import_row" bson:"import_row"`
	ExistingID    string            `json:"existing_id" bson:"existing_id"`
	MatchedFields []string          `json:"matched_fields" bson:"matched_fields"`
	Confidence    float64           `json:"confidence" bson:"confidence"`
	Differences   []FieldDifference `json:"differences,omitempty" bson:"differences,omitempty"`
}

// ImportJob is the unit of work for one uploaded spreadsheet. Mutated only
// by the validation and commit goroutines; read-only for API consumers, and
// frozen once Status is terminal.
type ImportJob struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID       string             `json:"user_id" bson:"user_id"`
	TemplateID   string             `json:"template_id" bson:"template_id"`
	TemplateName string             `json:"template_name" bson:"template_name"`
	Category     string             `json:"category" bson:"category"`
	FileName     string             `json:"file_name" bson:"file_name"`
	FilePath     string             `json:"-" bson:"file_path"`
	FileSize     int64              `json:"file_size" bson:"file_size"`
	MimeType     string             `json:"mime_type,omitempty" bson:"mime_type,omitempty"`
	Options      ImportOptions      `json:"options" bson:"options"`
	Status       ImportStatus       `json:"status" bson:"status"`

	TotalRows       int `json:"total_rows" bson:"total_rows"`
	ProcessedRows   int `json:"processed_rows" bson:"processed_rows"`
	SuccessfulRows  int `json:"successful_rows" bson:"successful_rows"`
	FailedRows      int `json:"failed_rows" bson:"failed_rows"`
	SkippedRows     int `json:"skipped_rows" bson:"skipped_rows"`
	ProgressPercent int `json:"progress_percent" bson:"progress_percent"`

	Errors              []RowError            `json:"error_summary,omitempty" bson:"error_summary,omitempty"`
	Preview             *ImportPreview        `json:"preview,omitempty" bson:"preview,omitempty"`
	Duplicates          []DuplicateRecord     `json:"duplicates,omitempty" bson:"duplicates,omitempty"`
	Resolutions         map[string]Resolution `json:"resolutions,omitempty" bson:"resolutions,omitempty"`
	AcknowledgeWarnings bool                  `json:"acknowledge_warnings" bson:"acknowledge_warnings"`
	FailureReason       string                `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`

	// ErrorRowNumbers keeps the rows rejected by validation so the commit
	// phase can honor them without re-running the validators.
	ErrorRowNumbers []int `json:"-" bson:"error_row_numbers,omitempty"`

	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}
