package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go-dataport/internal/features/imports"
)

func previewWith(errorRows, warningRows int, issues ...imports.ValidationIssue) imports.ImportPreview {
	return imports.ImportPreview{
		TotalRows:      10,
		ImportableRows: 10 - errorRows,
		ErrorRows:      errorRows,
		WarningRows:    warningRows,
		Issues:         issues,
		IsValid:        errorRows == 0,
	}
}

func TestPreviewSeverityCounts(t *testing.T) {
	m := NewPreviewModel(previewWith(1, 1,
		imports.ValidationIssue{Severity: imports.SeverityError, Code: "required_missing"},
		imports.ValidationIssue{Severity: imports.SeverityWarning, Code: "invalid_phone"},
		imports.ValidationIssue{Severity: imports.SeverityWarning, Code: "invalid_phone"},
		imports.ValidationIssue{Severity: imports.SeverityInfo, Code: "date_normalized"},
	))

	assert.Equal(t, 1, m.ErrorCount())
	assert.Equal(t, 2, m.WarningCount())
	assert.Equal(t, 1, m.InfoCount())
}

func TestPreviewApprovalGating(t *testing.T) {
	t.Run("errors always block", func(t *testing.T) {
		m := NewPreviewModel(previewWith(2, 0))
		assert.False(t, m.IsValid())
		assert.False(t, m.CanApprove())
		m.AcknowledgeWarnings()
		assert.False(t, m.CanApprove(), "acknowledging cannot override errors")
	})

	t.Run("warnings block until acknowledged", func(t *testing.T) {
		m := NewPreviewModel(previewWith(0, 3))
		assert.True(t, m.IsValid())
		assert.False(t, m.CanApprove())
		m.AcknowledgeWarnings()
		assert.True(t, m.CanApprove())
	})

	t.Run("clean file approves immediately", func(t *testing.T) {
		m := NewPreviewModel(previewWith(0, 0))
		assert.True(t, m.CanApprove())
	})

	t.Run("info issues never block", func(t *testing.T) {
		m := NewPreviewModel(previewWith(0, 0,
			imports.ValidationIssue{Severity: imports.SeverityInfo, Code: "date_normalized"},
		))
		assert.True(t, m.CanApprove())
	})
}

func TestPreviewFilterIssues(t *testing.T) {
	warn := imports.SeverityWarning
	m := NewPreviewModel(previewWith(1, 1,
		imports.ValidationIssue{Severity: imports.SeverityError, Column: "email", Code: "invalid_email", Message: "not an email address"},
		imports.ValidationIssue{Severity: imports.SeverityWarning, Column: "phone", Code: "invalid_phone", Message: "unrecognized phone format"},
		imports.ValidationIssue{Severity: imports.SeverityWarning, Column: "email", Code: "invalid_phone", Message: "unrecognized phone format"},
	))

	bySeverity := m.FilterIssues(imports.IssueFilter{Severity: &warn})
	assert.Len(t, bySeverity, 2)

	byColumn := m.FilterIssues(imports.IssueFilter{Column: "email"})
	assert.Len(t, byColumn, 2)

	combined := m.FilterIssues(imports.IssueFilter{Severity: &warn, Column: "email"})
	assert.Len(t, combined, 1)

	byQuery := m.FilterIssues(imports.IssueFilter{Query: "PHONE"})
	assert.Len(t, byQuery, 2, "query match is case-insensitive")

	// Filtering never mutates the preview itself.
	assert.Len(t, m.Preview.Issues, 3)
}
