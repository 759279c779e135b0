package workflow

import (
	"go-dataport/internal/features/imports"
)

// PreviewModel wraps a validation preview with the client-side
// decisions layered on top of it: which issues are displayed and
// whether the user has acknowledged outstanding warnings.
type PreviewModel struct {
	Preview imports.ImportPreview

	acknowledged bool
}

func NewPreviewModel(p imports.ImportPreview) *PreviewModel {
	return &PreviewModel{Preview: p}
}

func (m *PreviewModel) ErrorCount() int   { return m.countBy(imports.SeverityError) }
func (m *PreviewModel) WarningCount() int { return m.countBy(imports.SeverityWarning) }
func (m *PreviewModel) InfoCount() int    { return m.countBy(imports.SeverityInfo) }

func (m *PreviewModel) countBy(s imports.Severity) int {
	n := 0
	for _, issue := range m.Preview.Issues {
		if issue.Severity == s {
			n++
		}
	}
	return n
}

// IsValid reports whether the file can be imported at all: no row may
// carry a blocking error.
func (m *PreviewModel) IsValid() bool {
	return m.Preview.ErrorRows == 0
}

// AcknowledgeWarnings records that the user has reviewed the warning
// list and wants to proceed anyway.
func (m *PreviewModel) AcknowledgeWarnings() {
	m.acknowledged = true
}

func (m *PreviewModel) Acknowledged() bool { return m.acknowledged }

// CanApprove reports whether the approve action should be offered.
// Errors always block. Warnings block until acknowledged.
func (m *PreviewModel) CanApprove() bool {
	if !m.IsValid() {
		return false
	}
	if m.Preview.WarningRows > 0 && !m.acknowledged {
		return false
	}
	return true
}

// FilterIssues returns the issues matching the given filter without
// mutating the underlying preview.
func (m *PreviewModel) FilterIssues(f imports.IssueFilter) []imports.ValidationIssue {
	return m.Preview.Filter(f)
}
