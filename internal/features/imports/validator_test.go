package imports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	common_models "go-dataport/internal/common/models"
	"go-dataport/internal/features/template"
)

func residentTemplate() *template.MappingTemplate {
	return &template.MappingTemplate{
		Name:     "Residents",
		Category: "residents",
		Fields: []template.TemplateField{
			{SourceColumn: "Name", TargetField: "name", Required: true, Type: common_models.FieldTypeText},
			{SourceColumn: "Email", TargetField: "email", Type: common_models.FieldTypeEmail},
			{SourceColumn: "Phone", TargetField: "phone", Type: common_models.FieldTypePhone},
			{SourceColumn: "Move In", TargetField: "move_in", Type: common_models.FieldTypeDate},
			{SourceColumn: "Rent", TargetField: "rent", Type: common_models.FieldTypeNumber},
		},
	}
}

func issuesByCode(issues []ValidationIssue, code string) []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range issues {
		if issue.Code == code {
			out = append(out, issue)
		}
	}
	return out
}

func TestValidateRowsIssueTaxonomy(t *testing.T) {
	tpl := residentTemplate()
	headers := []string{"Name", "Email", "Phone", "Move In", "Rent", "Notes"}
	rows := []map[string]string{
		{"Name": "", "Email": "ada@example.com", "Rent": "950"},
		{"Name": "Grace", "Email": "not-an-email", "Rent": "abc"},
		{"Name": "Linus", "Phone": "call me", "Move In": "01/15/2024"},
	}

	issues := validateRows(tpl, headers, rows)

	unmapped := issuesByCode(issues, "unmapped_column")
	require.Len(t, unmapped, 1)
	assert.Equal(t, SeverityInfo, unmapped[0].Severity)
	assert.Equal(t, "Notes", unmapped[0].Column)
	assert.Zero(t, unmapped[0].RowNumber, "column issues are not tied to a row")

	missing := issuesByCode(issues, "required_missing")
	require.Len(t, missing, 1)
	assert.Equal(t, SeverityError, missing[0].Severity)
	assert.Equal(t, 1, missing[0].RowNumber)

	badEmail := issuesByCode(issues, "invalid_email")
	require.Len(t, badEmail, 1)
	assert.Equal(t, SeverityError, badEmail[0].Severity)
	assert.Equal(t, 2, badEmail[0].RowNumber)

	badNumber := issuesByCode(issues, "invalid_number")
	require.Len(t, badNumber, 1)
	assert.Equal(t, SeverityError, badNumber[0].Severity)

	badPhone := issuesByCode(issues, "invalid_phone")
	require.Len(t, badPhone, 1)
	assert.Equal(t, SeverityWarning, badPhone[0].Severity, "an odd phone is a warning, not an error")

	normalized := issuesByCode(issues, "date_normalized")
	require.Len(t, normalized, 1)
	assert.Equal(t, SeverityInfo, normalized[0].Severity)
	assert.Equal(t, "2024-01-15", normalized[0].SuggestedValue)
}

func TestValidateRowsEmptyOptionalFieldIsFine(t *testing.T) {
	tpl := residentTemplate()
	rows := []map[string]string{
		{"Name": "Ada"}, // every optional field blank
	}
	issues := validateRows(tpl, []string{"Name"}, rows)
	assert.Empty(t, issues)
}

func TestNormalizeDate(t *testing.T) {
	for input, want := range map[string]string{
		"2024-03-09": "2024-03-09",
		"2024/03/09": "2024-03-09",
		"03/09/2024": "2024-03-09",
		"09.03.2024": "2024-03-09",
	} {
		got, ok := normalizeDate(input)
		require.True(t, ok, input)
		assert.Equal(t, want, got)
	}

	_, ok := normalizeDate("next tuesday")
	assert.False(t, ok)
}

func TestRunRuleViolationAndCrash(t *testing.T) {
	field := template.TemplateField{
		SourceColumn: "Rent",
		TargetField:  "rent",
		Rule:         `ok := len(value) <= 4; message := "rent out of range"; severity := "error"`,
	}

	issue, flagged := runRule(field, 3, "12500", map[string]string{"Rent": "12500"})
	require.True(t, flagged)
	assert.Equal(t, "rule_violation", issue.Code)
	assert.Equal(t, SeverityError, issue.Severity)
	assert.Equal(t, "rent out of range", issue.Message)
	assert.Equal(t, 3, issue.RowNumber)

	_, flagged = runRule(field, 3, "950", map[string]string{"Rent": "950"})
	assert.False(t, flagged, "a passing rule produces no issue")

	// A broken script degrades to a warning, never aborts validation.
	field.Rule = `ok := undefined_fn(value)`
	issue, flagged = runRule(field, 3, "950", map[string]string{"Rent": "950"})
	require.True(t, flagged)
	assert.Equal(t, "rule_error", issue.Code)
	assert.Equal(t, SeverityWarning, issue.Severity)
}

func TestMapRowAppliesMappingAndNormalization(t *testing.T) {
	tpl := residentTemplate()
	record := mapRow(tpl, map[string]string{
		"Name":    "  Ada Lovelace ",
		"Email":   "ada@example.com",
		"Move In": "01/15/2024",
		"Notes":   "unmapped, must drop",
	})

	assert.Equal(t, "Ada Lovelace", record["name"])
	assert.Equal(t, "ada@example.com", record["email"])
	assert.Equal(t, "2024-01-15", record["move_in"], "dates are stored normalized")
	assert.NotContains(t, record, "Notes")
	assert.NotContains(t, record, "phone", "blank cells drop out")
}

func TestAssemblePreviewRowCounts(t *testing.T) {
	tpl := residentTemplate()
	headers := []string{"Name", "Email"}
	rows := []map[string]string{
		{"Name": "Ada", "Email": "ada@example.com"},
		{"Name": "Grace", "Email": "bad-email"},
		{"Name": "Linus", "Email": "linus@example.com"},
	}
	issues := []ValidationIssue{
		{Severity: SeverityError, RowNumber: 2, Code: "invalid_email"},
		{Severity: SeverityWarning, RowNumber: 2, Code: "invalid_phone"},
		{Severity: SeverityWarning, RowNumber: 3, Code: "invalid_phone"},
		{Severity: SeverityInfo, Column: "Notes", Code: "unmapped_column"},
	}

	preview := assemblePreview(tpl, headers, rows, issues, nil, nil)

	assert.Equal(t, 3, preview.TotalRows)
	assert.Equal(t, 1, preview.ErrorRows)
	assert.Equal(t, 1, preview.WarningRows, "a row with both an error and a warning counts once, as an error row")
	assert.Equal(t, 2, preview.ImportableRows)
	assert.False(t, preview.IsValid)
	assert.Equal(t, 4, preview.TotalIssueCount)
}

func TestAssemblePreviewOrdersIssuesBySeverity(t *testing.T) {
	tpl := residentTemplate()
	headers := []string{"Name", "Email"}
	rows := []map[string]string{
		{"Name": "Ada"}, {"Name": "Grace"}, {"Name": "Linus"},
	}
	issues := []ValidationIssue{
		{Severity: SeverityInfo, Column: "Notes", Code: "unmapped_column"},
		{Severity: SeverityWarning, RowNumber: 3, Code: "invalid_phone"},
		{Severity: SeverityError, RowNumber: 2, Code: "invalid_email"},
		{Severity: SeverityError, RowNumber: 1, Code: "required_missing"},
		{Severity: SeverityWarning, RowNumber: 1, Code: "invalid_phone"},
	}

	preview := assemblePreview(tpl, headers, rows, issues, nil, nil)

	var got []string
	for _, issue := range preview.Issues {
		got = append(got, string(issue.Severity))
	}
	assert.Equal(t, []string{"error", "error", "warning", "warning", "info"}, got,
		"errors surface first so truncation never hides them behind advisories")
	assert.Equal(t, 1, preview.Issues[0].RowNumber, "ties break by row number")
	assert.Equal(t, 2, preview.Issues[1].RowNumber)
}

func TestCountOutcomes(t *testing.T) {
	duplicates := []DuplicateRecord{
		{ImportRow: 2, Confidence: 95}, // defaults to skip
		{ImportRow: 3, Confidence: 60}, // defaults to create_new
		{ImportRow: 4, Confidence: 92},
	}
	resolutions := map[string]Resolution{
		"4": ResolutionUpdate, // explicit override beats the default
	}

	counts := countOutcomes(6, map[int]bool{5: true}, duplicates, resolutions)

	// Rows 1 and 6 are plain new records, row 3 defaults to a new record.
	assert.Equal(t, 3, counts.NewRecords)
	assert.Equal(t, 1, counts.Updates)
	assert.Equal(t, 1, counts.Skipped)
}

func TestCountOutcomesErrorRowTrumpsDuplicate(t *testing.T) {
	duplicates := []DuplicateRecord{{ImportRow: 2, Confidence: 95}}
	counts := countOutcomes(2, map[int]bool{2: true}, duplicates, nil)

	assert.Equal(t, 1, counts.NewRecords)
	assert.Zero(t, counts.Skipped, "an error row is excluded before duplicate accounting")
}
