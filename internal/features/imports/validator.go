package imports

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	common_models "go-dataport/internal/common/models"
	"go-dataport/internal/features/template"

	"github.com/d5/tengo/v2"
)

// maxStoredIssues caps the issue list embedded in a preview; the full count
// survives in TotalIssueCount.
const maxStoredIssues = 500

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9 ().-]{7,20}$`)
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"02.01.2006",
	time.RFC3339,
}

// validateRows runs the full issue taxonomy over parsed rows. Row numbers
// are 1-based data rows (the header is row 0 and never validated).
func validateRows(tpl *template.MappingTemplate, headers []string, rows []map[string]string) []ValidationIssue {
	var issues []ValidationIssue

	// One info issue per column the template does not map.
	for _, h := range headers {
		if _, ok := tpl.FieldBySource(h); !ok {
			issues = append(issues, ValidationIssue{
				Severity: SeverityInfo,
				Column:   h,
				Code:     "unmapped_column",
				Message:  fmt.Sprintf("Column %q is not mapped and will be ignored", h),
			})
		}
	}

	for i, row := range rows {
		rowNum := i + 1
		for _, f := range tpl.Fields {
			value := strings.TrimSpace(row[f.SourceColumn])

			if value == "" {
				if f.Required {
					issues = append(issues, ValidationIssue{
						Severity:  SeverityError,
						RowNumber: rowNum,
						Column:    f.SourceColumn,
						Code:      "required_missing",
						Message:   fmt.Sprintf("Required field %q is empty", f.SourceColumn),
					})
				}
				continue
			}

			if issue, ok := checkFieldType(f, rowNum, value); ok {
				issues = append(issues, issue)
			}

			if f.Rule != "" {
				if issue, ok := runRule(f, rowNum, value, row); ok {
					issues = append(issues, issue)
				}
			}
		}
	}

	return issues
}

func checkFieldType(f template.TemplateField, rowNum int, value string) (ValidationIssue, bool) {
	switch f.Type {
	case common_models.FieldTypeNumber:
		if _, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64); err != nil {
			return ValidationIssue{
				Severity:      SeverityError,
				RowNumber:     rowNum,
				Column:        f.SourceColumn,
				Code:          "invalid_number",
				Message:       fmt.Sprintf("%q is not a number", value),
				OriginalValue: value,
			}, true
		}
	case common_models.FieldTypeDate:
		if normalized, ok := normalizeDate(value); !ok {
			return ValidationIssue{
				Severity:      SeverityError,
				RowNumber:     rowNum,
				Column:        f.SourceColumn,
				Code:          "invalid_date",
				Message:       fmt.Sprintf("%q is not a recognized date", value),
				OriginalValue: value,
			}, true
		} else if normalized != value {
			return ValidationIssue{
				Severity:       SeverityInfo,
				RowNumber:      rowNum,
				Column:         f.SourceColumn,
				Code:           "date_normalized",
				Message:        fmt.Sprintf("Date %q will be stored as %q", value, normalized),
				OriginalValue:  value,
				SuggestedValue: normalized,
			}, true
		}
	case common_models.FieldTypeEmail:
		if !emailPattern.MatchString(value) {
			return ValidationIssue{
				Severity:      SeverityError,
				RowNumber:     rowNum,
				Column:        f.SourceColumn,
				Code:          "invalid_email",
				Message:       fmt.Sprintf("%q is not a valid email address", value),
				OriginalValue: value,
			}, true
		}
	case common_models.FieldTypePhone:
		if !phonePattern.MatchString(value) {
			return ValidationIssue{
				Severity:      SeverityWarning,
				RowNumber:     rowNum,
				Column:        f.SourceColumn,
				Code:          "invalid_phone",
				Message:       fmt.Sprintf("%q does not look like a phone number", value),
				OriginalValue: value,
			}, true
		}
	}
	return ValidationIssue{}, false
}

func normalizeDate(value string) (string, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// runRule evaluates a template's tengo validation script for one cell. The
// script sees `value` and `row` and sets `ok`, and optionally `severity`,
// `message` and `suggest`. A crashing rule degrades to a warning instead of
// failing the run.
func runRule(f template.TemplateField, rowNum int, value string, row map[string]string) (ValidationIssue, bool) {
	script := tengo.NewScript([]byte(f.Rule))

	rowVars := make(map[string]interface{}, len(row))
	for k, v := range row {
		rowVars[k] = v
	}
	script.Add("value", value)
	script.Add("row", rowVars)

	compiled, err := script.Run()
	if err != nil {
		return ValidationIssue{
			Severity:      SeverityWarning,
			RowNumber:     rowNum,
			Column:        f.SourceColumn,
			Code:          "rule_error",
			Message:       fmt.Sprintf("Validation rule failed: %v", err),
			OriginalValue: value,
		}, true
	}

	if compiled.Get("ok").Bool() {
		return ValidationIssue{}, false
	}

	severity := Severity(compiled.Get("severity").String())
	if severity != SeverityError && severity != SeverityWarning && severity != SeverityInfo {
		severity = SeverityWarning
	}

	message := compiled.Get("message").String()
	if message == "" || message == "<undefined>" {
		message = fmt.Sprintf("%q failed the %q rule", value, f.SourceColumn)
	}

	issue := ValidationIssue{
		Severity:      severity,
		RowNumber:     rowNum,
		Column:        f.SourceColumn,
		Code:          "rule_violation",
		Message:       message,
		OriginalValue: value,
	}
	if suggest := compiled.Get("suggest").String(); suggest != "" && suggest != "<undefined>" {
		issue.SuggestedValue = suggest
	}
	return issue, true
}

// mapRow applies the template's column mapping to one raw row, producing
// the record that would be stored. Unmapped columns drop out here.
func mapRow(tpl *template.MappingTemplate, row map[string]string) map[string]interface{} {
	record := make(map[string]interface{})
	for _, f := range tpl.Fields {
		if f.TargetField == "" {
			continue
		}
		value := strings.TrimSpace(row[f.SourceColumn])
		if value == "" {
			continue
		}
		if f.Type == common_models.FieldTypeDate {
			if normalized, ok := normalizeDate(value); ok {
				value = normalized
			}
		}
		record[f.TargetField] = value
	}
	return record
}

// assemblePreview aggregates issues and duplicates into the preview shown
// before approval. Row counts are distinct rows; a row carrying both an
// error and a warning counts once, as an error row.
func assemblePreview(tpl *template.MappingTemplate, headers []string, rows []map[string]string, issues []ValidationIssue, duplicates []DuplicateRecord, resolutions map[string]Resolution) *ImportPreview {
	errorRows := make(map[int]bool)
	warningRows := make(map[int]bool)
	for _, issue := range issues {
		if issue.RowNumber == 0 {
			continue
		}
		switch issue.Severity {
		case SeverityError:
			errorRows[issue.RowNumber] = true
		case SeverityWarning:
			warningRows[issue.RowNumber] = true
		}
	}
	for row := range errorRows {
		delete(warningRows, row)
	}

	counts := countOutcomes(len(rows), errorRows, duplicates, resolutions)

	mapping := make([]ColumnMappingStatus, 0, len(headers))
	for _, h := range headers {
		status := ColumnMappingStatus{SourceColumn: h}
		if f, ok := tpl.FieldBySource(h); ok {
			status.TargetField = f.TargetField
			status.IsMapped = f.TargetField != ""
			status.IsRequired = f.Required
		}
		for i := 0; i < len(rows) && i < 3; i++ {
			if v := strings.TrimSpace(rows[i][h]); v != "" {
				status.SampleValues = append(status.SampleValues, v)
			}
		}
		mapping = append(mapping, status)
	}

	var samples []map[string]interface{}
	for i := 0; i < len(rows) && i < 5; i++ {
		samples = append(samples, mapRow(tpl, rows[i]))
	}

	// Severity first so the stored slice keeps errors when truncated.
	stored := append([]ValidationIssue(nil), issues...)
	sort.SliceStable(stored, func(i, j int) bool {
		if stored[i].Severity != stored[j].Severity {
			return stored[i].Severity.Rank() > stored[j].Severity.Rank()
		}
		return stored[i].RowNumber < stored[j].RowNumber
	})
	if len(stored) > maxStoredIssues {
		stored = stored[:maxStoredIssues]
	}

	return &ImportPreview{
		TotalRows:       len(rows),
		ImportableRows:  len(rows) - len(errorRows),
		ErrorRows:       len(errorRows),
		WarningRows:     len(warningRows),
		RecordCounts:    counts,
		Issues:          stored,
		TotalIssueCount: len(issues),
		ColumnMapping:   mapping,
		SampleRecords:   samples,
		IsValid:         len(errorRows) == 0,
	}
}

// countOutcomes projects what the commit would do with the importable rows,
// given current duplicate resolutions (or their defaults).
func countOutcomes(totalRows int, errorRows map[int]bool, duplicates []DuplicateRecord, resolutions map[string]Resolution) RecordCounts {
	var counts RecordCounts
	dupRows := make(map[int]bool, len(duplicates))

	for _, d := range duplicates {
		dupRows[d.ImportRow] = true
		if errorRows[d.ImportRow] {
			continue
		}
		res, ok := resolutions[strconv.Itoa(d.ImportRow)]
		if !ok {
			res = DefaultResolution(d.Confidence)
		}
		switch res {
		case ResolutionSkip:
			counts.Skipped++
		case ResolutionUpdate:
			counts.Updates++
		default:
			counts.NewRecords++
		}
	}

	for row := 1; row <= totalRows; row++ {
		if !errorRows[row] && !dupRows[row] {
			counts.NewRecords++
		}
	}

	return counts
}
