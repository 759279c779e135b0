package exports

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// writeArchive streams one CSV per category into a ZIP. Records come from
// the fetch callback so the builder stays testable without a database.
func writeArchive(w io.Writer, categories []Category, privacy ExportPrivacy, fetch func(category string) ([]map[string]interface{}, error)) (map[string]int, error) {
	zw := zip.NewWriter(w)
	counts := make(map[string]int, len(categories))

	for _, cat := range categories {
		records, err := fetch(cat.ID)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", cat.ID, err)
		}

		entry, err := zw.Create(cat.ID + ".csv")
		if err != nil {
			return nil, err
		}

		if err := writeCategoryCSV(entry, cat, privacy, records); err != nil {
			return nil, fmt.Errorf("writing %s.csv: %w", cat.ID, err)
		}
		counts[cat.ID] = len(records)
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return counts, nil
}

func writeCategoryCSV(w io.Writer, cat Category, privacy ExportPrivacy, records []map[string]interface{}) error {
	writer := csv.NewWriter(w)

	columns := cat.Fields
	if len(columns) == 0 {
		columns = collectColumns(records)
	}

	if err := writer.Write(columns); err != nil {
		return err
	}

	applyPrivacy := cat.ContainsPersonalData

	for _, rec := range records {
		row := make([]string, len(columns))
		for i, col := range columns {
			value := cellString(rec[col])
			if applyPrivacy {
				value = transformValue(col, value, privacy)
			}
			row[i] = value
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func collectColumns(records []map[string]interface{}) []string {
	seen := make(map[string]bool)
	for _, rec := range records {
		for k := range rec {
			if k == "_id" || k == "created_at" || k == "updated_at" {
				continue
			}
			seen[k] = true
		}
	}

	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return columns
}

func cellString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// transformValue applies the selected privacy transforms to one cell.
func transformValue(column, value string, privacy ExportPrivacy) string {
	if value == "" {
		return value
	}

	for _, redacted := range privacy.RedactFields {
		if strings.EqualFold(column, redacted) {
			return "[REDACTED]"
		}
	}

	if privacy.MaskEmails && strings.Contains(value, "@") {
		return maskEmail(value)
	}

	if privacy.AnonymizeNames && isNameColumn(column) {
		return anonymizeName(value)
	}

	if privacy.HashIdentifiers && isIdentifierColumn(column) {
		return hashValue(value)
	}

	return value
}

func isNameColumn(column string) bool {
	c := strings.ToLower(column)
	return c == "name" || strings.HasSuffix(c, "_name")
}

func isIdentifierColumn(column string) bool {
	c := strings.ToLower(column)
	return c == "phone" || c == "unit" || strings.HasSuffix(c, "_id") || strings.HasSuffix(c, "_number")
}

// maskEmail keeps the first rune and the domain: j***@example.com.
func maskEmail(value string) string {
	at := strings.Index(value, "@")
	if at <= 0 {
		return "***"
	}
	first, _ := utf8.DecodeRuneInString(value)
	return string(first) + "***" + value[at:]
}

// anonymizeName keeps initials only.
func anonymizeName(value string) string {
	parts := strings.Fields(value)
	initials := make([]string, 0, len(parts))
	for _, p := range parts {
		first, _ := utf8.DecodeRuneInString(p)
		initials = append(initials, string(unicode.ToUpper(first))+".")
	}
	return strings.Join(initials, " ")
}

// hashValue replaces a value with a short stable digest so exports remain
// joinable without exposing the identifier.
func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:12]
}
