package imports

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// parseFile reads the whole spreadsheet into header order and row maps
// keyed by header. Row values are the raw cell strings.
func parseFile(file io.Reader, filename string) ([]string, []map[string]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return parseCSV(file)
	case ".xlsx", ".xls":
		return parseExcel(file)
	}
	return nil, nil, fmt.Errorf("unsupported file format")
}

func parseCSV(file io.Reader) ([]string, []map[string]string, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read CSV row: %w", err)
		}

		row := make(map[string]string)
		for i, value := range record {
			if i < len(headers) {
				row[headers[i]] = value
			}
		}
		rows = append(rows, row)
	}

	return headers, rows, nil
}

func parseExcel(file io.Reader) ([]string, []map[string]string, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("no sheets found in Excel file")
	}

	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read Excel rows: %w", err)
	}

	if len(cells) == 0 {
		return nil, nil, fmt.Errorf("Excel file is empty")
	}

	headers := cells[0]
	var rows []map[string]string

	for i := 1; i < len(cells); i++ {
		row := make(map[string]string)
		for j, cell := range cells[i] {
			if j < len(headers) {
				row[headers[j]] = cell
			}
		}
		rows = append(rows, row)
	}

	return headers, rows, nil
}
