package batch

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Header columns required in the uploaded table. Matching is case-sensitive.
const (
	columnID    = "id"
	columnImage = "image_name"
)

// ValidationError reports a malformed upload: unreadable table, empty table,
// or a header missing a required column. It is terminal for the request; no
// rows are processed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid input: " + e.Reason
}

// ParseTable parses the uploaded tabular bytes into ordered Records. The
// format is chosen by filename extension: .xlsx reads the first sheet via
// excelize, anything else is treated as CSV. The first row must be a header
// containing the exact columns "id" and "image_name"; the schema is checked
// once and assumed uniform for the remaining rows.
func ParseTable(filename string, data []byte) ([]Record, error) {
	var (
		rows [][]string
		err  error
	)
	if strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		rows, err = readWorkbook(data)
	} else {
		rows, err = readCSV(data)
	}
	if err != nil {
		return nil, err
	}
	return recordsFromRows(rows)
}

func readWorkbook(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("unreadable workbook: %v", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ValidationError{Reason: "workbook has no sheets"}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("read sheet %q: %v", sheets[0], err)}
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("unreadable csv: %v", err)}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func recordsFromRows(rows [][]string) ([]Record, error) {
	if len(rows) == 0 {
		return nil, &ValidationError{Reason: "table is empty"}
	}
	idCol, imageCol := -1, -1
	for i, cell := range rows[0] {
		switch strings.TrimSpace(cell) {
		case columnID:
			idCol = i
		case columnImage:
			imageCol = i
		}
	}
	if idCol < 0 {
		return nil, &ValidationError{Reason: fmt.Sprintf("missing required column %q", columnID)}
	}
	if imageCol < 0 {
		return nil, &ValidationError{Reason: fmt.Sprintf("missing required column %q", columnImage)}
	}

	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := Record{
			ID:     cellAt(row, idCol),
			Phrase: cellAt(row, imageCol),
		}
		if rec.ID == "" && rec.Phrase == "" {
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, &ValidationError{Reason: "table has no data rows"}
	}
	return records, nil
}

func cellAt(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
