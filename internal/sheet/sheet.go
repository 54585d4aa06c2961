// Package sheet reads address rows from uploaded spreadsheets
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"address-route-optimizer/internal/models"
)

var (
	// ErrUnsupportedFormat is returned for extensions other than .xlsx and .csv
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrLegacyExcel is returned for .xls files, which are not OOXML
	ErrLegacyExcel = errors.New("legacy .xls files are not supported, save as .xlsx or .csv")
)

// ErrMissingColumn is returned when the header row lacks a required column
type ErrMissingColumn struct {
	Column string
}

func (e *ErrMissingColumn) Error() string {
	return fmt.Sprintf("missing column %q", e.Column)
}

// Read parses rows from r, choosing the format by filename extension
func Read(filename string, r io.Reader) ([]models.AddressRow, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx":
		return ReadXLSX(r)
	case ".csv":
		return ReadCSV(r)
	case ".xls":
		return nil, ErrLegacyExcel
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// ReadXLSX reads the first worksheet
func ReadXLSX(r io.Reader) ([]models.AddressRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	log.Printf("[SHEET] Read workbook: sheet=%s rows=%d", sheets[0], len(records))
	return fromRecords(records)
}

// ReadCSV reads comma- or semicolon-separated text. The delimiter is whichever
// appears more often in the header line.
func ReadCSV(r io.Reader) ([]models.AddressRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	header := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		header = data[:i]
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	if bytes.Count(header, []byte(";")) > bytes.Count(header, []byte(",")) {
		reader.Comma = ';'
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	log.Printf("[SHEET] Read csv: delimiter=%q rows=%d", reader.Comma, len(records))
	return fromRecords(records)
}

// fromRecords maps a header row plus data rows onto AddressRows. Only the
// street column is required.
func fromRecords(records [][]string) ([]models.AddressRow, error) {
	if len(records) == 0 {
		return nil, &ErrMissingColumn{Column: models.ColumnStreet}
	}

	index := map[string]int{}
	for i, name := range records[0] {
		index[strings.TrimSpace(name)] = i
	}
	street, ok := index[models.ColumnStreet]
	if !ok {
		return nil, &ErrMissingColumn{Column: models.ColumnStreet}
	}
	postal, hasPostal := index[models.ColumnPostalCode]
	city, hasCity := index[models.ColumnCity]

	cell := func(record []string, i int, present bool) string {
		if !present || i >= len(record) {
			return ""
		}
		return record[i]
	}

	rows := make([]models.AddressRow, 0, len(records)-1)
	for _, record := range records[1:] {
		rows = append(rows, models.AddressRow{
			Street:     cell(record, street, true),
			PostalCode: cell(record, postal, hasPostal),
			City:       cell(record, city, hasCity),
		})
	}
	return rows, nil
}
