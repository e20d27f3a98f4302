package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/Edmaione/Terrain-Financials-sub000/src/models"
)

// CSVParser reads a delimited export into raw rows keyed by header.
type CSVParser struct{}

func NewCSVParser() *CSVParser { return &CSVParser{} }

// Parse reads the full file. The first record is the header; every later
// record becomes a RawRow keyed by trimmed header name. Short records are
// padded with empty fields rather than rejected so that a ragged trailing
// column does not sink the file.
func (p *CSVParser) Parse(file io.Reader) ([]models.RawRow, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []models.RawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading record %d: %w", len(rows)+2, err)
		}
		row := make(models.RawRow, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
