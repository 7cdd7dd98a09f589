package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset is the tabular shape shared by every export format. Rows are keyed
// by header name so renderers can reorder or drop columns without touching
// the producer.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter serialises a Dataset as RFC 4180 CSV.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces the CSV bytes for the dataset. Cells missing from a row
// render as empty fields so ragged attainment data still lines up.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	record := make([]string, len(data.Headers))
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
