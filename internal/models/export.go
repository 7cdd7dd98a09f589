package models

// ReportFormat enumerates supported export encodings.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// Valid reports whether the format is supported.
func (f ReportFormat) Valid() bool {
	return f == ReportFormatCSV || f == ReportFormatPDF
}
