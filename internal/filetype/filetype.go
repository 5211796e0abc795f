// Package filetype maps uploaded files to the extraction path that can
// handle them, using MIME type and extension hints.
package filetype

import (
	"path/filepath"
	"strings"
)

// FileType is the fine-grained classification of an import file.
type FileType string

// File type constants.
const (
	ReceiptImage FileType = "receipt_image"
	BankPDF      FileType = "bank_pdf"
	GenericCSV   FileType = "generic_csv"
	BackupJSON   FileType = "backup_json"
	Spreadsheet  FileType = "spreadsheet"
)

// SourceTag is the coarse source family used for routing and reporting.
type SourceTag string

// Source tag constants.
const (
	TagImage SourceTag = "image"
	TagPDF   SourceTag = "pdf"
	TagCSV   SourceTag = "csv"
	TagJSON  SourceTag = "json"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// Classify determines the file type and source tag for a file. Rules are
// checked in order: image, pdf, csv, json, spreadsheet; anything else
// defaults to generic_csv.
func Classify(name, mimeType string) (FileType, SourceTag) {
	ext := strings.ToLower(filepath.Ext(name))
	mimeType = strings.ToLower(mimeType)

	switch {
	case strings.HasPrefix(mimeType, "image/") || imageExtensions[ext]:
		return ReceiptImage, TagImage
	case mimeType == "application/pdf" || ext == ".pdf":
		return BankPDF, TagPDF
	case mimeType == "text/csv" || ext == ".csv":
		return GenericCSV, TagCSV
	case mimeType == "application/json" || ext == ".json":
		return BackupJSON, TagJSON
	case ext == ".xlsx" || ext == ".xls":
		// Spreadsheets are recognized but unsupported by the AI path.
		return Spreadsheet, TagCSV
	default:
		return GenericCSV, TagCSV
	}
}

// Supported reports whether the file type has an extraction path.
func Supported(ft FileType) bool {
	return ft != Spreadsheet
}
