package filetype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		mimeType string
		wantType FileType
		wantTag  SourceTag
	}{
		{name: "jpeg by mime", fileName: "photo", mimeType: "image/jpeg", wantType: ReceiptImage, wantTag: TagImage},
		{name: "png by extension", fileName: "receipt.PNG", mimeType: "", wantType: ReceiptImage, wantTag: TagImage},
		{name: "webp by extension", fileName: "scan.webp", mimeType: "application/octet-stream", wantType: ReceiptImage, wantTag: TagImage},
		{name: "pdf by mime", fileName: "statement", mimeType: "application/pdf", wantType: BankPDF, wantTag: TagPDF},
		{name: "pdf by extension", fileName: "jan.pdf", mimeType: "", wantType: BankPDF, wantTag: TagPDF},
		{name: "csv by mime", fileName: "export", mimeType: "text/csv", wantType: GenericCSV, wantTag: TagCSV},
		{name: "csv by extension", fileName: "export.csv", mimeType: "", wantType: GenericCSV, wantTag: TagCSV},
		{name: "json backup", fileName: "backup.json", mimeType: "application/json", wantType: BackupJSON, wantTag: TagJSON},
		{name: "xlsx spreadsheet", fileName: "book.xlsx", mimeType: "", wantType: Spreadsheet, wantTag: TagCSV},
		{name: "xls spreadsheet", fileName: "book.xls", mimeType: "", wantType: Spreadsheet, wantTag: TagCSV},
		{name: "unknown defaults to csv", fileName: "data.bin", mimeType: "application/octet-stream", wantType: GenericCSV, wantTag: TagCSV},
		{name: "image mime beats csv extension", fileName: "weird.csv", mimeType: "image/png", wantType: ReceiptImage, wantTag: TagImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, gotTag := Classify(tt.fileName, tt.mimeType)
			assert.Equal(t, tt.wantType, gotType)
			assert.Equal(t, tt.wantTag, gotTag)
		})
	}
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(ReceiptImage))
	assert.True(t, Supported(GenericCSV))
	assert.False(t, Supported(Spreadsheet))
}
