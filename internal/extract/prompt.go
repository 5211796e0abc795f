package extract

import (
	"fmt"
	"strings"
)

const transactionSchema = `Respond with ONLY a JSON array. Each element:
{"description": string, "amount": number, "date": "YYYY-MM-DD",
 "currency": "ISO 4217", "type": "income"|"expense", "confidence": 0..1}.
Amounts are unsigned; direction goes in "type". Start with [ and end with ].`

const multiImageSchema = `Respond with ONLY a JSON array. Each element:
{"description": string, "amount": number, "date": "YYYY-MM-DD",
 "currency": "ISO 4217", "type": "income"|"expense", "confidence": 0..1,
 "imageIndex": 0-based photo index, "positionInImage": "top"|"middle"|"bottom",
 "wasMerged": bool, "mergedFromImages": [indices], and optionally
 "taxInfo": {"taxRate": number, "taxAmount": number, "taxCategory": string,
 "preTaxAmount": number, "discountApplied": bool, "originalAmount": number}}.
Photos are sequential top-to-bottom captures of ONE receipt; if the same
line item appears in the overlap of two photos, emit it once with
wasMerged=true and mergedFromImages listing both indices.`

func receiptPrompt() string {
	return "Extract the merchant name, total amount, currency, and date from this receipt. " +
		`Respond with ONLY a JSON object: {"merchant": string, "amount": number, ` +
		`"currency": "ISO 4217", "date": "YYYY-MM-DD", "confidence": 0..1}.`
}

func imageExtractionPrompt() string {
	return "Extract every financial transaction visible in this image.\n" + transactionSchema
}

func pdfExtractionPrompt(text string) string {
	return fmt.Sprintf("Extract every financial transaction from this bank statement text.\n%s\n\nStatement text:\n%s",
		transactionSchema, text)
}

func multiImagePrompt(imageCount int) string {
	return fmt.Sprintf("These %d photos are sequential top-to-bottom captures of one receipt. Extract every line item.\n%s",
		imageCount, multiImageSchema)
}

func categorizePrompt(descriptions, categories []string) string {
	var b strings.Builder
	b.WriteString("Assign each transaction description below to one of the allowed categories.\n")
	b.WriteString("Allowed categories: ")
	b.WriteString(strings.Join(categories, ", "))
	b.WriteString("\nRespond with ONLY a JSON array, one element per description, in order: ")
	b.WriteString(`{"categoryId": string, "confidence": 0..1}.`)
	b.WriteString("\n\nDescriptions:\n")
	for i, d := range descriptions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, d)
	}
	return b.String()
}
