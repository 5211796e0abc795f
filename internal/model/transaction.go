// Package model defines the core domain models used throughout the application.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType indicates whether a transaction is money in or money out.
type TransactionType string

// Transaction type constants.
const (
	TypeIncome  TransactionType = "income"
	TypeExpense TransactionType = "expense"
)

// ExtractionSource identifies which extraction path produced a result.
type ExtractionSource string

// Extraction source constants.
const (
	SourceLocal  ExtractionSource = "local"
	SourceCloud  ExtractionSource = "cloud"
	SourceHybrid ExtractionSource = "hybrid"
)

// RawTransaction is a single transaction as produced by an extraction
// adapter, before categorization. Amount is always unsigned; the sign is
// carried by Type.
type RawTransaction struct {
	Date        time.Time
	Description string
	Currency    string
	TaxInfo     *TaxInfo
	Type        TransactionType
	Amount      decimal.Decimal
	Confidence  float64
	Source      ExtractionSource
}

// ImagePosition locates an extracted item within its source photo.
type ImagePosition string

// Image position constants.
const (
	PositionTop    ImagePosition = "top"
	PositionMiddle ImagePosition = "middle"
	PositionBottom ImagePosition = "bottom"
)

// TaxInfo carries tax and discount figures reported by the extractor.
// These values are preserved verbatim through merging and never recomputed.
type TaxInfo struct {
	TaxCategory     string
	TaxRate         decimal.Decimal
	TaxAmount       decimal.Decimal
	PreTaxAmount    decimal.Decimal
	OriginalAmount  decimal.Decimal
	DiscountApplied bool
}

// MultiImageTransaction is a RawTransaction extracted from one photo of a
// multi-photo receipt capture, annotated with enough position data for the
// overlap dedup pass.
type MultiImageTransaction struct {
	RawTransaction
	Position         ImagePosition
	MergedFromImages []int
	ImageIndex       int
	WasMerged        bool
}

// ImportTransaction is a fully categorized candidate awaiting user
// confirmation. Selected defaults to true unless the transaction was
// flagged as a duplicate.
type ImportTransaction struct {
	RawTransaction
	ID                  string
	SuggestedCategoryID string
	DuplicateOf         string
	CategoryConfidence  float64
	IsDuplicate         bool
	Selected            bool
}
