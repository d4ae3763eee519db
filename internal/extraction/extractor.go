package extraction

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/family-profiler/backend/internal/domain"
	"github.com/family-profiler/backend/pkg/config"
	"github.com/family-profiler/backend/pkg/logger"
)

// CellError is a recoverable problem with a single cell. The extractor
// substitutes a default and keeps going.
type CellError struct {
	Row    int
	Column int
	Value  string
	Reason string
}

func (e CellError) Error() string {
	return fmt.Sprintf("row %d col %d: %s (%q)", e.Row, e.Column, e.Reason, e.Value)
}

// SourceError means the whole source could not be read. The batch skips it.
type SourceError struct {
	Reference string
	Err       error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Reference, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Extraction is the raw per-source result before identity resolution.
type Extraction struct {
	Reference    string
	PolicyCount  int
	TotalPremium decimal.Decimal
	TotalValue   decimal.Decimal
	Coverage     domain.CoverageSet
	PolicyIDs    []string
	RowsScanned  int
	CellErrors   []CellError
}

type Extractor struct {
	skipRows     int
	cols         config.ColumnConfig
	defaultLabel string
	labels       *LabelResolver
}

func NewExtractor(cfg config.ExtractionConfig) *Extractor {
	defaultLabel := cfg.DefaultLabel
	if defaultLabel == "" {
		defaultLabel = "general"
	}
	return &Extractor{
		skipRows:     cfg.SkipRows,
		cols:         cfg.Columns,
		defaultLabel: defaultLabel,
		labels:       NewLabelResolver(cfg.LabelAliases),
	}
}

func (e *Extractor) Extract(src Source) (*Extraction, error) {
	rows, err := src.Rows()
	if err != nil {
		return nil, &SourceError{Reference: src.Reference(), Err: err}
	}

	out := &Extraction{
		Reference:    src.Reference(),
		TotalPremium: decimal.Zero,
		TotalValue:   decimal.Zero,
	}

	for idx, row := range rows {
		if idx < e.skipRows {
			continue
		}
		out.RowsScanned++

		policyID := cell(row, e.cols.PolicyID)
		if policyID == "" {
			continue
		}

		out.PolicyCount++
		out.PolicyIDs = append(out.PolicyIDs, policyID)

		premium, cellErr := parseAmount(row, idx, e.cols.Premium)
		if cellErr != nil {
			out.CellErrors = append(out.CellErrors, *cellErr)
		}
		out.TotalPremium = out.TotalPremium.Add(premium)

		if e.cols.Value >= 0 {
			value, cellErr := parseAmount(row, idx, e.cols.Value)
			if cellErr != nil {
				out.CellErrors = append(out.CellErrors, *cellErr)
			}
			out.TotalValue = out.TotalValue.Add(value)
		}

		for _, label := range e.resolveLabels(row) {
			out.Coverage = out.Coverage.With(label)
		}
	}

	if len(out.CellErrors) > 0 {
		logger.Warn("Recovered from bad cells",
			zap.String("source", out.Reference),
			zap.Int("cell_errors", len(out.CellErrors)),
		)
	}

	logger.Debug("Source extracted",
		zap.String("source", out.Reference),
		zap.Int("policies", out.PolicyCount),
		zap.String("premium", out.TotalPremium.String()),
		zap.Strings("coverage", out.Coverage.Labels()),
	)

	return out, nil
}

func (e *Extractor) resolveLabels(row []string) []string {
	raw := cell(row, e.cols.PrimaryType)
	if raw == "" {
		raw = cell(row, e.cols.SecondaryType)
	}
	if raw == "" {
		return []string{e.defaultLabel}
	}
	return e.labels.Resolve(raw)
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

var amountNoise = strings.NewReplacer(",", "", "₪", "", "$", "", " ", "", "\u00a0", "")

// parseAmount reads a non-negative decimal. Empty cells are zero without
// complaint; anything unparseable or negative is zero plus a CellError.
func parseAmount(row []string, rowIdx, col int) (decimal.Decimal, *CellError) {
	raw := cell(row, col)
	if raw == "" {
		return decimal.Zero, nil
	}

	amount, err := decimal.NewFromString(amountNoise.Replace(raw))
	if err != nil {
		return decimal.Zero, &CellError{Row: rowIdx, Column: col, Value: raw, Reason: "not a number"}
	}
	if amount.IsNegative() {
		return decimal.Zero, &CellError{Row: rowIdx, Column: col, Value: raw, Reason: "negative amount"}
	}

	return amount, nil
}
