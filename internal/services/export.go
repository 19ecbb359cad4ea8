package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"r2r/internal/core"
	"r2r/internal/sheets"
)

// ErrExportDisabled is returned by ExportToSheet when no spreadsheet is configured.
var ErrExportDisabled = errors.New("sheets export not configured")

// ExportService produces the business-expense tax export.
type ExportService struct {
	txs      *TransactionService
	exporter sheets.Exporter
}

// NewExportService builds the service; exporter may be nil.
func NewExportService(txs *TransactionService, exporter sheets.Exporter) *ExportService {
	return &ExportService{txs: txs, exporter: exporter}
}

// BusinessCSV writes the header and one row per business transaction to w.
func (s *ExportService) BusinessCSV(ctx context.Context, userID string, w io.Writer) (int, error) {
	rows, err := s.rows(ctx, userID)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(sheets.TaxHeader); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.Values()); err != nil {
			return 0, fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}

	slog.InfoContext(ctx, "Tax CSV exported", "user_id", userID, "count", len(rows))
	return len(rows), nil
}

// ExportResult reports what ExportToSheet appended.
type ExportResult struct {
	Rows  int    `json:"rows"`
	Range string `json:"range,omitempty"`
}

// ExportToSheet appends the business rows to the configured spreadsheet.
func (s *ExportService) ExportToSheet(ctx context.Context, userID string) (ExportResult, error) {
	if s.exporter == nil {
		return ExportResult{}, ErrExportDisabled
	}
	rows, err := s.rows(ctx, userID)
	if err != nil {
		return ExportResult{}, err
	}
	if len(rows) == 0 {
		return ExportResult{}, nil
	}

	ref, err := s.exporter.AppendTaxRows(ctx, rows)
	if err != nil {
		slog.ErrorContext(ctx, "Sheets export failed", "user_id", userID, "error", err)
		return ExportResult{}, fmt.Errorf("export to sheet: %w: %w", core.ErrExternalService, err)
	}

	slog.InfoContext(ctx, "Tax rows exported to sheet", "user_id", userID, "count", len(rows), "range", ref)
	return ExportResult{Rows: len(rows), Range: ref}, nil
}

func (s *ExportService) rows(ctx context.Context, userID string) ([]sheets.TaxRow, error) {
	txs, err := s.txs.Business(ctx, userID)
	if err != nil {
		return nil, err
	}
	rows := make([]sheets.TaxRow, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, TaxRowOf(t))
	}
	return rows, nil
}

// TaxRowOf flattens a transaction into the export column order.
func TaxRowOf(t core.Transaction) sheets.TaxRow {
	return sheets.TaxRow{
		Date:     t.Datetime.Format(core.DayLayout),
		Merchant: t.Merchant,
		Amount:   t.Amount.StringFixed(core.AmountPlaces),
		Category: t.Category,
		Currency: t.Currency,
	}
}
