//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	ports "r2r/internal/sheets"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_AppendTaxRows(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	if spreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	saJSON := os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")
	saFile := os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")
	if saJSON == "" && saFile == "" {
		t.Skip("service account credentials not configured, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	exp, err := NewTaxExporter(ctx, Options{
		SpreadsheetID:      spreadsheetID,
		SheetName:          os.Getenv("GOOGLE_TAX_SHEET_NAME"),
		ServiceAccountFile: saFile,
		ServiceAccountJSON: saJSON,
	})
	if err != nil {
		t.Fatalf("Failed to create exporter: %v", err)
	}

	ref, err := exp.AppendTaxRows(ctx, []ports.TaxRow{{
		Date:     time.Now().Format("2006-01-02"),
		Merchant: "Integration Test Merchant",
		Amount:   "12.34",
		Category: "Misc",
		Currency: "USD",
	}})
	if err != nil {
		t.Fatalf("Failed to append rows: %v", err)
	}
	if ref == "" {
		t.Error("Expected non-empty reference")
	}
	t.Logf("Appended tax rows at %s", ref)
}
