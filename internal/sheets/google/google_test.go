package google

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ports "r2r/internal/sheets"
)

func TestNewTaxExporter_MissingSpreadsheetID(t *testing.T) {
	_, err := NewTaxExporter(context.Background(), Options{ServiceAccountJSON: "{}"})
	if err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if err.Error() != "missing spreadsheet id" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewTaxExporter_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewTaxExporter(context.Background(), Options{SpreadsheetID: "sheet"})
	if err == nil {
		t.Fatal("expected error without credentials")
	}
	if !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewTaxExporter_UnreadableCredentialsFile(t *testing.T) {
	_, err := NewTaxExporter(context.Background(), Options{
		SpreadsheetID:      "sheet",
		ServiceAccountFile: filepath.Join(t.TempDir(), "missing.json"),
	})
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestNewTaxExporter_InvalidCredentialsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(path, []byte("not-json"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewTaxExporter(context.Background(), Options{SpreadsheetID: "sheet", ServiceAccountFile: path})
	if err == nil {
		t.Fatal("expected error for invalid credentials")
	}
}

func TestAppendTaxRows_Uninitialized(t *testing.T) {
	c := &TaxExporter{spreadsheetID: "test", sheetName: "Tax"}
	_, err := c.AppendTaxRows(context.Background(), []ports.TaxRow{{Date: "2025-01-02"}})
	if err == nil || err.Error() != "sheets service not initialized" {
		t.Fatalf("expected uninitialized error, got %v", err)
	}
}

func TestBuildValues(t *testing.T) {
	rows := []ports.TaxRow{
		{Date: "2025-01-02", Merchant: "Acme, Inc", Amount: "12.50", Category: "Shopping", Currency: "USD"},
	}

	tests := []struct {
		name       string
		rows       []ports.TaxRow
		withHeader bool
		wantLen    int
		wantFirst  string
	}{
		{"rows with header", rows, true, 2, "Date"},
		{"rows without header", rows, false, 1, "2025-01-02"},
		{"header only", nil, true, 1, "Date"},
		{"nothing", nil, false, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildValues(tt.rows, tt.withHeader)
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
			if tt.wantLen > 0 && got[0][0] != tt.wantFirst {
				t.Errorf("first cell = %v, want %q", got[0][0], tt.wantFirst)
			}
			for _, row := range got {
				if len(row) != len(ports.TaxHeader) {
					t.Errorf("row width = %d, want %d", len(row), len(ports.TaxHeader))
				}
			}
		})
	}
}

func TestQuoteSheet(t *testing.T) {
	tests := map[string]string{
		"Tax":       "Tax",
		"Tax 2025":  "'Tax 2025'",
		"Bob's Tax": "'Bob''s Tax'",
	}
	for in, want := range tests {
		if got := quoteSheet(in); got != want {
			t.Errorf("quoteSheet(%q) = %q, want %q", in, got, want)
		}
	}
}
