package memory

import (
	"context"
	"fmt"
	"sync"

	ports "r2r/internal/sheets"
)

// Exporter keeps exported tax rows in memory. Used by tests and local runs
// without a spreadsheet.
type Exporter struct {
	mu   sync.Mutex
	rows []ports.TaxRow
}

var _ ports.Exporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{}
}

// AppendTaxRows stores the rows and returns a synthetic row reference.
func (e *Exporter) AppendTaxRows(_ context.Context, rows []ports.TaxRow) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	first := len(e.rows) + 1
	e.rows = append(e.rows, rows...)
	return fmt.Sprintf("mem:%d-%d", first, len(e.rows)), nil
}

// Rows returns a copy of everything exported so far.
func (e *Exporter) Rows() []ports.TaxRow {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ports.TaxRow(nil), e.rows...)
}
