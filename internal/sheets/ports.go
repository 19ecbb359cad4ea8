package sheets

import "context"

// TaxHeader is the column layout shared by the CSV download and the sheet export.
var TaxHeader = []string{"Date", "Merchant", "Amount", "Category", "Currency"}

// TaxRow is one business transaction flattened for the tax export.
type TaxRow struct {
	Date     string
	Merchant string
	Amount   string
	Category string
	Currency string
}

// Values returns the row in TaxHeader order.
func (r TaxRow) Values() []string {
	return []string{r.Date, r.Merchant, r.Amount, r.Category, r.Currency}
}

// Exporter is the outbound port for spreadsheet exports.
type Exporter interface {
	// AppendTaxRows appends rows to the tax sheet and returns the updated range.
	AppendTaxRows(ctx context.Context, rows []TaxRow) (rowRef string, err error)
}
