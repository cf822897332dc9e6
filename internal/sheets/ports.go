package sheets

import (
	"context"

	"finanzen/internal/core"
)

// Header is the first row of the mirror sheet.
var Header = []any{"Datum", "Konto", "Beschreibung", "Gegenpartei", "Kategorie", "Betrag", "MwSt.", "ID"}

// Row is one mirrored transaction.
type Row struct {
	Date          core.Date
	Account       string
	Description   string
	Counterparty  string
	Category      string
	Amount        core.Money
	VatRate       *core.VatRate
	TransactionID string
}

// NewRow builds the row for t; accountName and categoryName are resolved by the caller.
func NewRow(t core.Transaction, accountName, categoryName string) Row {
	return Row{
		Date:          t.BookingDate,
		Account:       accountName,
		Description:   t.Description,
		Counterparty:  t.Counterparty,
		Category:      categoryName,
		Amount:        t.Amount,
		VatRate:       t.VatRate,
		TransactionID: t.ID,
	}
}

// Values renders the row with German number and date formats.
func (r Row) Values() []any {
	vat := ""
	if r.VatRate != nil {
		vat = core.FormatGermanPercent(*r.VatRate)
	}
	return []any{
		core.FormatGermanDate(r.Date.Time),
		r.Account,
		r.Description,
		r.Counterparty,
		r.Category,
		core.FormatGermanDecimal(r.Amount.Amount),
		vat,
		r.TransactionID,
	}
}

// Ports for outbound adapters.
type TransactionWriter interface {
	Append(ctx context.Context, r Row) (rowRef string, err error)
}
