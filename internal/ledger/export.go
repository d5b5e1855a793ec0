package ledger

import (
	"encoding/csv"
	"errors"
	"strings"
	"time"
	"unicode"

	"custody-workbench/internal/domain"
)

// ErrEmptyExport is returned when there is nothing to export. Its text is
// shown to the user.
var ErrEmptyExport = errors.New("no transactions to export")

// csvHeader is the export column order.
var csvHeader = []string{"Date", "Type", "Asset", "Amount", "Direction", "Status", "ID"}

// ToCSV renders transactions in the given order, one row each after the header.
func ToCSV(txs []domain.Transaction) (string, error) {
	if len(txs) == 0 {
		return "", ErrEmptyExport
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write(csvHeader); err != nil {
		return "", err
	}
	for _, tx := range txs {
		row := []string{
			tx.Date.UTC().Format(DateLayout),
			tx.Type.String(),
			singleLine(tx.Asset),
			tx.Amount.String(),
			tx.Direction.String(),
			singleLine(tx.Status),
			singleLine(tx.ID),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// singleLine replaces control characters with spaces so every record stays
// on one line.
func singleLine(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
}

// ExportFilename names the export file for the given day.
func ExportFilename(now time.Time) string {
	return "transactions-" + now.Format("2006-01-02") + ".csv"
}
