package report

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
)

const (
	ledgerSheet  = "Ledger"
	summarySheet = "Summary"
	dateLayout   = "2006-01-02 15:04"
)

var ledgerHeaders = []string{
	"Payment ID", "Application ID", "Created", "Method", "Transaction ID",
	"Status", "Amount", "Paid", "Verified By", "Verified",
}

// LedgerXLSX renders payments into an Excel workbook
type LedgerXLSX struct {
	officeName string
	logger     *zap.Logger
}

// NewLedgerXLSX creates a ledger writer titled with the issuing office
func NewLedgerXLSX(officeName string, logger *zap.Logger) *LedgerXLSX {
	return &LedgerXLSX{
		officeName: officeName,
		logger:     logger,
	}
}

// WriteLedger writes one row per payment plus a per-status summary sheet
func (l *LedgerXLSX) WriteLedger(w io.Writer, from, to time.Time, payments []*entity.Payment) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ledgerSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	l.setCell(f, ledgerSheet, "A1", fmt.Sprintf("%s payment ledger", l.officeName))
	l.setCell(f, ledgerSheet, "A2", fmt.Sprintf("%s to %s", from.Format(dateLayout), to.Format(dateLayout)))

	if err := f.SetSheetRow(ledgerSheet, "A4", &ledgerHeaders); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(ledgerSheet, "A4", "J4", style)
	}

	totals := map[string]decimal.Decimal{}
	counts := map[string]int{}
	for i, p := range payments {
		cell, err := excelize.CoordinatesToCellName(1, 5+i)
		if err != nil {
			return err
		}
		amount, _ := p.Amount.Round(2).Float64()
		row := []interface{}{
			p.ID, p.ApplicationID, p.CreatedAt.Format(dateLayout), p.Method, p.TransactionID,
			p.Status, amount, formatOptional(p.PaidAt), p.VerifiedBy, formatOptional(p.VerifiedAt),
		}
		if err := f.SetSheetRow(ledgerSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write payment %s: %w", p.ID, err)
		}
		totals[p.Status] = totals[p.Status].Add(p.Amount)
		counts[p.Status]++
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to add summary sheet: %w", err)
	}
	summaryHeader := []interface{}{"Status", "Payments", "Amount"}
	if err := f.SetSheetRow(summarySheet, "A1", &summaryHeader); err != nil {
		return err
	}
	statuses := []string{
		entity.PaymentStatusPending, entity.PaymentStatusProcessing, entity.PaymentStatusCompleted,
		entity.PaymentStatusFailed, entity.PaymentStatusRefunded,
	}
	for i, status := range statuses {
		row := []interface{}{status, counts[status], totals[status].StringFixed(2)}
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	l.logger.Info("Payment ledger written",
		zap.Int("payments", len(payments)),
		zap.Time("from", from),
		zap.Time("to", to))
	return nil
}

func (l *LedgerXLSX) setCell(f *excelize.File, sheet, cell string, value interface{}) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		l.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}
