// Package receipts renders customer-facing payment receipts.
package receipts

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/angelmondragon/homeserve-payments/pkg/db/models"
	"github.com/angelmondragon/homeserve-payments/pkg/money"
)

// Input pairs a transaction with the order it settles.
type Input struct {
	Transaction *models.PaymentTransaction
	Order       *models.Order
}

// Renderer turns a receipt input into opaque document bytes.
type Renderer interface {
	Render(input Input) ([]byte, error)
}

// PDFRenderer produces single-page A4 receipts.
type PDFRenderer struct {
	Issuer string
	now    func() time.Time
}

func NewPDFRenderer(issuer string) *PDFRenderer {
	if issuer == "" {
		issuer = "HomeServe"
	}
	return &PDFRenderer{Issuer: issuer, now: time.Now}
}

func (r *PDFRenderer) Render(input Input) ([]byte, error) {
	if input.Transaction == nil || input.Order == nil {
		return nil, errors.New("transaction and order are required")
	}
	txn := input.Transaction
	order := input.Order

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Receipt %s", txn.ID), true)
	pdf.SetCreator(r.Issuer, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, r.Issuer+" payment receipt", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, "Issued "+r.now().UTC().Format(time.RFC1123), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	currency := string(order.Currency)
	rows := [][2]string{
		{"Receipt", txn.ID.String()},
		{"Order", order.ID.String()},
		{"Date", txn.TransactionDate.UTC().Format("2006-01-02 15:04 MST")},
		{"Method", txn.PaymentMethod},
		{"Status", string(txn.Status)},
		{"Amount", currency + " " + money.Format(txn.AmountCents)},
	}
	if txn.ProviderTransactionID != nil && *txn.ProviderTransactionID != "" {
		rows = append(rows, [2]string{"Reference", *txn.ProviderTransactionID})
	}
	if txn.RetryOfTransactionID != nil {
		rows = append(rows, [2]string{"Retry of", txn.RetryOfTransactionID.String()})
	}
	writeTable(pdf, rows)

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Order balance", "", 1, "L", false, 0, "")
	writeTable(pdf, [][2]string{
		{"Total", currency + " " + money.Format(order.TotalCents)},
		{"Paid", currency + " " + money.Format(order.PaidCents)},
		{"Remaining", currency + " " + money.Format(order.RemainingCents)},
		{"Payment status", string(order.PaymentStatus)},
	})

	if pdf.Err() {
		return nil, fmt.Errorf("render receipt: %w", pdf.Error())
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write receipt: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTable(pdf *fpdf.Fpdf, rows [][2]string) {
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(40, 7, row[0], "B", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 7, row[1], "B", 1, "L", false, 0, "")
	}
}
