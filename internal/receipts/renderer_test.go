package receipts

import (
	"bytes"
	"testing"
	"time"

	"github.com/angelmondragon/homeserve-payments/pkg/db/models"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
	"github.com/google/uuid"
)

func TestPDFRendererProducesPDF(t *testing.T) {
	ref := "wallet_123"
	retryOf := uuid.New()
	renderer := NewPDFRenderer("")
	renderer.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	out, err := renderer.Render(Input{
		Transaction: &models.PaymentTransaction{
			ID:                    uuid.New(),
			OrderID:               uuid.New(),
			AmountCents:           6050,
			PaymentMethod:         string(enums.ProviderDeviceWallet),
			Status:                enums.TransactionStatusSuccess,
			ProviderTransactionID: &ref,
			RetryOfTransactionID:  &retryOf,
			TransactionDate:       time.Now(),
		},
		Order: &models.Order{
			ID:             uuid.New(),
			Currency:       enums.CurrencyUSD,
			TotalCents:     10000,
			PaidCents:      6050,
			RemainingCents: 3950,
			PaymentStatus:  enums.PaymentStatusPartiallyPaid,
		},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("expected PDF header, got %q", out[:8])
	}
}

func TestPDFRendererRequiresInput(t *testing.T) {
	if _, err := NewPDFRenderer("x").Render(Input{}); err == nil {
		t.Fatal("expected error for empty input")
	}
}
