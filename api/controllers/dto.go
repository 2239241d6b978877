package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/homeserve-payments/internal/payments"
	"github.com/angelmondragon/homeserve-payments/pkg/db/models"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
	"github.com/angelmondragon/homeserve-payments/pkg/money"
)

type transactionResponse struct {
	ID                    uuid.UUID               `json:"id"`
	OrderID               uuid.UUID               `json:"orderId"`
	Amount                string                  `json:"amount"`
	AmountCents           int64                   `json:"amountCents"`
	PaymentMethod         string                  `json:"paymentMethod"`
	Status                enums.TransactionStatus `json:"status"`
	ProviderTransactionID *string                 `json:"providerTransactionId,omitempty"`
	RetryOfTransactionID  *uuid.UUID              `json:"retryOfTransactionId,omitempty"`
	TransactionDate       time.Time               `json:"transactionDate"`
	Notes                 string                  `json:"notes"`
	CreatedAt             time.Time               `json:"createdAt"`
	UpdatedAt             time.Time               `json:"updatedAt"`
}

func newTransactionResponse(txn *models.PaymentTransaction) *transactionResponse {
	if txn == nil {
		return nil
	}
	return &transactionResponse{
		ID:                    txn.ID,
		OrderID:               txn.OrderID,
		Amount:                money.Format(txn.AmountCents),
		AmountCents:           txn.AmountCents,
		PaymentMethod:         txn.PaymentMethod,
		Status:                txn.Status,
		ProviderTransactionID: txn.ProviderTransactionID,
		RetryOfTransactionID:  txn.RetryOfTransactionID,
		TransactionDate:       txn.TransactionDate,
		Notes:                 txn.Notes,
		CreatedAt:             txn.CreatedAt,
		UpdatedAt:             txn.UpdatedAt,
	}
}

func newTransactionList(rows []models.PaymentTransaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(rows))
	for i := range rows {
		out = append(out, *newTransactionResponse(&rows[i]))
	}
	return out
}

type payResponse struct {
	Success     bool                 `json:"success"`
	Transaction *transactionResponse `json:"transaction"`
}

func newPayResponse(result *payments.PayResult) payResponse {
	return payResponse{Success: result.Success, Transaction: newTransactionResponse(result.Transaction)}
}

type transactionPage struct {
	Transactions []transactionResponse `json:"transactions"`
	Cursor       string                `json:"cursor,omitempty"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type balanceResponse struct {
	payments.BalanceSnapshot
	Total     string `json:"total"`
	Paid      string `json:"paid"`
	Remaining string `json:"remaining"`
}

func newBalanceResponse(snapshot *payments.BalanceSnapshot) balanceResponse {
	return balanceResponse{
		BalanceSnapshot: *snapshot,
		Total:           money.Format(snapshot.TotalCents),
		Paid:            money.Format(snapshot.PaidCents),
		Remaining:       money.Format(snapshot.RemainingCents),
	}
}

type paymentMethodResponse struct {
	ID           uuid.UUID               `json:"id"`
	ProviderType enums.ProviderType      `json:"providerType"`
	Type         enums.PaymentMethodType `json:"type"`
	Label        string                  `json:"label,omitempty"`
	Last4        string                  `json:"last4"`
	Brand        *string                 `json:"brand,omitempty"`
	ExpMonth     *int                    `json:"expMonth,omitempty"`
	ExpYear      *int                    `json:"expYear,omitempty"`
	IsDefault    bool                    `json:"isDefault"`
	CreatedAt    time.Time               `json:"createdAt"`
}

// The vault reference token is never echoed back.
func newPaymentMethodResponse(method *models.PaymentMethod) paymentMethodResponse {
	return paymentMethodResponse{
		ID:           method.ID,
		ProviderType: method.ProviderType,
		Type:         method.Type,
		Label:        method.Label,
		Last4:        method.Last4,
		Brand:        method.Brand,
		ExpMonth:     method.ExpMonth,
		ExpYear:      method.ExpYear,
		IsDefault:    method.IsDefault,
		CreatedAt:    method.CreatedAt,
	}
}

type notificationResponse struct {
	ID        uuid.UUID              `json:"id"`
	Type      enums.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Link      *string                `json:"link,omitempty"`
	ReadAt    *time.Time             `json:"readAt,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

func newNotificationList(rows []models.Notification) []notificationResponse {
	out := make([]notificationResponse, 0, len(rows))
	for _, n := range rows {
		out = append(out, notificationResponse{
			ID:        n.ID,
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			Link:      n.Link,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		})
	}
	return out
}
