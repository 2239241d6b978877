package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/homeserve-payments/api/middleware"
	"github.com/angelmondragon/homeserve-payments/api/responses"
	"github.com/angelmondragon/homeserve-payments/api/validators"
	"github.com/angelmondragon/homeserve-payments/internal/payments"
	"github.com/angelmondragon/homeserve-payments/pkg/logger"
	"github.com/angelmondragon/homeserve-payments/pkg/pagination"
)

type payRequest struct {
	OrderID      string          `json:"orderId" validate:"required,uuid"`
	Amount       decimal.Decimal `json:"amount"`
	ProviderType string          `json:"providerType" validate:"required,max=32"`
	SourceToken  string          `json:"sourceToken" validate:"omitempty,max=512"`
}

type partialRefundRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Pay charges an order. Declines are a 200 with success=false and the failed row.
func Pay(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req payRequest
		if err := validators.DecodeJSON(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amountCents, err := validators.Amount("amount", req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, req.OrderID)
		}
		result, err := svc.Pay(ctx, payments.PayInput{
			OrderID:      uuid.MustParse(req.OrderID),
			AmountCents:  amountCents,
			ProviderType: req.ProviderType,
			SourceToken:  strings.TrimSpace(req.SourceToken),
			Actor:        middleware.ActorFromContext(ctx),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPayResponse(result))
	}
}

// ListPayments pages through every transaction, newest first.
func ListPayments(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.QueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.List(r.Context(), pagination.Params{
			Limit:  limit,
			Cursor: validators.QueryString(r, "cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, transactionPage{
			Transactions: newTransactionList(result.Transactions),
			Cursor:       result.NextCursor,
		})
	}
}

func ListOrderPayments(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListByOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, transactionPage{Transactions: newTransactionList(rows)})
	}
}

func PaymentStatus(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		snapshot, err := svc.Status(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newBalanceResponse(snapshot))
	}
}

func RefundPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		txID, err := validators.PathUUID(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ok, err := svc.Refund(r.Context(), payments.RefundInput{
			TransactionID: txID,
			Actor:         middleware.ActorFromContext(r.Context()),
		})
		writeOutcome(w, r, logg, ok, err)
	}
}

func RefundPaymentPartial(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		txID, err := validators.PathUUID(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req partialRefundRequest
		if err := validators.DecodeJSON(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amountCents, err := validators.Amount("amount", req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ok, err := svc.RefundPartial(r.Context(), payments.PartialRefundInput{
			TransactionID: txID,
			AmountCents:   amountCents,
			Actor:         middleware.ActorFromContext(r.Context()),
		})
		writeOutcome(w, r, logg, ok, err)
	}
}

func RetryPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		txID, err := validators.PathUUID(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ok, err := svc.Retry(r.Context(), payments.RetryInput{
			TransactionID: txID,
			Actor:         middleware.ActorFromContext(r.Context()),
		})
		writeOutcome(w, r, logg, ok, err)
	}
}

// PaymentReceipt streams the PDF receipt. A missing transaction is a bare 404.
func PaymentReceipt(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		txID, err := validators.PathUUID(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pdf, found, err := svc.Receipt(r.Context(), txID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !found {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `inline; filename="receipt-`+txID.String()+`.pdf"`)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(pdf); err != nil && logg != nil {
			logg.Error(r.Context(), "write receipt", err)
		}
	}
}

func writeOutcome(w http.ResponseWriter, r *http.Request, logg *logger.Logger, ok bool, err error) {
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, successResponse{Success: ok})
}

