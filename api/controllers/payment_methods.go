package controllers

import (
	"net/http"

	"github.com/angelmondragon/homeserve-payments/api/middleware"
	"github.com/angelmondragon/homeserve-payments/api/responses"
	"github.com/angelmondragon/homeserve-payments/api/validators"
	"github.com/angelmondragon/homeserve-payments/internal/paymentmethods"
	"github.com/angelmondragon/homeserve-payments/pkg/logger"
)

type createPaymentMethodRequest struct {
	ProviderType   string `json:"providerType" validate:"required,max=32"`
	Type           string `json:"type" validate:"omitempty,max=32"`
	Label          string `json:"label" validate:"max=64"`
	ReferenceToken string `json:"referenceToken" validate:"required,min=4,max=512"`
	Brand          string `json:"brand" validate:"max=32"`
	ExpMonth       *int   `json:"expMonth" validate:"omitempty,min=1,max=12"`
	ExpYear        *int   `json:"expYear" validate:"omitempty,min=2000,max=2200"`
	IsDefault      bool   `json:"isDefault"`
}

func ListPaymentMethods(svc paymentmethods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.List(r.Context(), middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]paymentMethodResponse, 0, len(rows))
		for i := range rows {
			out = append(out, newPaymentMethodResponse(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func CreatePaymentMethod(svc paymentmethods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createPaymentMethodRequest
		if err := validators.DecodeJSON(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := svc.Create(r.Context(), middleware.UserIDFromContext(r.Context()), paymentmethods.CreateInput{
			ProviderType:   req.ProviderType,
			Type:           req.Type,
			Label:          req.Label,
			ReferenceToken: req.ReferenceToken,
			Brand:          req.Brand,
			ExpMonth:       req.ExpMonth,
			ExpYear:        req.ExpYear,
			IsDefault:      req.IsDefault,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPaymentMethodResponse(method))
	}
}

func DeletePaymentMethod(svc paymentmethods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		methodID, err := validators.PathUUID(r, "methodId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), middleware.UserIDFromContext(r.Context()), methodID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
