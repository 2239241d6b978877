package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/homeserve-payments/pkg/errors"
	"github.com/angelmondragon/homeserve-payments/pkg/money"
)

func invalid(field, reason string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid "+field).
		WithDetails(map[string]string{field: reason})
}

// PathUUID parses a chi route parameter.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, name)))
	if err != nil {
		return uuid.Nil, invalid(name, "must be a UUID")
	}
	return id, nil
}

// QueryInt returns def when key is absent and rejects values outside [lo, hi].
func QueryInt(r *http.Request, key string, def, lo, hi int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid(key, "must be a whole number")
	}
	if n < lo || n > hi {
		return 0, invalid(key, "must be between "+strconv.Itoa(lo)+" and "+strconv.Itoa(hi))
	}
	return n, nil
}

func QueryBool(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalid(key, "must be true or false")
	}
	return v, nil
}

func QueryString(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// Amount converts a major-unit amount to cents. Sign checks are left to the
// payments service.
func Amount(field string, amount decimal.Decimal) (int64, error) {
	cents, err := money.ToCents(amount)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+field).
			WithDetails(map[string]string{field: err.Error()})
	}
	return cents, nil
}
