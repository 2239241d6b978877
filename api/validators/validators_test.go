package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/homeserve-payments/pkg/errors"
)

type payBody struct {
	OrderID string          `json:"orderId" validate:"required,uuid"`
	Amount  decimal.Decimal `json:"amount"`
	Note    string          `json:"note" validate:"max=5"`
}

func post(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body))
}

func details(t *testing.T, err error) map[string]string {
	t.Helper()
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	var typed *pkgerrors.Error
	require.ErrorAs(t, err, &typed)
	d, ok := typed.Details().(map[string]string)
	require.True(t, ok, "details should be a field map, got %T", typed.Details())
	return d
}

func TestDecodeJSON(t *testing.T) {
	id := uuid.NewString()
	var body payBody
	require.NoError(t, DecodeJSON(post(`{"orderId":"`+id+`","amount":"60.50"}`), &body))
	assert.Equal(t, id, body.OrderID)
	assert.True(t, body.Amount.Equal(decimal.RequireFromString("60.5")))
}

func TestDecodeJSONRejects(t *testing.T) {
	cases := map[string]struct {
		body  string
		field string
		want  string
	}{
		"empty":         {``, "body", "must not be empty"},
		"unknown field": {`{"orderId":"x","tip":1}`, "tip", "is not allowed"},
		"wrong type":    {`{"orderId":42}`, "orderId", "must be a string"},
		"trailing data": {`{"orderId":"` + uuid.NewString() + `"}{}`, "body", "must contain a single JSON object"},
		"missing":       {`{}`, "orderId", "is required"},
		"not a uuid":    {`{"orderId":"abc"}`, "orderId", "must be a UUID"},
		"too long":      {`{"orderId":"` + uuid.NewString() + `","note":"abcdefgh"}`, "note", "must be at most 5 characters"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var body payBody
			err := DecodeJSON(post(tc.body), &body)
			assert.Equal(t, tc.want, details(t, err)[tc.field])
		})
	}

	var body payBody
	err := DecodeJSON(post(`{"orderId":`), &body)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestPathUUID(t *testing.T) {
	id := uuid.New()
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("transactionId", id.String())
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

	got, err := PathUUID(r, "transactionId")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = PathUUID(r, "orderId")
	assert.Equal(t, "must be a UUID", details(t, err)["orderId"])
}

func TestQueryHelpers(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/payments?limit=20&unreadOnly=true&cursor=+abc+", nil)

	n, err := QueryInt(r, "limit", 50, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	n, err = QueryInt(r, "page", 50, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 50, n, "absent key falls back to default")

	_, err = QueryInt(r, "limit", 50, 1, 10)
	assert.Equal(t, "must be between 1 and 10", details(t, err)["limit"])

	_, err = QueryInt(httptest.NewRequest(http.MethodGet, "/?limit=ten", nil), "limit", 50, 1, 100)
	assert.Equal(t, "must be a whole number", details(t, err)["limit"])

	unread, err := QueryBool(r, "unreadOnly")
	require.NoError(t, err)
	assert.True(t, unread)

	_, err = QueryBool(httptest.NewRequest(http.MethodGet, "/?unreadOnly=maybe", nil), "unreadOnly")
	assert.Equal(t, "must be true or false", details(t, err)["unreadOnly"])

	assert.Equal(t, "abc", QueryString(r, "cursor"))
}

func TestAmount(t *testing.T) {
	cents, err := Amount("amount", decimal.RequireFromString("60.05"))
	require.NoError(t, err)
	assert.EqualValues(t, 6005, cents)

	_, err = Amount("amount", decimal.RequireFromString("1.005"))
	assert.NotEmpty(t, details(t, err)["amount"])
}
