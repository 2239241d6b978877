package square

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/homeserve-payments/pkg/config"
	pkgerrors "github.com/angelmondragon/homeserve-payments/pkg/errors"
	"github.com/angelmondragon/homeserve-payments/pkg/logger"
)

type fakePayments struct {
	got  *sq.CreatePaymentRequest
	resp *sq.CreatePaymentResponse
	err  error
}

func (f *fakePayments) Create(_ context.Context, req *sq.CreatePaymentRequest, _ ...sqoption.RequestOption) (*sq.CreatePaymentResponse, error) {
	f.got = req
	return f.resp, f.err
}

func testClient(api paymentsAPI) *Client {
	return &Client{
		payments: api,
		location: "LOC1",
		logg:     logger.New(logger.Options{ServiceName: "square-test", Output: io.Discard}),
	}
}

func TestCreatePaymentBuildsRequest(t *testing.T) {
	status := StatusCompleted
	api := &fakePayments{resp: &sq.CreatePaymentResponse{Payment: &sq.Payment{Status: &status}}}
	c := testClient(api)

	payment, err := c.CreatePayment(context.Background(), Charge{
		AmountCents:    6000,
		Currency:       "usd",
		SourceID:       "cnon:card-nonce-ok",
		IdempotencyKey: "idem-1",
		OrderRef:       "order-1",
	})
	require.NoError(t, err)
	assert.True(t, Settled(payment))

	req := api.got
	require.NotNil(t, req)
	assert.Equal(t, "idem-1", req.IdempotencyKey)
	assert.Equal(t, "cnon:card-nonce-ok", req.SourceID)
	require.NotNil(t, req.AmountMoney)
	assert.Equal(t, int64(6000), *req.AmountMoney.Amount)
	assert.Equal(t, sq.Currency("USD"), *req.AmountMoney.Currency)
	assert.Equal(t, "LOC1", *req.LocationID)
	assert.Equal(t, "order-1", *req.ReferenceID)
	assert.Nil(t, req.Note)
	assert.True(t, *req.Autocomplete)
}

func TestCreatePaymentGeneratesIdempotencyKey(t *testing.T) {
	api := &fakePayments{resp: &sq.CreatePaymentResponse{}}
	_, err := testClient(api).CreatePayment(context.Background(), Charge{AmountCents: 100, SourceID: "cnon:x"})
	require.NoError(t, err)
	assert.Regexp(t, `^hs-[0-9a-f-]{36}$`, api.got.IdempotencyKey)
	assert.Equal(t, sq.Currency("USD"), *api.got.AmountMoney.Currency)
}

func TestCreatePaymentClassifiesErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want pkgerrors.Code
	}{
		{"card declined", sqcore.NewAPIError(http.StatusPaymentRequired, errors.New(`{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"CARD_DECLINED"}]}`)), pkgerrors.CodeStateConflict},
		{"bad request", sqcore.NewAPIError(http.StatusBadRequest, errors.New(`{"errors":[]}`)), pkgerrors.CodeValidation},
		{"auth", sqcore.NewAPIError(http.StatusUnauthorized, errors.New(`{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`)), pkgerrors.CodeUnauthorized},
		{"key reused", sqcore.NewAPIError(http.StatusBadRequest, errors.New(`{"errors":[{"category":"INVALID_REQUEST_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`)), pkgerrors.CodeIdempotency},
		{"server", sqcore.NewAPIError(http.StatusBadGateway, errors.New("upstream")), pkgerrors.CodeDependency},
		{"transport", errors.New("connection reset"), pkgerrors.CodeDependency},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := testClient(&fakePayments{err: tc.err}).CreatePayment(context.Background(), Charge{AmountCents: 100, SourceID: "cnon:x"})
			require.Error(t, err)
			assert.Equal(t, tc.want, pkgerrors.CodeOf(err))
		})
	}
}

func TestSettled(t *testing.T) {
	status := func(v string) *sq.Payment { return &sq.Payment{Status: &v} }
	assert.False(t, Settled(nil))
	assert.False(t, Settled(&sq.Payment{}))
	assert.True(t, Settled(status("COMPLETED")))
	assert.True(t, Settled(status("approved")))
	assert.False(t, Settled(status("FAILED")))
	assert.Equal(t, "FAILED", Status(status("FAILED")))
}

func TestNewClientValidatesConfig(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "square-test", Output: io.Discard})

	_, err := NewClient(context.Background(), config.SquareConfig{Env: "staging", AccessToken: "t", LocationID: "l"}, logg)
	assert.ErrorIs(t, err, ErrUnknownEnvironment)

	_, err = NewClient(context.Background(), config.SquareConfig{AccessToken: "t"}, logg)
	assert.ErrorIs(t, err, ErrMissingCredentials)

	c, err := NewClient(context.Background(), config.SquareConfig{Env: "Production", AccessToken: "t", LocationID: "l"}, logg)
	require.NoError(t, err)
	assert.Equal(t, "l", c.location)
}
