// Package square wraps the Square Payments API for card and bank charges.
package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/homeserve-payments/pkg/config"
	pkgerrors "github.com/angelmondragon/homeserve-payments/pkg/errors"
	"github.com/angelmondragon/homeserve-payments/pkg/logger"
)

var (
	ErrMissingCredentials = errors.New("square access token and location id are required")
	ErrUnknownEnvironment = errors.New("square environment must be sandbox or production")
)

type paymentsAPI interface {
	Create(ctx context.Context, req *sq.CreatePaymentRequest, opts ...sqoption.RequestOption) (*sq.CreatePaymentResponse, error)
}

// Client charges payment sources through Square.
type Client struct {
	payments paymentsAPI
	location string
	logg     *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square: logger is required")
	}
	baseURL, err := baseURLFor(cfg.Environment())
	if err != nil {
		return nil, err
	}
	token := strings.TrimSpace(cfg.AccessToken)
	location := strings.TrimSpace(cfg.LocationID)
	if token == "" || location == "" {
		return nil, ErrMissingCredentials
	}

	sdk := sqclient.NewClient(sqoption.WithBaseURL(baseURL), sqoption.WithToken(token))
	logg.Info(logg.WithField(ctx, "square_env", cfg.Environment()), "square client initialized")
	return &Client{payments: sdk.Payments, location: location, logg: logg}, nil
}

func baseURLFor(env string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "sandbox":
		return "https://connect.squareupsandbox.com", nil
	case "production":
		return "https://connect.squareup.com", nil
	default:
		return "", ErrUnknownEnvironment
	}
}

// CreatePayment submits the charge. A blank idempotency key gets a generated one
// so transport retries inside the SDK never double charge.
func (c *Client) CreatePayment(ctx context.Context, ch Charge) (*sq.Payment, error) {
	key := strings.TrimSpace(ch.IdempotencyKey)
	if key == "" {
		key = "hs-" + uuid.NewString()
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"square_op":    "payments.create",
		"order_ref":    ch.OrderRef,
		"amount_cents": ch.AmountCents,
	})

	resp, err := c.payments.Create(ctx, ch.request(c.location, key))
	if err != nil {
		mapped := classify("create payment", err)
		c.logg.Error(ctx, "square charge failed", mapped)
		return nil, mapped
	}

	payment := resp.GetPayment()
	c.logg.Info(c.logg.WithField(ctx, "square_status", Status(payment)), "square charge returned")
	return payment, nil
}

// classify turns a Square failure into a domain error. 4xx answers are the
// customer's problem, everything else is a dependency failure.
func classify(op string, err error) error {
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "square "+op+" failed")
	}

	code := codeForStatus(apiErr.StatusCode)
scan:
	for _, detail := range apiErrors(apiErr) {
		switch {
		case detail.Code == sq.ErrorCodeIdempotencyKeyReused:
			code = pkgerrors.CodeIdempotency
			break scan
		case detail.Category == sq.ErrorCategoryAuthenticationError:
			code = pkgerrors.CodeUnauthorized
			break scan
		}
	}
	return pkgerrors.Wrap(code, err, fmt.Sprintf("square %s failed", op))
}

var statusCodes = map[int]pkgerrors.Code{
	http.StatusBadRequest:          pkgerrors.CodeValidation,
	http.StatusUnauthorized:        pkgerrors.CodeUnauthorized,
	http.StatusPaymentRequired:     pkgerrors.CodeStateConflict,
	http.StatusForbidden:           pkgerrors.CodeForbidden,
	http.StatusNotFound:            pkgerrors.CodeNotFound,
	http.StatusConflict:            pkgerrors.CodeConflict,
	http.StatusUnprocessableEntity: pkgerrors.CodeStateConflict,
	http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
}

func codeForStatus(status int) pkgerrors.Code {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	if status >= 400 && status < 500 {
		return pkgerrors.CodeValidation
	}
	return pkgerrors.CodeDependency
}

// apiErrors decodes the {"errors":[...]} body Square attaches to failures.
func apiErrors(apiErr *sqcore.APIError) []sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []sq.Error `json:"errors"`
	}
	if json.Unmarshal([]byte(inner.Error()), &body) != nil {
		return nil
	}
	return body.Errors
}
