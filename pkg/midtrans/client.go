package midtrans

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	mt "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"

	"github.com/angelmondragon/homeserve-payments/pkg/config"
	pkgerrors "github.com/angelmondragon/homeserve-payments/pkg/errors"
	"github.com/angelmondragon/homeserve-payments/pkg/logger"
)

var (
	errServerKeyRequired = errors.New("midtrans server key is required")
	errLoggerRequired    = errors.New("midtrans logger is required")
)

type snapCreator interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *mt.Error)
}

// Client wraps the Midtrans Snap API.
type Client struct {
	snap       snapCreator
	production bool
	logger     *logger.Logger
}

// ChargeParams describes a single-item Snap transaction.
type ChargeParams struct {
	OrderRef    string
	GrossAmount int64
	ItemName    string
}

// Charge is the accepted Snap transaction.
type Charge struct {
	OrderRef    string
	Token       string
	RedirectURL string
}

// NewClient initializes a Snap client for the configured environment.
func NewClient(ctx context.Context, cfg config.MidtransConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	serverKey := strings.TrimSpace(cfg.ServerKey)
	if serverKey == "" {
		return nil, errServerKeyRequired
	}

	env := mt.Sandbox
	if cfg.Production() {
		env = mt.Production
	}
	sc := &snap.Client{}
	sc.New(serverKey, env)

	logg.Info(ctx, "midtrans client initialized")
	return &Client{snap: sc, production: cfg.Production(), logger: logg}, nil
}

// Production reports whether the client targets the production endpoint.
func (c *Client) Production() bool {
	return c != nil && c.production
}

// CreateCharge opens a Snap transaction. The SDK call is not context-aware, so the
// result is abandoned once ctx is done.
func (c *Client) CreateCharge(ctx context.Context, params ChargeParams) (*Charge, error) {
	if strings.TrimSpace(params.OrderRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "midtrans order ref required")
	}
	if params.GrossAmount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "midtrans gross amount must be positive")
	}
	name := strings.TrimSpace(params.ItemName)
	if name == "" {
		name = "Home service order"
	}
	req := &snap.Request{
		TransactionDetails: mt.TransactionDetails{
			OrderID:  params.OrderRef,
			GrossAmt: params.GrossAmount,
		},
		Items: &[]mt.ItemDetails{
			{
				ID:    params.OrderRef,
				Price: params.GrossAmount,
				Qty:   1,
				Name:  truncate(name, 50),
			},
		},
	}

	c.log(ctx, "request", map[string]any{"order_ref": params.OrderRef, "amount": params.GrossAmount})

	type outcome struct {
		resp *snap.Response
		err  *mt.Error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := c.snap.CreateTransaction(req)
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		if out.err != nil {
			c.log(ctx, "error", map[string]any{"order_ref": params.OrderRef, "error": out.err.Message})
			return nil, mapMidtransError(out.err)
		}
		if out.resp == nil || out.resp.Token == "" {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "midtrans returned no snap token")
		}
		c.log(ctx, "response", map[string]any{"order_ref": params.OrderRef})
		return &Charge{
			OrderRef:    params.OrderRef,
			Token:       out.resp.Token,
			RedirectURL: out.resp.RedirectURL,
		}, nil
	}
}

func (c *Client) log(ctx context.Context, phase string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	fields["operation"] = "snap_create_transaction"
	fields["phase"] = phase
	ctx = c.logger.WithFields(ctx, fields)
	if phase == "error" {
		c.logger.Warn(ctx, "midtrans snap request failed")
		return
	}
	c.logger.Info(ctx, fmt.Sprintf("midtrans %s", phase))
}

func mapMidtransError(err *mt.Error) error {
	if err == nil {
		return nil
	}
	code := pkgerrors.CodeDependency
	switch {
	case err.StatusCode == http.StatusUnauthorized:
		code = pkgerrors.CodeUnauthorized
	case err.StatusCode == http.StatusConflict:
		code = pkgerrors.CodeConflict
	case err.StatusCode >= 400 && err.StatusCode < 500:
		code = pkgerrors.CodeValidation
	}
	return pkgerrors.Wrap(code, errors.New(err.Message), "midtrans snap transaction failed")
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
