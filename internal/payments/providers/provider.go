// Package providers implements the payment gateway integrations behind a single
// capability. Gateways are selected at runtime through a Registry keyed by the
// provider discriminator stored on each transaction.
package providers

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/homeserve-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-payments/pkg/errors"
)

// PaymentRequest is the gateway-neutral charge request.
type PaymentRequest struct {
	OrderID        uuid.UUID
	AmountCents    int64
	Currency       enums.Currency
	IdempotencyKey string
	// SourceToken is an optional gateway-specific payment source such as a card nonce.
	SourceToken string
}

// Result reports the gateway decision. A decline is a Result with Success=false,
// never an error.
type Result struct {
	Success       bool
	TransactionID *string
	ErrorMessage  *string
}

// Provider is one gateway integration.
type Provider interface {
	Type() enums.ProviderType
	ProcessPayment(ctx context.Context, req PaymentRequest) (Result, error)
}

// Approved builds a successful result carrying the gateway reference.
func Approved(reference string) Result {
	return Result{Success: true, TransactionID: &reference}
}

// Declined builds a failed result carrying the gateway message.
func Declined(message string) Result {
	return Result{Success: false, ErrorMessage: &message}
}

// Registry maps provider discriminators to implementations.
type Registry struct {
	providers map[enums.ProviderType]Provider
}

// NewRegistry registers each provider under its Type. Duplicate types are rejected.
func NewRegistry(providers ...Provider) (*Registry, error) {
	reg := &Registry{providers: make(map[enums.ProviderType]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			continue
		}
		t := p.Type()
		if !t.IsValid() {
			return nil, fmt.Errorf("provider type %q is not recognized", t)
		}
		if _, exists := reg.providers[t]; exists {
			return nil, fmt.Errorf("provider %q registered twice", t)
		}
		reg.providers[t] = p
	}
	if len(reg.providers) == 0 {
		return nil, fmt.Errorf("at least one payment provider is required")
	}
	return reg, nil
}

// Resolve parses the raw discriminator and returns the registered provider.
func (r *Registry) Resolve(raw string) (Provider, error) {
	t, err := enums.ParseProviderType(raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported provider").
			WithDetails(map[string]any{"providerType": raw})
	}
	p, ok := r.providers[t]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported provider").
			WithDetails(map[string]any{"providerType": raw})
	}
	return p, nil
}

// Types lists the registered discriminators in stable order.
func (r *Registry) Types() []enums.ProviderType {
	out := make([]enums.ProviderType, 0, len(r.providers))
	for t := range r.providers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
