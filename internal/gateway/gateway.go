package gateway

import (
	"context"
	"fmt"

	"stepperslife/models"
)

// Gateway normalizes one payment provider's webhook traffic into the
// provider-agnostic confirmation types. The issuance pipeline never sees a
// provider SDK object.
type Gateway interface {
	// Provider returns the provider this adapter speaks for.
	Provider() models.Provider

	// SignatureHeader names the HTTP header carrying the webhook signature.
	SignatureHeader() string

	// Verify reports whether rawBody was signed by the provider. False means
	// reject with 401 and stop; the provider's own retry policy is the only
	// retry mechanism.
	Verify(rawBody []byte, signatureHeader string) bool

	// Normalize extracts a completed-payment confirmation from the provider's
	// event envelope. It returns status.ErrUnrecognizedEvent for sub-events
	// that are not completed payments and status.ErrMalformedPayload when the
	// envelope cannot be parsed.
	Normalize(rawBody []byte) (*models.PaymentConfirmation, error)

	// NormalizeRefund extracts a completed-refund confirmation, with the same
	// error contract as Normalize.
	NormalizeRefund(rawBody []byte) (*models.RefundConfirmation, error)
}

// Registry holds the configured gateways, keyed by provider.
type Registry struct {
	gateways map[models.Provider]Gateway
	primary  models.Provider
}

func NewRegistry() *Registry {
	return &Registry{
		gateways: make(map[models.Provider]Gateway),
	}
}

// Register adds a gateway. The first registered gateway becomes primary.
func (r *Registry) Register(gw Gateway) {
	r.gateways[gw.Provider()] = gw

	if r.primary == "" {
		r.primary = gw.Provider()
	}
}

// Get returns the gateway for a provider.
func (r *Registry) Get(provider models.Provider) (Gateway, error) {
	gw, ok := r.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("gateway: provider %s not registered", provider)
	}
	return gw, nil
}

// Primary returns the primary gateway.
func (r *Registry) Primary() (Gateway, error) {
	if r.primary == "" {
		return nil, fmt.Errorf("gateway: no primary provider configured")
	}
	return r.Get(r.primary)
}

// Providers lists the registered providers.
func (r *Registry) Providers() []models.Provider {
	providers := make([]models.Provider, 0, len(r.gateways))
	for provider := range r.gateways {
		providers = append(providers, provider)
	}
	return providers
}

// Close releases any provider connections. Current adapters are stateless but
// the registry owns their lifecycle.
func (r *Registry) Close(ctx context.Context) error {
	return nil
}
