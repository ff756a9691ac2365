package gateway

import (
	"fmt"

	"stepperslife/config"
	"stepperslife/models"
)

// NewGateway creates a single adapter for the given provider from configuration.
func NewGateway(provider models.Provider, cfg *config.Config) (Gateway, error) {
	webhookURL := func(p models.Provider) string {
		return fmt.Sprintf("%s/api/webhooks/%s", cfg.AppURL, p)
	}

	switch provider {
	case models.ProviderSquare:
		return NewSquareGateway(cfg.SquareWebhookSignatureKey, webhookURL(models.ProviderSquare)), nil

	case models.ProviderStripe:
		return NewStripeGateway(cfg.StripeWebhookSecret), nil

	case models.ProviderPayPal:
		return NewPayPalGateway(cfg.PayPalWebhookID, webhookURL(models.ProviderPayPal)), nil

	case models.ProviderCashApp:
		return NewCashAppGateway(cfg.CashAppWebhookSecret, webhookURL(models.ProviderCashApp)), nil

	case models.ProviderManual:
		return NewManualGateway(cfg.ManualProviderTokenHash), nil

	default:
		return nil, fmt.Errorf("gateway: unsupported provider %s", provider)
	}
}

// NewRegistryFromConfig registers every provider with a configured secret.
// Square is registered first and acts as primary, matching the platform's
// main checkout flow.
func NewRegistryFromConfig(cfg *config.Config) *Registry {
	registry := NewRegistry()

	providers := []struct {
		provider models.Provider
		secret   string
	}{
		{models.ProviderSquare, cfg.SquareWebhookSignatureKey},
		{models.ProviderStripe, cfg.StripeWebhookSecret},
		{models.ProviderPayPal, cfg.PayPalWebhookID},
		{models.ProviderCashApp, cfg.CashAppWebhookSecret},
		{models.ProviderManual, cfg.ManualProviderTokenHash},
	}

	for _, p := range providers {
		if p.secret == "" {
			continue
		}
		gw, err := NewGateway(p.provider, cfg)
		if err != nil {
			continue
		}
		registry.Register(gw)
	}

	return registry
}
