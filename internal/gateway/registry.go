package gateway

import "github.com/iliyamo/paycore/internal/config"

// FromConfig builds a registry holding both providers, sharing one HTTP
// client bounded by PROVIDER_TIMEOUT. Providers without credentials are
// registered anyway so Get can tell "not configured" from "unsupported".
func FromConfig(cfg config.Config) *Registry {
	client := NewHTTPClient(cfg.Payments.ProviderTimeout)
	return NewRegistry(
		NewRazorpay(cfg.Razorpay, client),
		NewStripe(cfg.Stripe, client),
	)
}
