package service

import (
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/models"
)

// ProviderSelector picks the adapter for a payment. Pure function of
// (currency, country): providers are tried in configured priority order and
// the first active one supporting both wins. When none match, the default
// provider is returned and its adapter rejects explicitly on currency
// mismatch rather than hiding the gap here.
type ProviderSelector struct {
	providers       []models.ProviderConfig
	defaultProvider string
}

func NewProviderSelector(providers []models.ProviderConfig, defaultProvider string) *ProviderSelector {
	return &ProviderSelector{providers: providers, defaultProvider: defaultProvider}
}

func (s *ProviderSelector) Select(currency, country string) string {
	for _, p := range s.providers {
		if !p.Active {
			continue
		}
		if !p.SupportsCurrency(currency) {
			continue
		}
		if country != "" && !p.SupportsCountry(country) {
			continue
		}
		return p.Name
	}
	return s.defaultProvider
}

// Providers returns the startup provider catalogue.
func (s *ProviderSelector) Providers() []models.ProviderConfig {
	out := make([]models.ProviderConfig, len(s.providers))
	copy(out, s.providers)
	return out
}
