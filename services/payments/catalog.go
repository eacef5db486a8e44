package payments

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PlanCatalog maps paid tiers to a vendor's price or plan codes
type PlanCatalog struct {
	codes map[Tier]string
}

// NewPlanCatalog builds a catalog; empty codes are skipped
func NewPlanCatalog(codes map[Tier]string) *PlanCatalog {
	c := &PlanCatalog{codes: make(map[Tier]string, len(codes))}
	for tier, code := range codes {
		if code = strings.TrimSpace(code); code != "" {
			c.codes[tier] = code
		}
	}
	return c
}

// Code returns the vendor code for a tier
func (c *PlanCatalog) Code(tier Tier) (string, bool) {
	code, ok := c.codes[tier]
	return code, ok
}

// Tier resolves a vendor code back to its tier. Unknown codes are free.
func (c *PlanCatalog) Tier(code string) Tier {
	for tier, known := range c.codes {
		if known == code {
			return tier
		}
	}
	return TierFree
}

// PlanOverrides is the on-disk plan table, keyed by provider then tier
type PlanOverrides map[ProviderName]map[Tier]string

// LoadPlanOverrides reads a YAML plan table such as:
//
//	stripe:
//	  pro: price_123
//	  team: price_456
//	paystack:
//	  pro: PLN_abc
func LoadPlanOverrides(path string) (PlanOverrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var overrides PlanOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}

	for provider, plans := range overrides {
		for tier := range plans {
			if !tier.Valid() || tier == TierFree {
				return nil, fmt.Errorf("plan file: %s: %q is not a paid tier", provider, tier)
			}
		}
	}
	return overrides, nil
}

// Apply returns base with provider's overrides layered on top
func (o PlanOverrides) Apply(provider ProviderName, base map[Tier]string) map[Tier]string {
	merged := make(map[Tier]string, len(base))
	for tier, code := range base {
		merged[tier] = code
	}
	for tier, code := range o[provider] {
		merged[tier] = code
	}
	return merged
}
