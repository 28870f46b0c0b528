package config

import (
	"fmt"
	"strings"
)

// Validate checks the config for:
//   - Required connection and gateway settings
//   - Duplicate tenant ids
//   - Negative money values
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Version == "" {
		errs = append(errs, "version is required")
	}
	if cfg.Store.DSN == "" {
		errs = append(errs, "store.dsn is required")
	}
	if cfg.Store.SnowflakeNodeID < 0 || cfg.Store.SnowflakeNodeID > 1023 {
		errs = append(errs, "store.snowflake_node_id must be in 0..1023")
	}
	if cfg.Gateway.Endpoint == "" {
		errs = append(errs, "gateway.endpoint is required")
	}
	if cfg.Gateway.WebhookSecret == "" {
		errs = append(errs, "gateway.webhook_secret is required")
	}
	if cfg.Admin.Token == "" {
		errs = append(errs, "admin.token is required")
	}
	if len(cfg.Tenants) == 0 {
		errs = append(errs, "at least one tenant is required")
	}

	seen := make(map[string]bool)
	for i, t := range cfg.Tenants {
		if t.ID == "" {
			errs = append(errs, fmt.Sprintf("tenants[%d]: id is required", i))
			continue
		}
		if seen[t.ID] {
			errs = append(errs, fmt.Sprintf("duplicate tenant id %q", t.ID))
		}
		seen[t.ID] = true
		if t.ShippingFlatCents < 0 {
			errs = append(errs, fmt.Sprintf("tenant %s: shipping_flat_cents must not be negative", t.ID))
		}
		if t.FreeShippingOverCents < 0 {
			errs = append(errs, fmt.Sprintf("tenant %s: free_shipping_over_cents must not be negative", t.ID))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
