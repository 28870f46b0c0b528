package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Version: "v1",
		Store:   StoreConf{DSN: "postgres://localhost/payrecon"},
		Gateway: GatewayConf{Endpoint: "https://pay.example.com", WebhookSecret: "whsec"},
		Admin:   AdminConf{Token: "tok"},
		Tenants: []Tenant{
			{ID: "acme", Currency: "USD", ShippingFlatCents: 599, FreeShippingOverCents: 10000},
		},
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "missing dsn",
			mutate:  func(c *Config) { c.Store.DSN = "" },
			wantErr: "store.dsn",
		},
		{
			name:    "missing webhook secret",
			mutate:  func(c *Config) { c.Gateway.WebhookSecret = "" },
			wantErr: "webhook_secret",
		},
		{
			name:    "duplicate tenant",
			mutate:  func(c *Config) { c.Tenants = append(c.Tenants, Tenant{ID: "acme"}) },
			wantErr: `duplicate tenant id "acme"`,
		},
		{
			name:    "negative shipping",
			mutate:  func(c *Config) { c.Tenants[0].ShippingFlatCents = -1 },
			wantErr: "shipping_flat_cents",
		},
		{
			name:    "no tenants",
			mutate:  func(c *Config) { c.Tenants = nil },
			wantErr: "at least one tenant",
		},
		{
			name:    "node id out of range",
			mutate:  func(c *Config) { c.Store.SnowflakeNodeID = 2048 },
			wantErr: "snowflake_node_id",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := Validate(cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}
