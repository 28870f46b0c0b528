package config

// Config is the top-level YAML structure.
type Config struct {
	Version string      `yaml:"version"`
	Store   StoreConf   `yaml:"store"`
	Queue   QueueConf   `yaml:"queue"`
	Gateway GatewayConf `yaml:"gateway"`
	Admin   AdminConf   `yaml:"admin"`
	Tenants []Tenant    `yaml:"tenants"`
}

// StoreConf holds the Postgres connection settings.
type StoreConf struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	SnowflakeNodeID int64  `yaml:"snowflake_node_id"`
}

// QueueConf holds the AMQP connection settings for the mail queue.
type QueueConf struct {
	URL string `yaml:"url"`
}

// GatewayConf holds the payment provider settings. The webhook secret is
// hot-reloadable.
type GatewayConf struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// AdminConf guards the manual-override surface.
type AdminConf struct {
	Token string `yaml:"token"`
}

// Tenant is a brand storefront with its shipping pricing rules. Money fields
// are minor currency units.
type Tenant struct {
	ID                     string `yaml:"id"`
	Currency               string `yaml:"currency"`
	ShippingFlatCents      int64  `yaml:"shipping_flat_cents"`
	FreeShippingOverCents  int64  `yaml:"free_shipping_over_cents"`
}
