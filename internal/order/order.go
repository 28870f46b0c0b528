package order

import "time"

// Status is the order lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusRefunded, StatusFailed:
		return true
	}
	return false
}

// Item is one order line. Prices are minor currency units resolved
// server-side at checkout time.
type Item struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPrice"`
	LineTotalCents int64  `json:"lineTotal"`
}

// Address is a shipping destination.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Order is the persisted order entity. Money fields are minor units;
// TotalCents is always SubtotalCents + ShippingCents, computed from
// authoritative product prices.
type Order struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenantId"`
	Number           string     `json:"orderNumber"`
	Status           Status     `json:"status"`
	AuthorizationRef string     `json:"authorizationRef,omitempty"`
	Items            []Item     `json:"items"`
	SubtotalCents    int64      `json:"subtotal"`
	ShippingCents    int64      `json:"shippingCost"`
	TotalCents       int64      `json:"total"`
	Currency         string     `json:"currency"`
	CustomerEmail    string     `json:"customerEmail"`
	CustomerName     string     `json:"customerName"`
	CustomerPhone    string     `json:"customerPhone,omitempty"`
	ShippingAddress  Address    `json:"shippingAddress"`
	TrackingNumber   string     `json:"trackingNumber,omitempty"`
	TrackingURL      string     `json:"trackingUrl,omitempty"`
	StockDecremented bool       `json:"-"`
	ReviewInvitedAt  *time.Time `json:"reviewInvitedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}
