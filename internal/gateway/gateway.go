// Package gateway adapts the external payment provider: webhook authenticity
// checks and authorization creation. The provider itself is not reimplemented.
package gateway

import (
	"context"
)

// AuthorizeRequest asks the provider to authorize a charge. The order and
// tenant ids travel as correlation metadata so later webhook events can be
// reconciled back to the order.
type AuthorizeRequest struct {
	AmountCents int64  `json:"amount"`
	Currency    string `json:"currency"`
	OrderID     string `json:"orderId"`
	TenantID    string `json:"tenantId"`
}

// Authorization is the provider's answer: a reference for reconciliation and
// a client-side secret the customer's browser needs to complete the flow.
type Authorization struct {
	Ref          string `json:"authorizationRef"`
	ClientSecret string `json:"clientSecret"`
}

// Gateway is the narrow interface the checkout flow and webhook handler
// consume.
type Gateway interface {
	// VerifySignature checks the authenticity header against the raw body.
	VerifySignature(body []byte, signature string) bool
	// Authorize requests a payment authorization for the given amount.
	Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error)
}
