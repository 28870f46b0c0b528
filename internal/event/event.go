package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Handled event types. Anything outside this allow-list is recorded and
// acknowledged without side effects.
const (
	TypeAuthorizationSucceeded = "payment.authorization.succeeded"
	TypeAuthorizationFailed    = "payment.authorization.failed"
	TypeRefunded               = "payment.refunded"
)

// Event is the provider webhook envelope. Data stays opaque until a typed
// view is requested, so unknown event shapes pass through untouched.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt time.Time       `json:"createdAt"`
	Data      json.RawMessage `json:"data"`
}

// Parse decodes a webhook body into an Event and checks the envelope fields
// every event must carry.
func Parse(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if ev.ID == "" {
		return nil, fmt.Errorf("event id is required")
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("event type is required")
	}
	return &ev, nil
}

// Handled reports whether the event type is on the processing allow-list.
func (e *Event) Handled() bool {
	switch e.Type {
	case TypeAuthorizationSucceeded, TypeAuthorizationFailed, TypeRefunded:
		return true
	}
	return false
}

// AuthorizationData is the typed view of authorization outcome events.
type AuthorizationData struct {
	OrderID          string `json:"orderId"`
	TenantID         string `json:"tenantId"`
	AuthorizationRef string `json:"authorizationRef"`
	AmountCents      int64  `json:"amount"`
	Currency         string `json:"currency"`
}

// RefundData is the typed view of refund events. Refunds reference the order
// only through the authorization reference.
type RefundData struct {
	AuthorizationRef string `json:"authorizationRef"`
	AmountCents      int64  `json:"amount"`
	Reason           string `json:"reason"`
}

// Authorization extracts the authorization payload. A missing order id is a
// first-class outcome for the caller, not a decode failure, so only the JSON
// shape is validated here.
func (e *Event) Authorization() (*AuthorizationData, error) {
	if e.Type != TypeAuthorizationSucceeded && e.Type != TypeAuthorizationFailed {
		return nil, fmt.Errorf("event %s: type %q carries no authorization data", e.ID, e.Type)
	}
	var d AuthorizationData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return nil, fmt.Errorf("event %s: decode authorization data: %w", e.ID, err)
	}
	return &d, nil
}

// Refund extracts the refund payload.
func (e *Event) Refund() (*RefundData, error) {
	if e.Type != TypeRefunded {
		return nil, fmt.Errorf("event %s: type %q carries no refund data", e.ID, e.Type)
	}
	var d RefundData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return nil, fmt.Errorf("event %s: decode refund data: %w", e.ID, err)
	}
	return &d, nil
}
