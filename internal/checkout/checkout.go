// Package checkout implements order creation: server-side revalidation and
// repricing, a pending order row, payment authorization, and a compensating
// delete when authorization fails before anything customer-visible happened.
package checkout

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seamark/payrecon/internal/config"
	"github.com/seamark/payrecon/internal/domain"
	"github.com/seamark/payrecon/internal/gateway"
	"github.com/seamark/payrecon/internal/metrics"
	"github.com/seamark/payrecon/internal/order"
	"github.com/seamark/payrecon/internal/store"
)

// Request is the client-submitted checkout payload. It deliberately carries no
// prices: every amount is recomputed from the catalog.
type Request struct {
	Customer struct {
		Email string `json:"email"`
		Name  string `json:"name"`
		Phone string `json:"phone"`
	} `json:"customer"`
	ShippingAddress order.Address `json:"shippingAddress"`
	Items           []LineInput   `json:"items"`
}

// LineInput is one requested line: product and quantity only.
type LineInput struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Response is returned on success. ClientSecret is what the customer's
// browser needs to complete the authorization.
type Response struct {
	OrderID      string `json:"orderId"`
	OrderNumber  string `json:"orderNumber"`
	ClientSecret string `json:"clientSecret"`
}

// OrderStore is the slice of the store checkout needs.
type OrderStore interface {
	ProductsByIDs(ctx context.Context, tenantID string, ids []string) (map[string]store.Product, error)
	InsertOrder(ctx context.Context, o *order.Order) error
	SetAuthorizationRef(ctx context.Context, id, ref string) error
	DeleteOrder(ctx context.Context, id string) error
	MarkCompensationFailed(ctx context.Context, id, note string) error
}

// TenantSource resolves tenant shipping configuration; the config loader
// implements it.
type TenantSource interface {
	Tenant(id string) (*config.Tenant, bool)
}

// Service runs the order creation flow.
type Service struct {
	store   OrderStore
	gateway gateway.Gateway
	tenants TenantSource
	numbers *order.NumberGenerator
	log     *slog.Logger
}

// New wires a checkout Service.
func New(s OrderStore, g gateway.Gateway, t TenantSource, n *order.NumberGenerator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: s, gateway: g, tenants: t, numbers: n, log: log}
}

// CreateOrder validates and prices the request, persists a pending order, and
// requests a payment authorization carrying the order id as correlation
// metadata. Authorization failure triggers the compensating delete; there is
// no resumable intermediate state.
func (s *Service) CreateOrder(ctx context.Context, tenantID string, req *Request) (*Response, error) {
	tenant, ok := s.tenants.Tenant(tenantID)
	if !ok {
		return nil, domain.Errorf(domain.ENOTFOUND, "unknown tenant %s", tenantID)
	}
	if err := validate(req); err != nil {
		metrics.CheckoutFailures.WithLabelValues("validation").Inc()
		return nil, err
	}

	items, subtotal, err := s.priceItems(ctx, tenant, req)
	if err != nil {
		metrics.CheckoutFailures.WithLabelValues("availability").Inc()
		return nil, err
	}
	shipping := shippingCost(tenant, subtotal)

	now := time.Now().UTC()
	o := &order.Order{
		ID:            uuid.New().String(),
		TenantID:      tenant.ID,
		Number:        s.numbers.Next(),
		Status:        order.StatusPending,
		Items:         items,
		SubtotalCents: subtotal,
		ShippingCents: shipping,
		TotalCents:    subtotal + shipping,
		Currency:      tenant.Currency,
		CustomerEmail: strings.ToLower(strings.TrimSpace(req.Customer.Email)),
		CustomerName:  strings.TrimSpace(req.Customer.Name),
		CustomerPhone: strings.TrimSpace(req.Customer.Phone),
		ShippingAddress: req.ShippingAddress,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// The row goes in before the authorization call so the order id can ride
	// along as correlation metadata.
	if err := s.store.InsertOrder(ctx, o); err != nil {
		metrics.CheckoutFailures.WithLabelValues("store").Inc()
		return nil, err
	}

	auth, err := s.gateway.Authorize(ctx, gateway.AuthorizeRequest{
		AmountCents: o.TotalCents,
		Currency:    o.Currency,
		OrderID:     o.ID,
		TenantID:    o.TenantID,
	})
	if err != nil {
		s.compensate(ctx, o.ID, err)
		metrics.CheckoutFailures.WithLabelValues("authorization").Inc()
		return nil, domain.Wrap(domain.EPAYMENT, err, "payment authorization could not be created")
	}

	if err := s.store.SetAuthorizationRef(ctx, o.ID, auth.Ref); err != nil {
		metrics.CheckoutFailures.WithLabelValues("store").Inc()
		return nil, err
	}

	metrics.OrdersCreated.Inc()
	s.log.Info("order created",
		"order_id", o.ID, "order_number", o.Number, "tenant", o.TenantID,
		"total_cents", o.TotalCents, "auth_ref", auth.Ref)

	return &Response{OrderID: o.ID, OrderNumber: o.Number, ClientSecret: auth.ClientSecret}, nil
}

// compensate removes the order inserted just before a failed authorization.
// Safe only because no customer-visible side effect has fired yet. A failed
// delete leaves a flagged orphan for the reconciliation sweep instead of a
// silent leak.
func (s *Service) compensate(ctx context.Context, orderID string, cause error) {
	if err := s.store.DeleteOrder(ctx, orderID); err != nil {
		s.log.Error("compensating delete failed, flagging orphan",
			"order_id", orderID, "delete_err", err, "cause", cause)
		if err := s.store.MarkCompensationFailed(ctx, orderID, "authorization failed, compensating delete failed"); err != nil {
			s.log.Error("failed to flag orphaned order", "order_id", orderID, "err", err)
		}
	}
}

func validate(req *Request) error {
	switch {
	case strings.TrimSpace(req.Customer.Email) == "":
		return domain.Errorf(domain.EINVALID, "customer email is required")
	case strings.TrimSpace(req.Customer.Name) == "":
		return domain.Errorf(domain.EINVALID, "customer name is required")
	case req.ShippingAddress.Line1 == "" || req.ShippingAddress.City == "" ||
		req.ShippingAddress.PostalCode == "" || req.ShippingAddress.Country == "":
		return domain.Errorf(domain.EINVALID, "shipping address is incomplete")
	case len(req.Items) == 0:
		return domain.Errorf(domain.EINVALID, "order must contain at least one item")
	}
	for _, it := range req.Items {
		if it.ProductID == "" {
			return domain.Errorf(domain.EINVALID, "item product id is required")
		}
		if it.Quantity <= 0 {
			return domain.Errorf(domain.EINVALID, "item quantity must be positive")
		}
	}
	return nil
}

// priceItems re-fetches catalog records and prices every line in integer
// cents. Client-submitted prices and availability are never consulted.
func (s *Service) priceItems(ctx context.Context, tenant *config.Tenant, req *Request) ([]order.Item, int64, error) {
	ids := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.store.ProductsByIDs(ctx, tenant.ID, ids)
	if err != nil {
		return nil, 0, err
	}

	var items []order.Item
	var subtotal int64
	for _, it := range req.Items {
		p, ok := products[it.ProductID]
		if !ok {
			return nil, 0, domain.Errorf(domain.EINVALID, "product %s is not available", it.ProductID)
		}
		if !p.Active || !p.InStock {
			return nil, 0, domain.Errorf(domain.EINVALID, "product %s is not available", it.ProductID)
		}
		if it.Quantity > p.StockQuantity {
			return nil, 0, domain.Errorf(domain.EINVALID,
				"requested quantity %d of product %s exceeds stock", it.Quantity, it.ProductID)
		}
		lineTotal := p.PriceCents * int64(it.Quantity)
		items = append(items, order.Item{
			ProductID:      p.ID,
			Name:           p.Name,
			Quantity:       it.Quantity,
			UnitPriceCents: p.PriceCents,
			LineTotalCents: lineTotal,
		})
		subtotal += lineTotal
	}
	return items, subtotal, nil
}

// shippingCost is the tenant's flat fee, waived at or above the free-shipping
// threshold when one is configured.
func shippingCost(tenant *config.Tenant, subtotal int64) int64 {
	if tenant.FreeShippingOverCents > 0 && subtotal >= tenant.FreeShippingOverCents {
		return 0
	}
	return tenant.ShippingFlatCents
}
