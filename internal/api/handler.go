package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seamark/payrecon/internal/checkout"
	"github.com/seamark/payrecon/internal/config"
	"github.com/seamark/payrecon/internal/event"
	"github.com/seamark/payrecon/internal/ledger"
	"github.com/seamark/payrecon/internal/order"
	"github.com/seamark/payrecon/internal/reconcile"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// Processor drives one webhook event through reconciliation.
type Processor interface {
	Process(ctx context.Context, ev *event.Event) (*reconcile.Result, error)
}

// CheckoutService creates orders.
type CheckoutService interface {
	CreateOrder(ctx context.Context, tenantID string, req *checkout.Request) (*checkout.Response, error)
}

// OrderStore is the slice of the store the handlers need directly.
type OrderStore interface {
	GetOrder(ctx context.Context, id string) (*order.Order, error)
	GetOrderForCustomer(ctx context.Context, id, email string) (*order.Order, error)
	UpdateStatusIf(ctx context.Context, id string, to, from order.Status) (bool, error)
	SetTracking(ctx context.Context, id, number, url string) error
	Ping(ctx context.Context) error
}

// Verifier checks webhook authenticity.
type Verifier interface {
	VerifySignature(body []byte, signature string) bool
}

// EventLog reads the ledger for the admin surface.
type EventLog interface {
	RecentForType(ctx context.Context, eventType string, limit int) ([]ledger.Record, error)
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	proc     Processor
	checkout CheckoutService
	store    OrderStore
	verifier Verifier
	events   EventLog
	loader   *config.Loader
	mux      *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(proc Processor, co CheckoutService, st OrderStore, v Verifier, ev EventLog, loader *config.Loader) http.Handler {
	h := &Handler{proc: proc, checkout: co, store: st, verifier: v, events: ev, loader: loader, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/webhooks/payment", instrument("webhook", h.handleWebhook))
	h.mux.HandleFunc("POST /v1/checkout", instrument("checkout", h.handleCheckout))
	h.mux.HandleFunc("GET /v1/orders/{id}", instrument("order_lookup", h.handleOrderLookup))
	h.mux.HandleFunc("PUT /v1/admin/orders/{id}/status", instrument("admin_status", h.requireAdmin(h.handleAdminStatus)))
	h.mux.HandleFunc("GET /v1/admin/events", instrument("admin_events", h.requireAdmin(h.handleAdminEvents)))
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return h.mux
}

// webhookResponse mirrors what the provider expects back: a 200 means "stop
// redelivering", a 500 means "retry".
type webhookResponse struct {
	Received bool   `json:"received"`
	Deduped  bool   `json:"deduped,omitempty"`
	Source   string `json:"source,omitempty"`
}

// POST /v1/webhooks/payment
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if !h.verifier.VerifySignature(body, r.Header.Get("X-Webhook-Signature")) {
		// Rejected before any mutation.
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	ev, err := event.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.proc.Process(r.Context(), ev)
	if err != nil {
		// Transient: signal the provider to redeliver.
		writeError(w, http.StatusInternalServerError, "event processing failed")
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{Received: true, Deduped: res.Deduped, Source: res.Source})
}

// POST /v1/checkout
func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	tenantID := r.Header.Get("X-Tenant-ID")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
		return
	}

	var req checkout.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}

	resp, err := h.checkout.CreateOrder(r.Context(), tenantID, &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /v1/orders/{id}?email= — possession of the customer email is the
// authorization; there is no session.
func (h *Handler) handleOrderLookup(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email query parameter is required")
		return
	}
	o, err := h.store.GetOrderForCustomer(r.Context(), id, email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// requireAdmin gates the manual-override surface behind the shared token.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Admin-Token") != h.loader.Config().Admin.Token {
			writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		next(w, r)
	}
}

type adminStatusRequest struct {
	Status         order.Status `json:"status"`
	TrackingNumber string       `json:"trackingNumber,omitempty"`
	TrackingURL    string       `json:"trackingUrl,omitempty"`
}

// PUT /v1/admin/orders/{id}/status
func (h *Handler) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req adminStatusRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status))
		return
	}

	o, err := h.store.GetOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !order.CanTransitionAdmin(o.Status, req.Status) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("cannot transition order from %s to %s", o.Status, req.Status))
		return
	}

	if o.Status != req.Status {
		applied, err := h.store.UpdateStatusIf(r.Context(), id, req.Status, o.Status)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if !applied {
			writeError(w, http.StatusConflict, "order status changed concurrently, retry")
			return
		}
	}
	if req.Status == order.StatusShipped && req.TrackingNumber != "" {
		if err := h.store.SetTracking(r.Context(), id, req.TrackingNumber, req.TrackingURL); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orderId": id,
		"status":  req.Status,
	})
}

// GET /v1/admin/events?type=&limit= — recent ledger rows for operators
// chasing a stuck payment.
func (h *Handler) handleAdminEvents(w http.ResponseWriter, r *http.Request) {
	eventType := r.URL.Query().Get("type")
	if eventType == "" {
		writeError(w, http.StatusBadRequest, "type query parameter is required")
		return
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be in 1..500")
			return
		}
		limit = n
	}
	records, err := h.events.RecentForType(r.Context(), eventType, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"type":   eventType,
		"events": records,
	})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 until the store answers a ping.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "store unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
