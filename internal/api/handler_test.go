package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/seamark/payrecon/internal/checkout"
	"github.com/seamark/payrecon/internal/config"
	"github.com/seamark/payrecon/internal/domain"
	"github.com/seamark/payrecon/internal/event"
	"github.com/seamark/payrecon/internal/gateway"
	"github.com/seamark/payrecon/internal/ledger"
	"github.com/seamark/payrecon/internal/order"
	"github.com/seamark/payrecon/internal/reconcile"
)

type fakeProcessor struct {
	res *reconcile.Result
	err error
}

func (f *fakeProcessor) Process(_ context.Context, ev *event.Event) (*reconcile.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.res != nil {
		return f.res, nil
	}
	return &reconcile.Result{EventID: ev.ID, Transitioned: true}, nil
}

type fakeCheckout struct {
	resp *checkout.Response
	err  error
}

func (f *fakeCheckout) CreateOrder(context.Context, string, *checkout.Request) (*checkout.Response, error) {
	return f.resp, f.err
}

type fakeOrderStore struct {
	order   *order.Order
	applied bool
	pingErr error
}

func (f *fakeOrderStore) GetOrder(_ context.Context, id string) (*order.Order, error) {
	if f.order == nil || f.order.ID != id {
		return nil, domain.Errorf(domain.ENOTFOUND, "order %s not found", id)
	}
	return f.order, nil
}

func (f *fakeOrderStore) GetOrderForCustomer(_ context.Context, id, email string) (*order.Order, error) {
	if f.order == nil || f.order.ID != id || f.order.CustomerEmail != email {
		return nil, domain.Errorf(domain.ENOTFOUND, "order %s not found", id)
	}
	return f.order, nil
}

func (f *fakeOrderStore) UpdateStatusIf(_ context.Context, _ string, to, from order.Status) (bool, error) {
	if f.order.Status == from {
		f.order.Status = to
		f.applied = true
		return true, nil
	}
	return false, nil
}

func (f *fakeOrderStore) SetTracking(_ context.Context, _, number, url string) error {
	f.order.TrackingNumber, f.order.TrackingURL = number, url
	return nil
}

func (f *fakeOrderStore) Ping(context.Context) error { return f.pingErr }

type fakeEventLog struct{ records []ledger.Record }

func (f *fakeEventLog) RecentForType(context.Context, string, int) ([]ledger.Record, error) {
	return f.records, nil
}

func testLoader(t *testing.T) *config.Loader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	cfg := `version: v1
store:
  dsn: postgres://localhost/test
gateway:
  endpoint: https://pay.example.com
  webhook_secret: whsec_test
admin:
  token: admin_tok
tenants:
  - id: acme
    currency: USD
    shipping_flat_cents: 599
    free_shipping_over_cents: 10000
`
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	loader, err := config.NewLoader(path)
	if err != nil {
		t.Fatal(err)
	}
	return loader
}

type fixture struct {
	proc  *fakeProcessor
	co    *fakeCheckout
	store *fakeOrderStore
	gw    *gateway.HMACGateway
	srv   http.Handler
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		proc:  &fakeProcessor{},
		co:    &fakeCheckout{resp: &checkout.Response{OrderID: "ord_1", ClientSecret: "cs_1"}},
		store: &fakeOrderStore{},
		gw:    gateway.NewHMAC("http://provider", "key", "whsec_test"),
	}
	f.srv = New(f.proc, f.co, f.store, f.gw, &fakeEventLog{}, testLoader(t))
	return f
}

func postWebhook(f *fixture, body []byte, sign bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payment", bytes.NewReader(body))
	if sign {
		req.Header.Set("X-Webhook-Signature", f.gw.Sign(body))
	}
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)
	return rr
}

func TestWebhook_BadSignature(t *testing.T) {
	f := newFixture(t)
	rr := postWebhook(f, []byte(`{"id":"evt_1","type":"payment.refunded","data":{}}`), false)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWebhook_Processed(t *testing.T) {
	f := newFixture(t)
	rr := postWebhook(f, []byte(`{"id":"evt_1","type":"payment.authorization.succeeded","data":{"orderId":"ord_1"}}`), true)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp webhookResponse
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Received)
	assert.False(t, resp.Deduped)
}

func TestWebhook_Deduped(t *testing.T) {
	f := newFixture(t)
	f.proc.res = &reconcile.Result{EventID: "evt_1", Deduped: true, Source: "db"}
	rr := postWebhook(f, []byte(`{"id":"evt_1","type":"payment.authorization.succeeded","data":{}}`), true)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"received":true,"deduped":true,"source":"db"}`, rr.Body.String())
}

func TestWebhook_TransientFailureSignalsRetry(t *testing.T) {
	f := newFixture(t)
	f.proc.err = domain.Wrap(domain.EUNAVAILABLE, errors.New("db down"), "event ledger insert failed")
	rr := postWebhook(f, []byte(`{"id":"evt_1","type":"payment.refunded","data":{}}`), true)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestWebhook_MalformedEnvelope(t *testing.T) {
	f := newFixture(t)
	rr := postWebhook(f, []byte(`{"type":"payment.refunded"}`), true)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"customer":{"email":"jo@example.com","name":"Jo"},"shippingAddress":{"line1":"1 Main St","city":"Springfield","postalCode":"97477","country":"US"},"items":[{"productId":"prod_1","quantity":2}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/checkout", bytes.NewReader(body))
	req.Header.Set("X-Tenant-ID", "acme")
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp checkout.Response
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ord_1", resp.OrderID)
	assert.Equal(t, "cs_1", resp.ClientSecret)
}

func TestCheckout_MissingTenantHeader(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/checkout", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCheckout_ValidationFailure(t *testing.T) {
	f := newFixture(t)
	f.co.resp = nil
	f.co.err = domain.Errorf(domain.EINVALID, "order must contain at least one item")
	req := httptest.NewRequest(http.MethodPost, "/v1/checkout", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("X-Tenant-ID", "acme")
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCheckout_AuthorizationFailure(t *testing.T) {
	f := newFixture(t)
	f.co.resp = nil
	f.co.err = domain.Errorf(domain.EPAYMENT, "payment authorization could not be created")
	req := httptest.NewRequest(http.MethodPost, "/v1/checkout", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("X-Tenant-ID", "acme")
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)
	assert.GreaterOrEqual(t, rr.Code, 500, "authorization failures are server-class")
}

func TestOrderLookup(t *testing.T) {
	f := newFixture(t)
	f.store.order = &order.Order{ID: "ord_1", CustomerEmail: "jo@example.com", Status: order.StatusPaid}

	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/orders/ord_1?email=jo@example.com", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	// Wrong email is indistinguishable from a missing order.
	rr = httptest.NewRecorder()
	f.srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/orders/ord_1?email=other@example.com", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	f.srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/orders/ord_1", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func adminPut(f *fixture, id, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/orders/"+id+"/status", bytes.NewReader([]byte(body)))
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)
	return rr
}

func TestAdminStatus_RequiresToken(t *testing.T) {
	f := newFixture(t)
	f.store.order = &order.Order{ID: "ord_1", Status: order.StatusPaid}
	rr := adminPut(f, "ord_1", `{"status":"processing"}`, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminStatus_ProcessingPath(t *testing.T) {
	f := newFixture(t)
	f.store.order = &order.Order{ID: "ord_1", Status: order.StatusPaid}
	rr := adminPut(f, "ord_1", `{"status":"processing"}`, "admin_tok")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, order.StatusProcessing, f.store.order.Status)
}

func TestAdminStatus_IllegalNamesBothStatuses(t *testing.T) {
	f := newFixture(t)
	f.store.order = &order.Order{ID: "ord_1", Status: order.StatusRefunded}
	rr := adminPut(f, "ord_1", `{"status":"paid"}`, "admin_tok")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "refunded")
	assert.Contains(t, rr.Body.String(), "paid")
}

func TestAdminStatus_ShippedSetsTracking(t *testing.T) {
	f := newFixture(t)
	f.store.order = &order.Order{ID: "ord_1", Status: order.StatusProcessing}
	rr := adminPut(f, "ord_1", `{"status":"shipped","trackingNumber":"1Z999","trackingUrl":"https://track.example.com/1Z999"}`, "admin_tok")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, order.StatusShipped, f.store.order.Status)
	assert.Equal(t, "1Z999", f.store.order.TrackingNumber)
}

func TestReadyz(t *testing.T) {
	f := newFixture(t)
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	f.store.pingErr = errors.New("dial refused")
	rr = httptest.NewRecorder()
	f.srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
