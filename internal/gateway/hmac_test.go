package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	g := NewHMAC("http://provider", "key", "whsec_test")
	body := []byte(`{"id":"evt_1","type":"payment.refunded","data":{}}`)

	sig := g.Sign(body)
	assert.True(t, g.VerifySignature(body, sig))

	// Tampered body.
	assert.False(t, g.VerifySignature([]byte(`{"id":"evt_1","type":"payment.refunded","data":{"amount":1}}`), sig))
	// Garbage signature.
	assert.False(t, g.VerifySignature(body, "zz-not-hex"))
	// Wrong secret.
	other := NewHMAC("http://provider", "key", "whsec_other")
	assert.False(t, other.VerifySignature(body, sig))
}

func TestVerifySignature_SecretRotation(t *testing.T) {
	g := NewHMAC("http://provider", "key", "old")
	body := []byte(`{"id":"evt_1"}`)
	oldSig := g.Sign(body)

	g.SetWebhookSecret("new")
	assert.False(t, g.VerifySignature(body, oldSig))
	assert.True(t, g.VerifySignature(body, g.Sign(body)))
}

func TestAuthorize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/authorizations", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"authorizationRef":"auth_1","clientSecret":"cs_1"}`))
	}))
	defer srv.Close()

	g := NewHMAC(srv.URL, "key", "whsec")
	auth, err := g.Authorize(context.Background(), AuthorizeRequest{
		AmountCents: 5596, Currency: "USD", OrderID: "ord_1", TenantID: "acme",
	})
	assert.NoError(t, err)
	assert.Equal(t, "auth_1", auth.Ref)
	assert.Equal(t, "cs_1", auth.ClientSecret)
}

func TestAuthorize_Declined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer srv.Close()

	g := NewHMAC(srv.URL, "key", "whsec")
	_, err := g.Authorize(context.Background(), AuthorizeRequest{AmountCents: 100})
	assert.Error(t, err)
}
