package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/seamark/payrecon/internal/domain"
)

// HMACGateway talks to the provider's HTTP API and verifies webhook bodies
// with an HMAC-SHA256 shared secret. The secret is swappable at runtime for
// config hot-reload.
type HMACGateway struct {
	endpoint string
	apiKey   string
	client   *http.Client

	mu            sync.RWMutex
	webhookSecret string
}

// NewHMAC creates a gateway client.
func NewHMAC(endpoint, apiKey, webhookSecret string) *HMACGateway {
	return &HMACGateway{
		endpoint:      endpoint,
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

// SetWebhookSecret replaces the shared secret (config hot-reload).
func (g *HMACGateway) SetWebhookSecret(secret string) {
	g.mu.Lock()
	g.webhookSecret = secret
	g.mu.Unlock()
}

// VerifySignature checks a hex HMAC-SHA256 of the body.
func (g *HMACGateway) VerifySignature(body []byte, signature string) bool {
	g.mu.RLock()
	secret := g.webhookSecret
	g.mu.RUnlock()

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := mac.Sum(nil)

	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(want, got)
}

// Sign computes the authenticity header for body. Exported for tests and
// internal tooling that replays events.
func (g *HMACGateway) Sign(body []byte) string {
	g.mu.RLock()
	secret := g.webhookSecret
	g.mu.RUnlock()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Authorize posts an authorization request to the provider.
func (g *HMACGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode authorize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.endpoint+"/v1/authorizations", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build authorize request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, domain.Wrap(domain.EPAYMENT, err, "payment authorization request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, domain.Errorf(domain.EPAYMENT, "payment authorization rejected: status %d", resp.StatusCode)
	}

	var auth Authorization
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return nil, domain.Wrap(domain.EPAYMENT, err, "decode authorization response")
	}
	if auth.Ref == "" {
		return nil, domain.Errorf(domain.EPAYMENT, "authorization response missing reference")
	}
	return &auth, nil
}
