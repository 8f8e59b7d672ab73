package ingest

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/observability"
)

func newTestWebhook(ratePerMin int) *WebhookServer {
	f := newIntakeFixture()
	prom := observability.NewMetricsWith(prometheus.NewRegistry(), "test")
	return NewWebhookServer(":0", f.intake, ratePerMin, prom, testLogger())
}

func postWebhook(s *WebhookServer, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestWebhookAcknowledgesBatch(t *testing.T) {
	s := newTestWebhook(100)

	rec := postWebhook(s, "/webhook/helius", `[{"signature":"sig-a"},{"signature":"sig-b"}]`)
	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case batch := <-s.queue:
		require.Len(t, batch.transactions, 2)
		assert.Equal(t, "sig-a", batch.transactions[0].Signature)
		assert.Equal(t, domain.SourceWebhook, batch.source)
	case <-time.After(time.Second):
		t.Fatal("batch was not queued")
	}
}

func TestWebhookAcceptsSingleObject(t *testing.T) {
	s := newTestWebhook(100)

	rec := postWebhook(s, "/webhook/helius", `{"signature":"sig-single"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	batch := <-s.queue
	require.Len(t, batch.transactions, 1)
	assert.Equal(t, "sig-single", batch.transactions[0].Signature)
}

func TestWebhookFallbackSourceTag(t *testing.T) {
	s := newTestWebhook(100)

	postWebhook(s, "/webhook/webhook-fallback", `[{"signature":"sig-fb"}]`)

	batch := <-s.queue
	assert.Equal(t, domain.SourceWebhookFallback, batch.source)
}

func TestWebhookRateLimitStillAnswers200(t *testing.T) {
	s := newTestWebhook(1)

	assert.Equal(t, http.StatusOK, postWebhook(s, "/webhook/helius", `[{"signature":"sig-1"}]`).Code)
	// Over the limit: dropped but still acknowledged so the provider does
	// not retry.
	assert.Equal(t, http.StatusOK, postWebhook(s, "/webhook/helius", `[{"signature":"sig-2"}]`).Code)
	assert.Len(t, s.queue, 1)
}

func TestWebhookIgnoresGarbageBody(t *testing.T) {
	s := newTestWebhook(100)

	rec := postWebhook(s, "/webhook/helius", `not json`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, s.queue)
}

func TestWebhookHealthz(t *testing.T) {
	s := newTestWebhook(100)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDecodeBatch(t *testing.T) {
	assert.Len(t, decodeBatch([]byte(`[{"signature":"a"},{"signature":"b"}]`)), 2)
	assert.Len(t, decodeBatch([]byte(`{"signature":"a"}`)), 1)
	assert.Nil(t, decodeBatch([]byte(`{}`)))
	assert.Nil(t, decodeBatch([]byte(`garbage`)))
}
