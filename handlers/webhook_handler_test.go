package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepperslife/config"
	"stepperslife/internal/gateway"
	"stepperslife/security"
)

// newWebhookEvent builds a request event for the given provider path. The
// pipeline services stay nil; these tests only cover the paths that reject
// before the pipeline runs.
func newWebhookEvent(t *testing.T, provider, body, authHeader string) *core.RequestEvent {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/"+provider, bytes.NewBufferString(body))
	req.SetPathValue("provider", provider)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	event := &core.RequestEvent{}
	event.Request = req
	event.Response = httptest.NewRecorder()
	return event
}

func testWebhookHandler(t *testing.T) *WebhookHandler {
	t.Helper()

	hash, err := security.HashManualToken("test-token")
	require.NoError(t, err)

	registry := gateway.NewRegistry()
	gw, err := gateway.NewGateway("manual", &config.Config{ManualProviderTokenHash: hash})
	require.NoError(t, err)
	registry.Register(gw)

	return NewWebhookHandler(nil, registry, nil, nil, nil, nil, nil)
}

func apiStatus(t *testing.T, err error) int {
	t.Helper()

	var apiErr *router.ApiError
	require.True(t, errors.As(err, &apiErr), "expected an api error, got %v", err)
	return apiErr.Status
}

func TestHandleWebhook_UnknownProvider(t *testing.T) {
	handler := testWebhookHandler(t)

	err := handler.HandleWebhook(newWebhookEvent(t, "venmo", "{}", ""))

	assert.Equal(t, http.StatusNotFound, apiStatus(t, err))
}

func TestHandleWebhook_RejectsBadSignature(t *testing.T) {
	handler := testWebhookHandler(t)

	err := handler.HandleWebhook(newWebhookEvent(t, "manual",
		`{"payment_reference":"ref-1","amount":5000}`, "Bearer wrong-token"))

	assert.Equal(t, http.StatusUnauthorized, apiStatus(t, err))
}

func TestHandleWebhook_RejectsMissingSignature(t *testing.T) {
	handler := testWebhookHandler(t)

	err := handler.HandleWebhook(newWebhookEvent(t, "manual",
		`{"payment_reference":"ref-1","amount":5000}`, ""))

	assert.Equal(t, http.StatusUnauthorized, apiStatus(t, err))
}

func TestHandleWebhook_RejectsMalformedPayload(t *testing.T) {
	handler := testWebhookHandler(t)

	err := handler.HandleWebhook(newWebhookEvent(t, "manual",
		`not json at all`, "Bearer test-token"))

	assert.Equal(t, http.StatusBadRequest, apiStatus(t, err))
}
