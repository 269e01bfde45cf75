package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/shellsale/internal/config"
	"github.com/mamadbah2/shellsale/internal/metrics"
	"github.com/mamadbah2/shellsale/internal/repository/memory"
	"github.com/mamadbah2/shellsale/internal/server/handlers"
	"github.com/mamadbah2/shellsale/internal/service/sales"
	whatsappsvc "github.com/mamadbah2/shellsale/internal/service/whatsapp"
	client "github.com/mamadbah2/shellsale/pkg/clients/whatsapp"
)

type nopClient struct{}

func (nopClient) SendTextMessage(context.Context, client.SendTextMessageRequest) (*client.SendTextMessageResponse, error) {
	return &client.SendTextMessageResponse{}, nil
}

func newEngine(t *testing.T) http.Handler {
	logger := zaptest.NewLogger(t)
	rec := metrics.NewRecorder()
	svc := sales.NewService(memory.NewStore(), rec, logger)
	notifier := whatsappsvc.NewNotifier(config.WhatsAppConfig{VerifyToken: "hub-secret"}, nopClient{}, logger)

	return New(Options{
		Sales:   handlers.NewSalesHandler(svc, nil, nil, logger),
		Webhook: handlers.NewWebhookHandler(notifier, logger),
		Metrics: rec,
		Logger:  logger,
	})
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestRoutes(t *testing.T) {
	engine := newEngine(t)

	rec := serve(engine, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(engine, http.MethodGet, "/api/sizes", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"sizes":[]}`, rec.Body.String())

	rec = serve(engine, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=hub-secret&hub.challenge=99", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "99", rec.Body.String())

	rec = serve(engine, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=99", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(engine, http.MethodPost, "/webhook", `{"object":"whatsapp_business_account","entry":[]}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(engine, http.MethodPost, "/api/notifications", `{"to":"39111","message":"hello"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = serve(engine, http.MethodPost, "/api/notifications", `{"to":"39111"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	engine := newEngine(t)

	serve(engine, http.MethodGet, "/api/sizes", "")
	serve(engine, http.MethodGet, "/api/sales/42", "")

	rec := serve(engine, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `shellsale_http_requests_total{method="GET",route="/api/sizes",status="200"} 1`)
	assert.Contains(t, body, `shellsale_http_requests_total{method="GET",route="/api/sales/:id",status="404"} 1`)
	assert.Contains(t, body, `shellsale_operations_total{operation="get_sale",outcome="not_found"} 1`)
}
