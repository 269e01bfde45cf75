package whatsapp

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/shellsale/internal/config"
	"github.com/mamadbah2/shellsale/internal/domain/models"
	client "github.com/mamadbah2/shellsale/pkg/clients/whatsapp"
)

type fakeClient struct {
	mu   sync.Mutex
	sent []client.SendTextMessageRequest
	fail map[string]error
}

func (f *fakeClient) SendTextMessage(_ context.Context, req client.SendTextMessageRequest) (*client.SendTextMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[req.To]; err != nil {
		return nil, err
	}
	f.sent = append(f.sent, req)
	return &client.SendTextMessageResponse{}, nil
}

func newNotifier(t *testing.T, fc *fakeClient, recipients ...string) *Notifier {
	cfg := config.WhatsAppConfig{VerifyToken: "hub-secret", Recipients: recipients}
	return NewNotifier(cfg, fc, zaptest.NewLogger(t))
}

func statusEvent() models.Event {
	return models.Event{
		Type:           models.EventStatusChanged,
		SaleNumber:     "VAV-000007",
		Status:         models.SaleStatusConfirmed,
		PreviousStatus: models.SaleStatusDraft,
		CustomerName:   "Pescheria Adriatica",
		Totals:         models.SaleTotals{TotalAnimals: 4000, TotalWeight: 8.5, TotalBags: 1},
	}
}

func TestHandleBroadcastsRenderedEvent(t *testing.T) {
	fc := &fakeClient{}
	n := newNotifier(t, fc, "39111", "39222")

	require.NoError(t, n.Handle(context.Background(), statusEvent()))

	require.Len(t, fc.sent, 2)
	assert.Equal(t, "39111", fc.sent[0].To)
	assert.Equal(t, "39222", fc.sent[1].To)
	assert.Contains(t, fc.sent[0].Body, "Sale VAV-000007 confirmed")
	assert.Contains(t, fc.sent[0].Body, "1 bags, 4000 animals, 8.50 kg")
}

func TestHandleSkipsUntemplatedEvents(t *testing.T) {
	fc := &fakeClient{}
	n := newNotifier(t, fc, "39111")

	require.NoError(t, n.Handle(context.Background(), models.Event{Type: models.EventDraftUpdated}))
	require.NoError(t, n.Handle(context.Background(), models.Event{Type: models.EventBagsConfigured}))
	assert.Empty(t, fc.sent)
}

func TestBroadcastContinuesPastFailures(t *testing.T) {
	fc := &fakeClient{fail: map[string]error{"39111": errors.New("unreachable")}}
	n := newNotifier(t, fc, "39111", "39222")

	err := n.Broadcast(context.Background(), "digest")
	require.ErrorContains(t, err, "39111")
	require.Len(t, fc.sent, 1)
	assert.Equal(t, "39222", fc.sent[0].To)
}

func TestSendOutboundRejectsEmptyBody(t *testing.T) {
	n := newNotifier(t, &fakeClient{})
	require.Error(t, n.SendOutbound(context.Background(), models.OutboundMessageRequest{To: "39111", Message: "  "}))
}

func TestVerifyWebhookToken(t *testing.T) {
	n := newNotifier(t, &fakeClient{})

	challenge, err := n.VerifyWebhookToken("subscribe", "hub-secret", "42")
	require.NoError(t, err)
	assert.Equal(t, "42", challenge)

	_, err = n.VerifyWebhookToken("subscribe", "wrong", "42")
	require.Error(t, err)
	_, err = n.VerifyWebhookToken("unsubscribe", "hub-secret", "42")
	require.Error(t, err)
	_, err = n.VerifyWebhookToken("", "", "")
	require.Error(t, err)

	unset := NewNotifier(config.WhatsAppConfig{}, &fakeClient{}, nil)
	_, err = unset.VerifyWebhookToken("subscribe", "", "42")
	require.Error(t, err)
}

func TestHandleWebhookAcceptsStatuses(t *testing.T) {
	n := newNotifier(t, &fakeClient{})
	payload := models.WebhookPayload{Entry: []models.WebhookEntry{{
		Changes: []models.WebhookChange{{Value: models.WebhookValue{
			Statuses: []models.MessageStatus{
				{ID: "wamid.1", Status: "delivered", RecipientID: "39111"},
				{ID: "wamid.2", Status: "failed", RecipientID: "39222", Errors: []models.WebhookError{{Code: 131026}}},
			},
		}}},
	}}}
	require.NoError(t, n.HandleWebhook(context.Background(), payload))
}

func TestRender(t *testing.T) {
	body, ok := Render(models.Event{Type: models.EventSaleCreated, SaleNumber: "VAV-000001", SaleDate: "2024-05-03"})
	require.True(t, ok)
	assert.Contains(t, body, "New sale VAV-000001")
	assert.Contains(t, body, "Draft opened for - on 2024-05-03")

	_, ok = Render(models.Event{Type: "sale.unknown"})
	assert.False(t, ok)
}
