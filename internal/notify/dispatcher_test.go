package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vpnshop/internal/fulfillment"
	"vpnshop/internal/models"
	"vpnshop/internal/pkg/telegram"
)

type sent struct {
	chatID, text, fallback, mode string
	markup                       interface{}
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []sent
}

func (r *recordingSender) SendMessage(_ context.Context, chatID, text, parseMode string, markup interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{chatID: chatID, text: text, mode: parseMode, markup: markup})
	return nil
}

func (r *recordingSender) SendWithFallback(_ context.Context, chatID, text, fallback string, markup interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{chatID: chatID, text: text, fallback: fallback, mode: "MarkdownV2", markup: markup})
	return nil
}

type users map[uint]*models.User

func (u users) FindByID(_ context.Context, id uint) (*models.User, error) {
	if user, ok := u[id]; ok {
		return user, nil
	}
	return nil, errors.New("record not found")
}

func newDispatcher() (*Dispatcher, *recordingSender) {
	s := &recordingSender{}
	d := NewDispatcher(s, users{1: {ID: 1, TelegramChatID: "1001"}, 2: {ID: 2}}, "999", zap.NewNop())
	return d, s
}

func TestPublish_OrderPaid(t *testing.T) {
	d, s := newDispatcher()
	exp := time.Date(2026, 11, 30, 0, 0, 0, 0, time.UTC)

	d.Publish(context.Background(), fulfillment.Event{
		Type: fulfillment.EventOrderPaid, OrderID: 5, UserID: 1, Success: true,
		Config: "vless://id@de1.example.com:443?type=ws#DE-1", ExpiresAt: &exp,
		Username: "user-1-order-5", PlanName: "Silver", VolumeGB: 30, DurationDays: 30,
		ServerName: "de-1", LocationName: "Germany", Warnings: []string{"traffic reset failed"},
	})

	require.Len(t, s.msgs, 1)
	m := s.msgs[0]
	assert.Equal(t, "1001", m.chatID)
	assert.Contains(t, m.text, `user\-1\-order\-5`)
	assert.Contains(t, m.text, "2026\\-11\\-30")
	assert.Contains(t, m.text, "Germany")
	assert.Contains(t, m.fallback, "vless://id@de1.example.com:443?type=ws#DE-1")
	assert.Contains(t, m.fallback, "⚠️ traffic reset failed")
	assert.True(t, strings.HasPrefix(m.fallback, "✅"))
	assert.NotNil(t, m.markup)
}

func TestPublish_RenewalTitle(t *testing.T) {
	d, s := newDispatcher()
	d.Publish(context.Background(), fulfillment.Event{Type: fulfillment.EventOrderPaid, UserID: 1, Renewal: true, Config: "vless://x"})
	require.Len(t, s.msgs, 1)
	assert.True(t, strings.HasPrefix(s.msgs[0].fallback, "🔄"))
}

func TestPublish_FailureGoesToAdmin(t *testing.T) {
	d, s := newDispatcher()
	d.Publish(context.Background(), fulfillment.Event{
		Type: fulfillment.EventOrderFailed, OrderID: 8, UserID: 1, PlanName: "Silver",
		Amount: 150000, ErrorKind: "auth_error", ErrorMessage: "auth_error: panel login failed",
	})
	require.Len(t, s.msgs, 1)
	assert.Equal(t, "999", s.msgs[0].chatID)
	assert.Equal(t, "", s.msgs[0].mode)
	assert.Contains(t, s.msgs[0].text, "#8")
	assert.Contains(t, s.msgs[0].text, "150,000")
	assert.Contains(t, s.msgs[0].text, "panel login failed")
	kb := s.msgs[0].markup.(*telegram.InlineKeyboard)
	assert.Equal(t, "\fapprove|8", kb.Rows[0][0].CallbackData)
}

func TestPublish_WalletCharged(t *testing.T) {
	d, s := newDispatcher()
	d.Publish(context.Background(), fulfillment.Event{Type: fulfillment.EventWalletCharged, UserID: 1, Amount: 50000, Balance: 250000})
	require.Len(t, s.msgs, 1)
	assert.Contains(t, s.msgs[0].text, `250,000`)
	assert.Contains(t, s.msgs[0].fallback, "50,000")
}

func TestPublish_SkipsUsersWithoutChat(t *testing.T) {
	d, s := newDispatcher()
	d.Publish(context.Background(), fulfillment.Event{Type: fulfillment.EventOrderPaid, UserID: 2})
	d.Publish(context.Background(), fulfillment.Event{Type: fulfillment.EventWalletCharged, UserID: 3})
	assert.Empty(t, s.msgs)
}

func TestRemind(t *testing.T) {
	d, s := newDispatcher()
	exp := time.Now().Add(50 * time.Hour)
	order := &models.Order{ID: 4, PanelUsername: "ali_vpn", ExpiresAt: &exp}

	require.NoError(t, d.Remind(context.Background(), &models.User{TelegramChatID: "1001"}, order, "Silver"))
	require.Len(t, s.msgs, 1)
	assert.Contains(t, s.msgs[0].fallback, "2 روز")
	assert.Contains(t, s.msgs[0].text, `ali\_vpn`)

	require.NoError(t, d.Remind(context.Background(), &models.User{}, order, "Silver"))
	assert.Len(t, s.msgs, 1)
}
