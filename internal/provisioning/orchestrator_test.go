package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vpnshop/internal/metrics"
	"vpnshop/internal/models"
	"vpnshop/internal/panel"
	"vpnshop/internal/settings"
)

var fixedNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

type mockAdapter struct {
	mock.Mock
	panelType string
}

func (m *mockAdapter) Authenticate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockAdapter) CreateClient(ctx context.Context, scope panel.Scope, id panel.Identity) (*panel.ClientRef, error) {
	args := m.Called(ctx, scope, id)
	ref, _ := args.Get(0).(*panel.ClientRef)
	return ref, args.Error(1)
}

func (m *mockAdapter) UpdateClient(ctx context.Context, scope panel.Scope, clientID string, id panel.Identity) (*panel.ClientRef, error) {
	args := m.Called(ctx, scope, clientID, id)
	ref, _ := args.Get(0).(*panel.ClientRef)
	return ref, args.Error(1)
}

func (m *mockAdapter) ListClients(ctx context.Context, scope panel.Scope) ([]panel.RemoteClient, error) {
	args := m.Called(ctx, scope)
	clients, _ := args.Get(0).([]panel.RemoteClient)
	return clients, args.Error(1)
}

func (m *mockAdapter) ResetTraffic(ctx context.Context, scope panel.Scope, username string) error {
	return m.Called(ctx, scope, username).Error(0)
}

func (m *mockAdapter) SubscriptionLink(ctx context.Context, ref *panel.ClientRef) (string, error) {
	args := m.Called(ctx, ref)
	return args.String(0), args.Error(1)
}

func (m *mockAdapter) PanelType() string {
	return m.panelType
}

func marzbanSnapshot() settings.Snapshot {
	return settings.New(map[string]string{
		"panel_type":            "marzban",
		"marzban_host":          "https://m.example.com",
		"marzban_sudo_username": "sudo",
		"marzban_sudo_password": "pw",
	})
}

func newTestOrchestrator(t *testing.T, adapter panel.Adapter) (*Orchestrator, *[]panel.Config) {
	t.Helper()
	var configs []panel.Config
	factory := func(cfg panel.Config) (panel.Adapter, error) {
		configs = append(configs, cfg)
		return adapter, nil
	}
	o := NewOrchestrator(NewResolver(nil, zap.NewNop()), factory, nil, metrics.NewProvisioning(prometheus.NewRegistry()), time.Second, zap.NewNop())
	o.now = func() time.Time { return fixedNow }
	return o, &configs
}

func plan30() *models.Plan {
	return &models.Plan{ID: 2, Name: "Gold", VolumeGB: 30, DurationDays: 30}
}

func TestRun_RejectsInvalidOrders(t *testing.T) {
	a := &mockAdapter{panelType: panel.TypeMarzban}
	o, configs := newTestOrchestrator(t, a)
	ctx := context.Background()

	_, err := o.Run(ctx, Request{Order: &models.Order{ID: 1}, Plan: plan30(), Settings: marzbanSnapshot()})
	assert.Equal(t, KindInvalidOrder, KindOf(err))

	renewal := &models.Order{ID: 9, UserID: 5, PlanID: uintPtr(2), RenewsOrderID: uintPtr(3)}
	_, err = o.Run(ctx, Request{Order: renewal, Plan: plan30(), Settings: marzbanSnapshot()})
	assert.Equal(t, KindOriginalOrderNotFound, KindOf(err))

	otherUser := &models.Order{ID: 3, UserID: 6, Status: models.OrderStatusPaid}
	_, err = o.Run(ctx, Request{Order: renewal, Original: otherUser, Plan: plan30(), Settings: marzbanSnapshot()})
	assert.Equal(t, KindOriginalOrderNotFound, KindOf(err))

	// a renewal record carries no service and cannot stand in for the original
	record := &models.Order{ID: 3, UserID: 5, PlanID: uintPtr(2), RenewsOrderID: uintPtr(1), Status: models.OrderStatusPaid}
	_, err = o.Run(ctx, Request{Order: renewal, Original: record, Plan: plan30(), Settings: marzbanSnapshot()})
	assert.Equal(t, KindOriginalOrderNotFound, KindOf(err))

	assert.Empty(t, *configs)
	a.AssertNotCalled(t, "Authenticate", mock.Anything)
}

func TestRun_AuthFailureStopsBeforeRemoteMutation(t *testing.T) {
	a := &mockAdapter{panelType: panel.TypeMarzban}
	a.On("Authenticate", mock.Anything).Return(&panel.Error{Kind: panel.KindAuth, Panel: "marzban", Op: "authenticate"})
	o, _ := newTestOrchestrator(t, a)

	_, err := o.Run(context.Background(), Request{Order: &models.Order{ID: 1, UserID: 5, PlanID: uintPtr(2)}, Plan: plan30(), Settings: marzbanSnapshot()})
	require.Error(t, err)
	assert.Equal(t, KindAuth, KindOf(err))
	a.AssertNotCalled(t, "CreateClient", mock.Anything, mock.Anything, mock.Anything)
	a.AssertNotCalled(t, "ListClients", mock.Anything, mock.Anything)
}

func TestRun_CreateOnNativePanel(t *testing.T) {
	a := &mockAdapter{panelType: panel.TypeMarzban}
	a.On("Authenticate", mock.Anything).Return(nil)
	a.On("ListClients", mock.Anything, panel.Scope{Search: "user-5-order-1"}).Return([]panel.RemoteClient(nil), nil)
	a.On("CreateClient", mock.Anything, mock.Anything, mock.MatchedBy(func(id panel.Identity) bool {
		return id.Username == "user-5-order-1" &&
			id.QuotaBytes == 30*1073741824 &&
			id.ExpiresAt.Equal(fixedNow.AddDate(0, 0, 30)) &&
			assert.ObjectsAreEqual([]string{"vless"}, id.Protocols)
	})).Return(&panel.ClientRef{ClientID: "user-5-order-1", Username: "user-5-order-1", SubscriptionURL: "/sub/tok"}, nil)
	a.On("SubscriptionLink", mock.Anything, mock.Anything).Return("https://m.example.com/sub/tok", nil)

	o, configs := newTestOrchestrator(t, a)
	res, err := o.Run(context.Background(), Request{Order: &models.Order{ID: 1, UserID: 5, PlanID: uintPtr(2)}, Plan: plan30(), Settings: marzbanSnapshot()})
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.False(t, res.Renewal)
	assert.Equal(t, "https://m.example.com/sub/tok", res.Config)
	assert.Equal(t, fixedNow.AddDate(0, 0, 30), res.ExpiresAt)
	assert.Nil(t, res.ServerID())
	require.Len(t, *configs, 1)
	assert.Equal(t, panel.Config{Type: "marzban", Host: "https://m.example.com", Username: "sudo", Password: "pw", Protocols: []string{"vless"}, Timeout: time.Second}, (*configs)[0])
	a.AssertNotCalled(t, "ResetTraffic", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_ExistingClientOnNewPurchaseIsUpdated(t *testing.T) {
	a := &mockAdapter{panelType: panel.TypeMarzban}
	a.On("Authenticate", mock.Anything).Return(nil)
	a.On("ListClients", mock.Anything, mock.Anything).Return([]panel.RemoteClient{{ClientID: "User-5-Order-1", Email: "User-5-Order-1"}}, nil)
	a.On("UpdateClient", mock.Anything, mock.Anything, "User-5-Order-1", mock.Anything).
		Return(&panel.ClientRef{ClientID: "User-5-Order-1", Username: "User-5-Order-1", SubscriptionURL: "https://x/sub/1"}, nil)
	a.On("ResetTraffic", mock.Anything, mock.Anything, "user-5-order-1").Return(errors.New("reset endpoint down"))
	a.On("SubscriptionLink", mock.Anything, mock.Anything).Return("https://x/sub/1", nil)

	o, _ := newTestOrchestrator(t, a)
	res, err := o.Run(context.Background(), Request{Order: &models.Order{ID: 1, UserID: 5, PlanID: uintPtr(2)}, Plan: plan30(), Settings: marzbanSnapshot()})
	require.NoError(t, err)

	assert.False(t, res.Created)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "reset endpoint down")
	a.AssertNotCalled(t, "CreateClient", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_RenewalWithoutRemoteClientFails(t *testing.T) {
	a := &mockAdapter{panelType: panel.TypeMarzban}
	a.On("Authenticate", mock.Anything).Return(nil)
	a.On("ListClients", mock.Anything, mock.Anything).Return([]panel.RemoteClient{{Email: "someone-else"}}, nil)

	o, _ := newTestOrchestrator(t, a)
	original := &models.Order{ID: 3, UserID: 5, Status: models.OrderStatusPaid, PanelUsername: "user-5-order-3"}
	renewal := &models.Order{ID: 9, UserID: 5, PlanID: uintPtr(2), RenewsOrderID: uintPtr(3)}

	_, err := o.Run(context.Background(), Request{Order: renewal, Original: original, Plan: plan30(), Settings: marzbanSnapshot()})
	assert.Equal(t, KindClientNotFoundForRenewal, KindOf(err))
	a.AssertNotCalled(t, "CreateClient", mock.Anything, mock.Anything, mock.Anything)
	a.AssertNotCalled(t, "UpdateClient", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_AdapterErrorsAreClassified(t *testing.T) {
	a := &mockAdapter{panelType: panel.TypeMarzban}
	a.On("Authenticate", mock.Anything).Return(nil)
	a.On("ListClients", mock.Anything, mock.Anything).Return([]panel.RemoteClient(nil), nil)
	a.On("CreateClient", mock.Anything, mock.Anything, mock.Anything).Return(nil, &panel.Error{Kind: panel.KindDuplicateIdentity, Panel: "marzban", Op: "create_client"})

	o, _ := newTestOrchestrator(t, a)
	_, err := o.Run(context.Background(), Request{Order: &models.Order{ID: 1, UserID: 5, PlanID: uintPtr(2)}, Plan: plan30(), Settings: marzbanSnapshot()})
	assert.Equal(t, KindDuplicateIdentity, KindOf(err))

	var perr *Error
	require.ErrorAs(t, err, &perr)
	var aerr *panel.Error
	assert.ErrorAs(t, err, &aerr)
}

func TestRun_NativeLinkEmpty(t *testing.T) {
	a := &mockAdapter{panelType: panel.TypeMarzban}
	a.On("Authenticate", mock.Anything).Return(nil)
	a.On("ListClients", mock.Anything, mock.Anything).Return([]panel.RemoteClient(nil), nil)
	a.On("CreateClient", mock.Anything, mock.Anything, mock.Anything).Return(&panel.ClientRef{ClientID: "u", Username: "u"}, nil)
	a.On("SubscriptionLink", mock.Anything, mock.Anything).Return("", nil)

	o, _ := newTestOrchestrator(t, a)
	_, err := o.Run(context.Background(), Request{Order: &models.Order{ID: 1, UserID: 5, PlanID: uintPtr(2)}, Plan: plan30(), Settings: marzbanSnapshot()})
	assert.Equal(t, KindLinkConstruction, KindOf(err))
}

func TestUsernameAndExpiry(t *testing.T) {
	assert.Equal(t, "user-5-order-1", Username(&models.Order{ID: 1, UserID: 5}, nil))
	assert.Equal(t, "user-5-order-3", Username(&models.Order{ID: 9, UserID: 5}, &models.Order{ID: 3}))
	assert.Equal(t, "kept", Username(&models.Order{ID: 9, UserID: 5}, &models.Order{ID: 3, PanelUsername: " kept "}))
	assert.Equal(t, "own", Username(&models.Order{ID: 9, PanelUsername: "own"}, &models.Order{ID: 3, PanelUsername: "kept"}))

	past := fixedNow.AddDate(0, 0, -5)
	original := &models.Order{ExpiresAt: &past}
	assert.Equal(t, past.AddDate(0, 0, 30), NewExpiry(fixedNow, original, 30, PolicyExtendStored))
	assert.Equal(t, fixedNow.AddDate(0, 0, 30), NewExpiry(fixedNow, original, 30, PolicyResetIfExpired))
	assert.Equal(t, fixedNow.AddDate(0, 0, 30), NewExpiry(fixedNow, &models.Order{}, 30, PolicyExtendStored))
	assert.Equal(t, fixedNow.AddDate(0, 0, 7), NewExpiry(fixedNow, nil, 7, PolicyExtendStored))
}

// xuiPanel is an in-memory 3x-ui serving one inbound.
type xuiPanel struct {
	mu       sync.Mutex
	protocol string
	clients  []map[string]interface{}
	adds     int
	updates  int
	resets   int
}

func (p *xuiPanel) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]interface{}{"success": true})
	})
	mux.HandleFunc("/panel/api/inbounds/get/7", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		settingsJSON, _ := json.Marshal(map[string]interface{}{"clients": p.clients})
		protocol := p.protocol
		if protocol == "" {
			protocol = "vless"
		}
		reply(w, map[string]interface{}{"success": true, "obj": map[string]interface{}{
			"id": 7, "protocol": protocol, "port": 443,
			"settings":       string(settingsJSON),
			"streamSettings": `{"network":"tcp","security":"tls","tlsSettings":{"serverName":"panel.example.com"}}`,
		}})
	})
	mux.HandleFunc("/panel/api/inbounds/addClient", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Settings string `json:"settings"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		var parsed struct {
			Clients []map[string]interface{} `json:"clients"`
		}
		require.NoError(t, json.Unmarshal([]byte(body.Settings), &parsed))
		p.mu.Lock()
		p.adds++
		p.clients = append(p.clients, parsed.Clients...)
		p.mu.Unlock()
		reply(w, map[string]interface{}{"success": true})
	})
	mux.HandleFunc("/panel/api/inbounds/updateClient/", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Settings string `json:"settings"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		var parsed struct {
			Clients []map[string]interface{} `json:"clients"`
		}
		require.NoError(t, json.Unmarshal([]byte(body.Settings), &parsed))
		id := strings.TrimPrefix(r.URL.Path, "/panel/api/inbounds/updateClient/")
		p.mu.Lock()
		p.updates++
		for i, c := range p.clients {
			if c["id"] == id {
				p.clients[i] = parsed.Clients[0]
			}
		}
		p.mu.Unlock()
		reply(w, map[string]interface{}{"success": true})
	})
	mux.HandleFunc("/panel/api/inbounds/7/resetClientTraffic/", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.resets++
		p.mu.Unlock()
		reply(w, map[string]interface{}{"success": true})
	})
	return httptest.NewServer(mux)
}

type memoryInboundCache struct {
	data map[string][]byte
}

func (c *memoryInboundCache) Load(_ context.Context, host string, id int) ([]byte, error) {
	return c.data[host], nil
}

func (c *memoryInboundCache) Store(_ context.Context, host string, id int, data []byte) error {
	c.data[host] = data
	return nil
}

func TestRun_XUIEndToEnd(t *testing.T) {
	fake := &xuiPanel{}
	srv := fake.server(t)
	defer srv.Close()

	snap := settings.New(map[string]string{
		"panel_type":             "xui",
		"xui_host":               srv.URL,
		"xui_user":               "admin",
		"xui_pass":               "secret",
		"xui_default_inbound_id": "7",
		"xui_link_type":          "single",
	})
	cache := &memoryInboundCache{data: map[string][]byte{}}
	o := NewOrchestrator(NewResolver(nil, zap.NewNop()), panel.New, cache, nil, 5*time.Second, zap.NewNop())
	o.now = func() time.Time { return fixedNow }
	ctx := context.Background()

	order := &models.Order{ID: 1, UserID: 5, PlanID: uintPtr(2), Status: models.OrderStatusPending}
	res, err := o.Run(ctx, Request{Order: order, Plan: plan30(), Settings: snap})
	require.NoError(t, err)

	require.Len(t, fake.clients, 1)
	created := fake.clients[0]
	assert.Equal(t, "user-5-order-1", created["email"])
	assert.EqualValues(t, 30*1073741824, created["totalGB"])
	assert.EqualValues(t, fixedNow.AddDate(0, 0, 30).UnixMilli(), created["expiryTime"])
	assert.Equal(t, created["id"], res.ClientID)
	assert.Equal(t, created["subId"], res.SubID)
	assert.True(t, res.Created)
	assert.Equal(t, "vless://"+res.ClientID+"@127.0.0.1:443?type=tcp&security=tls&sni=127.0.0.1#Gold", res.Config)
	assert.NotEmpty(t, cache.data[srv.URL])

	// renewal ten days before expiry extends the stored expiry
	stored := fixedNow.AddDate(0, 0, 10)
	original := &models.Order{ID: 1, UserID: 5, PlanID: uintPtr(2), Status: models.OrderStatusPaid, PanelUsername: res.Username, PanelSubID: res.SubID, ExpiresAt: &stored}
	renewal := &models.Order{ID: 2, UserID: 5, PlanID: uintPtr(2), RenewsOrderID: uintPtr(1), Status: models.OrderStatusPending}

	renewed, err := o.Run(ctx, Request{Order: renewal, Original: original, Plan: plan30(), Settings: snap})
	require.NoError(t, err)
	assert.True(t, renewed.Renewal)
	assert.False(t, renewed.Created)
	assert.Equal(t, stored.AddDate(0, 0, 30), renewed.ExpiresAt)
	assert.Equal(t, res.ClientID, renewed.ClientID)
	assert.Equal(t, res.SubID, renewed.SubID)
	assert.Equal(t, 1, fake.adds)
	assert.Equal(t, 1, fake.updates)
	assert.Equal(t, 1, fake.resets)
	assert.EqualValues(t, stored.AddDate(0, 0, 30).UnixMilli(), fake.clients[0]["expiryTime"])
}

func TestRun_XUISubscriptionNeedsNoExtraCall(t *testing.T) {
	fake := &xuiPanel{}
	srv := fake.server(t)
	defer srv.Close()

	snap := settings.New(map[string]string{
		"panel_type":                "xui",
		"xui_host":                  srv.URL,
		"xui_user":                  "admin",
		"xui_pass":                  "secret",
		"xui_default_inbound_id":    "7",
		"xui_link_type":             "subscription",
		"xui_subscription_url_base": "https://sub.example.com/",
	})
	o := NewOrchestrator(NewResolver(nil, zap.NewNop()), panel.New, nil, nil, 5*time.Second, zap.NewNop())

	res, err := o.Run(context.Background(), Request{Order: &models.Order{ID: 4, UserID: 8, PlanID: uintPtr(2)}, Plan: plan30(), Settings: snap})
	require.NoError(t, err)
	assert.Equal(t, "https://sub.example.com/sub/"+res.SubID, res.Config)
}

func TestSyncInbound(t *testing.T) {
	fake := &xuiPanel{}
	srv := fake.server(t)
	defer srv.Close()

	cache := &memoryInboundCache{data: map[string][]byte{}}
	o := NewOrchestrator(NewResolver(nil, zap.NewNop()), panel.New, cache, nil, time.Second, zap.NewNop())

	synced, err := o.SyncInbound(context.Background(), settings.New(map[string]string{"panel_type": "xui", "xui_host": srv.URL, "xui_default_inbound_id": "7"}))
	require.NoError(t, err)
	assert.True(t, synced)
	inbound, err := panel.ParseInboundJSON(cache.data[srv.URL])
	require.NoError(t, err)
	assert.Equal(t, 443, inbound.Port)

	synced, err = o.SyncInbound(context.Background(), marzbanSnapshot())
	require.NoError(t, err)
	assert.False(t, synced)
}

func TestRun_XUISingleLinkIsVlessForAnyInbound(t *testing.T) {
	fake := &xuiPanel{protocol: "vmess"}
	srv := fake.server(t)
	defer srv.Close()

	snap := settings.New(map[string]string{
		"panel_type":             "xui",
		"xui_host":               srv.URL,
		"xui_user":               "admin",
		"xui_pass":               "secret",
		"xui_default_inbound_id": "7",
		"xui_link_type":          "single",
	})
	o := NewOrchestrator(NewResolver(nil, zap.NewNop()), panel.New, nil, nil, 5*time.Second, zap.NewNop())

	res, err := o.Run(context.Background(), Request{Order: &models.Order{ID: 4, UserID: 8, PlanID: uintPtr(2)}, Plan: plan30(), Settings: snap})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Config, "vless://"+res.ClientID+"@127.0.0.1:443?"), res.Config)
}
