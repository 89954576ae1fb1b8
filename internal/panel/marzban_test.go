package panel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userPanelStub struct {
	tokens   int32
	expire   bool
	lastBody map[string]interface{}
	status   int
	response map[string]interface{}
}

func (s *userPanelStub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/admin/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]string{"detail": "Incorrect username or password"})
			return
		}
		n := atomic.AddInt32(&s.tokens, 1)
		writeJSON(w, map[string]string{"access_token": "tok" + string(rune('0'+n))})
	})
	mux.HandleFunc("/api/user", func(w http.ResponseWriter, r *http.Request) {
		if s.expire && r.Header.Get("Authorization") == "Bearer tok1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.lastBody = map[string]interface{}{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&s.lastBody))
		if s.status != 0 {
			w.WriteHeader(s.status)
		}
		writeJSON(w, s.response)
	})
	mux.HandleFunc("/api/user/alice", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			s.lastBody = map[string]interface{}{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&s.lastBody))
		}
		writeJSON(w, map[string]interface{}{"username": "alice", "subscription_url": "/sub/alice-token"})
	})
	mux.HandleFunc("/api/user/alice/reset", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		writeJSON(w, map[string]interface{}{"username": "alice"})
	})
	mux.HandleFunc("/api/user/ghost", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"detail": "User not found"})
	})
	mux.HandleFunc("/api/users", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"users": []map[string]string{{"username": "alice"}, {"username": "bob"}}, "total": 2})
	})
	return mux
}

func TestMarzbanClient_Create(t *testing.T) {
	stub := &userPanelStub{response: map[string]interface{}{"username": "alice", "subscription_url": "/sub/abc"}}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	m := NewMarzbanClient(srv.URL, "admin", "secret", "https://node.example.com", nil, time.Second)
	ctx := context.Background()
	require.NoError(t, m.Authenticate(ctx))

	expires := time.Unix(1790000000, 0)
	ref, err := m.CreateClient(ctx, Scope{}, Identity{Username: "alice", QuotaBytes: 1073741824, ExpiresAt: expires})
	require.NoError(t, err)
	assert.Equal(t, "alice", ref.ClientID)
	assert.EqualValues(t, 1790000000, stub.lastBody["expire"])
	assert.EqualValues(t, 1073741824, stub.lastBody["data_limit"])
	assert.Contains(t, stub.lastBody["proxies"], "vless")

	link, err := m.SubscriptionLink(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "https://node.example.com/sub/abc", link)
}

func TestMarzbanClient_ReauthOn401(t *testing.T) {
	stub := &userPanelStub{expire: true, response: map[string]interface{}{"username": "alice"}}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	m := NewMarzbanClient(srv.URL, "admin", "secret", "", []string{"vmess"}, time.Second)
	_, err := m.CreateClient(context.Background(), Scope{}, Identity{Username: "alice"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&stub.tokens))
}

func TestMarzbanClient_Failures(t *testing.T) {
	stub := &userPanelStub{status: http.StatusConflict, response: map[string]interface{}{"detail": "User already exists"}}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()
	ctx := context.Background()

	m := NewMarzbanClient(srv.URL, "admin", "secret", "", nil, time.Second)
	_, err := m.CreateClient(ctx, Scope{}, Identity{Username: "alice"})
	assert.True(t, IsKind(err, KindDuplicateIdentity))

	stub.status = http.StatusUnprocessableEntity
	stub.response = map[string]interface{}{"detail": "expire must be positive"}
	_, err = m.CreateClient(ctx, Scope{}, Identity{Username: "alice"})
	assert.True(t, IsKind(err, KindRemoteRejected))
	assert.Contains(t, err.Error(), "expire must be positive")

	stub.status = 0
	stub.response = map[string]interface{}{}
	_, err = m.CreateClient(ctx, Scope{}, Identity{Username: "alice"})
	assert.True(t, IsKind(err, KindRemoteRejected))

	err = NewMarzbanClient(srv.URL, "admin", "nope", "", nil, time.Second).Authenticate(ctx)
	assert.True(t, IsKind(err, KindAuth))
	assert.Contains(t, err.Error(), "Incorrect username or password")
}

func TestMarzbanClient_UpdateListReset(t *testing.T) {
	stub := &userPanelStub{}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()
	ctx := context.Background()

	m := NewMarzbanClient(srv.URL, "admin", "secret", "", nil, time.Second)
	clients, err := m.ListClients(ctx, Scope{Search: "alice"})
	require.NoError(t, err)
	found, ok := FindClient(clients, "alice")
	require.True(t, ok)

	none, err := m.ListClients(ctx, Scope{Search: "ghost"})
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := m.ListClients(ctx, Scope{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	ref, err := m.UpdateClient(ctx, Scope{}, found.ClientID, Identity{Username: "alice", QuotaBytes: 5})
	require.NoError(t, err)
	assert.Equal(t, "active", stub.lastBody["status"])
	require.NoError(t, m.ResetTraffic(ctx, Scope{}, "alice"))

	link, err := m.SubscriptionLink(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/sub/alice-token", link)
}

func TestPasargadClient_CreateSendsGroups(t *testing.T) {
	stub := &userPanelStub{response: map[string]interface{}{"username": "bob", "subscription_url": "https://sub.example.com/bob"}}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()
	ctx := context.Background()

	p := NewPasargadClient(srv.URL, "admin", "secret", "", time.Second)
	ref, err := p.CreateClient(ctx, Scope{}, Identity{Username: "bob", GroupIDs: []int{4}})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{float64(4)}, stub.lastBody["group_ids"])
	assert.Equal(t, "https://sub.example.com/bob", ref.SubscriptionURL)

	_, err = p.CreateClient(ctx, Scope{}, Identity{Username: "bob"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{float64(1)}, stub.lastBody["group_ids"])
}

func TestNew(t *testing.T) {
	for typ, want := range map[string]string{"x-ui": TypeXUI, "sanaei": TypeXUI, "marzban": TypeMarzban, "pasarguard": TypePasargad} {
		a, err := New(Config{Type: typ, Host: "https://panel.example.com"})
		require.NoError(t, err)
		assert.Equal(t, want, a.PanelType())
	}
	_, err := New(Config{Type: "hiddify", Host: "https://panel.example.com"})
	assert.Error(t, err)
	_, err = New(Config{Type: "xui"})
	assert.Error(t, err)

	a, _ := New(Config{Type: "marzban", Host: "https://panel.example.com"})
	_, ok := a.(NativeLinker)
	assert.True(t, ok)
	a, _ = New(Config{Type: "xui", Host: "https://panel.example.com"})
	_, ok = a.(InboundReader)
	assert.True(t, ok)
}
