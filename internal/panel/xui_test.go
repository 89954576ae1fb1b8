package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeXUI struct {
	mu      sync.Mutex
	clients []map[string]interface{}
	posts   map[string]int
	failAdd string
}

func newFakeXUI() *fakeXUI {
	return &fakeXUI{posts: map[string]int{}}
}

func (f *fakeXUI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		ok := r.PostForm.Get("username") == "admin" && r.PostForm.Get("password") == "secret"
		if ok {
			http.SetCookie(w, &http.Cookie{Name: "3x-ui", Value: "session"})
		}
		writeJSON(w, map[string]interface{}{"success": ok, "msg": "wrong credentials"})
	})
	mux.HandleFunc("/panel/api/inbounds/get/7", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		settings, _ := json.Marshal(map[string]interface{}{"clients": f.clients})
		f.mu.Unlock()
		stream := `{"network":"ws","security":"tls","wsSettings":{"path":"/ws","headers":{"Host":"cdn.example.com"}},"tlsSettings":{"serverName":"sni.example.com"}}`
		writeJSON(w, map[string]interface{}{"success": true, "obj": map[string]interface{}{
			"id": 7, "protocol": "vless", "port": 443, "remark": "main",
			"settings": string(settings), "streamSettings": stream,
		}})
	})
	mux.HandleFunc("/panel/api/inbounds/addClient", func(w http.ResponseWriter, r *http.Request) {
		f.record("add")
		if f.failAdd != "" {
			writeJSON(w, map[string]interface{}{"success": false, "msg": f.failAdd})
			return
		}
		var body struct {
			ID       int    `json:"id"`
			Settings string `json:"settings"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		var parsed struct {
			Clients []map[string]interface{} `json:"clients"`
		}
		require.NoError(t, json.Unmarshal([]byte(body.Settings), &parsed))
		f.mu.Lock()
		f.clients = append(f.clients, parsed.Clients...)
		f.mu.Unlock()
		writeJSON(w, map[string]interface{}{"success": true})
	})
	mux.HandleFunc("/panel/api/inbounds/updateClient/", func(w http.ResponseWriter, r *http.Request) {
		f.record("update")
		writeJSON(w, map[string]interface{}{"success": true})
	})
	mux.HandleFunc("/panel/api/inbounds/7/resetClientTraffic/", func(w http.ResponseWriter, r *http.Request) {
		f.record("reset")
		writeJSON(w, map[string]interface{}{"success": true})
	})
	return mux
}

func (f *fakeXUI) record(op string) {
	f.mu.Lock()
	f.posts[op]++
	f.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestXUIClient_CreateAndList(t *testing.T) {
	fake := newFakeXUI()
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	ctx := context.Background()
	x := NewXUIClient(srv.URL, "admin", "secret", 5*time.Second)
	require.NoError(t, x.Authenticate(ctx))

	expires := time.Date(2026, 11, 18, 0, 0, 0, 0, time.UTC)
	ref, err := x.CreateClient(ctx, Scope{InboundID: 7}, Identity{
		Username:   "user-5-order-9",
		QuotaBytes: 30 * 1073741824,
		ExpiresAt:  expires,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ref.ClientID)
	assert.Len(t, ref.SubID, 16)

	require.Len(t, fake.clients, 1)
	c := fake.clients[0]
	assert.Equal(t, "user-5-order-9", c["email"])
	assert.EqualValues(t, 32212254720, c["totalGB"])
	assert.EqualValues(t, expires.UnixMilli(), c["expiryTime"])
	assert.Equal(t, ref.SubID, c["subId"])

	clients, err := x.ListClients(ctx, Scope{InboundID: 7})
	require.NoError(t, err)
	found, ok := FindClient(clients, "  USER-5-order-9 ")
	require.True(t, ok)
	assert.Equal(t, ref.ClientID, found.ClientID)
}

func TestXUIClient_AuthFailure(t *testing.T) {
	srv := httptest.NewServer(newFakeXUI().handler(t))
	defer srv.Close()

	err := NewXUIClient(srv.URL, "admin", "wrong", time.Second).Authenticate(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuth))
}

func TestXUIClient_DuplicateAndRejected(t *testing.T) {
	fake := newFakeXUI()
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	x := NewXUIClient(srv.URL, "admin", "secret", time.Second)

	fake.failAdd = "Duplicate email: user-1"
	_, err := x.CreateClient(context.Background(), Scope{InboundID: 7}, Identity{Username: "user-1"})
	assert.True(t, IsKind(err, KindDuplicateIdentity))

	fake.failAdd = "inbound disabled"
	_, err = x.CreateClient(context.Background(), Scope{InboundID: 7}, Identity{Username: "user-1"})
	assert.True(t, IsKind(err, KindRemoteRejected))
	assert.Contains(t, err.Error(), "inbound disabled")
}

func TestXUIClient_MalformedBodyIsNotSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>gateway</html>")
	}))
	defer srv.Close()

	_, err := NewXUIClient(srv.URL, "admin", "secret", time.Second).
		UpdateClient(context.Background(), Scope{InboundID: 7}, "abc", Identity{Username: "u"})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindRemote))
}

func TestXUIClient_UpdateResetAndInbound(t *testing.T) {
	fake := newFakeXUI()
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	ctx := context.Background()
	x := NewXUIClient(srv.URL, "admin", "secret", time.Second)

	ref, err := x.UpdateClient(ctx, Scope{InboundID: 7}, "uuid-1", Identity{Username: "u", SubID: "keep"})
	require.NoError(t, err)
	assert.Equal(t, "keep", ref.SubID)
	require.NoError(t, x.ResetTraffic(ctx, Scope{InboundID: 7}, "u"))
	assert.Equal(t, 1, fake.posts["update"])
	assert.Equal(t, 1, fake.posts["reset"])

	inbound, err := x.Inbound(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 443, inbound.Port)
	assert.Equal(t, StreamSettings{Network: "ws", Security: "tls", WSPath: "/ws", WSHost: "cdn.example.com", ServerName: "sni.example.com"}, inbound.Stream)

	raw, err := x.InboundJSON(ctx, 7)
	require.NoError(t, err)
	cached, err := ParseInboundJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, inbound, cached)
}

type flakyLister struct {
	Adapter
	calls int
	errs  []error
}

func (f *flakyLister) ListClients(ctx context.Context, scope Scope) ([]RemoteClient, error) {
	err := f.errs[f.calls]
	f.calls++
	if err != nil {
		return nil, err
	}
	return []RemoteClient{{Email: "a"}}, nil
}

func TestListClientsWithRetry(t *testing.T) {
	ctx := context.Background()

	l := &flakyLister{errs: []error{remoteError(TypeXUI, "list_clients", fmt.Errorf("timeout")), nil}}
	clients, err := ListClientsWithRetry(ctx, l, Scope{})
	require.NoError(t, err)
	assert.Len(t, clients, 1)
	assert.Equal(t, 2, l.calls)

	l = &flakyLister{errs: []error{rejected(TypeXUI, "list_clients", 404, "gone"), nil}}
	_, err = ListClientsWithRetry(ctx, l, Scope{})
	assert.True(t, IsKind(err, KindRemoteRejected))
	assert.Equal(t, 1, l.calls)
}

func TestErrorMessage(t *testing.T) {
	err := rejected(TypeMarzban, "create_client", 422, "bad expire")
	assert.True(t, strings.HasPrefix(err.Error(), "marzban create_client: remote_rejected: bad expire"))
}
