package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"vpnshop/internal/pkg/httpclient"
	"vpnshop/internal/pkg/utils"
)

const xuiAPIBase = "/panel/api/inbounds"

// XUIClient implements Adapter for 3x-ui panels. Clients live inside an inbound.
type XUIClient struct {
	baseURL  string
	username string
	password string
	apiBase  string
	client   *httpclient.Client
}

// NewXUIClient creates an x-ui client. The login cookie stays in the client's own jar.
func NewXUIClient(baseURL, username, password string, timeout time.Duration) *XUIClient {
	return &XUIClient{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		username: strings.TrimSpace(username),
		password: password,
		apiBase:  xuiAPIBase,
		client:   httpclient.New().WithoutRetry().WithTimeout(timeout).WithInsecureSkipVerify().WithHeader("Accept", "application/json"),
	}
}

func (x *XUIClient) PanelType() string {
	return TypeXUI
}

type xuiEnvelope struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

type xuiInbound struct {
	ID             int    `json:"id"`
	Protocol       string `json:"protocol"`
	Port           int    `json:"port"`
	Listen         string `json:"listen"`
	Remark         string `json:"remark"`
	Settings       string `json:"settings"`
	StreamSettings string `json:"streamSettings"`
}

type xuiClientEntry struct {
	ID       string `json:"id"`
	Password string `json:"password"`
	Email    string `json:"email"`
	SubID    string `json:"subId"`
}

type xuiStream struct {
	Network    string `json:"network"`
	Security   string `json:"security"`
	WSSettings struct {
		Path    string            `json:"path"`
		Host    string            `json:"host"`
		Headers map[string]string `json:"headers"`
	} `json:"wsSettings"`
	TLSSettings struct {
		ServerName string `json:"serverName"`
	} `json:"tlsSettings"`
}

// Authenticate posts the login form.
func (x *XUIClient) Authenticate(ctx context.Context) error {
	res, err := x.client.PostForm(ctx, x.baseURL+"/login", map[string]string{
		"username": x.username,
		"password": x.password,
	})
	if err != nil {
		return authError(TypeXUI, "panel unreachable", 0, err)
	}
	if !res.OK() {
		return authError(TypeXUI, "login refused", res.Status, nil)
	}
	var env xuiEnvelope
	if err := json.Unmarshal(res.Body, &env); err != nil {
		return authError(TypeXUI, "malformed login response", res.Status, err)
	}
	if !env.Success {
		return authError(TypeXUI, strings.TrimSpace(env.Msg), res.Status, nil)
	}
	return nil
}

// Inbound fetches a single inbound with its parsed stream settings.
func (x *XUIClient) Inbound(ctx context.Context, id int) (*Inbound, error) {
	raw, err := x.fetchInbound(ctx, id)
	if err != nil {
		return nil, err
	}
	return parseXUIInbound(raw)
}

// ListClients returns every client of the scope's inbound.
func (x *XUIClient) ListClients(ctx context.Context, scope Scope) ([]RemoteClient, error) {
	raw, err := x.fetchInbound(ctx, scope.InboundID)
	if err != nil {
		return nil, err
	}
	entries, err := parseXUIClients(raw.Settings)
	if err != nil {
		return nil, remoteError(TypeXUI, "list_clients", err)
	}
	out := make([]RemoteClient, 0, len(entries))
	for _, e := range entries {
		id := e.ID
		if id == "" {
			id = e.Password
		}
		out = append(out, RemoteClient{ClientID: id, Email: e.Email, SubID: e.SubID})
	}
	return out, nil
}

// CreateClient adds a client to the scope's inbound. The uuid and subId are
// generated here, so they are known without reading them back.
func (x *XUIClient) CreateClient(ctx context.Context, scope Scope, id Identity) (*ClientRef, error) {
	clientID := uuid.NewString()
	subID := id.SubID
	if subID == "" {
		subID = utils.RandomString(16)
	}

	payload, err := xuiClientPayload(scope.InboundID, clientID, subID, id)
	if err != nil {
		return nil, remoteError(TypeXUI, "create_client", err)
	}
	env, err := x.post(ctx, "create_client", x.baseURL+x.apiBase+"/addClient", payload)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		if strings.Contains(strings.ToLower(env.Msg), "duplicate email") {
			return nil, duplicate(TypeXUI, "create_client", id.Username)
		}
		return nil, rejected(TypeXUI, "create_client", 0, env.Msg)
	}
	return &ClientRef{ClientID: clientID, SubID: subID, Username: id.Username}, nil
}

// UpdateClient overwrites quota and expiry of clientID.
func (x *XUIClient) UpdateClient(ctx context.Context, scope Scope, clientID string, id Identity) (*ClientRef, error) {
	subID := id.SubID
	if subID == "" {
		subID = utils.RandomString(16)
	}
	payload, err := xuiClientPayload(scope.InboundID, clientID, subID, id)
	if err != nil {
		return nil, remoteError(TypeXUI, "update_client", err)
	}
	env, err := x.post(ctx, "update_client", x.baseURL+x.apiBase+"/updateClient/"+url.PathEscape(clientID), payload)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, rejected(TypeXUI, "update_client", 0, env.Msg)
	}
	return &ClientRef{ClientID: clientID, SubID: subID, Username: id.Username}, nil
}

// ResetTraffic zeroes up/down counters of the client with email username.
func (x *XUIClient) ResetTraffic(ctx context.Context, scope Scope, username string) error {
	path := fmt.Sprintf("%s%s/%d/resetClientTraffic/%s", x.baseURL, x.apiBase, scope.InboundID, url.PathEscape(username))
	env, err := x.post(ctx, "reset_traffic", path, nil)
	if err != nil {
		return err
	}
	if !env.Success {
		return rejected(TypeXUI, "reset_traffic", 0, env.Msg)
	}
	return nil
}

func (x *XUIClient) post(ctx context.Context, op, endpoint string, body interface{}) (*xuiEnvelope, error) {
	res, err := x.client.Post(ctx, endpoint, body)
	if err != nil {
		return nil, remoteError(TypeXUI, op, err)
	}
	return decodeXUI(op, res)
}

func (x *XUIClient) fetchInbound(ctx context.Context, id int) (*xuiInbound, error) {
	res, err := x.client.Get(ctx, fmt.Sprintf("%s%s/get/%d", x.baseURL, x.apiBase, id))
	if err != nil {
		return nil, remoteError(TypeXUI, "get_inbound", err)
	}
	env, err := decodeXUI("get_inbound", res)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, rejected(TypeXUI, "get_inbound", 0, env.Msg)
	}
	var inbound xuiInbound
	if err := json.Unmarshal(env.Obj, &inbound); err != nil {
		return nil, remoteError(TypeXUI, "get_inbound", fmt.Errorf("decode inbound: %w", err))
	}
	if inbound.ID == 0 {
		return nil, rejected(TypeXUI, "get_inbound", 0, fmt.Sprintf("inbound %d not found", id))
	}
	return &inbound, nil
}

// decodeXUI never reports success for a body it cannot parse.
func decodeXUI(op string, res *httpclient.Response) (*xuiEnvelope, error) {
	if !res.OK() {
		return nil, rejected(TypeXUI, op, res.Status, strings.TrimSpace(string(res.Body)))
	}
	var env xuiEnvelope
	if err := json.Unmarshal(res.Body, &env); err != nil {
		return nil, remoteError(TypeXUI, op, fmt.Errorf("malformed response: %w", err))
	}
	return &env, nil
}

func xuiClientPayload(inboundID int, clientID, subID string, id Identity) (map[string]interface{}, error) {
	expiry := int64(0)
	if !id.ExpiresAt.IsZero() {
		expiry = id.ExpiresAt.UnixMilli()
	}
	settings := map[string]interface{}{
		"clients": []map[string]interface{}{
			{
				"id":         clientID,
				"flow":       "",
				"email":      id.Username,
				"limitIp":    0,
				"totalGB":    id.QuotaBytes,
				"expiryTime": expiry,
				"enable":     true,
				"tgId":       "",
				"subId":      subID,
				"reset":      0,
			},
		},
	}
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":       inboundID,
		"settings": string(settingsJSON),
	}, nil
}

func parseXUIClients(settings string) ([]xuiClientEntry, error) {
	if strings.TrimSpace(settings) == "" {
		return nil, nil
	}
	var parsed struct {
		Clients []xuiClientEntry `json:"clients"`
	}
	if err := json.Unmarshal([]byte(settings), &parsed); err != nil {
		return nil, fmt.Errorf("decode inbound settings: %w", err)
	}
	return parsed.Clients, nil
}

func parseXUIInbound(raw *xuiInbound) (*Inbound, error) {
	inbound := &Inbound{
		ID:       raw.ID,
		Protocol: raw.Protocol,
		Port:     raw.Port,
		Listen:   raw.Listen,
		Remark:   raw.Remark,
	}
	if strings.TrimSpace(raw.StreamSettings) == "" {
		return inbound, nil
	}
	var stream xuiStream
	if err := json.Unmarshal([]byte(raw.StreamSettings), &stream); err != nil {
		return nil, remoteError(TypeXUI, "get_inbound", fmt.Errorf("decode stream settings: %w", err))
	}
	host := stream.WSSettings.Headers["Host"]
	if host == "" {
		host = stream.WSSettings.Host
	}
	inbound.Stream = StreamSettings{
		Network:    stream.Network,
		Security:   stream.Security,
		WSPath:     stream.WSSettings.Path,
		WSHost:     host,
		ServerName: stream.TLSSettings.ServerName,
	}
	return inbound, nil
}

// ParseInboundJSON decodes a cached x-ui inbound object.
func ParseInboundJSON(data []byte) (*Inbound, error) {
	var raw xuiInbound
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode cached inbound: %w", err)
	}
	return parseXUIInbound(&raw)
}

// InboundJSON returns the raw inbound object for caching.
func (x *XUIClient) InboundJSON(ctx context.Context, id int) ([]byte, error) {
	raw, err := x.fetchInbound(ctx, id)
	if err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}
