package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vpnshop/internal/pkg/httpclient"
)

// userAPI is the shared core of panels that expose a token-authenticated
// /api/user surface (Marzban and Pasargad).
type userAPI struct {
	panel    string
	baseURL  string
	nodeHost string
	username string
	password string
	client   *httpclient.Client
	token    string
}

func newUserAPI(panel, baseURL, username, password, nodeHost string, timeout time.Duration) *userAPI {
	return &userAPI{
		panel:    panel,
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		nodeHost: strings.TrimRight(strings.TrimSpace(nodeHost), "/"),
		username: strings.TrimSpace(username),
		password: password,
		client:   httpclient.New().WithoutRetry().WithTimeout(timeout).WithInsecureSkipVerify().WithHeader("Accept", "application/json"),
	}
}

type apiUser struct {
	Username        string `json:"username"`
	SubscriptionURL string `json:"subscription_url"`
	Detail          string `json:"detail"`
}

// Authenticate obtains a bearer token from /api/admin/token.
func (u *userAPI) Authenticate(ctx context.Context) error {
	if u.username == "" || u.password == "" {
		return authError(u.panel, "missing credentials", 0, nil)
	}
	res, err := u.client.PostForm(ctx, u.baseURL+"/api/admin/token", map[string]string{
		"username": u.username,
		"password": u.password,
	})
	if err != nil {
		return authError(u.panel, "panel unreachable", 0, err)
	}
	if !res.OK() {
		return authError(u.panel, extractAPIError(res.Body, res.Status), res.Status, nil)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(res.Body, &tokenResp); err != nil {
		return authError(u.panel, "malformed token response", res.Status, err)
	}
	if strings.TrimSpace(tokenResp.AccessToken) == "" {
		return authError(u.panel, "no access_token in response", res.Status, nil)
	}

	u.token = tokenResp.AccessToken
	u.client.WithBearerToken(u.token)
	return nil
}

// do sends an authenticated request and re-authenticates once on 401.
func (u *userAPI) do(ctx context.Context, op, method, path string, body interface{}) (*httpclient.Response, error) {
	if u.token == "" {
		if err := u.Authenticate(ctx); err != nil {
			return nil, err
		}
	}

	res, err := u.client.Do(ctx, method, u.baseURL+path, body)
	if err != nil {
		return nil, remoteError(u.panel, op, err)
	}
	if res.Status == http.StatusUnauthorized {
		if err := u.Authenticate(ctx); err != nil {
			return nil, err
		}
		res, err = u.client.Do(ctx, method, u.baseURL+path, body)
		if err != nil {
			return nil, remoteError(u.panel, op, err)
		}
	}
	return res, nil
}

// userResult validates a create/update response. A body without
// subscription_url and without username is not a success.
func (u *userAPI) userResult(op, username string, res *httpclient.Response) (*ClientRef, error) {
	if res.Status == http.StatusConflict {
		return nil, duplicate(u.panel, op, username)
	}
	if !res.OK() {
		return nil, rejected(u.panel, op, res.Status, extractAPIError(res.Body, res.Status))
	}
	var user apiUser
	if err := json.Unmarshal(res.Body, &user); err != nil {
		return nil, remoteError(u.panel, op, fmt.Errorf("malformed response: %w", err))
	}
	if user.SubscriptionURL == "" && user.Username == "" {
		msg := user.Detail
		if msg == "" {
			msg = "invalid response"
		}
		return nil, rejected(u.panel, op, res.Status, msg)
	}
	name := user.Username
	if name == "" {
		name = username
	}
	return &ClientRef{
		ClientID:        name,
		Username:        name,
		SubscriptionURL: u.absoluteSubURL(user.SubscriptionURL),
	}, nil
}

// ListClients looks up scope.Search directly when set (404 means no
// match), otherwise lists every user.
func (u *userAPI) ListClients(ctx context.Context, scope Scope) ([]RemoteClient, error) {
	if name := strings.TrimSpace(scope.Search); name != "" {
		res, err := u.do(ctx, "list_clients", http.MethodGet, "/api/user/"+url.PathEscape(name), nil)
		if err != nil {
			return nil, err
		}
		if res.Status == http.StatusNotFound {
			return nil, nil
		}
		if !res.OK() {
			return nil, rejected(u.panel, "list_clients", res.Status, extractAPIError(res.Body, res.Status))
		}
		var user apiUser
		if err := json.Unmarshal(res.Body, &user); err != nil {
			return nil, remoteError(u.panel, "list_clients", fmt.Errorf("malformed response: %w", err))
		}
		if user.Username == "" {
			return nil, nil
		}
		return []RemoteClient{{ClientID: user.Username, Email: user.Username}}, nil
	}

	res, err := u.do(ctx, "list_clients", http.MethodGet, "/api/users", nil)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, rejected(u.panel, "list_clients", res.Status, extractAPIError(res.Body, res.Status))
	}
	var page struct {
		Users []apiUser `json:"users"`
	}
	if err := json.Unmarshal(res.Body, &page); err != nil {
		return nil, remoteError(u.panel, "list_clients", fmt.Errorf("malformed response: %w", err))
	}
	out := make([]RemoteClient, 0, len(page.Users))
	for _, user := range page.Users {
		out = append(out, RemoteClient{ClientID: user.Username, Email: user.Username})
	}
	return out, nil
}

// ResetTraffic zeroes used traffic of username.
func (u *userAPI) ResetTraffic(ctx context.Context, _ Scope, username string) error {
	res, err := u.do(ctx, "reset_traffic", http.MethodPost, "/api/user/"+url.PathEscape(username)+"/reset", nil)
	if err != nil {
		return err
	}
	if !res.OK() {
		return rejected(u.panel, "reset_traffic", res.Status, extractAPIError(res.Body, res.Status))
	}
	return nil
}

// SubscriptionLink returns the panel's subscription URL for ref, fetching the
// user when the create/update response did not carry one.
func (u *userAPI) SubscriptionLink(ctx context.Context, ref *ClientRef) (string, error) {
	if ref == nil {
		return "", rejected(u.panel, "subscription_link", 0, "no client reference")
	}
	if ref.SubscriptionURL != "" {
		return u.absoluteSubURL(ref.SubscriptionURL), nil
	}
	res, err := u.do(ctx, "subscription_link", http.MethodGet, "/api/user/"+url.PathEscape(ref.Username), nil)
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return "", rejected(u.panel, "subscription_link", res.Status, extractAPIError(res.Body, res.Status))
	}
	var user apiUser
	if err := json.Unmarshal(res.Body, &user); err != nil {
		return "", remoteError(u.panel, "subscription_link", fmt.Errorf("malformed response: %w", err))
	}
	if user.SubscriptionURL == "" {
		return "", rejected(u.panel, "subscription_link", res.Status, "user has no subscription_url")
	}
	return u.absoluteSubURL(user.SubscriptionURL), nil
}

// absoluteSubURL prefixes relative subscription paths with the node hostname,
// falling back to the panel host.
func (u *userAPI) absoluteSubURL(subURL string) string {
	subURL = strings.TrimSpace(subURL)
	if subURL == "" {
		return ""
	}
	if strings.HasPrefix(subURL, "http://") || strings.HasPrefix(subURL, "https://") {
		return subURL
	}
	host := u.nodeHost
	if host == "" {
		host = u.baseURL
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	return host + "/" + strings.TrimLeft(subURL, "/")
}

func expireUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func extractAPIError(body []byte, status int) string {
	if len(body) == 0 {
		return fmt.Sprintf("HTTP %d", status)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Sprintf("HTTP %d", status)
	}

	for _, key := range []string{"detail", "error", "msg"} {
		if s, ok := parsed[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return fmt.Sprintf("HTTP %d", status)
}
