package panel

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MarzbanClient implements Adapter for Marzban panels. Scope is ignored;
// users are global to the panel.
type MarzbanClient struct {
	*userAPI
	protocols []string
}

// NewMarzbanClient creates a Marzban client. protocols selects the proxies
// enabled for new users and defaults to vless.
func NewMarzbanClient(baseURL, username, password, nodeHost string, protocols []string, timeout time.Duration) *MarzbanClient {
	clean := make([]string, 0, len(protocols))
	for _, p := range protocols {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			clean = append(clean, p)
		}
	}
	if len(clean) == 0 {
		clean = []string{"vless"}
	}
	return &MarzbanClient{
		userAPI:   newUserAPI(TypeMarzban, baseURL, username, password, nodeHost, timeout),
		protocols: clean,
	}
}

func (m *MarzbanClient) PanelType() string {
	return TypeMarzban
}

// CreateClient creates a Marzban user with the configured proxies.
func (m *MarzbanClient) CreateClient(ctx context.Context, _ Scope, id Identity) (*ClientRef, error) {
	protocols := id.Protocols
	if len(protocols) == 0 {
		protocols = m.protocols
	}
	proxies := make(map[string]interface{}, len(protocols))
	for _, p := range protocols {
		proxies[p] = map[string]interface{}{}
	}

	body := map[string]interface{}{
		"username":                  id.Username,
		"proxies":                   proxies,
		"data_limit":                id.QuotaBytes,
		"expire":                    expireUnix(id.ExpiresAt),
		"data_limit_reset_strategy": "no_reset",
		"status":                    "active",
	}
	res, err := m.do(ctx, "create_client", http.MethodPost, "/api/user", body)
	if err != nil {
		return nil, err
	}
	return m.userResult("create_client", id.Username, res)
}

// UpdateClient overwrites data_limit and expire and re-activates the user.
func (m *MarzbanClient) UpdateClient(ctx context.Context, _ Scope, clientID string, id Identity) (*ClientRef, error) {
	body := map[string]interface{}{
		"data_limit": id.QuotaBytes,
		"expire":     expireUnix(id.ExpiresAt),
		"status":     "active",
	}
	res, err := m.do(ctx, "update_client", http.MethodPut, "/api/user/"+url.PathEscape(clientID), body)
	if err != nil {
		return nil, err
	}
	return m.userResult("update_client", clientID, res)
}
