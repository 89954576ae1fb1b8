package panel

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// PasargadClient implements Adapter for Pasargad (PasarGuard) panels.
// Users are attached to groups instead of per-user proxies.
type PasargadClient struct {
	*userAPI
}

// NewPasargadClient creates a Pasargad client.
func NewPasargadClient(baseURL, username, password, nodeHost string, timeout time.Duration) *PasargadClient {
	return &PasargadClient{userAPI: newUserAPI(TypePasargad, baseURL, username, password, nodeHost, timeout)}
}

func (p *PasargadClient) PanelType() string {
	return TypePasargad
}

// CreateClient creates a user in id.GroupIDs, defaulting to group 1.
func (p *PasargadClient) CreateClient(ctx context.Context, _ Scope, id Identity) (*ClientRef, error) {
	groups := id.GroupIDs
	if len(groups) == 0 {
		groups = []int{1}
	}
	body := map[string]interface{}{
		"username":                  id.Username,
		"group_ids":                 groups,
		"data_limit":                id.QuotaBytes,
		"expire":                    expireUnix(id.ExpiresAt),
		"data_limit_reset_strategy": "no_reset",
		"status":                    "active",
	}
	res, err := p.do(ctx, "create_client", http.MethodPost, "/api/user", body)
	if err != nil {
		return nil, err
	}
	return p.userResult("create_client", id.Username, res)
}

// UpdateClient overwrites data_limit and expire of clientID.
func (p *PasargadClient) UpdateClient(ctx context.Context, _ Scope, clientID string, id Identity) (*ClientRef, error) {
	body := map[string]interface{}{
		"data_limit": id.QuotaBytes,
		"expire":     expireUnix(id.ExpiresAt),
		"status":     "active",
	}
	res, err := p.do(ctx, "update_client", http.MethodPut, "/api/user/"+url.PathEscape(clientID), body)
	if err != nil {
		return nil, err
	}
	return p.userResult("update_client", clientID, res)
}
