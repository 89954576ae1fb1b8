package panel

import (
	"context"
	"strings"
	"time"
)

// Panel type identifiers as stored in settings and on servers.
const (
	TypeXUI      = "xui"
	TypeMarzban  = "marzban"
	TypePasargad = "pasargad"
)

// Identity is the quota and expiry intent for one remote client.
type Identity struct {
	Username   string
	QuotaBytes int64
	ExpiresAt  time.Time
	SubID      string   // xui subscription id, generated when empty
	GroupIDs   []int    // pasargad groups
	Protocols  []string // marzban proxies
}

// Scope selects where clients live on the panel. Marzban-style panels ignore InboundID.
type Scope struct {
	InboundID int
	Search    string
}

// ClientRef identifies a client after create or update.
type ClientRef struct {
	ClientID        string
	SubID           string
	Username        string
	SubscriptionURL string
}

// RemoteClient is one entry of a client listing.
type RemoteClient struct {
	ClientID string
	Email    string
	SubID    string
}

// StreamSettings is the subset of an inbound's transport config needed to build links.
type StreamSettings struct {
	Network    string
	Security   string
	WSPath     string
	WSHost     string
	ServerName string
}

// Inbound describes an x-ui inbound.
type Inbound struct {
	ID       int
	Protocol string
	Port     int
	Listen   string
	Remark   string
	Stream   StreamSettings
}

// Adapter is the capability set every panel family implements.
type Adapter interface {
	// Authenticate logs in and keeps the session for later calls.
	Authenticate(ctx context.Context) error

	// CreateClient creates a client; fails with KindDuplicateIdentity if the username exists.
	CreateClient(ctx context.Context, scope Scope, id Identity) (*ClientRef, error)

	// UpdateClient overwrites quota and expiry of an existing client.
	UpdateClient(ctx context.Context, scope Scope, clientID string, id Identity) (*ClientRef, error)

	// ListClients enumerates clients in scope.
	ListClients(ctx context.Context, scope Scope) ([]RemoteClient, error)

	// ResetTraffic zeroes the usage counters of a client.
	ResetTraffic(ctx context.Context, scope Scope, username string) error

	// PanelType returns the panel type identifier.
	PanelType() string
}

// InboundReader is implemented by panels that expose raw inbound metadata.
type InboundReader interface {
	Inbound(ctx context.Context, id int) (*Inbound, error)
}

// NativeLinker is implemented by panels that serve their own subscription endpoint.
type NativeLinker interface {
	SubscriptionLink(ctx context.Context, ref *ClientRef) (string, error)
}

// FindClient matches username against listed clients, ignoring case and surrounding spaces.
func FindClient(clients []RemoteClient, username string) (*RemoteClient, bool) {
	want := strings.ToLower(strings.TrimSpace(username))
	for i := range clients {
		if strings.ToLower(strings.TrimSpace(clients[i].Email)) == want {
			return &clients[i], true
		}
	}
	return nil, false
}

// ListClientsWithRetry lists clients, retrying once on transport failures.
// Listing is a read, so a replay cannot create remote state.
func ListClientsWithRetry(ctx context.Context, a Adapter, scope Scope) ([]RemoteClient, error) {
	clients, err := a.ListClients(ctx, scope)
	if err == nil || !IsKind(err, KindRemote) || ctx.Err() != nil {
		return clients, err
	}
	return a.ListClients(ctx, scope)
}
