package provisioning

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"vpnshop/internal/linkbuilder"
	"vpnshop/internal/models"
	"vpnshop/internal/panel"
	"vpnshop/internal/settings"
)

// ServerFinder loads a server record with its location.
type ServerFinder interface {
	FindByID(ctx context.Context, id uint) (*models.Server, error)
}

// Target is where and how a run provisions.
type Target struct {
	PanelType    string
	Host         string
	Username     string
	Password     string
	NodeHostname string
	InboundID    int
	LinkMode     linkbuilder.Mode
	Protocols    []string
	GroupIDs     []int
	Subscription linkbuilder.Subscription
	Tunnel       linkbuilder.Tunnel

	// Server is set when the run is pinned to a multi-location server.
	Server *models.Server
}

// HostName returns the host portion of the panel URL.
func (t Target) HostName() string {
	return hostName(t.Host)
}

// Resolver picks the panel and server for an order.
type Resolver struct {
	servers ServerFinder
	logger  *zap.Logger
}

// NewResolver creates a resolver. A nil servers disables multi-location
// resolution regardless of settings.
func NewResolver(servers ServerFinder, logger *zap.Logger) *Resolver {
	return &Resolver{servers: servers, logger: logger}
}

// TargetServerID returns order.ServerID, else the original order's.
func TargetServerID(order, original *models.Order) *uint {
	if order != nil && order.ServerID != nil && *order.ServerID > 0 {
		return order.ServerID
	}
	if original != nil && original.ServerID != nil && *original.ServerID > 0 {
		return original.ServerID
	}
	return nil
}

// Resolve never fails. Lookup problems fall back to the global defaults.
func (r *Resolver) Resolve(ctx context.Context, order, original *models.Order, plan *models.Plan, snap settings.Snapshot) Target {
	if server := r.lookupServer(ctx, order, original, snap); server != nil {
		return serverTarget(server)
	}
	return globalTarget(plan, snap)
}

func (r *Resolver) lookupServer(ctx context.Context, order, original *models.Order, snap settings.Snapshot) *models.Server {
	if r.servers == nil || !snap.Bool(settings.KeyEnableMultiLocation) {
		return nil
	}
	id := TargetServerID(order, original)
	if id == nil {
		return nil
	}
	server, err := r.servers.FindByID(ctx, *id)
	if err != nil {
		r.logger.Warn("server lookup failed, using default panel", zap.Uint("server_id", *id), zap.Error(err))
		return nil
	}
	if server == nil || !server.IsActive {
		r.logger.Info("server inactive, using default panel", zap.Uint("server_id", *id))
		return nil
	}
	return server
}

func serverTarget(s *models.Server) Target {
	t := Target{
		PanelType: panel.TypeXUI,
		Host:      s.FullHost,
		Username:  s.Username,
		Password:  s.Password,
		InboundID: s.InboundID,
		LinkMode:  linkbuilder.ParseMode(s.LinkType),
		Subscription: linkbuilder.Subscription{
			Base:     s.SubscriptionDomain,
			Port:     s.SubscriptionPort,
			Path:     s.SubscriptionPath,
			Insecure: !s.IsHTTPS,
		},
		Tunnel: linkbuilder.Tunnel{
			Address: s.TunnelAddress,
			Port:    s.TunnelPort,
			TLS:     s.TunnelIsHTTPS,
		},
		Server: s,
	}
	if t.Subscription.Port == 0 {
		t.Subscription.Port = 2053
	}
	if s.Location != nil {
		t.Tunnel.Flag = s.Location.Flag
	}
	return t
}

func globalTarget(plan *models.Plan, snap settings.Snapshot) Target {
	panelType := panel.NormalizeType(snap.GetOr(settings.KeyPanelType, panel.TypeMarzban))
	t := Target{
		PanelType:    panelType,
		Host:         snap.Panel(panelType, "host"),
		Username:     snap.Panel(panelType, "sudo_username", "user", "username"),
		Password:     snap.Panel(panelType, "sudo_password", "pass", "password"),
		NodeHostname: snap.Panel(panelType, "node_hostname"),
	}

	switch panelType {
	case panel.TypeXUI:
		t.InboundID = snap.Int(settings.KeyXUIDefaultInboundID, 1)
		t.LinkMode = linkbuilder.ParseMode(snap.GetOr(settings.KeyXUILinkType, string(linkbuilder.ModeSingle)))
		t.Subscription = linkbuilder.Subscription{Base: snap.Get(settings.KeyXUISubscriptionURLBase)}
	case panel.TypePasargad:
		t.LinkMode = linkbuilder.ModeNative
		t.GroupIDs = []int{pasargadGroup(plan, snap)}
	default:
		t.LinkMode = linkbuilder.ModeNative
		t.Protocols = splitList(snap.GetOr(settings.KeyMarzbanProtocols, "vless"))
	}
	return t
}

// pasargadGroup is plan.PasargadGroupID, else the paid group setting, else 1.
func pasargadGroup(plan *models.Plan, snap settings.Snapshot) int {
	if plan != nil && plan.PasargadGroupID != nil && *plan.PasargadGroupID > 0 {
		return *plan.PasargadGroupID
	}
	if g := snap.Int(settings.KeyPasargadPaidGroupID, 0); g > 0 {
		return g
	}
	return 1
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func hostName(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
