// Package provisioning decides where and how a paid order gets its remote
// VPN account, drives the panel adapter and builds the connection link.
// It performs no local writes; committing the result is the caller's job.
package provisioning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"vpnshop/internal/linkbuilder"
	"vpnshop/internal/metrics"
	"vpnshop/internal/models"
	"vpnshop/internal/panel"
	"vpnshop/internal/settings"
)

// State is a step of a provisioning run.
type State string

const (
	StateResolving      State = "resolving"
	StateAuthenticating State = "authenticating"
	StateLookingUp      State = "looking_up_existing_client"
	StateCreating       State = "creating"
	StateUpdating       State = "updating"
	StateBuildingLink   State = "building_link"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
)

// Renewal base policies.
const (
	PolicyExtendStored   = "extend_stored"
	PolicyResetIfExpired = "reset_if_expired"
)

// AdapterFactory builds a fresh adapter for one run.
type AdapterFactory func(cfg panel.Config) (panel.Adapter, error)

// InboundCache stores raw x-ui inbound objects per panel host.
// Load returns nil data on a miss.
type InboundCache interface {
	Load(ctx context.Context, host string, inboundID int) ([]byte, error)
	Store(ctx context.Context, host string, inboundID int, data []byte) error
}

type inboundJSONReader interface {
	InboundJSON(ctx context.Context, id int) ([]byte, error)
}

// Request is the input of one run.
type Request struct {
	Order    *models.Order
	Original *models.Order // order being renewed, nil for new purchases
	Plan     *models.Plan
	Settings settings.Snapshot
}

// Result is a successful run.
type Result struct {
	Username  string
	ClientID  string
	SubID     string
	Config    string
	ExpiresAt time.Time
	Renewal   bool
	Created   bool
	PanelType string
	Server    *models.Server // nil on the default panel
	Warnings  []string
}

// ServerID returns the id of the resolved server, or nil.
func (r *Result) ServerID() *uint {
	if r == nil || r.Server == nil {
		return nil
	}
	id := r.Server.ID
	return &id
}

// Orchestrator runs the provisioning state machine.
type Orchestrator struct {
	resolver     *Resolver
	factory      AdapterFactory
	cache        InboundCache
	metrics      *metrics.Provisioning
	panelTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// NewOrchestrator creates an orchestrator. cache and m may be nil.
func NewOrchestrator(resolver *Resolver, factory AdapterFactory, cache InboundCache, m *metrics.Provisioning, panelTimeout time.Duration, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		resolver:     resolver,
		factory:      factory,
		cache:        cache,
		metrics:      m,
		panelTimeout: panelTimeout,
		now:          time.Now,
		logger:       logger,
	}
}

// Run provisions req.Order. A failure is always a *Error and leaves no
// local state behind; remote state created before the failure is not undone.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	panelType := ""

	res, err := o.run(ctx, req, &panelType)

	o.metrics.ObserveRun(panelType, string(KindOf(err)), time.Since(started))
	if err != nil {
		perr := classify(err)
		fields := []zap.Field{zap.String("state", string(StateFailed)), zap.String("kind", string(perr.Kind)), zap.String("panel", panelType), zap.Error(perr)}
		if req.Order != nil {
			fields = append(fields, zap.Uint("order_id", req.Order.ID))
		}
		o.logger.Error("provisioning failed", fields...)
		return nil, perr
	}
	o.logger.Info("provisioning succeeded",
		zap.Uint("order_id", req.Order.ID),
		zap.String("panel", panelType),
		zap.String("username", res.Username),
		zap.Bool("renewal", res.Renewal),
		zap.Bool("created", res.Created),
	)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, panelType *string) (*Result, error) {
	order := req.Order
	if order == nil || order.IsWalletTopUp() || req.Plan == nil {
		return nil, newError(KindInvalidOrder, "order has no plan", nil)
	}
	log := o.logger.With(zap.Uint("order_id", order.ID))
	log.Debug("provisioning state", zap.String("state", string(StateResolving)))

	renewal := order.IsRenewal()
	original := req.Original
	if renewal {
		if original == nil || original.ID != *order.RenewsOrderID || original.UserID != order.UserID ||
			original.Status != models.OrderStatusPaid || original.IsRenewal() {
			return nil, newError(KindOriginalOrderNotFound, fmt.Sprintf("order %d to renew was not found", *order.RenewsOrderID), nil)
		}
	} else {
		original = nil
	}

	username := Username(order, original)
	expiresAt := NewExpiry(o.now(), original, req.Plan.DurationDays, req.Settings.GetOr(settings.KeyRenewalBasePolicy, PolicyExtendStored))
	target := o.resolver.Resolve(ctx, order, original, req.Plan, req.Settings)
	*panelType = target.PanelType

	log = log.With(zap.String("panel", target.PanelType), zap.String("username", username))
	log.Debug("provisioning state", zap.String("state", string(StateAuthenticating)))

	adapter, err := o.factory(panel.Config{
		Type:         target.PanelType,
		Host:         target.Host,
		Username:     target.Username,
		Password:     target.Password,
		NodeHostname: target.NodeHostname,
		Protocols:    target.Protocols,
		Timeout:      o.panelTimeout,
	})
	if err != nil {
		return nil, newError(KindAuth, "panel is not configured", err)
	}
	if err := adapter.Authenticate(ctx); err != nil {
		return nil, err
	}

	scope := panel.Scope{InboundID: target.InboundID, Search: username}
	var inbound *panel.Inbound
	if target.PanelType == panel.TypeXUI {
		if inbound, err = o.loadInbound(ctx, adapter, target, log); err != nil {
			return nil, err
		}
	}

	log.Debug("provisioning state", zap.String("state", string(StateLookingUp)))
	clients, err := panel.ListClientsWithRetry(ctx, adapter, scope)
	if err != nil {
		return nil, err
	}

	identity := panel.Identity{
		Username:   username,
		QuotaBytes: req.Plan.QuotaBytes(),
		ExpiresAt:  expiresAt,
		GroupIDs:   target.GroupIDs,
		Protocols:  target.Protocols,
	}

	result := &Result{Username: username, ExpiresAt: expiresAt, Renewal: renewal, PanelType: target.PanelType, Server: target.Server}
	var ref *panel.ClientRef

	existing, found := panel.FindClient(clients, username)
	switch {
	case found:
		log.Debug("provisioning state", zap.String("state", string(StateUpdating)))
		identity.SubID = existing.SubID
		if identity.SubID == "" {
			identity.SubID = Mutated(order, original).PanelSubID
		}
		if ref, err = adapter.UpdateClient(ctx, scope, existing.ClientID, identity); err != nil {
			return nil, err
		}
		if err := adapter.ResetTraffic(ctx, scope, username); err != nil {
			log.Warn("traffic reset failed", zap.Error(err))
			result.Warnings = append(result.Warnings, "traffic reset failed: "+err.Error())
		}
	case renewal:
		return nil, newError(KindClientNotFoundForRenewal, fmt.Sprintf("client %s not found on panel", username), nil)
	default:
		log.Debug("provisioning state", zap.String("state", string(StateCreating)))
		if ref, err = adapter.CreateClient(ctx, scope, identity); err != nil {
			return nil, err
		}
		result.Created = true
	}

	log.Debug("provisioning state", zap.String("state", string(StateBuildingLink)))
	config, err := o.buildLink(ctx, adapter, target, inbound, ref, req.Plan, username)
	if err != nil {
		return nil, err
	}

	result.ClientID = ref.ClientID
	result.SubID = ref.SubID
	result.Config = config
	log.Debug("provisioning state", zap.String("state", string(StateSucceeded)))
	return result, nil
}

func (o *Orchestrator) buildLink(ctx context.Context, adapter panel.Adapter, target Target, inbound *panel.Inbound, ref *panel.ClientRef, plan *models.Plan, username string) (string, error) {
	params := linkbuilder.Params{
		Mode:         target.LinkMode,
		PanelHost:    target.HostName(),
		ScopeID:      target.InboundID,
		ClientID:     ref.ClientID,
		SubID:        ref.SubID,
		Remark:       plan.Name,
		Username:     username,
		Subscription: target.Subscription,
		Tunnel:       target.Tunnel,
	}
	if inbound != nil {
		params.Stream = inbound.Stream
		params.Port = inbound.Port
	}

	if target.PanelType != panel.TypeXUI {
		params.Mode = linkbuilder.ModeNative
	}
	if params.Mode == linkbuilder.ModeNative {
		linker, ok := adapter.(panel.NativeLinker)
		if !ok {
			return "", newError(KindLinkConstruction, target.PanelType+" panel has no native subscription link", nil)
		}
		link, err := linker.SubscriptionLink(ctx, ref)
		if err != nil {
			return "", err
		}
		params.NativeLink = link
	}

	return linkbuilder.Build(params)
}

// loadInbound reads inbound metadata. The default panel goes through the
// cache; server targets always read the panel.
func (o *Orchestrator) loadInbound(ctx context.Context, adapter panel.Adapter, target Target, log *zap.Logger) (*panel.Inbound, error) {
	raw, canRaw := adapter.(inboundJSONReader)
	if target.Server == nil && o.cache != nil && canRaw {
		data, err := o.cache.Load(ctx, target.Host, target.InboundID)
		if err != nil {
			log.Warn("inbound cache read failed", zap.Error(err))
		} else if data != nil {
			if inbound, err := panel.ParseInboundJSON(data); err == nil {
				return inbound, nil
			}
			log.Warn("cached inbound is unreadable, refetching", zap.Int("inbound_id", target.InboundID))
		}

		data, err = raw.InboundJSON(ctx, target.InboundID)
		if err != nil {
			return nil, err
		}
		if err := o.cache.Store(ctx, target.Host, target.InboundID, data); err != nil {
			log.Warn("inbound cache write failed", zap.Error(err))
		}
		return panel.ParseInboundJSON(data)
	}

	if reader, ok := adapter.(panel.InboundReader); ok {
		return reader.Inbound(ctx, target.InboundID)
	}
	return nil, nil
}

// SyncInbound refreshes the cached inbound of the default x-ui panel.
// It returns false when the default panel is not x-ui.
func (o *Orchestrator) SyncInbound(ctx context.Context, snap settings.Snapshot) (bool, error) {
	if o.cache == nil {
		return false, nil
	}
	target := globalTarget(nil, snap)
	if target.PanelType != panel.TypeXUI || target.Host == "" {
		return false, nil
	}
	adapter, err := o.factory(panel.Config{
		Type:     target.PanelType,
		Host:     target.Host,
		Username: target.Username,
		Password: target.Password,
		Timeout:  o.panelTimeout,
	})
	if err != nil {
		return false, err
	}
	raw, ok := adapter.(inboundJSONReader)
	if !ok {
		return false, nil
	}
	if err := adapter.Authenticate(ctx); err != nil {
		return false, err
	}
	data, err := raw.InboundJSON(ctx, target.InboundID)
	if err != nil {
		return false, err
	}
	return true, o.cache.Store(ctx, target.Host, target.InboundID, data)
}

// Username returns the panel username for order: the stored one when
// re-running, else user-{user}-order-{original or own id}.
func Username(order, original *models.Order) string {
	if s := strings.TrimSpace(order.PanelUsername); s != "" {
		return s
	}
	base := order.ID
	if original != nil {
		if s := strings.TrimSpace(original.PanelUsername); s != "" {
			return s
		}
		base = original.ID
	}
	return fmt.Sprintf("user-%d-order-%d", order.UserID, base)
}

// NewExpiry computes the expiry after this purchase. Renewals extend the
// stored expiry; reset_if_expired restarts from now once it has elapsed.
func NewExpiry(now time.Time, original *models.Order, days int, policy string) time.Time {
	base := now
	if original != nil && original.ExpiresAt != nil {
		base = *original.ExpiresAt
		if policy == PolicyResetIfExpired && base.Before(now) {
			base = now
		}
	}
	return base.AddDate(0, 0, days)
}

// Mutated is the order whose fulfillment fields a run rewrites: the
// original for renewals, else the order itself.
func Mutated(order, original *models.Order) *models.Order {
	if original != nil {
		return original
	}
	return order
}
