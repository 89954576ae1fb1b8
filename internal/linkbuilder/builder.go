// Package linkbuilder turns provisioned client identifiers and inbound
// metadata into connection URIs. Build is pure: equal Params always produce
// the same string.
package linkbuilder

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"vpnshop/internal/panel"
)

// Single and tunnel links are always vless share links.
const scheme = "vless"

// Mode is a link delivery mode.
type Mode string

const (
	ModeSingle       Mode = "single"
	ModeSubscription Mode = "subscription"
	ModeTunnel       Mode = "tunnel"
	ModeNative       Mode = "native"
)

// ParseMode maps a stored link_type value to a Mode. Unknown values fall back to single.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSubscription:
		return ModeSubscription
	case ModeTunnel:
		return ModeTunnel
	case ModeNative:
		return ModeNative
	default:
		return ModeSingle
	}
}

var (
	ErrMissingIdentifier = errors.New("missing client identifier")
	ErrLinkConstruction  = errors.New("link construction failed")
)

const defaultFlag = "🏳️"

// Subscription describes where a subscription endpoint lives.
type Subscription struct {
	Base     string // domain or URL; a scheme is added when missing
	Port     int    // appended unless Base already carries it; 0 skips
	Path     string // default /sub/
	Insecure bool   // http instead of https
}

// Tunnel describes a reverse-proxy front for the inbound.
type Tunnel struct {
	Address string
	Port    int
	TLS     bool
	Flag    string
}

// Params is everything a link depends on.
type Params struct {
	Mode         Mode
	Stream       panel.StreamSettings
	PanelHost    string // host portion of the panel URL
	ScopeID      int
	Port         int // inbound port, 0 when unknown
	ClientID     string
	SubID        string
	Remark       string
	Username     string
	Subscription Subscription
	Tunnel       Tunnel
	NativeLink   string // produced by the panel for ModeNative
}

// Build constructs the connection URI for p.Mode.
func Build(p Params) (string, error) {
	switch p.Mode {
	case ModeSubscription:
		return buildSubscription(p)
	case ModeTunnel:
		return buildTunnel(p)
	case ModeNative:
		link := strings.TrimSpace(p.NativeLink)
		if link == "" {
			return "", fmt.Errorf("%w: panel returned no subscription link", ErrLinkConstruction)
		}
		return link, nil
	default:
		return buildSingle(p)
	}
}

func buildSingle(p Params) (string, error) {
	if strings.TrimSpace(p.ClientID) == "" {
		return "", ErrMissingIdentifier
	}
	if p.PanelHost == "" {
		return "", fmt.Errorf("%w: panel host is empty", ErrLinkConstruction)
	}
	port := p.Port
	if port == 0 {
		port = p.ScopeID
	}

	q := query{}
	q.add("type", orDefault(p.Stream.Network, "tcp"))
	security := orDefault(p.Stream.Security, "none")
	q.add("security", security)
	if security == "tls" {
		q.add("sni", p.PanelHost)
	}

	return fmt.Sprintf("%s://%s@%s:%d?%s#%s", scheme, p.ClientID, p.PanelHost, port, q.encode(), rawURLEncode(p.Remark)), nil
}

func buildSubscription(p Params) (string, error) {
	if strings.TrimSpace(p.SubID) == "" {
		return "", fmt.Errorf("%w: subscription id is empty", ErrLinkConstruction)
	}
	base := strings.TrimRight(strings.TrimSpace(p.Subscription.Base), "/")
	if base == "" {
		base = p.PanelHost
	}
	if base == "" {
		return "", fmt.Errorf("%w: subscription base is empty", ErrLinkConstruction)
	}
	if p.Subscription.Port > 0 && !hasPort(base) {
		base += ":" + strconv.Itoa(p.Subscription.Port)
	}
	if !hasScheme(base) {
		scheme := "https"
		if p.Subscription.Insecure {
			scheme = "http"
		}
		base = scheme + "://" + base
	}
	path := p.Subscription.Path
	if path == "" {
		path = "/sub/"
	}
	return base + path + p.SubID, nil
}

func buildTunnel(p Params) (string, error) {
	if strings.TrimSpace(p.ClientID) == "" {
		return "", ErrMissingIdentifier
	}
	addr := strings.TrimSpace(p.Tunnel.Address)
	if addr == "" {
		return "", fmt.Errorf("%w: tunnel address is empty", ErrLinkConstruction)
	}
	port := p.Tunnel.Port
	if port == 0 {
		port = 443
	}

	q := query{}
	network := orDefault(p.Stream.Network, "tcp")
	q.add("type", network)
	if p.Tunnel.TLS {
		q.add("security", "tls")
		q.add("sni", addr)
	} else {
		q.add("security", "none")
		q.add("encryption", "none")
	}
	if network == "ws" {
		q.add("path", orDefault(p.Stream.WSPath, "/"))
		q.add("host", orDefault(p.Stream.WSHost, addr))
	}

	remark := orDefault(p.Tunnel.Flag, defaultFlag) + "-" + p.Username
	return fmt.Sprintf("%s://%s@%s:%d?%s#%s", scheme, p.ClientID, addr, port, q.encode(), rawURLEncode(remark)), nil
}

// query keeps insertion order so output is byte-stable.
type query []string

func (q *query) add(key, value string) {
	if value == "" {
		return
	}
	*q = append(*q, url.QueryEscape(key)+"="+url.QueryEscape(value))
}

func (q query) encode() string {
	return strings.Join(q, "&")
}

func rawURLEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// hasScheme reports whether base starts with an http(s) scheme.
func hasScheme(base string) bool {
	return strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://")
}

// hasPort reports whether the authority of base carries an explicit port.
func hasPort(base string) bool {
	authority := base
	if i := strings.Index(authority, "://"); i >= 0 {
		authority = authority[i+3:]
	}
	if i := strings.IndexByte(authority, '/'); i >= 0 {
		authority = authority[:i]
	}
	_, _, err := net.SplitHostPort(authority)
	return err == nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
