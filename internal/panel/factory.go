package panel

import (
	"fmt"
	"strings"
	"time"
)

// Config carries what a factory needs to build one adapter.
type Config struct {
	Type         string
	Host         string
	Username     string
	Password     string
	NodeHostname string
	Protocols    []string
	Timeout      time.Duration
}

// NormalizeType maps panel type aliases to the canonical identifiers.
func NormalizeType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "xui", "x-ui", "x-ui_single", "3x-ui", "sanaei":
		return TypeXUI
	case "marzban":
		return TypeMarzban
	case "pasargad", "pasarguard":
		return TypePasargad
	default:
		return strings.ToLower(strings.TrimSpace(t))
	}
}

// New creates a fresh adapter. Adapters hold session state, so each
// provisioning run gets its own.
func New(cfg Config) (Adapter, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("panel host is not configured")
	}
	switch NormalizeType(cfg.Type) {
	case TypeXUI:
		return NewXUIClient(cfg.Host, cfg.Username, cfg.Password, cfg.Timeout), nil
	case TypeMarzban:
		return NewMarzbanClient(cfg.Host, cfg.Username, cfg.Password, cfg.NodeHostname, cfg.Protocols, cfg.Timeout), nil
	case TypePasargad:
		return NewPasargadClient(cfg.Host, cfg.Username, cfg.Password, cfg.NodeHostname, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported panel type: %s", cfg.Type)
	}
}
