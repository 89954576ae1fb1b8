// Package settings holds the point-in-time view of the key/value settings table.
package settings

import (
	"strconv"
	"strings"
)

// Well-known keys.
const (
	KeyPanelType              = "panel_type"
	KeyEnableMultiLocation    = "enable_multilocation"
	KeyXUIHost                = "xui_host"
	KeyXUIUser                = "xui_user"
	KeyXUIPass                = "xui_pass"
	KeyXUIDefaultInboundID    = "xui_default_inbound_id"
	KeyXUILinkType            = "xui_link_type"
	KeyXUISubscriptionURLBase = "xui_subscription_url_base"
	KeyPasargadPaidGroupID    = "pasargad_paid_group_id"
	KeyMarzbanProtocols       = "marzban_protocols"
	KeyRenewalBasePolicy      = "renewal_base_policy"
)

// Snapshot is an immutable copy of the settings table taken once per run.
type Snapshot struct {
	values map[string]string
}

// New copies values into a Snapshot.
func New(values map[string]string) Snapshot {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Snapshot{values: cp}
}

// Get returns the trimmed value for key, or "".
func (s Snapshot) Get(key string) string {
	return strings.TrimSpace(s.values[key])
}

// GetOr returns the value for key, or def when unset or blank.
func (s Snapshot) GetOr(key, def string) string {
	if v := s.Get(key); v != "" {
		return v
	}
	return def
}

// Bool parses bool-like values ("1", "true", "on", "yes").
func (s Snapshot) Bool(key string) bool {
	switch strings.ToLower(s.Get(key)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// Int returns the integer value for key, or def when missing or malformed.
func (s Snapshot) Int(key string, def int) int {
	n, err := strconv.Atoi(s.Get(key))
	if err != nil {
		return def
	}
	return n
}

// Panel returns the {panel}_suffix value, trying each suffix in order.
// Marzban-style panels name credentials sudo_username while x-ui uses user.
func (s Snapshot) Panel(panel string, suffixes ...string) string {
	for _, suffix := range suffixes {
		if v := s.Get(panel + "_" + suffix); v != "" {
			return v
		}
	}
	return ""
}

// With returns a copy of s with key set to value.
func (s Snapshot) With(key, value string) Snapshot {
	next := New(s.values)
	next.values[key] = value
	return next
}

// Len returns the number of keys.
func (s Snapshot) Len() int {
	return len(s.values)
}
