package fulfillment

import (
	"context"
	"time"
)

// EventType names an outcome event.
type EventType string

const (
	EventOrderPaid     EventType = "order_paid"
	EventOrderFailed   EventType = "order_failed"
	EventWalletCharged EventType = "wallet_charged"
)

// Event is published after a fulfillment attempt settles.
type Event struct {
	Type    EventType
	OrderID uint
	UserID  uint
	Source  string
	Success bool

	Config    string
	ExpiresAt *time.Time
	ClientID  string
	SubID     string
	Username  string
	Renewal   bool

	PlanName     string
	VolumeGB     int
	DurationDays int
	ServerName   string
	LocationName string

	Amount  int64
	Balance int64

	ErrorKind    string
	ErrorMessage string
	Warnings     []string
}

// EventSink receives outcome events. Publish must not block the caller for long.
type EventSink interface {
	Publish(ctx context.Context, e Event)
}

// Outcome is what a trigger gets back from Fulfill.
type Outcome struct {
	Success        bool       `json:"success"`
	OrderID        uint       `json:"order_id"`
	MutatedOrderID uint       `json:"mutated_order_id,omitempty"`
	Config         string     `json:"config,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	ClientID       string     `json:"client_id,omitempty"`
	SubID          string     `json:"sub_id,omitempty"`
	Username       string     `json:"username,omitempty"`
	Renewal        bool       `json:"renewal,omitempty"`
	Balance        *int64     `json:"balance,omitempty"`
	ErrorKind      string     `json:"error_kind,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	Warnings       []string   `json:"warnings,omitempty"`
}
