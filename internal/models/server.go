package models

import "time"

// Location groups servers by region, mapped to `ms_locations`.
type Location struct {
	ID       uint   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name     string `gorm:"column:name;size:255" json:"name"`
	Flag     string `gorm:"column:flag;size:32" json:"flag"`
	IsActive bool   `gorm:"column:is_active;not null" json:"is_active"`
}

func (Location) TableName() string {
	return "ms_locations"
}

// Server is a physical x-ui host with its own panel credentials, mapped to `ms_servers`.
type Server struct {
	ID                 uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	LocationID         *uint     `gorm:"column:location_id;index" json:"location_id"`
	Location           *Location `gorm:"foreignKey:LocationID" json:"location,omitempty"`
	Name               string    `gorm:"column:name;size:255" json:"name"`
	FullHost           string    `gorm:"column:full_host;size:500" json:"full_host"`
	Username           string    `gorm:"column:username;size:255" json:"username"`
	Password           string    `gorm:"column:password;size:255" json:"-"`
	InboundID          int       `gorm:"column:inbound_id;not null;default:1" json:"inbound_id"`
	LinkType           string    `gorm:"column:link_type;size:32;default:single" json:"link_type"`
	SubscriptionDomain string    `gorm:"column:subscription_domain;size:255" json:"subscription_domain"`
	SubscriptionPort   int       `gorm:"column:subscription_port;not null;default:2053" json:"subscription_port"`
	SubscriptionPath   string    `gorm:"column:subscription_path;size:255" json:"subscription_path"`
	IsHTTPS            bool      `gorm:"column:is_https;not null" json:"is_https"`
	TunnelAddress      string    `gorm:"column:tunnel_address;size:255" json:"tunnel_address"`
	TunnelPort         int       `gorm:"column:tunnel_port;not null;default:443" json:"tunnel_port"`
	TunnelIsHTTPS      bool      `gorm:"column:tunnel_is_https;not null;default:false" json:"tunnel_is_https"`
	IsActive           bool      `gorm:"column:is_active;not null" json:"is_active"`
	Capacity           int       `gorm:"column:capacity;not null;default:0" json:"capacity"`
	CurrentUsers       int       `gorm:"column:current_users;not null;default:0" json:"current_users"`
	CreatedAt          time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Server) TableName() string {
	return "ms_servers"
}

// HasCapacity reports whether another account can be placed on the server.
func (s *Server) HasCapacity() bool {
	return s.Capacity <= 0 || s.CurrentUsers < s.Capacity
}
