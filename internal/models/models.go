package models

// All returns every model managed by AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Plan{},
		&Location{},
		&Server{},
		&Order{},
		&Transaction{},
		&Setting{},
		&Notification{},
		&Inbound{},
	}
}
