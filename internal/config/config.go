package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Bot          BotConfig
	API          APIConfig
	Provisioning ProvisioningConfig
	Jobs         JobsConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
}

type DatabaseConfig struct {
	Driver  string // "mysql", "postgres"
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

type BotConfig struct {
	Token      string
	WebhookURL string
	UpdateMode string // "webhook", "polling"
	AdminID    string
}

type APIConfig struct {
	Key      string
	HashFile string
}

type ProvisioningConfig struct {
	PanelTimeout       time.Duration
	MultiServerEnabled bool
	OrderLockTTL       time.Duration
}

type JobsConfig struct {
	ReminderDays    int
	PendingOrderTTL time.Duration
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("APP_PORT", 8080)
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("DB_CHARSET", "utf8mb4")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("BOT_UPDATE_MODE", "webhook")
	v.SetDefault("API_HASH_FILE", "hash.txt")
	v.SetDefault("PANEL_TIMEOUT", "20s")
	v.SetDefault("MULTI_SERVER_ENABLED", true)
	v.SetDefault("ORDER_LOCK_TTL", "2m")
	v.SetDefault("REMINDER_DAYS", 3)
	v.SetDefault("PENDING_ORDER_TTL", "72h")

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetInt("APP_PORT"),
			Env:  v.GetString("APP_ENV"),
		},
		Database: DatabaseConfig{
			Driver:  v.GetString("DB_DRIVER"),
			Host:    v.GetString("DB_HOST"),
			Port:    v.GetString("DB_PORT"),
			Name:    v.GetString("DB_NAME"),
			User:    v.GetString("DB_USER"),
			Pass:    v.GetString("DB_PASS"),
			Charset: v.GetString("DB_CHARSET"),
		},
		Redis: RedisConfig{
			Addr: v.GetString("REDIS_ADDR"),
			Pass: v.GetString("REDIS_PASS"),
			DB:   v.GetInt("REDIS_DB"),
		},
		Bot: BotConfig{
			Token:      v.GetString("BOT_TOKEN"),
			WebhookURL: v.GetString("BOT_WEBHOOK_URL"),
			UpdateMode: v.GetString("BOT_UPDATE_MODE"),
			AdminID:    v.GetString("BOT_ADMIN_ID"),
		},
		API: APIConfig{
			Key:      v.GetString("API_KEY"),
			HashFile: v.GetString("API_HASH_FILE"),
		},
		Provisioning: ProvisioningConfig{
			PanelTimeout:       duration(v, "PANEL_TIMEOUT", 20*time.Second),
			MultiServerEnabled: v.GetBool("MULTI_SERVER_ENABLED"),
			OrderLockTTL:       duration(v, "ORDER_LOCK_TTL", 2*time.Minute),
		},
		Jobs: JobsConfig{
			ReminderDays:    v.GetInt("REMINDER_DAYS"),
			PendingOrderTTL: duration(v, "PENDING_ORDER_TTL", 72*time.Hour),
		},
	}

	if cfg.Database.Name == "" {
		log.Println("WARNING: DB_NAME is not set")
	}
	if cfg.Bot.Token == "" {
		log.Println("WARNING: BOT_TOKEN is not set")
	}

	return cfg, nil
}

func duration(v *viper.Viper, key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// DSN returns the driver specific DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "postgres" {
		return "host=" + d.Host + " port=" + d.Port + " user=" + d.User + " password=" + d.Pass + " dbname=" + d.Name + " sslmode=disable TimeZone=UTC"
	}
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}
