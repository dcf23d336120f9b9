package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"tattoostudio/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Booking    BookingConfig    `yaml:"booking"`
	API        APIConfig        `yaml:"api"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Google     GoogleConfig     `yaml:"google"`
	Exports    ExportConfig     `yaml:"exports"`
	Content    ContentConfig    `yaml:"content"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "memory".
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	// Channel used to relay collection changes between processes.
	Channel string `yaml:"channel"`
}

type AuthConfig struct {
	AdminEmails       []string `yaml:"admin_emails"`
	SessionTTLSeconds int      `yaml:"session_ttl_seconds"`
	// SessionFile is where studioctl persists its session token.
	SessionFile string `yaml:"session_file"`
}

type BookingConfig struct {
	WindowMonths         int `yaml:"window_months"`
	SuccessBannerSeconds int `yaml:"success_banner_seconds"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool `yaml:"enabled"`
	Port       int  `yaml:"port"`
	Reflection bool `yaml:"reflection"`
}

// APIAuthConfig guards the machine-to-machine gRPC API.
type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type TelegramConfig struct {
	Enabled        bool    `yaml:"enabled"`
	BotToken       string  `yaml:"bot_token"`
	ChatIDs        []int64 `yaml:"chat_ids"`
	ManagerIDs     []int64 `yaml:"manager_ids"`
	DigestSchedule string  `yaml:"digest_schedule"`
	Debug          bool    `yaml:"debug"`
}

// Managers are the chats and users allowed to drive the admin bot.
func (t TelegramConfig) Managers() []int64 {
	ids := make([]int64, 0, len(t.ChatIDs)+len(t.ManagerIDs))
	ids = append(ids, t.ChatIDs...)
	return append(ids, t.ManagerIDs...)
}

type GoogleConfig struct {
	GoogleCredentialsFile    string `yaml:"credentials_file"`
	AppointmentsSpreadSheetID string `yaml:"appointments_spreadsheet_id"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type ContentConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML config at configPath, expanding ${VARS} from the
// environment and an optional .env file.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	config.Auth.AdminEmails = ResolveAdminEmails(os.Getenv("ADMIN_EMAILS"), config.Auth.AdminEmails)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ResolveAdminEmails picks the admin allow-list: the comma-separated env value
// wins, then the configured list, then the built-in addresses.
func ResolveAdminEmails(env string, configured []string) []string {
	if strings.TrimSpace(env) != "" {
		return splitEmails(strings.Split(env, ","))
	}
	if emails := splitEmails(configured); len(emails) > 0 {
		return emails
	}
	return append([]string(nil), models.DefaultAdminEmails...)
}

func splitEmails(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if trimmed := strings.TrimSpace(e); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE") {
		return errors.New("telegram bot token is required when telegram is enabled")
	}

	return ValidateAPIKeys(c.API.Auth.APIKeys)
}

func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if k.Key == "" {
			return fmt.Errorf("api key '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client '%s'", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "tattoostudio"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "tattoostudio:changes"
	}

	if c.Auth.SessionTTLSeconds == 0 {
		c.Auth.SessionTTLSeconds = models.DefaultSessionTTL
	}
	if c.Booking.WindowMonths == 0 {
		c.Booking.WindowMonths = models.DefaultBookingWindowMonths
	}
	if c.Booking.SuccessBannerSeconds == 0 {
		c.Booking.SuccessBannerSeconds = models.SuccessBannerSeconds
	}
	if c.Telegram.DigestSchedule == "" {
		c.Telegram.DigestSchedule = models.DefaultDigestSchedule
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.Content.Path == "" {
		c.Content.Path = "configs/content.yaml"
	}
}
