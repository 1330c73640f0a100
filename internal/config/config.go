package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	OAuth    OAuthConfig
	Email    EmailConfig
	App      AppConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Address string
	BaseURL string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver         string // "postgres" or "sqlite"
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MigrationsPath string
}

// OAuthConfig holds OAuth provider configurations
type OAuthConfig struct {
	Google GoogleOAuthConfig
	Zoom   ZoomOAuthConfig
}

// GoogleOAuthConfig holds Google OAuth configuration
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// SignInRedirectURL is the callback used by the sign-in/sign-up flow
	// (distinct from RedirectURL, which calendar connection uses) since
	// Google requires each redirect URI registered against the client
	// to match exactly.
	SignInRedirectURL string
}

// ZoomOAuthConfig holds Zoom OAuth configuration
type ZoomOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// EmailConfig holds email configuration
type EmailConfig struct {
	Provider    string // mailgun, smtp
	FromAddress string
	FromName    string

	// Mailgun specific
	MailgunDomain string
	MailgunAPIKey string

	// SMTP specific
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment       string
	MaxSchedulingDays int
	SessionDuration   time.Duration
	DefaultTimezone   string
	EncryptionKey     string
}

// ConnectionString returns the database connection string
func (d DatabaseConfig) ConnectionString() string {
	if d.Driver == "sqlite" {
		return d.Name // For SQLite, Name is the file path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// Load loads configuration from environment variables (and, if present, a
// config file named "openslate" on the current path) via viper. Every
// key has the same default the teacher's hand-rolled getEnv/getEnvInt
// pair used, so behavior is unchanged for a deployment that only sets
// environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("openslate")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Address: v.GetString("server_address"),
			BaseURL: v.GetString("base_url"),
		},
		Database: DatabaseConfig{
			Driver:         v.GetString("db_driver"),
			Host:           v.GetString("db_host"),
			Port:           v.GetInt("db_port"),
			User:           v.GetString("db_user"),
			Password:       v.GetString("db_password"),
			Name:           v.GetString("db_name"),
			SSLMode:        v.GetString("db_sslmode"),
			MigrationsPath: v.GetString("migrations_path"),
		},
		OAuth: OAuthConfig{
			Google: GoogleOAuthConfig{
				ClientID:          v.GetString("google_client_id"),
				ClientSecret:      v.GetString("google_client_secret"),
				RedirectURL:       v.GetString("google_redirect_url"),
				SignInRedirectURL: v.GetString("google_signin_redirect_url"),
			},
			Zoom: ZoomOAuthConfig{
				ClientID:     v.GetString("zoom_client_id"),
				ClientSecret: v.GetString("zoom_client_secret"),
				RedirectURL:  v.GetString("zoom_redirect_url"),
			},
		},
		Email: EmailConfig{
			Provider:      v.GetString("email_provider"),
			FromAddress:   v.GetString("email_from_address"),
			FromName:      v.GetString("email_from_name"),
			MailgunDomain: v.GetString("mailgun_domain"),
			MailgunAPIKey: v.GetString("mailgun_api_key"),
			SMTPHost:      v.GetString("smtp_host"),
			SMTPPort:      v.GetInt("smtp_port"),
			SMTPUser:      v.GetString("smtp_user"),
			SMTPPassword:  v.GetString("smtp_password"),
		},
		App: AppConfig{
			Environment:       v.GetString("app_env"),
			MaxSchedulingDays: v.GetInt("max_scheduling_days"),
			SessionDuration:   time.Duration(v.GetInt("session_duration_hours")) * time.Hour,
			DefaultTimezone:   v.GetString("default_timezone"),
			EncryptionKey:     v.GetString("encryption_key"),
		},
	}

	if cfg.App.EncryptionKey == "" && cfg.App.Environment == "production" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required in production")
	}

	if cfg.App.EncryptionKey == "" {
		cfg.App.EncryptionKey = "development-key-32-bytes-long!!"
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_address", ":8080")
	v.SetDefault("base_url", "http://localhost:8080")

	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_user", "openslate")
	v.SetDefault("db_password", "openslate")
	v.SetDefault("db_name", "openslate.db")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("migrations_path", "migrations")

	v.SetDefault("google_client_id", "")
	v.SetDefault("google_client_secret", "")
	v.SetDefault("google_redirect_url", "")
	v.SetDefault("google_signin_redirect_url", "")
	v.SetDefault("zoom_client_id", "")
	v.SetDefault("zoom_client_secret", "")
	v.SetDefault("zoom_redirect_url", "")

	v.SetDefault("email_provider", "smtp")
	v.SetDefault("email_from_address", "noreply@localhost")
	v.SetDefault("email_from_name", "Open Slate")
	v.SetDefault("mailgun_domain", "")
	v.SetDefault("mailgun_api_key", "")
	v.SetDefault("smtp_host", "localhost")
	v.SetDefault("smtp_port", 587)
	v.SetDefault("smtp_user", "")
	v.SetDefault("smtp_password", "")

	v.SetDefault("app_env", "development")
	v.SetDefault("max_scheduling_days", 90)
	v.SetDefault("session_duration_hours", 24)
	v.SetDefault("default_timezone", "UTC")
	v.SetDefault("encryption_key", "")
}
