package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Auth     AuthConfig
	Database DatabaseConfig
	WhatsApp WhatsAppConfig
	Webhook  WebhookConfig
	Chatwoot ChatwootConfig
	CORS     CORSConfig
	LogLevel string
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type AuthConfig struct {
	// APIKeyHash é o hash SHA-512 (128 hex chars) da chave de API crua.
	// Gere o par com: go run ./cmd/genkey
	APIKeyHash string
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

type WhatsAppConfig struct {
	DefaultCountry string
	QRTerminal     bool
}

type WebhookConfig struct {
	URL    string
	Secret string
}

func (w WebhookConfig) Enabled() bool {
	return w.URL != ""
}

type ChatwootConfig struct {
	URL           string
	Token         string
	AccountID     string
	InboxID       string
	AutoProvision bool
}

func (c ChatwootConfig) Enabled() bool {
	return c.URL != "" && c.Token != "" && c.AccountID != "" && c.InboxID != ""
}

type CORSConfig struct {
	// Origins vazio significa permitir todas ("*").
	Origins []string
}

var apiKeyHashPattern = regexp.MustCompile(`^[a-f0-9]{128}$`)

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "4300"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			APIKeyHash: getEnv("WAAKU_API_KEY", ""),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite3"),
			DSN:    getEnv("DB_DSN", "file:waaku.db?_foreign_keys=on"),
		},
		WhatsApp: WhatsAppConfig{
			DefaultCountry: getEnv("WHATSAPP_DEFAULT_COUNTRY", "55"),
			QRTerminal:     getBoolEnv("WHATSAPP_QR_TERMINAL", false),
		},
		Webhook: WebhookConfig{
			URL:    getEnv("WEBHOOK_URL", ""),
			Secret: getEnv("WEBHOOK_SECRET", ""),
		},
		Chatwoot: ChatwootConfig{
			URL:           getEnv("CHATWOOT_URL", ""),
			Token:         getEnv("CHATWOOT_TOKEN", ""),
			AccountID:     getEnv("CHATWOOT_ACCOUNT_ID", ""),
			InboxID:       getEnv("CHATWOOT_INBOX_ID", ""),
			AutoProvision: getBoolEnv("CHATWOOT_AUTO_PROVISION", true),
		},
		CORS: CORSConfig{
			Origins: getListEnv("CORS_ORIGINS"),
		},
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}

	if cfg.Auth.APIKeyHash == "" {
		return nil, fmt.Errorf("WAAKU_API_KEY é obrigatório (hash SHA-512 da chave de API)")
	}
	if !apiKeyHashPattern.MatchString(cfg.Auth.APIKeyHash) {
		return nil, fmt.Errorf("WAAKU_API_KEY deve ser um hash SHA-512 válido (128 caracteres hex)")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
