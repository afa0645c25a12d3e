package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

type Config struct {
	ServerPort string
	LogLevel   string

	DatabaseURL string

	JWTSecret []byte

	KafkaBrokers []string

	GatewayBaseURL         string
	GatewayClientID        string
	GatewayClientSecret    string
	GatewayWebhookUser     string
	GatewayWebhookPassword string

	FrontendURL string

	SMTPAddress   string
	SMTPHost      string
	FromEmail     string
	FromEmailPass string
	AdminEmail    string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	config := &Config{
		ServerPort: envDefault("SERVER_PORT", "8080"),
		LogLevel:   envDefault("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTSecret: []byte(os.Getenv("JWT_SECRET")),

		KafkaBrokers: csv(os.Getenv("KAFKA_BROKERS")),

		GatewayBaseURL:         os.Getenv("GATEWAY_BASE_URL"),
		GatewayClientID:        os.Getenv("GATEWAY_CLIENT_ID"),
		GatewayClientSecret:    os.Getenv("GATEWAY_CLIENT_SECRET"),
		GatewayWebhookUser:     os.Getenv("GATEWAY_WEBHOOK_USERNAME"),
		GatewayWebhookPassword: os.Getenv("GATEWAY_WEBHOOK_PASSWORD"),

		FrontendURL: os.Getenv("FRONTEND_URL"),

		SMTPAddress:   os.Getenv("SMTP_ADDRESS"),
		SMTPHost:      os.Getenv("SMTP_HOST"),
		FromEmail:     os.Getenv("FROM_EMAIL"),
		FromEmailPass: os.Getenv("FROM_EMAIL_PASSWORD"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
	}

	MustNonEmpty(config.DatabaseURL, "DATABASE_URL")
	MustNonEmptyBytes(config.JWTSecret, "JWT_SECRET")
	MustNonEmpty(config.GatewayBaseURL, "GATEWAY_BASE_URL")

	return config, nil
}

func MustNonEmpty(value, envName string) {
	if value == "" {
		log.Fatalf("missing required env %s", envName)
	}
}

func MustNonEmptyBytes(value []byte, envName string) {
	if len(value) == 0 {
		log.Fatalf("missing required env %s", envName)
	}
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func csv(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
