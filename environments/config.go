package environments

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Provider  ProviderConfig
	Dispatch  DispatchConfig
	RateLimit RateLimitConfig
	Retention RetentionConfig
	Auth      AuthConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// ProviderConfig points at the WhatsApp Business gateway.
type ProviderConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
}

type DispatchConfig struct {
	PollInterval time.Duration
	Workers      int
	MaxRetries   int
	JobTTL       time.Duration
}

type RateLimitConfig struct {
	Window       time.Duration
	MaxPerWindow int64
}

type RetentionConfig struct {
	// InvitationMaxAge of zero keeps invitations forever.
	InvitationMaxAge time.Duration
	CronSpec         string
}

type AuthConfig struct {
	OperatorAPIKey string
	AdminAPIKey    string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: GetEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     GetEnv("DB_HOST", "localhost"),
			Port:     GetEnv("DB_PORT", "3306"),
			User:     GetEnv("DB_USER", "invitedesk"),
			Password: GetEnv("DB_PASSWORD", "invitedesk123"),
			DBName:   GetEnv("DB_NAME", "invite_dispatch"),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvAsInt("REDIS_DB", 0),
		},
		Provider: ProviderConfig{
			BaseURL:       GetEnv("PROVIDER_BASE_URL", "https://gateway.example.com"),
			APIKey:        GetEnv("PROVIDER_API_KEY", ""),
			WebhookSecret: GetEnv("PROVIDER_WEBHOOK_SECRET", ""),
			Timeout:       time.Duration(GetEnvAsInt("PROVIDER_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Dispatch: DispatchConfig{
			PollInterval: GetEnvAsDuration("DISPATCH_POLL_INTERVAL", time.Second),
			Workers:      GetEnvAsInt("DISPATCH_WORKERS", 2),
			MaxRetries:   GetEnvAsInt("DISPATCH_MAX_RETRIES", 3),
			JobTTL:       GetEnvAsDuration("DISPATCH_JOB_TTL", 24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			// The gateway enforces one send per sender per second.
			Window:       GetEnvAsDuration("RATE_LIMIT_WINDOW", time.Second),
			MaxPerWindow: int64(GetEnvAsInt("RATE_LIMIT_MAX_PER_WINDOW", 1)),
		},
		Retention: RetentionConfig{
			InvitationMaxAge: GetEnvAsDuration("INVITATION_RETENTION", 0),
			CronSpec:         GetEnv("RETENTION_CRON", "0 3 * * *"),
		},
		Auth: AuthConfig{
			OperatorAPIKey: GetEnv("OPERATOR_API_KEY", ""),
			AdminAPIKey:    GetEnv("ADMIN_API_KEY", ""),
		},
	}
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
