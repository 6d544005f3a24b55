package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	SMTP         SMTPConfig
	SMS          SMSConfig
	Handoff      HandoffConfig
	Verification VerificationConfig
	Dispatch     DispatchConfig
	Scheduler    SchedulerConfig
	AdminJWT     AdminJWTConfig
	CORS         CORSConfig
	Log          LogConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// SMTPConfig carries outbound mail settings. An empty Host disables the
// email channel; the sender reports that as a delivery failure, not a crash.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMSConfig points at the HTTP SMS gateway.
type SMSConfig struct {
	GatewayURL string
	APIKey     string
	SenderID   string
	Timeout    time.Duration
}

// HandoffConfig governs the short-lived signed tokens returned by a
// successful verification.
type HandoffConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

// VerificationConfig tunes the one-time-code session state machine.
type VerificationConfig struct {
	SessionTTL     time.Duration
	MaxAttempts    int
	MaxResends     int
	ResendCooldown time.Duration
	SweepInterval  time.Duration
	StoreBackend   string
}

// DispatchConfig tunes per-channel delivery behaviour.
type DispatchConfig struct {
	ChannelTimeout time.Duration
	AttemptBackoff time.Duration
	ScheduleLink   string
	OptOutLink     string
}

// SchedulerConfig controls the recurring due-reminder run.
type SchedulerConfig struct {
	Enabled    bool
	CronSpec   string
	RunTimeout time.Duration
}

// AdminJWTConfig validates tokens issued by the external admin auth service.
type AdminJWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.SMTP = SMTPConfig{
		Host:     v.GetString("SMTP_HOST"),
		Port:     v.GetInt("SMTP_PORT"),
		Username: v.GetString("SMTP_USERNAME"),
		Password: v.GetString("SMTP_PASSWORD"),
		From:     v.GetString("SMTP_FROM"),
		FromName: v.GetString("SMTP_FROM_NAME"),
	}

	cfg.SMS = SMSConfig{
		GatewayURL: v.GetString("SMS_GATEWAY_URL"),
		APIKey:     v.GetString("SMS_API_KEY"),
		SenderID:   v.GetString("SMS_SENDER_ID"),
		Timeout:    parseDuration(v.GetString("SMS_TIMEOUT"), 15*time.Second),
	}

	cfg.Handoff = HandoffConfig{
		Secret: v.GetString("HANDOFF_SECRET"),
		TTL:    parseDuration(v.GetString("HANDOFF_TTL"), 5*time.Minute),
		Issuer: v.GetString("HANDOFF_ISSUER"),
	}

	cfg.Verification = VerificationConfig{
		SessionTTL:     parseDuration(v.GetString("VERIFICATION_SESSION_TTL"), 10*time.Minute),
		MaxAttempts:    v.GetInt("VERIFICATION_MAX_ATTEMPTS"),
		MaxResends:     v.GetInt("VERIFICATION_MAX_RESENDS"),
		ResendCooldown: parseDuration(v.GetString("VERIFICATION_RESEND_COOLDOWN"), time.Minute),
		SweepInterval:  parseDuration(v.GetString("VERIFICATION_SWEEP_INTERVAL"), time.Minute),
		StoreBackend:   v.GetString("VERIFICATION_STORE_BACKEND"),
	}

	cfg.Dispatch = DispatchConfig{
		ChannelTimeout: parseDuration(v.GetString("DISPATCH_CHANNEL_TIMEOUT"), 30*time.Second),
		AttemptBackoff: parseDuration(v.GetString("DISPATCH_ATTEMPT_BACKOFF"), time.Hour),
		ScheduleLink:   v.GetString("DISPATCH_SCHEDULE_LINK"),
		OptOutLink:     v.GetString("DISPATCH_OPT_OUT_LINK"),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:    v.GetBool("SCHEDULER_ENABLED"),
		CronSpec:   v.GetString("SCHEDULER_CRON"),
		RunTimeout: parseDuration(v.GetString("SCHEDULER_RUN_TIMEOUT"), 10*time.Minute),
	}

	cfg.AdminJWT = AdminJWTConfig{
		Secret: v.GetString("ADMIN_JWT_SECRET"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "cert_reminder")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "no-reply@example.com")
	v.SetDefault("SMTP_FROM_NAME", "Certification Reminders")

	v.SetDefault("SMS_GATEWAY_URL", "")
	v.SetDefault("SMS_API_KEY", "")
	v.SetDefault("SMS_SENDER_ID", "CERTS")
	v.SetDefault("SMS_TIMEOUT", "15s")

	v.SetDefault("HANDOFF_SECRET", "dev_handoff_secret")
	v.SetDefault("HANDOFF_TTL", "5m")
	v.SetDefault("HANDOFF_ISSUER", "cert-reminder-api")

	v.SetDefault("VERIFICATION_SESSION_TTL", "10m")
	v.SetDefault("VERIFICATION_MAX_ATTEMPTS", 5)
	v.SetDefault("VERIFICATION_MAX_RESENDS", 3)
	v.SetDefault("VERIFICATION_RESEND_COOLDOWN", "60s")
	v.SetDefault("VERIFICATION_SWEEP_INTERVAL", "60s")
	v.SetDefault("VERIFICATION_STORE_BACKEND", "memory")

	v.SetDefault("DISPATCH_CHANNEL_TIMEOUT", "30s")
	v.SetDefault("DISPATCH_ATTEMPT_BACKOFF", "1h")
	v.SetDefault("DISPATCH_SCHEDULE_LINK", "https://training.example.com/schedule")
	v.SetDefault("DISPATCH_OPT_OUT_LINK", "https://training.example.com/opt-out")

	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("SCHEDULER_CRON", "0 9 * * *")
	v.SetDefault("SCHEDULER_RUN_TIMEOUT", "10m")

	v.SetDefault("ADMIN_JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
