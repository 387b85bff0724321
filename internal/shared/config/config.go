package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the booking engine
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Kafka configuration
	Kafka KafkaConfig

	// JWT configuration
	JWT JWTConfig

	// Payment provider configuration
	Payment PaymentConfig

	// Booking flow tuning
	Booking BookingConfig

	// Rate limiting
	RateLimit RateLimitConfig

	// Background maintenance cadence
	Sweeper SweeperConfig

	// Delivery providers (optional; absent disables delivery sub-jobs)
	Email EmailConfig
	SMS   SMSConfig

	// Logging
	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string

	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string

	// TTL values for different operations
	SeatLockTTL     time.Duration
	AvailabilityTTL time.Duration
	CacheTTL        time.Duration
	JobStatusTTL    time.Duration
}

// KafkaConfig holds Kafka configuration for the ticket job pipeline
type KafkaConfig struct {
	Brokers         []string
	TicketTopic     string
	ConsumerGroupID string
	WorkerCount     int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	RefreshSecret    string
	JWTExpiresIn     time.Duration
	RefreshExpiresIn time.Duration
}

// PaymentConfig holds Razorpay credentials
type PaymentConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Currency      string
}

// BookingConfig holds booking flow tuning knobs
type BookingConfig struct {
	PaymentWindow   time.Duration
	ReferenceRetry  int
	AmountTolerance float64
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled                 bool          `json:"enabled"`
	WindowDuration          time.Duration `json:"window_duration"`
	DefaultRequests         int           `json:"default_requests"`
	PublicRequests          int           `json:"public_requests"`
	BookingRequests         int           `json:"booking_requests"`
	BookingCriticalRequests int           `json:"booking_critical_requests"`
	OrganizerRequests       int           `json:"organizer_requests"`
	HealthRequests          int           `json:"health_requests"`
	WhitelistedIPs          []string      `json:"whitelisted_ips"`
}

// SweeperConfig holds the background maintenance cadence. Intervals
// below 30s are clamped at startup so a typo cannot hammer the stores.
type SweeperConfig struct {
	LockInterval    time.Duration
	BookingInterval time.Duration
	TokenInterval   time.Duration
	BatchSize       int
}

// EmailConfig holds email delivery configuration
type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
}

// SMSConfig holds SMS delivery configuration
type SMSConfig struct {
	APIKey    string
	APISecret string
	SenderID  string
}

// insecure defaults that must never reach production; Load refuses them
var forbiddenSecrets = map[string]bool{
	"":                          true,
	"changeme":                  true,
	"secret":                    true,
	"your-super-secret-jwt-key": true,
}

// Load loads configuration from environment variables.
// It returns an error when a required secret is missing or left at a
// known placeholder value.
func Load() (*Config, error) {
	cfg := &Config{
		// Server configuration
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		// Database configuration
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Name:         getEnv("DB_NAME", "ticketly_db"),
			User:         getEnv("DB_USER", "ticketly_user"),
			Password:     getEnv("DB_PASSWORD", ""),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getIntEnv("DB_MAX_OPEN_CONNS", 30),
			MaxIdleConns: getIntEnv("DB_MAX_IDLE_CONNS", 10),
		},

		// Redis configuration
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),

			SeatLockTTL:     getDurationEnv("REDIS_SEAT_LOCK_TTL", 10*time.Minute),
			AvailabilityTTL: getDurationEnv("REDIS_AVAILABILITY_TTL", 60*time.Second),
			CacheTTL:        getDurationEnv("REDIS_CACHE_TTL", 1*time.Hour),
			JobStatusTTL:    getDurationEnv("REDIS_JOB_STATUS_TTL", 24*time.Hour),
		},

		// Kafka configuration
		Kafka: KafkaConfig{
			Brokers:         getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			TicketTopic:     getEnv("KAFKA_TICKET_TOPIC", "ticket-generation"),
			ConsumerGroupID: getEnv("KAFKA_CONSUMER_GROUP", "ticketly-ticket-workers"),
			WorkerCount:     getIntEnv("KAFKA_WORKER_COUNT", 3),
		},

		// JWT configuration
		JWT: JWTConfig{
			Secret:           getEnv("JWT_SECRET", ""),
			RefreshSecret:    getEnv("JWT_REFRESH_SECRET", ""),
			JWTExpiresIn:     getDurationEnvSeconds("JWT_EXPIRES_IN", 15*time.Minute),
			RefreshExpiresIn: getDurationEnvSeconds("JWT_REFRESH_EXPIRES_IN", 24*time.Hour),
		},

		// Payment provider configuration
		Payment: PaymentConfig{
			KeyID:         getEnv("RAZORPAY_KEY_ID", ""),
			KeySecret:     getEnv("RAZORPAY_KEY_SECRET", ""),
			WebhookSecret: getEnv("RAZORPAY_WEBHOOK_SECRET", ""),
			Currency:      getEnv("PAYMENT_CURRENCY", "INR"),
		},

		// Booking flow tuning
		Booking: BookingConfig{
			PaymentWindow:   getDurationEnv("BOOKING_PAYMENT_WINDOW", 15*time.Minute),
			ReferenceRetry:  getIntEnv("BOOKING_REFERENCE_RETRIES", 5),
			AmountTolerance: 0.01,
		},

		// Rate limiting
		RateLimit: RateLimitConfig{
			Enabled:                 getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowDuration:          getDurationEnv("RATE_LIMIT_WINDOW_DURATION", 60*time.Second),
			DefaultRequests:         getIntEnv("RATE_LIMIT_DEFAULT_REQUESTS", 60),
			PublicRequests:          getIntEnv("RATE_LIMIT_PUBLIC_REQUESTS", 100),
			BookingRequests:         getIntEnv("RATE_LIMIT_BOOKING_REQUESTS", 20),
			BookingCriticalRequests: getIntEnv("RATE_LIMIT_BOOKING_CRITICAL_REQUESTS", 10),
			OrganizerRequests:       getIntEnv("RATE_LIMIT_ORGANIZER_REQUESTS", 200),
			HealthRequests:          getIntEnv("RATE_LIMIT_HEALTH_REQUESTS", 300),
			WhitelistedIPs:          getStringSliceEnv("RATE_LIMIT_WHITELISTED_IPS", []string{}),
		},

		// Background maintenance cadence
		Sweeper: SweeperConfig{
			LockInterval:    getDurationEnv("SWEEP_LOCK_INTERVAL", 5*time.Minute),
			BookingInterval: getDurationEnv("SWEEP_BOOKING_INTERVAL", 5*time.Minute),
			TokenInterval:   getDurationEnv("SWEEP_TOKEN_INTERVAL", time.Hour),
			BatchSize:       getIntEnv("SWEEP_BATCH_SIZE", 100),
		},

		// Email configuration (optional)
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getIntEnv("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "tickets@ticketly.io"),
		},

		// SMS configuration (optional)
		SMS: SMSConfig{
			APIKey:    getEnv("SMS_API_KEY", ""),
			APISecret: getEnv("SMS_API_SECRET", ""),
			SenderID:  getEnv("SMS_SENDER_ID", "TICKTL"),
		},

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}

	// Build composite values
	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	if err := cfg.validateSecrets(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecrets refuses to start with missing or placeholder secrets
func (c *Config) validateSecrets() error {
	required := []struct {
		name  string
		value string
	}{
		{"JWT_SECRET", c.JWT.Secret},
		{"JWT_REFRESH_SECRET", c.JWT.RefreshSecret},
		{"RAZORPAY_KEY_ID", c.Payment.KeyID},
		{"RAZORPAY_KEY_SECRET", c.Payment.KeySecret},
		{"RAZORPAY_WEBHOOK_SECRET", c.Payment.WebhookSecret},
	}

	var missing []string
	for _, s := range required {
		if forbiddenSecrets[strings.ToLower(strings.TrimSpace(s.value))] {
			missing = append(missing, s.name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("required secrets missing or set to placeholder values: %s", strings.Join(missing, ", "))
	}
	return nil
}

// EmailEnabled reports whether the email delivery sub-job can run
func (c *Config) EmailEnabled() bool {
	return c.Email.SMTPHost != "" && c.Email.SMTPUsername != ""
}

// SMSEnabled reports whether the SMS delivery sub-job can run
func (c *Config) SMSEnabled() bool {
	return c.SMS.APIKey != ""
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getDurationEnvSeconds gets an environment variable as seconds (int) and converts to time.Duration
func getDurationEnvSeconds(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}
