package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Scheduler SchedulerConfig
	Payment   PaymentConfig
	Platform  PlatformConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers  []string
	GroupID  string
	Topics   TopicConfig
	MockMode bool
	Enabled  bool
}

type TopicConfig struct {
	BookingEvents string
	PaymentEvents string
	PayoutEvents  string
}

type SchedulerConfig struct {
	SweepInterval time.Duration
	Enabled       bool
}

type PaymentConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string

	MTNBaseURL       string
	MTNAPIKey        string
	MTNWebhookSecret string

	OrangeBaseURL       string
	OrangeMerchantKey   string
	OrangeWebhookSecret string
	OrangeReturnURL     string

	PickupQRSecret string
}

// PlatformConfig seeds the platform_settings row on first boot. After that,
// the row in the database is authoritative and admin-mutable.
type PlatformConfig struct {
	MinPricePerKg             int64
	MaxPricePerKg             int64
	TravelerPercent           int
	PlatformPercent           int
	VatPercent                int
	PaymentTimeoutHours       int
	AutoPayoutDelayHours      int
	CancellationDeadlineHours int
	CriticalCancellationHours int
	RefundRateBeforeDeadline  float64
	LateCancellationPenalty   float64
	MinimumPayoutAmount       int64
	InsuranceAmount           int64
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "parcel_user"),
			Password:     getEnv("DB_PASSWORD", "parcel_pass"),
			Database:     getEnv("DB_NAME", "parcel_broker"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers:  []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			GroupID:  getEnv("KAFKA_GROUP_ID", "booking-engine-group"),
			Enabled:  getEnvBool("KAFKA_ENABLED", true),
			MockMode: getEnvBool("KAFKA_MOCK_MODE", false),
			Topics: TopicConfig{
				BookingEvents: getEnv("KAFKA_TOPIC_BOOKINGS", "booking-events"),
				PaymentEvents: getEnv("KAFKA_TOPIC_PAYMENTS", "payment-events"),
				PayoutEvents:  getEnv("KAFKA_TOPIC_PAYOUTS", "payout-events"),
			},
		},
		Scheduler: SchedulerConfig{
			SweepInterval: time.Duration(getEnvInt("SCHEDULER_SWEEP_MINUTES", 5)) * time.Minute,
			Enabled:       getEnvBool("SCHEDULER_ENABLED", true),
		},
		Payment: PaymentConfig{
			StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			MTNBaseURL:          getEnv("MTN_BASE_URL", "https://sandbox.momodeveloper.mtn.com"),
			MTNAPIKey:           getEnv("MTN_API_KEY", ""),
			MTNWebhookSecret:    getEnv("MTN_WEBHOOK_SECRET", ""),
			OrangeBaseURL:       getEnv("ORANGE_BASE_URL", "https://api.orange.com/orange-money-webpay/cm/v1"),
			OrangeMerchantKey:   getEnv("ORANGE_MERCHANT_KEY", ""),
			OrangeWebhookSecret: getEnv("ORANGE_WEBHOOK_SECRET", ""),
			OrangeReturnURL:     getEnv("ORANGE_RETURN_URL", ""),
			PickupQRSecret:      getEnv("PICKUP_QR_SECRET", "parcel-pickup-secret"),
		},
		Platform: PlatformConfig{
			MinPricePerKg:             getEnvInt64("PLATFORM_MIN_PRICE_PER_KG", 2000),
			MaxPricePerKg:             getEnvInt64("PLATFORM_MAX_PRICE_PER_KG", 10000),
			TravelerPercent:           getEnvInt("PLATFORM_TRAVELER_PERCENT", 70),
			PlatformPercent:           getEnvInt("PLATFORM_PLATFORM_PERCENT", 25),
			VatPercent:                getEnvInt("PLATFORM_VAT_PERCENT", 5),
			PaymentTimeoutHours:       getEnvInt("PLATFORM_PAYMENT_TIMEOUT_HOURS", 12),
			AutoPayoutDelayHours:      getEnvInt("PLATFORM_AUTO_PAYOUT_DELAY_HOURS", 48),
			CancellationDeadlineHours: getEnvInt("PLATFORM_CANCELLATION_DEADLINE_HOURS", 24),
			CriticalCancellationHours: getEnvInt("PLATFORM_CRITICAL_CANCELLATION_HOURS", 4),
			RefundRateBeforeDeadline:  getEnvFloat("PLATFORM_REFUND_RATE", 0.9),
			LateCancellationPenalty:   getEnvFloat("PLATFORM_LATE_CANCELLATION_PENALTY", 0.5),
			MinimumPayoutAmount:       getEnvInt64("PLATFORM_MINIMUM_PAYOUT", 1000),
			InsuranceAmount:           getEnvInt64("PLATFORM_INSURANCE_AMOUNT", 500),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
