package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Server   ServerConfig
	Logger   LoggerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Otel     OtelConfig
	Storage  StorageConfig
	Lending  LendingConfig
}

type ServerConfig struct {
	AppEnv   string
	GRPCPort string
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
	// TxIsolation applies to every state transition transaction.
	TxIsolation string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    []string
	AuditTopic string
	AdminTopic string
	GroupID    string
}

type OtelConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	Insecure    bool
}

type StorageConfig struct {
	Driver string // postgres | memory
}

type LendingConfig struct {
	LateFeePerDay decimal.Decimal
	FlatLateFee   decimal.Decimal
	ListCacheTTL  time.Duration
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:   getEnv("APP_ENV", "dev"),
			GRPCPort: getEnv("GRPC_PORT", ":8085"),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "debug"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Postgres: PostgresConfig{
			Host:            getEnv("POSTGRES_HOST", "localhost"),
			Port:            getEnv("POSTGRES_PORT", "5433"),
			User:            getEnv("POSTGRES_USER", "omnipos"),
			Password:        getEnv("POSTGRES_PASSWORD", "omnipos"),
			DBName:          getEnv("POSTGRES_DB", "omnipos_lending"),
			SSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("POSTGRES_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvInt("POSTGRES_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("POSTGRES_CONN_MAX_IDLE_TIME", 60),
			TxIsolation:     getEnv("POSTGRES_TX_ISOLATION", "serializable"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled:    getEnvBool("KAFKA_ENABLED", true),
			Brokers:    getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			AuditTopic: getEnv("KAFKA_TOPIC_LENDING_AUDIT", "lending.audit"),
			AdminTopic: getEnv("KAFKA_TOPIC_EQUIPMENT_ADMIN", "equipment.admin"),
			GroupID:    getEnv("KAFKA_GROUP_LENDING", "lending"),
		},
		Otel: OtelConfig{
			Enabled:     getEnvBool("OTEL_ENABLED", false),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "omnipos-lending-service"),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			Insecure:    getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		},
		Storage: StorageConfig{
			Driver: getEnv("STORAGE_DRIVER", "postgres"),
		},
		Lending: LendingConfig{
			LateFeePerDay: getEnvDecimal("LENDING_LATE_FEE_PER_DAY", decimal.NewFromInt(50000)),
			FlatLateFee:   getEnvDecimal("LENDING_FLAT_LATE_FEE", decimal.Zero),
			ListCacheTTL:  getEnvDuration("LENDING_LIST_CACHE_TTL", time.Minute),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.Split(value, ",")
	}
	return fallback
}

func getEnvDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := decimal.NewFromString(value); err == nil && !d.IsNegative() {
			return d
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
