package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/emmy19999/bingham-bites/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "BB"

var envKeyReplacer = strings.NewReplacer(".", "_")

// MustInit loads .env (when present) and config.yaml, then installs the
// default logger. Environment variables such as BB_POSTGRES_HOST override
// file values.
func MustInit() {
	if err := godotenv.Load("./.env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic("error while loading .env file: " + err.Error())
	}

	SetDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/bingham-bites")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic("error while reading config file: " + err.Error())
		}
	}
	SetupLogger()
}

// SetDefaults registers the values used when neither the file nor the
// environment sets a key.
func SetDefaults() {
	viper.SetDefault("server.http.port", "8080")
	viper.SetDefault("server.http.cors.allowed_origins", []string{"*"})
	viper.SetDefault("server.http.cors.allowed_methods", []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"})
	viper.SetDefault("server.http.cors.allowed_headers", []string{"Content-Type", "X-User-ID", "X-User-Role", "X-User-Name"})
	viper.SetDefault("server.http.cors.max_age", 300)
	viper.SetDefault("server.grpc.port", "9090")

	viper.SetDefault("postgres.host", "localhost")
	viper.SetDefault("postgres.port", 5432)
	viper.SetDefault("postgres.user", "postgres")
	viper.SetDefault("postgres.password", "")
	viper.SetDefault("postgres.db", "bingham_bites")
	viper.SetDefault("postgres.sslmode", "disable")
	viper.SetDefault("postgres.migrations_path", "")

	viper.SetDefault("rabbitmq.host", "localhost")
	viper.SetDefault("rabbitmq.port", 5672)
	viper.SetDefault("rabbitmq.user", "guest")
	viper.SetDefault("rabbitmq.password", "guest")
	viper.SetDefault("rabbitmq.exchange", "orders.updates")
	viper.SetDefault("rabbitmq.outbox.poll_interval_seconds", 5)
	viper.SetDefault("rabbitmq.outbox.batch_size", 50)
	viper.SetDefault("rabbitmq.outbox.retry_interval_seconds", 30)

	viper.SetDefault("orders.place_timeout_seconds", 15)
	viper.SetDefault("orders.just_added_ms", 800)
	viper.SetDefault("orders.sync_retry_seconds", 5)
	viper.SetDefault("payment.simulated_delay_ms", 2000)

	viper.SetDefault("progression.enabled", true)
	viper.SetDefault("progression.poll_interval_seconds", 10)
	viper.SetDefault("progression.step_seconds", 60)
	viper.SetDefault("progression.batch_size", 50)

	viper.SetDefault("otel.service_name", "bingham-bites")
	viper.SetDefault("otel.jaeger_endpoint", "")
	viper.SetDefault("log.level", "info")
}

func SetupLogger() {
	handler := logger.NewHandler(&logger.Options{
		Level:   viper.GetString("log.level"),
		Service: viper.GetString("otel.service_name"),
	})
	log := slog.New(handler)
	slog.SetDefault(log)
}
