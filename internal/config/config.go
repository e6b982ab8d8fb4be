package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（3001）

	DatabaseURL      string // あれば POSTGRES_* より優先
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     int
	PostgresSSLMode  string

	GoEnv       string // dev/prod
	AutoMigrate bool

	// 日次集計の「1日」の区切り
	StoreTimezone *time.Location

	// 会計1件あたりの在庫更新の同時実行数
	StockWorkers int

	RedisAddr      string // 空なら冪等キーの同時実行ガードなし
	IdempotencyTTL time.Duration

	OTLPEndpoint string // 空ならトレースは出さない

	// true なら total と subtotal+tax-discount の不一致を 400 にする
	StrictTotals bool
}

// Loadは環境変数
func Load() (Config, error) {
	pgPort, err := atoiOr("POSTGRES_PORT", 5432)
	if err != nil {
		return Config{}, err
	}
	workers, err := atoiOr("STOCK_WORKERS", 4)
	if err != nil {
		return Config{}, err
	}
	if workers < 1 {
		return Config{}, fmt.Errorf("STOCK_WORKERS must be >= 1")
	}

	ttl := 24 * time.Hour
	if v := os.Getenv("IDEMPOTENCY_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("IDEMPOTENCY_TTL must be duration: %w", err)
		}
		ttl = d
	}

	loc, err := time.LoadLocation(getenv("STORE_TIMEZONE", "UTC"))
	if err != nil {
		return Config{}, fmt.Errorf("STORE_TIMEZONE: %w", err)
	}

	autoMigrate := true
	if v := os.Getenv("AUTO_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("AUTO_MIGRATE must be bool: %w", err)
		}
		autoMigrate = b
	}

	strict := false
	if v := os.Getenv("STRICT_TOTALS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("STRICT_TOTALS must be bool: %w", err)
		}
		strict = b
	}

	cfg := Config{
		Port: getenv("PORT", "3001"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     getenv("POSTGRES_USER", "postgres"),
		PostgresPassword: getenv("POSTGRES_PASSWORD", "postgres"),
		PostgresDB:       getenv("POSTGRES_DB", "pos"),
		PostgresHost:     getenv("POSTGRES_HOST", "localhost"),
		PostgresPort:     pgPort,
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		GoEnv:       getenv("GO_ENV", "dev"),
		AutoMigrate: autoMigrate,

		StoreTimezone: loc,
		StockWorkers:  workers,

		RedisAddr:      os.Getenv("REDIS_ADDR"),
		IdempotencyTTL: ttl,

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		StrictTotals: strict,
	}

	//必須チェック
	if cfg.GoEnv != "dev" && cfg.GoEnv != "prod" {
		return Config{}, fmt.Errorf("GO_ENV must be dev or prod")
	}

	return cfg, nil
}

// DSN は gorm/postgres に渡す接続文字列
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

// ":3001" の形にする
func (c Config) Addr() string {
	if c.Port != "" && c.Port[0] == ':' {
		return c.Port
	}
	return ":" + c.Port
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoiOr(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}
