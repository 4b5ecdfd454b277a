package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type StorageConfig struct {
	// Driver selects the backing store: "postgres" for the real backend,
	// "memory" for the local mock that mirrors the browser-storage mode.
	Driver string

	// SnapshotPath, when set with the memory driver, persists the
	// collections as a single JSON file across restarts.
	SnapshotPath string

	// MockLatency adds an artificial round-trip delay to every memory
	// store call, simulating a remote backend in local development.
	MockLatency time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

type AuthConfig struct {
	JWTSecret   string
	AdminUserID string
}

// New loads configuration from the environment, after an optional YAML file
// overlay (CONFIG_FILE) and an optional .env file.
func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := overlayYAML(path); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	serverHost := envDefault("SERVER_HOST", "localhost")

	serverPort, err := envInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	driver := envDefault("STORAGE_DRIVER", DriverPostgres)
	if driver != DriverPostgres && driver != DriverMemory {
		return nil, fmt.Errorf("%s: unknown STORAGE_DRIVER %q", op, driver)
	}

	mockLatency, err := envDuration("MOCK_LATENCY", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	storageCfg := StorageConfig{
		Driver:       driver,
		SnapshotPath: os.Getenv("SNAPSHOT_PATH"),
		MockLatency:  mockLatency,
	}

	postgresPort, err := envInt("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresCfg := PostgresConfig{
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Name:     os.Getenv("POSTGRES_DB"),
		Host:     envDefault("POSTGRES_HOST", "localhost"),
		Port:     postgresPort,
		SSLMode:  envDefault("POSTGRES_SSLMODE", "disable"),
	}

	if driver == DriverPostgres {
		if postgresCfg.User == "" {
			return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
		}
		if postgresCfg.Password == "" {
			return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
		}
		if postgresCfg.Name == "" {
			return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
		}
	}

	redisDB, err := envInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisCfg := RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("%s: missing JWT_SECRET", op)
	}

	authCfg := AuthConfig{
		JWTSecret:   jwtSecret,
		AdminUserID: os.Getenv("ADMIN_USER_ID"),
	}

	return &Config{
		Server:   ServerConfig{Host: serverHost, Port: serverPort},
		Storage:  storageCfg,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Auth:     authCfg,
	}, nil
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}
