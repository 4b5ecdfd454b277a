package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the shape of the optional YAML config file. Values present
// in the file are projected into the environment before the env pass runs,
// so explicit env vars still win.
type fileConfig struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		Driver       string `yaml:"driver"`
		SnapshotPath string `yaml:"snapshot_path"`
		MockLatency  string `yaml:"mock_latency"`
	} `yaml:"storage"`
	Postgres struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"ssl_mode"`
	} `yaml:"postgres"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret   string `yaml:"jwt_secret"`
		AdminUserID string `yaml:"admin_user_id"`
	} `yaml:"auth"`
}

func overlayYAML(path string) error {
	const op = "config.overlayYAML"

	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	setIfUnset("SERVER_HOST", fc.Server.Host)
	if fc.Server.Port != 0 {
		setIfUnset("SERVER_PORT", fmt.Sprint(fc.Server.Port))
	}

	setIfUnset("STORAGE_DRIVER", fc.Storage.Driver)
	setIfUnset("SNAPSHOT_PATH", fc.Storage.SnapshotPath)
	setIfUnset("MOCK_LATENCY", fc.Storage.MockLatency)

	setIfUnset("POSTGRES_HOST", fc.Postgres.Host)
	if fc.Postgres.Port != 0 {
		setIfUnset("POSTGRES_PORT", fmt.Sprint(fc.Postgres.Port))
	}
	setIfUnset("POSTGRES_USER", fc.Postgres.User)
	setIfUnset("POSTGRES_PASSWORD", fc.Postgres.Password)
	setIfUnset("POSTGRES_DB", fc.Postgres.Name)
	setIfUnset("POSTGRES_SSLMODE", fc.Postgres.SSLMode)

	setIfUnset("REDIS_ADDR", fc.Redis.Addr)
	setIfUnset("REDIS_PASSWORD", fc.Redis.Password)
	if fc.Redis.DB != 0 {
		setIfUnset("REDIS_DB", fmt.Sprint(fc.Redis.DB))
	}

	setIfUnset("JWT_SECRET", fc.Auth.JWTSecret)
	setIfUnset("ADMIN_USER_ID", fc.Auth.AdminUserID)

	return nil
}

func setIfUnset(key, val string) {
	if val == "" {
		return
	}
	if _, ok := os.LookupEnv(key); ok {
		return
	}
	_ = os.Setenv(key, val)
}
