package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"exam-system/pkg/database"
)

type Config struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPath     string

	RedisAddr string

	JWTSecret string
	JWTTTL    time.Duration

	HTTPAddr    string
	CORSOrigins []string
	LogMode     string
}

// Load reads configuration from defaults, an optional .env file in dir and
// the process environment, in increasing priority.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "exams")
	v.SetDefault("DB_PATH", "exams.db")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_TTL", 24*time.Hour)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("LOG_MODE", "dev")

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "config.godotenv(%s)", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "config.os.Stat(%s)", dotEnvPath)
	}
	v.AutomaticEnv()

	cfg := &Config{
		DBDriver:    strings.ToLower(v.GetString("DB_DRIVER")),
		DBHost:      v.GetString("DB_HOST"),
		DBPort:      v.GetString("DB_PORT"),
		DBUser:      v.GetString("DB_USER"),
		DBPassword:  v.GetString("DB_PASSWORD"),
		DBName:      v.GetString("DB_NAME"),
		DBPath:      v.GetString("DB_PATH"),
		RedisAddr:   v.GetString("REDIS_ADDR"),
		JWTSecret:   v.GetString("JWT_SECRET"),
		JWTTTL:      v.GetDuration("JWT_TTL"),
		HTTPAddr:    v.GetString("HTTP_ADDR"),
		CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),
		LogMode:     v.GetString("LOG_MODE"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Postgres returns the connection settings for database.NewPostgresDB.
func (c *Config) Postgres() *database.Config {
	return &database.Config{
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		DBName:   c.DBName,
	}
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return errors.Errorf("config: unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	if c.JWTTTL <= 0 {
		return errors.New("config: JWT_TTL must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
