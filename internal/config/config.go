package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"Tally"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"tally"`
	}

	Server struct {
		Timeout time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
	}

	Auth struct {
		// JWTSecret signs bearer tokens. Empty disables authentication.
		JWTSecret string `envconfig:"AUTH_JWT_SECRET"`
		Issuer    string `envconfig:"AUTH_ISSUER" default:"tally"`
	}

	CORS struct {
		AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
	}

	Import struct {
		ProfilesFile string `envconfig:"IMPORT_PROFILES_FILE"`
		DateFormat   string `envconfig:"IMPORT_DATE_FORMAT"`
		ApplyRules   bool   `envconfig:"IMPORT_APPLY_RULES" default:"true"`
		MaxUploadMB  int64  `envconfig:"IMPORT_MAX_UPLOAD_MB" default:"10"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

// MaxUploadBytes is the multipart limit for statement uploads.
func (c *Config) MaxUploadBytes() int64 {
	return c.Import.MaxUploadMB << 20
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
