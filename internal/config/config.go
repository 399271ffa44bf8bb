package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when CONFIG_PATH is unset. A missing default file is not an error.
const DefaultPath = "config.yaml"

type Config struct {
	Server struct {
		Addr            string        `yaml:"addr"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Upstream struct {
		Space          string        `yaml:"space"`
		HubURL         string        `yaml:"hubURL"`
		Token          string        `yaml:"token"`
		Route          string        `yaml:"route"`
		ConnectTimeout time.Duration `yaml:"connectTimeout"`
		PredictTimeout time.Duration `yaml:"predictTimeout"`
	} `yaml:"upstream"`

	Cache struct {
		RedisAddr  string        `yaml:"redisAddr"`
		APIInfoTTL time.Duration `yaml:"apiInfoTTL"`
	} `yaml:"cache"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"cors"`

	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = ":8080"
	cfg.Server.ShutdownTimeout = 15 * time.Second
	cfg.Upstream.Space = "Skindoc/dermai"
	cfg.Upstream.HubURL = "https://huggingface.co"
	cfg.Upstream.Route = "/predict"
	cfg.Upstream.ConnectTimeout = 60 * time.Second
	cfg.Upstream.PredictTimeout = 60 * time.Second
	cfg.Cache.APIInfoTTL = 10 * time.Minute
	cfg.CORS.AllowedOrigins = []string{"*"}
	cfg.Log.Level = "info"
	return &cfg
}

// Load layers defaults, the YAML file at path and environment overrides.
// An empty path means DefaultPath, which may be absent.
func Load(path string) (*Config, error) {
	cfg := Default()

	optional := false
	if path == "" {
		path = DefaultPath
		optional = true
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Addr, "HTTP_ADDR")
	setString(&c.Upstream.Space, "HF_SPACE")
	setString(&c.Upstream.HubURL, "HF_HUB_URL")
	setString(&c.Upstream.Token, "HF_TOKEN")
	setString(&c.Upstream.Route, "PREDICT_ROUTE")
	setString(&c.Cache.RedisAddr, "REDIS_ADDR")
	setString(&c.Log.Level, "LOG_LEVEL")

	if value := os.Getenv("CORS_ALLOWED_ORIGINS"); value != "" {
		var origins []string
		for _, origin := range strings.Split(value, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
		c.CORS.AllowedOrigins = origins
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Upstream.Space) == "" {
		return errors.New("config: upstream.space is required")
	}
	if !strings.HasPrefix(c.Upstream.Route, "/") {
		return fmt.Errorf("config: upstream.route %q must start with /", c.Upstream.Route)
	}
	if c.Upstream.ConnectTimeout <= 0 || c.Upstream.PredictTimeout <= 0 {
		return errors.New("config: upstream timeouts must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("config: server.shutdownTimeout must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*dst = value
	}
}
