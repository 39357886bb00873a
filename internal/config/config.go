package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret"`
		TokenTTL  string `yaml:"tokenTTL"`
	} `yaml:"auth"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	Quiz struct {
		TTL              string `yaml:"ttl"`
		BasePoints       int    `yaml:"basePoints"`
		TickInterval     string `yaml:"tickInterval"`
		GracePeriod      string `yaml:"gracePeriod"`
		DefaultTimeLimit int    `yaml:"defaultTimeLimit"`
		EndOnEmptyLobby  bool   `yaml:"endOnEmptyLobby"`
	} `yaml:"quiz"`
}

// env holds the variables that win over the YAML file when set.
type env struct {
	Port        string `envconfig:"PORT"`
	JWTSecret   string `envconfig:"JWT_SECRET"`
	RedisAddr   string `envconfig:"REDIS_ADDR"`
	PostgresURL string `envconfig:"POSTGRES_URL"`
	MongoURI    string `envconfig:"MONGO_URI"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
}

// Load reads YAML config from path, then applies environment overrides.
// A .env file in the working directory is loaded first when present.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	_ = godotenv.Load()
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var e env
	if err := envconfig.Process("", &e); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	override(&cfg.Server.Port, e.Port)
	override(&cfg.Auth.JWTSecret, e.JWTSecret)
	override(&cfg.Redis.Addr, e.RedisAddr)
	override(&cfg.Postgres.URL, e.PostgresURL)
	override(&cfg.Mongo.URI, e.MongoURI)
	override(&cfg.Log.Level, e.LogLevel)
	return nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
