package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken    string           `yaml:"discord_token"`
	DatabasePath    string           `yaml:"database_path"`
	LogLevel        string           `yaml:"log_level"`
	DefaultTimezone string           `yaml:"default_timezone"`
	RetentionDays   int              `yaml:"retention_days"`
	Web             WebConfig        `yaml:"web"`
	Archiver        ArchiverConfig   `yaml:"archiver"`
	Birthday        BirthdayConfig   `yaml:"birthday"`
	Moderation      ModerationConfig `yaml:"moderation"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type ArchiverConfig struct {
	Backfill      bool `yaml:"backfill"`
	BackfillChunk int  `yaml:"backfill_chunk"`
	FlushSize     int  `yaml:"flush_size"`
	FlushSeconds  int  `yaml:"flush_seconds"`
}

type BirthdayConfig struct {
	Enabled      bool `yaml:"enabled"`
	AnnounceHour int  `yaml:"announce_hour"`
}

type ModerationConfig struct {
	WarnEscalation  int `yaml:"warn_escalation"`
	ForgivenessDays int `yaml:"forgiveness_days"`
	TimeoutMinutes  int `yaml:"timeout_minutes"`
}

func DefaultConfig() Config {
	return Config{
		DatabasePath:    "/data/nimbus.db",
		LogLevel:        "info",
		DefaultTimezone: "America/Los_Angeles",
		RetentionDays:   90,
		Web:             WebConfig{Enabled: false, Addr: ":8080"},
		Archiver: ArchiverConfig{
			Backfill:      true,
			BackfillChunk: 100,
			FlushSize:     200,
			FlushSeconds:  30,
		},
		Birthday: BirthdayConfig{Enabled: true, AnnounceHour: 9},
		Moderation: ModerationConfig{
			WarnEscalation:  3,
			ForgivenessDays: 30,
			TimeoutMinutes:  10,
		},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	if cfg.Birthday.AnnounceHour < 0 || cfg.Birthday.AnnounceHour > 23 {
		cfg.Birthday.AnnounceHour = 9
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.DefaultTimezone = envString("DEFAULT_TIMEZONE", cfg.DefaultTimezone)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.Web.Enabled = envBool("WEB_ENABLED", cfg.Web.Enabled)
	cfg.Web.Addr = envString("WEB_ADDR", cfg.Web.Addr)
	cfg.Archiver.Backfill = envBool("ARCHIVER_BACKFILL", cfg.Archiver.Backfill)
	cfg.Archiver.BackfillChunk = envInt("ARCHIVER_BACKFILL_CHUNK", cfg.Archiver.BackfillChunk)
	cfg.Archiver.FlushSize = envInt("ARCHIVER_FLUSH_SIZE", cfg.Archiver.FlushSize)
	cfg.Archiver.FlushSeconds = envInt("ARCHIVER_FLUSH_SECONDS", cfg.Archiver.FlushSeconds)
	cfg.Birthday.Enabled = envBool("BIRTHDAY_ENABLED", cfg.Birthday.Enabled)
	cfg.Birthday.AnnounceHour = envInt("BIRTHDAY_ANNOUNCE_HOUR", cfg.Birthday.AnnounceHour)
	cfg.Moderation.WarnEscalation = envInt("MOD_WARN_ESCALATION", cfg.Moderation.WarnEscalation)
	cfg.Moderation.ForgivenessDays = envInt("MOD_FORGIVENESS_DAYS", cfg.Moderation.ForgivenessDays)
	cfg.Moderation.TimeoutMinutes = envInt("MOD_TIMEOUT_MINUTES", cfg.Moderation.TimeoutMinutes)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
