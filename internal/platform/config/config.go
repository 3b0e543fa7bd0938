package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures everything the engine process needs from the environment so
// main stays lean. Parsing is delegated to caarlos0/env; defaults mirror the
// production deployment.
type Config struct {
	// Chat transport.
	BotToken    string  `env:"BOT_TOKEN"`
	ReviewerIDs []int64 `env:"REVIEWER_IDS" envSeparator:","`

	// Surfaces. ReportsChatID hosts the forum topics the engine publishes to;
	// GroupChatID is the group invite links are minted for.
	ReportsChatID      int64  `env:"REPORTS_CHAT_ID"`
	GroupChatID        int64  `env:"GROUP_CHAT_ID"`
	WarningsTopicID    int    `env:"WARNINGS_TOPIC_ID" envDefault:"146"`
	LeaveTopicID       int    `env:"AFK_TOPIC_ID" envDefault:"152"`
	FallbackInviteLink string `env:"GROUP_INVITE_LINK"`

	// Storage. SQLite by default; REDIS_URL switches the rate windows to a
	// shared backend without touching the rest of the wiring.
	DBPath   string `env:"DB_PATH" envDefault:"data/dutybot.db"`
	RedisURL string `env:"REDIS_URL"`

	// CatalogPath overrides the embedded rank/department catalog.
	CatalogPath string `env:"CATALOG_PATH"`

	// Rate limiter knobs, split by event kind because message and button
	// cadences differ.
	MessageLimit       int           `env:"RATE_MESSAGE_LIMIT" envDefault:"5"`
	MessageWindow      time.Duration `env:"RATE_MESSAGE_WINDOW" envDefault:"5s"`
	MessageMinInterval time.Duration `env:"RATE_MESSAGE_MIN_INTERVAL" envDefault:"500ms"`
	ActionLimit        int           `env:"RATE_ACTION_LIMIT" envDefault:"10"`
	ActionWindow       time.Duration `env:"RATE_ACTION_WINDOW" envDefault:"10s"`
	ActionMinInterval  time.Duration `env:"RATE_ACTION_MIN_INTERVAL" envDefault:"300ms"`
	WarnCooldown       time.Duration `env:"RATE_WARN_COOLDOWN" envDefault:"10s"`

	// Ops HTTP surface (health + metrics).
	OpsAddr string `env:"OPS_ADDR" envDefault:":9090"`
}

// FromEnv builds a Config from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.BotToken == "" {
		return Config{}, errors.New("BOT_TOKEN is required")
	}
	if len(cfg.ReviewerIDs) == 0 {
		return Config{}, errors.New("REVIEWER_IDS is required")
	}
	return cfg, nil
}
