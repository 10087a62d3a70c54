package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr string

	RedisURL    string
	DatabaseURL string

	AdminToken string

	GameDuration time.Duration
	TickInterval time.Duration
	MaxRounds    int
	Alphabet     string

	DictPath      string
	ClassifierURL string

	LeaderboardSize int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:      ":8080",
		GameDuration:    45 * time.Second,
		TickInterval:    100 * time.Millisecond,
		MaxRounds:       15,
		LeaderboardSize: 50,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.AdminToken = strings.TrimSpace(os.Getenv("ADMIN_TOKEN"))

	if v := strings.TrimSpace(os.Getenv("GAME_DURATION")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.GameDuration = d
		} else if n, err := strconv.Atoi(v); err == nil && n > 0 { // bare seconds
			cfg.GameDuration = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("TICK_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.TickInterval = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_ROUNDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxRounds = n
		}
	}
	cfg.Alphabet = strings.TrimSpace(os.Getenv("GAME_ALPHABET"))

	cfg.DictPath = strings.TrimSpace(os.Getenv("DICT_PATH"))
	cfg.ClassifierURL = strings.TrimSpace(os.Getenv("CLASSIFIER_URL"))

	if v := strings.TrimSpace(os.Getenv("LEADERBOARD_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LeaderboardSize = n
		}
	}

	if cfg.AdminToken == "" {
		return nil, errors.New("ADMIN_TOKEN is required")
	}

	return cfg, nil
}
