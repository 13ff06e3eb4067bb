package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string // empty: in-memory store
	HTTPAddr    string
	LogLevel    string
	Env         string // dev|prod
	SentryDSN   string
	Release     string

	BotToken string  // empty: notifications go to the log only
	AdminIDs []int64 // chats that receive notifications

	Location          *time.Location
	OverdueAfter      time.Duration
	ReconcileInterval time.Duration
	OverdueNoticeCron string

	BackupURL  string // empty: no scheduled backups
	BackupCron string
}

func Load() (*Config, error) {
	tz := getenv("TZ", "Europe/Moscow")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.Local
	}

	adminIDs, err := parseIDs(os.Getenv("ADMIN_IDS"))
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS: %w", err)
	}

	days, err := strconv.Atoi(getenv("OVERDUE_AFTER_DAYS", "30"))
	if err != nil || days < 0 {
		return nil, fmt.Errorf("OVERDUE_AFTER_DAYS: bad value %q", os.Getenv("OVERDUE_AFTER_DAYS"))
	}

	interval, err := time.ParseDuration(getenv("RECONCILE_INTERVAL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("RECONCILE_INTERVAL: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("RECONCILE_INTERVAL: must be positive")
	}

	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		Env:               getenv("ENV", "dev"),
		SentryDSN:         os.Getenv("SENTRY_DSN"),
		Release:           getenv("RELEASE", "dev"),
		BotToken:          os.Getenv("BOT_TOKEN"),
		AdminIDs:          adminIDs,
		Location:          loc,
		OverdueAfter:      time.Duration(days) * 24 * time.Hour,
		ReconcileInterval: interval,
		OverdueNoticeCron: getenv("OVERDUE_NOTICE_CRON", "0 7 * * *"),
		BackupURL:         strings.TrimRight(os.Getenv("BACKUPCTL_URL"), "/"),
		BackupCron:        getenv("BACKUP_CRON", "30 2 * * *"),
	}
	if cfg.BotToken != "" && len(cfg.AdminIDs) == 0 {
		return nil, fmt.Errorf("BOT_TOKEN is set but ADMIN_IDS is empty")
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func parseIDs(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id %q: %w", p, err)
		}
		out = append(out, n)
	}
	return out, nil
}
