package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Spok95/school-fees/internal/app"
	"github.com/Spok95/school-fees/internal/backupclient"
	"github.com/Spok95/school-fees/internal/billing"
	"github.com/Spok95/school-fees/internal/config"
	"github.com/Spok95/school-fees/internal/db"
	"github.com/Spok95/school-fees/internal/jobs"
	"github.com/Spok95/school-fees/internal/logging"
	"github.com/Spok95/school-fees/internal/notify"
	"github.com/Spok95/school-fees/internal/observability"
	"github.com/Spok95/school-fees/internal/store"
	"github.com/Spok95/school-fees/internal/tracking"
)

func main() {
	// .env is optional; the environment wins
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded, using the process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Closer()

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, cfg.Release)
	if err != nil {
		lg.Base.Warn("sentry disabled", zap.Error(err))
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil && !errors.Is(err, context.Canceled) {
		observability.CaptureErr(err)
		lg.Base.Error("feesd stopped", zap.Error(err))
		flush()
		lg.Closer()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, lg *logging.Log) error {
	st, database, err := openStore(ctx, cfg, lg)
	if err != nil {
		return err
	}
	if database != nil {
		defer func() { _ = database.Close() }()
	}

	notes := notify.NewRecorder(200)
	status := notify.Multi{notify.NewLog(lg.Base), notes}
	var reminders notify.Notifier = notify.NewLog(lg.Component("reminders"))
	if cfg.BotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			return err
		}
		lg.Base.Info("telegram notifications enabled", zap.String("bot", bot.Self.UserName), zap.Int("chats", len(cfg.AdminIDs)))
		status = append(status, notify.NewTelegram(bot, cfg.AdminIDs, lg.Base))
		tgReminders := notify.NewTelegram(bot, cfg.AdminIDs, lg.Base)
		tgReminders.Verbose = true
		reminders = notify.Multi{reminders, tgReminders}
	}

	manager := billing.New(st, status, lg.Base)
	engine := tracking.NewEngine(st, status, lg.Base, tracking.WithOverdueAfter(cfg.OverdueAfter))
	coord := tracking.NewCoordinator(st, engine, lg.Base)

	errc := make(chan error, 1)
	go func() {
		defer observability.Recover("coordinator")
		errc <- coord.Run(ctx)
	}()

	notices := &jobs.Notices{
		Source:    coord,
		Reminders: reminders,
		Status:    status,
		Log:       lg.Component("notices"),
	}
	runner := jobs.New(ctx, lg.Base)
	runner.Every(cfg.ReconcileInterval, "reconcile_sweep", jobs.Sweep(coord))
	if cfg.OverdueNoticeCron != "" {
		if err := runner.Cron(cfg.OverdueNoticeCron, "overdue_notices", notices.Job()); err != nil {
			return err
		}
	}
	var backups jobs.Backuper
	if cfg.BackupURL != "" {
		backups = backupclient.New(cfg.BackupURL)
		if err := runner.Cron(cfg.BackupCron, "db_backup", jobs.Backup(backups, status)); err != nil {
			return err
		}
	}
	runner.Start()
	defer runner.Stop()

	h := app.NewHandler(app.Deps{
		Manager:  manager,
		Tracker:  coord,
		Store:    st,
		DB:       database,
		Notifier: status,
		Notes:    notes,
		Notices:  notices,
		Backup:   backups,
		Location: cfg.Location,
		Log:      lg.Base,
	})
	srv := app.StartHTTP(ctx, cfg.HTTPAddr, h, lg.Base)
	lg.Base.Info("feesd started", zap.String("addr", srv.Addr()), zap.Bool("postgres", database != nil))

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return err
	}
}

// openStore picks PostgreSQL when DATABASE_URL is set, memory otherwise.
func openStore(ctx context.Context, cfg *config.Config, lg *logging.Log) (store.Store, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		lg.Base.Warn("DATABASE_URL is empty, records live in memory only")
		return store.NewMemory(), nil, nil
	}
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx, database); err != nil {
		_ = database.Close()
		return nil, nil, err
	}
	return db.NewStore(database, cfg.DatabaseURL, lg.Base), database, nil
}
