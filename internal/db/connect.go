package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/Spok95/school-fees/internal/db/migrations"
	"github.com/Spok95/school-fees/internal/metrics"
)

// Open connects through the pgx driver and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	database.SetMaxOpenConns(10)
	database.SetMaxIdleConns(5)
	database.SetConnMaxIdleTime(5 * time.Minute)

	if err := Ping(ctx, database); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return database, nil
}

// Ping checks the connection and records the latency.
func Ping(ctx context.Context, database *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	start := time.Now()
	err := database.PingContext(ctx)
	metrics.ObserveDBPing(time.Since(start))
	return err
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, database *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, database, ".")
}
