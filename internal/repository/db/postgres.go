package db

import (
	"context"
	"fmt"
	"time"

	"govtender/internal/config"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

func NewPostgresDB(cfg *config.PostgresConfig) (*sqlx.DB, error) {
	log.Info().Msg("connecting to postgres")

	db, err := sqlx.Open("postgres", cfg.Conn)
	if err != nil {
		return nil, fmt.Errorf("db.NewPostgresDB: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("db.NewPostgresDB: %w", err)
	}

	return db, nil
}
