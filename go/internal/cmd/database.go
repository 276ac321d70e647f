package main

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/mcdev12/draftlobby/go/internal/config"
	"github.com/mcdev12/draftlobby/go/internal/draft/store"
	"github.com/rs/zerolog/log"
)

func setupDatabase(cfg *config.Config) (*sql.DB, error) {
	database, err := sql.Open("postgres", cfg.DB.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.MigrateOnStart {
		if err := store.Migrate(database); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	log.Info().
		Str("user", cfg.DB.User).
		Str("host", cfg.DB.Host).
		Int("port", cfg.DB.Port).
		Str("database", cfg.DB.Database).
		Msg("connected to database")
	return database, nil
}
