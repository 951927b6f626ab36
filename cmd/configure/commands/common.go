package commands

import (
	"fmt"

	"github.com/benvon/crm-tools/internal/config"
	"github.com/benvon/crm-tools/internal/database"
)

// openDatabase loads configuration from the environment and connects to the database.
func openDatabase() (*config.Config, *database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return cfg, db, nil
}
