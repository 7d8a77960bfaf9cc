// Package dsn provides Data Source Name construction utilities for database connections.
package dsn

import (
	"fmt"

	"github.com/GoVPN-Admin/GoVPN-Admin/internal/config"
)

// MySQL builds the Data Source Name for the mysql engine.
func MySQL(cfg *config.Config) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		cfg.DB.User,
		cfg.DB.Password,
		cfg.DB.Host,
		cfg.DB.Port,
		cfg.DB.Name,
		cfg.DB.Extras,
	)
}

// Postgres builds the Data Source Name for the postgres engine.
func Postgres(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s %s",
		cfg.DB.Host,
		cfg.DB.Port,
		cfg.DB.User,
		cfg.DB.Password,
		cfg.DB.Name,
		cfg.DB.Extras,
	)
}

// SQLite returns the database file path for the sqlite engine, defaulting to
// a local file for dev setups.
func SQLite(cfg *config.Config) string {
	if cfg.DB.Path == "" {
		return "./go-vpn-admin.db"
	}

	return cfg.DB.Path
}
