package repository

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/opensegment/magpie/internal/domain"
)

// openMySQL opens a MySQL database connection.
// parseTime makes DATETIME columns scan into time.Time, and
// multiStatements lets the multi-statement schema blobs run in one Exec.
func openMySQL(cfg domain.RepositoryConfig) (*sql.DB, error) {
	host := cfg.MySQLHost
	if host == "" {
		host = "localhost"
	}

	port := cfg.MySQLPort
	if port == 0 {
		port = 3306
	}

	dbname := cfg.MySQLDB
	if dbname == "" {
		dbname = "magpie"
	}

	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true&charset=utf8mb4",
		cfg.MySQLUser,
		cfg.MySQLPassword,
		host,
		port,
		dbname,
	)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql database: %w", err)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql database: %w", err)
	}

	return db, nil
}
