// Package migrations wraps golang-migrate to apply the engine's schema
// (task_jobs, task_queries, search_records, search_queries, citations,
// executor_sub_query_log, domain_stats, plus the ambient event_logs table)
// against a Postgres database when RunUp is called. cmd/gateway does not
// call RunUp.
package migrations

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// RunUp applies all pending UP migrations found under migrationsPath
// against the database identified by dsn (a libpq-style postgres:// URL).
func RunUp(dsn string, migrationsPath string, logger *zap.Logger) error {
	sourceURL := "file://" + migrationsPath

	m, err := migrate.New(sourceURL, dsn)
	if err != nil {
		return fmt.Errorf("migrations: failed to initialize: %w", err)
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		if sourceErr != nil {
			logger.Warn("migrations source close failed", zap.Error(sourceErr))
		}
		if dbErr != nil {
			logger.Warn("migrations db close failed", zap.Error(dbErr))
		}
	}()

	m.Log = &zapMigrateLogger{logger: logger}

	current, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migrations: failed to read version: %w", err)
	}
	if dirty {
		return fmt.Errorf("migrations: database is dirty at version %d, manual intervention required", current)
	}

	logger.Info("migrations starting", zap.Uint("current_version", uint(current)))

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("migrations already up to date")
			return nil
		}
		return fmt.Errorf("migrations: up failed: %w", err)
	}

	newVersion, _, _ := m.Version()
	logger.Info("migrations applied", zap.Uint("to_version", uint(newVersion)))
	return nil
}

type zapMigrateLogger struct {
	logger *zap.Logger
}

func (l *zapMigrateLogger) Printf(format string, args ...interface{}) {
	l.logger.Sugar().Debugf(format, args...)
}

func (l *zapMigrateLogger) Verbose() bool {
	return false
}
