// Package migrations предоставляет обертку над goose для управления
// схемой хранилища саг в PostgreSQL.
package migrations

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
)

// DefaultDir директория с файлами миграций по умолчанию
const DefaultDir = "./migrations"

// MigrationStatus представляет статус миграции
type MigrationStatus struct {
	Version   int64
	Name      string
	AppliedAt *time.Time
	Status    string // "pending", "applied"
}

// SetDialect устанавливает диалект БД.
// Если dialect пустой, устанавливается значение по умолчанию "postgres".
func SetDialect(dialect string) error {
	if dialect == "" {
		dialect = "postgres"
	}
	return goose.SetDialect(dialect)
}

// RunMigrations применяет все pending миграции из указанной директории
func RunMigrations(db *sql.DB, dir string) error {
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// RollbackMigrations откатывает N последних миграций
func RollbackMigrations(db *sql.DB, dir string, steps int64) error {
	currentVersion, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	targetVersion := currentVersion - steps
	if targetVersion < 0 {
		targetVersion = 0
	}

	if err := goose.DownTo(db, dir, targetVersion); err != nil {
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}
	return nil
}

// GetMigrationStatus возвращает статус всех миграций
func GetMigrationStatus(db *sql.DB, dir string) ([]MigrationStatus, error) {
	collected, err := goose.CollectMigrations(dir, 0, goose.MaxVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to collect migrations: %w", err)
	}

	currentVersion, err := goose.GetDBVersion(db)
	if err != nil {
		// Таблица версий еще не создана, все миграции pending
		currentVersion = 0
	}

	var statuses []MigrationStatus
	for _, migration := range collected {
		status := MigrationStatus{
			Version: migration.Version,
			Name:    migration.Source,
			Status:  "pending",
		}

		if migration.Version <= currentVersion {
			var appliedAt time.Time
			err := db.QueryRow(
				"SELECT tstamp FROM goose_db_version WHERE version_id = $1 AND is_applied = true ORDER BY tstamp DESC LIMIT 1",
				migration.Version,
			).Scan(&appliedAt)
			if err == nil {
				status.AppliedAt = &appliedAt
				status.Status = "applied"
			}
		}

		statuses = append(statuses, status)
	}

	return statuses, nil
}

// GetCurrentVersion возвращает текущую версию БД
func GetCurrentVersion(db *sql.DB) (int64, error) {
	version, err := goose.GetDBVersion(db)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}
