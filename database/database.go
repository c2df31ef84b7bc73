package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrUnsupportedDriver is returned for a driver other than mysql or sqlite.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Config holds database connection configuration.
type Config struct {
	// Driver is "mysql" (default) or "sqlite". For sqlite, Database is the file path.
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
}

// DSN returns the MySQL data source name for cfg.
func (c Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC&multiStatements=true",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// Connect opens a gorm connection and applies the pool limits.
func Connect(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case "", "mysql":
		dialector = mysql.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.Database)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// newMigrator reads migrations from path, or from the embedded set when path is empty.
func newMigrator(sqlDB *sql.DB, path string) (*migrate.Migrate, error) {
	driver, err := migratemysql.WithInstance(sqlDB, &migratemysql.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}
	if path == "" {
		src, err := embeddedMigrations()
		if err != nil {
			return nil, err
		}
		m, err := migrate.NewWithInstance("iofs", src, "mysql", driver)
		if err != nil {
			return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
		}
		return m, nil
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+path, "mysql", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations from %s: %w", path, err)
	}
	return m, nil
}

// RunMigrations applies every pending migration. An empty path uses the embedded migrations.
func RunMigrations(sqlDB *sql.DB, path string) error {
	m, err := newMigrator(sqlDB, path)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// RollbackMigration reverts the most recent migration.
func RollbackMigration(sqlDB *sql.DB, path string) error {
	m, err := newMigrator(sqlDB, path)
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	return nil
}

// MigrationVersion reports the applied schema version and whether the last migration stopped
// halfway. A database with no migrations applied reports version 0.
func MigrationVersion(sqlDB *sql.DB, path string) (uint, bool, error) {
	m, err := newMigrator(sqlDB, path)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read migration version: %w", err)
	}
	return version, dirty, nil
}
