package database

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"exam-system/pkg/logger"
)

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// gormWriter sends gorm's slow-query and error lines through the app logger.
type gormWriter struct {
	log *logger.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn(fmt.Sprintf(format, args...))
}

func gormConfig(log *logger.Logger) *gorm.Config {
	return &gorm.Config{
		// Unique and foreign key violations surface as gorm.ErrDuplicatedKey / gorm.ErrForeignKeyViolated.
		TranslateError: true,
		Logger: gormlogger.New(gormWriter{log: log.With("component", "gorm")}, gormlogger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      gormlogger.Warn,
			// Lookups of missing rows are answered as not_found, not logged.
			IgnoreRecordNotFoundError: true,
		}),
	}
}

func NewPostgresDB(config *Config, log *logger.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		config.Host,
		config.User,
		config.Password,
		config.DBName,
		config.Port,
	)

	db, err := gorm.Open(postgres.Open(dsn), gormConfig(log))
	if err != nil {
		return nil, err
	}

	return db, nil
}

// NewSQLiteDB opens a sqlite database with foreign keys enforced. path may be
// ":memory:"-style DSNs as accepted by go-sqlite3.
func NewSQLiteDB(path string, log *logger.Logger) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:"
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := gorm.Open(sqlite.Open(dsn+sep+"_foreign_keys=on&_busy_timeout=5000"), gormConfig(log))
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers; one connection keeps transactions from deadlocking each other.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Open connects to the configured driver: "postgres" uses cfg, "sqlite" uses
// sqlitePath.
func Open(driver string, cfg *Config, sqlitePath string, log *logger.Logger) (*gorm.DB, error) {
	switch driver {
	case "postgres":
		return NewPostgresDB(cfg, log)
	case "sqlite":
		return NewSQLiteDB(sqlitePath, log)
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}
