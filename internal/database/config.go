package database

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"workshops/internal/config"
	"workshops/internal/models"
	"workshops/internal/utils"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var DB *gorm.DB

// sqliteBusyTimeout is how long a SQLite connection waits on a locked database
const sqliteBusyTimeout = 2 * time.Second

// InitDB opens the configured database, migrates the schema and stores the
// handle for GetDB.
func InitDB(cfg config.DatabaseConfig, zl *zap.Logger) error {
	db, err := Open(cfg, zl)
	if err != nil {
		return err
	}
	if err := Migrate(db); err != nil {
		return err
	}
	DB = db

	zl.Info("Database connection established and migrations completed", zap.String("driver", cfg.Driver))
	return nil
}

// Open connects to the database with retries and configures the pool.
func Open(cfg config.DatabaseConfig, zl *zap.Logger) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	// Create base logger
	baseLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags|log.Lshortfile),
		logger.Config{
			SlowThreshold:             time.Second, // Log queries slower than 1 second
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true, // Ignore ErrRecordNotFound error for logger
			Colorful:                  false,
		},
	)

	// Create custom logger that filters the scheduler's polling queries
	customLogger := utils.NewCustomGormLogger(
		baseLogger,
		"WHERE date_time >",
		"sent_reminder",
	)

	// Configure GORM
	gormConfig := &gorm.Config{
		Logger: customLogger,
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true, // Use singular table names
		},
		PrepareStmt:                              true,  // Enable prepared statement cache
		SkipDefaultTransaction:                   false, // Keep default transaction for safety
		DisableForeignKeyConstraintWhenMigrating: false, // Enable foreign key constraints
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	// Open connection with retry logic
	var db *gorm.DB
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(dialector, gormConfig)
		if err == nil {
			break
		}
		zl.Warn("Database connection attempt failed", zap.Int("attempt", i+1), zap.Error(err))
		if i < maxRetries-1 {
			zl.Info("Retrying database connection", zap.Duration("delay", cfg.RetryDelay))
			time.Sleep(cfg.RetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if cfg.Driver == config.DriverSQLite {
		// SQLite allows a single writer; serialize through one connection.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)           // Maximum number of idle connections
		sqlDB.SetMaxOpenConns(100)          // Maximum number of open connections
		sqlDB.SetConnMaxLifetime(time.Hour) // Maximum lifetime of a connection
	}

	return db, nil
}

// Migrate creates or updates all tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Workshop{},
		&models.Registration{},
		&models.Settings{},
		&models.SentReminder{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.Open(cfg.DSN()), nil
	case config.DriverSQLite:
		return sqlite.Open(sqliteDSN(cfg.SQLitePath)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func sqliteDSN(path string) string {
	qs := url.Values{
		"_pragma": []string{
			"journal_mode(WAL)",
			fmt.Sprintf("busy_timeout(%d)", sqliteBusyTimeout.Milliseconds()),
			"foreign_keys(1)",
		},
	}
	return "file:" + path + "?" + qs.Encode()
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
