package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tracevia/cmmsgo/internal/config"
	"github.com/tracevia/cmmsgo/internal/models"
)

// DB wraps gorm.DB and, on the site-server profile, the embedded
// PostgreSQL instance backing it.
type DB struct {
	*gorm.DB
	embedded *embeddedpostgres.EmbeddedPostgres
}

// Connect opens the local store. Driver "sqlite" opens a single-file
// database (handheld profile). Driver "postgres" connects to the
// configured server, starting an embedded instance when the target is
// localhost with no password (site-server profile).
func Connect(cfg *config.DatabaseConfig) (*DB, error) {
	switch cfg.Driver {
	case "sqlite":
		return connectSQLite(cfg)
	case "postgres":
		return connectPostgres(cfg)
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}
}

func connectSQLite(cfg *config.DatabaseConfig) (*DB, error) {
	gormDB, err := gorm.Open(sqlite.Open(cfg.Path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	log.Printf("Connected to local store (sqlite: %s)", cfg.Path)
	return &DB{DB: gormDB}, nil
}

func connectPostgres(cfg *config.DatabaseConfig) (*DB, error) {
	var embedded *embeddedpostgres.EmbeddedPostgres

	// Embedded mode: localhost with no password configured
	if cfg.Host == "localhost" && cfg.Password == "" {
		dataPath := filepath.Join(".", "pgdata")
		cleanupStalePostmaster(dataPath)

		embedded = embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
			Username(cfg.Username).
			Password("postgres").
			Database(cfg.Database).
			Port(5433).
			DataPath(dataPath).
			Logger(os.Stdout))

		if err := embedded.Start(); err != nil {
			return nil, fmt.Errorf("failed to start embedded postgres: %w", err)
		}
		cfg.Port = "5433"
		cfg.Password = "postgres"
		log.Println("Embedded PostgreSQL started on port 5433")
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)

	gormDB, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		if embedded != nil {
			embedded.Stop()
		}
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	log.Printf("Connected to local store (postgres: %s:%s/%s)", cfg.Host, cfg.Port, cfg.Database)
	return &DB{DB: gormDB, embedded: embedded}, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// cleanupStalePostmaster removes a stale pid file left by an unclean
// shutdown so the embedded instance can start again.
func cleanupStalePostmaster(dataPath string) {
	pidFile := filepath.Join(dataPath, "postmaster.pid")
	if _, err := os.Stat(pidFile); err == nil {
		log.Printf("Removing stale postmaster.pid at %s", pidFile)
		os.Remove(pidFile)
	}
}

// AutoMigrate creates or updates the local store schema
func (db *DB) AutoMigrate() error {
	return db.DB.AutoMigrate(
		&models.CachedRecord{},
		&models.OutboxEntry{},
		&models.SyncWatermark{},
		&models.ConflictItem{},
	)
}

// Close shuts down the store, stopping the embedded instance if one is
// running.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err == nil {
		sqlDB.Close()
	}
	if db.embedded != nil {
		return db.embedded.Stop()
	}
	return nil
}
