package database

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sahilchouksey/course-marketplace/config"
	"github.com/sahilchouksey/course-marketplace/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GORMStore struct {
	db  *gorm.DB
	log *slog.Logger
}

// NewGORMStore wraps an already opened connection
func NewGORMStore(db *gorm.DB, log *slog.Logger) *GORMStore {
	return &GORMStore{db: db, log: log}
}

// StartGORM initializes a GORM connection to PostgreSQL, retrying while the
// database is still coming up.
func StartGORM(cfg *config.Config, log *slog.Logger) (*GORMStore, error) {
	// Build DSN (Data Source Name)
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.Database.Host,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.Port,
		cfg.Database.SSLMode,
	)

	// Configure GORM logger
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.IsProduction() {
		gormLogger = logger.Default.LogMode(logger.Error)
	}

	var db *gorm.DB
	err := retry.Do(
		func() error {
			var openErr error
			db, openErr = gorm.Open(postgres.Open(dsn), &gorm.Config{
				Logger:                 gormLogger,
				SkipDefaultTransaction: false,
				PrepareStmt:            true,
				TranslateError:         true,
			})
			if openErr != nil {
				return openErr
			}
			sqlDB, openErr := db.DB()
			if openErr != nil {
				return openErr
			}
			return sqlDB.Ping()
		},
		retry.Attempts(cfg.Database.ConnectAttempts),
		retry.Delay(cfg.Database.ConnectDelay),
		retry.MaxDelay(cfg.Database.ConnectMaxDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("postgres not reachable, retrying",
				slog.Uint64("attempt", uint64(n+1)),
				slog.Any("error", err),
			)
		}),
	)
	if err != nil {
		log.Error("unable to connect to PostgreSQL with GORM", slog.Any("error", err))
		return nil, err
	}

	// Get underlying *sql.DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("connected to PostgreSQL with GORM", slog.String("host", cfg.Database.Host), slog.String("db", cfg.Database.Name))

	return &GORMStore{db: db, log: log}, nil
}

// AutoMigrate creates or updates every table the service owns
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		// Catalog
		&model.Course{},

		// Purchase ledger and checkout intents
		&model.PaymentOrder{},
		&model.Purchase{},
		&model.WebhookEvent{},

		// Housekeeping
		&model.CronJobLog{},
	)
}

// Init runs the AutoMigrate to create/update tables
func (s *GORMStore) Init() error {
	s.log.Info("running GORM AutoMigrate")

	if err := AutoMigrate(s.db); err != nil {
		s.log.Error("error running AutoMigrate", slog.Any("error", err))
		return err
	}

	s.log.Info("GORM AutoMigrate completed")
	return nil
}

// Close closes the database connection
func (s *GORMStore) Close() error {
	s.log.Info("closing GORM PostgreSQL connection")
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the GORM DB instance for use in services/handlers
func (s *GORMStore) GetDB() *gorm.DB {
	return s.db
}

// HealthCheck verifies the database connection is alive
func (s *GORMStore) HealthCheck() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
