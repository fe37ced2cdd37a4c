package database

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"rentledger/config"
	"rentledger/models"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database представляет подключение к базе данных
type Database struct {
	DB *gorm.DB
}

// NewDatabase открывает подключение выбранным драйвером и готовит схему.
// Для postgres с DB_MIGRATIONS=true применяются SQL-миграции, иначе AutoMigrate.
func NewDatabase(cfg *config.Config) (*Database, error) {
	// Настраиваем логгер
	logLevel := logger.Warn
	if cfg.DB.Debug {
		logLevel = logger.Info
	}
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch cfg.DB.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath())
	default:
		dialector = postgres.Open(cfg.PostgresDSN())
	}

	// Устанавливаем соединение
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %w", err)
	}

	// Настраиваем пул соединений
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пула соединений: %w", err)
	}
	if cfg.DB.Driver == "sqlite" {
		// SQLite допускает одного писателя
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	d := &Database{DB: db}
	if err := d.Migrate(cfg); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

// Migrate приводит схему к актуальному виду
func (d *Database) Migrate(cfg *config.Config) error {
	if cfg.DB.Driver == "postgres" && cfg.DB.Migrations {
		if err := RunMigrations(cfg.MigrationsSource(), cfg.MigrationURL()); err != nil {
			return fmt.Errorf("ошибка выполнения SQL миграций: %w", err)
		}
		return nil
	}
	return AutoMigrate(d.DB)
}

// GetDB возвращает экземпляр GORM
func (d *Database) GetDB() *gorm.DB {
	return d.DB
}

// Close закрывает подключение к базе данных
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RunMigrations выполняет SQL миграции golang-migrate
func RunMigrations(sourceURL, databaseURL string) error {
	// Создаем экземпляр миграции
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return fmt.Errorf("ошибка создания миграции: %w", err)
	}
	defer m.Close()

	// Выполняем миграции
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка выполнения миграций: %w", err)
	}

	return nil
}

// AutoMigrate выполняет автоматическую миграцию моделей
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Owner{},
		&models.Site{},
		&models.Tenant{},
		&models.Contract{},
		&models.ImportRun{},
		&models.Payment{},
		&models.PaymentStatusYear{},
	)
	if err != nil {
		return fmt.Errorf("ошибка автоматической миграции: %w", err)
	}

	return nil
}
