package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Режимы пересчёта задолженности
const (
	ArrearsModeInline = "inline"
	ArrearsModeQueue  = "queue"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server struct {
		Port int `validate:"gt=0,lt=65536"`
	}
	DB struct {
		Driver         string `validate:"oneof=postgres sqlite"`
		DSN            string
		Host           string
		Port           int
		User           string
		Password       string
		DBName         string
		SSLMode        string
		Migrations     bool
		MigrationsPath string
		Debug          bool
	}
	JWT struct {
		SecretKey string
	}
	SMTP struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
		To       string // адрес оператора для отчётов об импорте
	}
	Redis struct {
		Addr     string
		Password string
		DB       int `validate:"gte=0"`
	}
	Import struct {
		MaxErrors   int `validate:"gt=0"`
		MaxUploadMB int `validate:"gt=0"`
	}
	Arrears struct {
		Mode           string `validate:"oneof=inline queue"`
		PressureMonths int    `validate:"gte=0"`
		PressureAmount int64  `validate:"gte=0"`
		DueFormula     string
		QueueKey       string
		LockKey        string
		Interval       time.Duration
	}
	Log struct {
		Dir string
	}
}

// NewConfig создает новый экземпляр конфигурации.
// Порядок: переменные окружения > config.yaml > .env > значения по умолчанию.
func NewConfig() (*Config, error) {
	// .env нужен только в разработке, его отсутствие не ошибка
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "rent_ledger")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.migrations", false)
	v.SetDefault("db.migrations_path", "migrations")
	v.SetDefault("db.debug", false)

	v.SetDefault("jwt.secret_key", "your-secret-key-here")

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.to", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("import.max_errors", 1000)
	v.SetDefault("import.max_upload_mb", 32)

	v.SetDefault("arrears.mode", ArrearsModeInline)
	v.SetDefault("arrears.pressure_months", 1)
	v.SetDefault("arrears.pressure_amount", 2000000)
	v.SetDefault("arrears.due_formula", "")
	v.SetDefault("arrears.queue_key", "arrears:recompute")
	v.SetDefault("arrears.lock_key", "arrears:recompute:lock")
	v.SetDefault("arrears.interval", "6h")

	v.SetDefault("log.dir", "")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	// Настройки сервера
	cfg.Server.Port = v.GetInt("server.port")

	// Настройки базы данных
	cfg.DB.Driver = strings.ToLower(v.GetString("db.driver"))
	cfg.DB.DSN = v.GetString("db.dsn")
	cfg.DB.Host = v.GetString("db.host")
	cfg.DB.Port = v.GetInt("db.port")
	cfg.DB.User = v.GetString("db.user")
	cfg.DB.Password = v.GetString("db.password")
	cfg.DB.DBName = v.GetString("db.name")
	cfg.DB.SSLMode = v.GetString("db.sslmode")
	cfg.DB.Migrations = v.GetBool("db.migrations")
	cfg.DB.MigrationsPath = v.GetString("db.migrations_path")
	cfg.DB.Debug = v.GetBool("db.debug")

	// Настройки JWT
	cfg.JWT.SecretKey = v.GetString("jwt.secret_key")

	// Настройки SMTP
	cfg.SMTP.Host = v.GetString("smtp.host")
	cfg.SMTP.Port = v.GetInt("smtp.port")
	cfg.SMTP.Username = v.GetString("smtp.username")
	cfg.SMTP.Password = v.GetString("smtp.password")
	cfg.SMTP.From = v.GetString("smtp.from")
	cfg.SMTP.To = v.GetString("smtp.to")

	// Настройки Redis
	cfg.Redis.Addr = v.GetString("redis.addr")
	cfg.Redis.Password = v.GetString("redis.password")
	cfg.Redis.DB = v.GetInt("redis.db")

	// Настройки импорта
	cfg.Import.MaxErrors = v.GetInt("import.max_errors")
	cfg.Import.MaxUploadMB = v.GetInt("import.max_upload_mb")

	// Настройки пересчёта задолженности
	cfg.Arrears.Mode = strings.ToLower(v.GetString("arrears.mode"))
	cfg.Arrears.PressureMonths = v.GetInt("arrears.pressure_months")
	cfg.Arrears.PressureAmount = v.GetInt64("arrears.pressure_amount")
	cfg.Arrears.DueFormula = v.GetString("arrears.due_formula")
	cfg.Arrears.QueueKey = v.GetString("arrears.queue_key")
	cfg.Arrears.LockKey = v.GetString("arrears.lock_key")
	cfg.Arrears.Interval = v.GetDuration("arrears.interval")

	cfg.Log.Dir = v.GetString("log.dir")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return err
		}
		var errorMessages []string
		for _, e := range validationErrors {
			errorMessages = append(errorMessages, fmt.Sprintf("неверное значение %s: %v", e.Namespace(), e.Value()))
		}
		return errors.New(strings.Join(errorMessages, "; "))
	}
	if c.Arrears.Mode == ArrearsModeQueue && c.Redis.Addr == "" {
		return errors.New("режим очереди пересчёта требует REDIS_ADDR")
	}
	return nil
}

// PostgresDSN возвращает строку подключения для драйвера GORM
func (c *Config) PostgresDSN() string {
	if c.DB.DSN != "" {
		return c.DB.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.DBName,
		c.DB.SSLMode,
	)
}

// MigrationURL возвращает URL для golang-migrate
func (c *Config) MigrationURL() string {
	if strings.HasPrefix(c.DB.DSN, "postgres://") || strings.HasPrefix(c.DB.DSN, "postgresql://") {
		return c.DB.DSN
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DB.User, c.DB.Password),
		Host:     fmt.Sprintf("%s:%d", c.DB.Host, c.DB.Port),
		Path:     "/" + c.DB.DBName,
		RawQuery: "sslmode=" + c.DB.SSLMode,
	}
	return u.String()
}

// MigrationsSource возвращает URL источника SQL-миграций
func (c *Config) MigrationsSource() string {
	if strings.Contains(c.DB.MigrationsPath, "://") {
		return c.DB.MigrationsPath
	}
	return "file://" + c.DB.MigrationsPath
}

// SQLitePath возвращает путь к файлу SQLite
func (c *Config) SQLitePath() string {
	if c.DB.DSN != "" {
		return c.DB.DSN
	}
	return c.DB.DBName + ".db"
}
