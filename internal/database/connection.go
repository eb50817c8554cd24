package database

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	DBName          string
	Password        string
	MaxConn         int
	MaxIdleConn     int
	ConnMaxLifetime int
	LogLevel        string
	SSLMode         string
}

func NewConnection(dbConfig *DatabaseConfig) (*gorm.DB, error) {
	if err := validateConfig(dbConfig); err != nil {
		return nil, err
	}

	portInt, err := strconv.Atoi(dbConfig.Port)
	if err != nil {
		return nil, fmt.Errorf("invalid port number: %w", err)
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host, portInt, dbConfig.User, dbConfig.Password, dbConfig.DBName, dbConfig.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(dbConfig.LogLevel)),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	maxIdle := dbConfig.MaxIdleConn
	if maxIdle <= 0 {
		maxIdle = 10
	}
	maxOpen := dbConfig.MaxConn
	if maxOpen <= 0 {
		maxOpen = 25
	}
	lifetime := time.Duration(dbConfig.ConnMaxLifetime) * time.Minute
	if lifetime <= 0 {
		lifetime = time.Hour
	}

	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(lifetime)

	return db, nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToUpper(level) {
	case "SILENT":
		return logger.Silent
	case "ERROR":
		return logger.Error
	case "INFO":
		return logger.Info
	default:
		return logger.Warn
	}
}

func validateConfig(config *DatabaseConfig) error {
	switch {
	case config == nil:
		return errors.New("database config is nil")
	case config.Host == "":
		return errors.New("database host config is empty")
	case config.Port == "":
		return errors.New("database port config is empty")
	case config.User == "":
		return errors.New("database user config is empty")
	case config.Password == "":
		return errors.New("database password config is empty")
	case config.DBName == "":
		return errors.New("database name config is empty")
	case config.SSLMode == "":
		return errors.New("database SSLMode config is empty")
	}
	return nil
}
