package config

import (
	"github.com/imsportal/filingstack/internal/database"
	"github.com/imsportal/filingstack/internal/enum"
)

type AppConfig struct {
	APIPort string `env:"PORT,required" envDefault:"12222"`
	// Comma separated. A second key can be added while clients rotate.
	APIKey    string `env:"API_KEY,required"`
	AppSource string `env:"APP_SOURCE" envDefault:"filingstack"`
	// Where the shared catch-all mailbox is read from: graph or imap.
	MailboxProvider enum.MailboxProvider `env:"MAILBOX_PROVIDER" envDefault:"graph"`
	// Leader election
	PodName      string `env:"POD_NAME" envDefault:"local"`
	PodNamespace string `env:"POD_NAMESPACE" envDefault:"default"`
	LocalDev     bool   `env:"LOCAL_DEV" envDefault:"false"`
}

type FilingstackDatabaseConfig struct {
	Host            string `env:"FILINGSTACK_POSTGRES_HOST,required"`
	Port            string `env:"FILINGSTACK_POSTGRES_PORT,required"`
	User            string `env:"FILINGSTACK_POSTGRES_USER,required"`
	DBName          string `env:"FILINGSTACK_POSTGRES_DB_NAME,required"`
	Password        string `env:"FILINGSTACK_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"FILINGSTACK_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"FILINGSTACK_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"FILINGSTACK_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"FILINGSTACK_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"FILINGSTACK_POSTGRES_SSL_MODE" envDefault:"require"`
}

func (c *FilingstackDatabaseConfig) DatabaseConfig() *database.DatabaseConfig {
	return &database.DatabaseConfig{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		DBName:          c.DBName,
		Password:        c.Password,
		MaxConn:         c.MaxConn,
		MaxIdleConn:     c.MaxIdleConn,
		ConnMaxLifetime: c.ConnMaxLifetime,
		LogLevel:        c.LogLevel,
		SSLMode:         c.SSLMode,
	}
}
