package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	cron_config "github.com/imsportal/filingstack/internal/cron/config"
	"github.com/imsportal/filingstack/internal/crypto"
	"github.com/imsportal/filingstack/internal/enum"
	"github.com/imsportal/filingstack/internal/logger"
	"github.com/imsportal/filingstack/internal/tracing"
	"github.com/imsportal/filingstack/services/email_processor"
	"github.com/imsportal/filingstack/services/events"
	"github.com/imsportal/filingstack/services/graph"
	"github.com/imsportal/filingstack/services/imap"
	"github.com/imsportal/filingstack/services/ims"
	"github.com/imsportal/filingstack/services/routing"
	"github.com/imsportal/filingstack/services/storage"
)

type Config struct {
	AppConfig      *AppConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
	DatabaseConfig *FilingstackDatabaseConfig
	Crypto         *crypto.Config
	Graph          *graph.Config
	IMAP           *imap.Config
	IMS            *ims.Config
	Routing        *routing.Config
	Processor      *email_processor.Config
	Archive        *storage.Config
	Events         *events.Config
	Cron           *cron_config.Config
}

func newConfig() *Config {
	return &Config{
		AppConfig:      &AppConfig{},
		Logger:         &logger.Config{},
		Tracing:        &tracing.JaegerConfig{},
		DatabaseConfig: &FilingstackDatabaseConfig{},
		Crypto:         &crypto.Config{},
		Graph:          &graph.Config{},
		IMAP:           &imap.Config{},
		IMS:            &ims.Config{},
		Routing:        &routing.Config{},
		Processor:      &email_processor.Config{},
		Archive:        &storage.Config{},
		Events:         &events.Config{},
		Cron:           &cron_config.Config{},
	}
}

func InitConfig() (*Config, error) {
	config := newConfig()

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		return nil, err
	}

	return config, nil
}

// ManagedMailboxName is the address of the shared catch-all mailbox for the
// configured provider.
func (c *Config) ManagedMailboxName() string {
	if c.AppConfig.MailboxProvider == enum.MailboxProviderIMAP {
		return c.IMAP.Username
	}
	return c.Graph.SharedMailbox
}
