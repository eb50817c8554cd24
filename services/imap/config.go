package imap

import "time"

// Config points at a self-hosted catch-all mailbox used in place of Graph
// when MAILBOX_PROVIDER=imap.
type Config struct {
	Server   string        `env:"IMAP_SERVER"`
	Port     int           `env:"IMAP_PORT" envDefault:"993"`
	TLS      bool          `env:"IMAP_TLS" envDefault:"true"`
	Username string        `env:"IMAP_USERNAME"`
	Password string        `env:"IMAP_PASSWORD"`
	Folder   string        `env:"IMAP_FOLDER" envDefault:"INBOX"`
	Timeout  time.Duration `env:"EXTERNAL_CALL_TIMEOUT" envDefault:"30s"`
}
