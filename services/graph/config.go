package graph

import (
	"time"

	"github.com/imsportal/filingstack/internal/models"
)

type Config struct {
	Authority string `env:"GRAPH_AUTHORITY" envDefault:"https://login.microsoftonline.com"`
	BaseURL   string `env:"GRAPH_BASE_URL" envDefault:"https://graph.microsoft.com/v1.0"`
	Scope     string `env:"GRAPH_SCOPE" envDefault:"https://graph.microsoft.com/.default"`
	// App registration used for the shared catch-all mailbox
	TenantID      string        `env:"GRAPH_TENANT_ID"`
	ClientID      string        `env:"GRAPH_CLIENT_ID"`
	ClientSecret  string        `env:"GRAPH_CLIENT_SECRET"`
	SharedMailbox string        `env:"GRAPH_SHARED_MAILBOX"`
	Timeout       time.Duration `env:"EXTERNAL_CALL_TIMEOUT" envDefault:"30s"`
}

// SystemCredentials are the credentials of the shared mailbox.
func (c *Config) SystemCredentials() models.ClientCredentials {
	return models.ClientCredentials{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TenantID:     c.TenantID,
	}
}
