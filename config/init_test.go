package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imsportal/filingstack/internal/enum"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("API_KEY", "secret")
	t.Setenv("CREDENTIALS_ENCRYPTION_KEY", "key")
	t.Setenv("FILINGSTACK_POSTGRES_HOST", "localhost")
	t.Setenv("FILINGSTACK_POSTGRES_PORT", "5432")
	t.Setenv("FILINGSTACK_POSTGRES_USER", "postgres")
	t.Setenv("FILINGSTACK_POSTGRES_DB_NAME", "filingstack")
	t.Setenv("FILINGSTACK_POSTGRES_PASSWORD", "postgres")
}

func TestInitConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := InitConfig()

	require.NoError(t, err)
	assert.Equal(t, "12222", cfg.AppConfig.APIPort)
	assert.Equal(t, enum.MailboxProviderGraph, cfg.AppConfig.MailboxProvider)
	assert.Equal(t, "ims-portal.com", cfg.Routing.BaseDomain)
	assert.Equal(t, []string{"subdomain", "custom-domain", "plus-address", "legacy"}, cfg.Routing.Matchers)
	assert.Equal(t, 30*time.Second, cfg.Graph.Timeout)
	assert.Equal(t, 30*time.Second, cfg.IMS.Timeout)
	assert.Equal(t, 50, cfg.Processor.BatchSize)
	assert.Equal(t, 24*time.Hour, cfg.Processor.InitialLookback)
	assert.False(t, cfg.Archive.Enabled)
	assert.Equal(t, "0 */5 * * * *", cfg.Cron.CronScheduleEmailProcessing)
	assert.Equal(t, "require", cfg.DatabaseConfig.DatabaseConfig().SSLMode)
}

func TestInitConfig_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	os.Unsetenv("API_KEY")

	_, err := InitConfig()

	assert.Error(t, err)
}

func TestManagedMailboxName(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GRAPH_SHARED_MAILBOX", "intake@ims-portal.com")
	t.Setenv("IMAP_USERNAME", "catchall@mail.ims-portal.com")

	cfg, err := InitConfig()
	require.NoError(t, err)
	assert.Equal(t, "intake@ims-portal.com", cfg.ManagedMailboxName())

	cfg.AppConfig.MailboxProvider = enum.MailboxProviderIMAP
	assert.Equal(t, "catchall@mail.ims-portal.com", cfg.ManagedMailboxName())
}
