package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/imsportal/filingstack/internal/enum"
	"github.com/imsportal/filingstack/internal/utils"
)

type EmailConfiguration struct {
	ID             string              `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	InstanceID     string              `gorm:"column:instance_id;type:varchar(50);not null;index" json:"instanceId"`
	ConfigType     enum.ConfigType     `gorm:"column:config_type;type:varchar(50);not null" json:"configType"`
	AddressingMode enum.AddressingMode `gorm:"column:addressing_mode;type:varchar(50);not null" json:"addressingMode"`
	// Address the configuration answers on. Stored lower-cased.
	EmailAddress *string `gorm:"column:email_address;type:varchar(255);uniqueIndex" json:"emailAddress,omitempty"`
	EmailPrefix  string  `gorm:"column:email_prefix;type:varchar(100);index" json:"emailPrefix"`
	IsDefault    bool    `gorm:"column:is_default;not null;default:false" json:"isDefault"`
	IsActive     bool    `gorm:"column:is_active;not null" json:"isActive"`
	// Client hosted mailbox credentials
	ClientID      EncryptedValue `gorm:"embedded;embeddedPrefix:client_id_" json:"-"`
	ClientSecret  EncryptedValue `gorm:"embedded;embeddedPrefix:client_secret_" json:"-"`
	AzureTenantID EncryptedValue `gorm:"embedded;embeddedPrefix:azure_tenant_id_" json:"-"`
	// Filing
	ControlNumberPatterns pq.StringArray `gorm:"column:control_number_patterns;type:text[]" json:"controlNumberPatterns"`
	IncludeAttachments    bool           `gorm:"column:include_attachments;not null" json:"includeAttachments"`
	DefaultFolderID       string         `gorm:"column:default_folder_id;type:varchar(100)" json:"defaultFolderId"`
	// Test status
	LastTestStatus enum.TestStatus `gorm:"column:last_test_status;type:varchar(50);not null;default:untested" json:"lastTestStatus"`
	LastTestError  string          `gorm:"column:last_test_error;type:text" json:"lastTestError,omitempty"`
	LastTestedAt   *time.Time      `gorm:"column:last_tested_at;type:timestamp" json:"lastTestedAt,omitempty"`
	// Processing state. LastProcessedAt only ever moves forward.
	LastProcessedAt *time.Time `gorm:"column:last_processed_at;type:timestamp" json:"lastProcessedAt,omitempty"`
	LastError       string     `gorm:"column:last_error;type:text" json:"lastError,omitempty"`
	LastErrorAt     *time.Time `gorm:"column:last_error_at;type:timestamp" json:"lastErrorAt,omitempty"`

	Instance *Instance `gorm:"foreignKey:InstanceID" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (EmailConfiguration) TableName() string {
	return "email_configurations"
}

func (m *EmailConfiguration) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("ecfg", 12)
	}
	if m.LastTestStatus == "" {
		m.LastTestStatus = enum.TestStatusUntested
	}
	return nil
}

func (m *EmailConfiguration) Address() string {
	return utils.GetOrDefault(m.EmailAddress, "")
}

func (m *EmailConfiguration) IsClientHosted() bool {
	return m.ConfigType == enum.ConfigClientHosted
}

// ClientCredentials are the decrypted app registration values of a client
// hosted mailbox.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	TenantID     string
}
