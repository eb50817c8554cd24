package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/imsportal/filingstack/internal/enum"
	"github.com/imsportal/filingstack/internal/utils"
)

// ProcessingLog has at most one row per external message id. The unique
// index is what keeps a message from being filed twice.
type ProcessingLog struct {
	ID                   string                `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	ExternalMessageID    string                `gorm:"column:external_message_id;type:varchar(512);not null;uniqueIndex" json:"externalMessageId"`
	Mailbox              string                `gorm:"column:mailbox;type:varchar(255);not null;index" json:"mailbox"`
	InstanceID           *string               `gorm:"column:instance_id;type:varchar(50);index" json:"instanceId,omitempty"`
	EmailConfigurationID *string               `gorm:"column:email_configuration_id;type:varchar(50);index" json:"emailConfigurationId,omitempty"`
	AddressingMode       string                `gorm:"column:addressing_mode;type:varchar(50)" json:"addressingMode,omitempty"`
	Subject              string                `gorm:"column:subject;type:text" json:"subject"`
	FromAddress          string                `gorm:"column:from_address;type:varchar(255)" json:"fromAddress"`
	ToAddresses          pq.StringArray        `gorm:"column:to_addresses;type:text[]" json:"toAddresses"`
	ReceivedAt           time.Time             `gorm:"column:received_at;type:timestamp;index" json:"receivedAt"`
	ControlNumber        *string               `gorm:"column:control_number;type:varchar(20)" json:"controlNumber,omitempty"`
	Status               enum.ProcessingStatus `gorm:"column:status;type:varchar(50);not null;index" json:"status"`
	ErrorMessage         string                `gorm:"column:error_message;type:text" json:"errorMessage,omitempty"`
	AttachmentCount      int                   `gorm:"column:attachment_count;not null;default:0" json:"attachmentCount"`
	FiledDocumentIDs     pq.StringArray        `gorm:"column:filed_document_ids;type:text[]" json:"filedDocumentIds"`
	FilingDetails        JSONMap               `gorm:"column:filing_details;type:jsonb" json:"filingDetails,omitempty"`
	Attempts             int                   `gorm:"column:attempts;not null;default:1" json:"attempts"`

	Instance           *Instance           `gorm:"foreignKey:InstanceID;constraint:OnDelete:SET NULL" json:"-"`
	EmailConfiguration *EmailConfiguration `gorm:"foreignKey:EmailConfigurationID;constraint:OnDelete:SET NULL" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (ProcessingLog) TableName() string {
	return "email_processing_logs"
}

func (m *ProcessingLog) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("plog", 16)
	}
	if m.Status == "" {
		m.Status = enum.ProcessingPending
	}
	return nil
}
