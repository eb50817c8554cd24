package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/imsportal/filingstack/internal/enum"
	"github.com/imsportal/filingstack/internal/utils"
)

// Instance is one customer deployment of IMS.
type Instance struct {
	ID   string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Name string `gorm:"column:name;type:varchar(255);not null" json:"name"`
	// IMS connection
	IMSBaseURL  string         `gorm:"column:ims_base_url;type:varchar(500);not null" json:"imsBaseUrl"`
	IMSUsername string         `gorm:"column:ims_username;type:varchar(255);not null" json:"imsUsername"`
	IMSPassword EncryptedValue `gorm:"embedded;embeddedPrefix:ims_password_" json:"-"`
	// Email routing labels
	Subdomain    *string          `gorm:"column:subdomain;type:varchar(100);uniqueIndex" json:"subdomain,omitempty"`
	CustomDomain *string          `gorm:"column:custom_domain;type:varchar(100);uniqueIndex" json:"customDomain,omitempty"`
	EmailStatus  enum.EmailStatus `gorm:"column:email_status;type:varchar(50);not null;default:not_configured" json:"emailStatus"`

	EmailConfigurations []EmailConfiguration `gorm:"foreignKey:InstanceID;constraint:OnDelete:CASCADE" json:"emailConfigurations,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Instance) TableName() string {
	return "instances"
}

func (m *Instance) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("inst", 12)
	}
	if m.EmailStatus == "" {
		m.EmailStatus = enum.EmailStatusNotConfigured
	}
	return nil
}

func (m *Instance) IsEmailActive() bool {
	return m != nil && m.EmailStatus == enum.EmailStatusActive
}
