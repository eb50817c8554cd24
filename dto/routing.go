package dto

import (
	"github.com/imsportal/filingstack/internal/enum"
	"github.com/imsportal/filingstack/internal/models"
)

// RoutingResult is never persisted.
type RoutingResult struct {
	Instance         *models.Instance
	Configuration    *models.EmailConfiguration
	AddressingMode   enum.AddressingMode
	MatchedAddress   string
	MatchedPrefix    string
	MatchedSubdomain string
}
