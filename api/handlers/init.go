package handlers

import (
	"github.com/imsportal/filingstack/interfaces"
	"github.com/imsportal/filingstack/internal/repository"
	"github.com/imsportal/filingstack/services"
)

type APIHandlers struct {
	Instances           *InstanceHandler
	EmailConfigurations *EmailConfigurationHandler
	Processing          *ProcessingHandler
}

func InitHandlers(repos *repository.Repositories, s *services.Services, processor interfaces.EmailProcessor) *APIHandlers {
	return &APIHandlers{
		Instances:           NewInstanceHandler(repos, s.Cipher),
		EmailConfigurations: NewEmailConfigurationHandler(repos, s),
		Processing:          NewProcessingHandler(repos, processor),
	}
}
