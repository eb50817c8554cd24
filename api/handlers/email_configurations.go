package handlers

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	apierrors "github.com/imsportal/filingstack/api/errors"
	"github.com/imsportal/filingstack/dto"
	"github.com/imsportal/filingstack/interfaces"
	"github.com/imsportal/filingstack/internal/enum"
	"github.com/imsportal/filingstack/internal/models"
	"github.com/imsportal/filingstack/internal/repository"
	"github.com/imsportal/filingstack/internal/tracing"
	"github.com/imsportal/filingstack/internal/utils"
	"github.com/imsportal/filingstack/services"
	"github.com/imsportal/filingstack/services/extraction"
)

// EmailConfigurationRequest is used for create and replace. On replace
// empty credential fields keep the stored secrets.
type EmailConfigurationRequest struct {
	ConfigType            enum.ConfigType     `json:"configType"`
	AddressingMode        enum.AddressingMode `json:"addressingMode"`
	EmailAddress          *string             `json:"emailAddress"`
	EmailPrefix           string              `json:"emailPrefix"`
	IsDefault             bool                `json:"isDefault"`
	IsActive              *bool               `json:"isActive"`
	ClientID              string              `json:"clientId"`
	ClientSecret          string              `json:"clientSecret"`
	AzureTenantID         string              `json:"azureTenantId"`
	ControlNumberPatterns []string            `json:"controlNumberPatterns"`
	IncludeAttachments    *bool               `json:"includeAttachments"`
	DefaultFolderID       string              `json:"defaultFolderId"`
}

func (r *EmailConfigurationRequest) hasCredentials() bool {
	return r.ClientID != "" || r.ClientSecret != "" || r.AzureTenantID != ""
}

type TestConnectionResponse struct {
	Success       bool   `json:"success"`
	Mailbox       string `json:"mailbox,omitempty"`
	MessagesFound int    `json:"messagesFound"`
	Error         string `json:"error,omitempty"`
}

type EmailConfigurationHandler struct {
	instanceRepository      interfaces.InstanceRepository
	configurationRepository interfaces.EmailConfigurationRepository
	services                *services.Services
}

func NewEmailConfigurationHandler(repos *repository.Repositories, s *services.Services) *EmailConfigurationHandler {
	return &EmailConfigurationHandler{
		instanceRepository:      repos.InstanceRepository,
		configurationRepository: repos.EmailConfigurationRepository,
		services:                s,
	}
}

func (h *EmailConfigurationHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "EmailConfigurationHandler.List")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		instanceID := c.Param("id")
		instance, err := h.instanceRepository.GetByID(ctx, instanceID)
		if err != nil {
			respondError(c, span, err)
			return
		}
		if instance == nil {
			notFound(c, span, "instance", instanceID)
			return
		}

		configs, err := h.configurationRepository.ListByInstance(ctx, instanceID)
		if err != nil {
			respondError(c, span, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"items": configs})
	}
}

// Create adds a configuration and moves the instance to configuring until a
// connection test succeeds.
func (h *EmailConfigurationHandler) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "EmailConfigurationHandler.Create")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req EmailConfigurationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		instanceID := c.Param("id")
		instance, err := h.instanceRepository.GetByID(ctx, instanceID)
		if err != nil {
			respondError(c, span, err)
			return
		}
		if instance == nil {
			notFound(c, span, "instance", instanceID)
			return
		}

		if err := validateConfigurationRequest(&req, true); err != nil {
			respondError(c, span, err)
			return
		}

		config := &models.EmailConfiguration{
			InstanceID:         instanceID,
			ConfigType:         req.ConfigType,
			IsActive:           true,
			IncludeAttachments: true,
		}
		if err := h.apply(config, &req); err != nil {
			respondError(c, span, err)
			return
		}

		if _, err := h.configurationRepository.Create(ctx, config); err != nil {
			respondError(c, span, err)
			return
		}
		if err := h.instanceRepository.UpdateEmailStatus(ctx, instanceID, enum.EmailStatusConfiguring); err != nil {
			respondError(c, span, err)
			return
		}

		c.JSON(http.StatusCreated, config)
	}
}

// Replace overwrites the editable fields of a configuration. The config type
// cannot change.
func (h *EmailConfigurationHandler) Replace() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "EmailConfigurationHandler.Replace")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req EmailConfigurationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id := c.Param("id")
		config, err := h.configurationRepository.GetByID(ctx, id)
		if err != nil {
			respondError(c, span, err)
			return
		}
		if config == nil {
			notFound(c, span, "email configuration", id)
			return
		}
		tracing.TagInstance(span, config.InstanceID)

		if req.ConfigType == "" {
			req.ConfigType = config.ConfigType
		}
		if req.ConfigType != config.ConfigType {
			validation := apierrors.NewMultiErrors()
			validation.Add("configType", "cannot be changed", nil)
			respondError(c, span, validation)
			return
		}
		if err := validateConfigurationRequest(&req, false); err != nil {
			respondError(c, span, err)
			return
		}

		previousAddress := config.Address()
		if err := h.apply(config, &req); err != nil {
			respondError(c, span, err)
			return
		}
		if err := h.configurationRepository.Update(ctx, config); err != nil {
			respondError(c, span, err)
			return
		}

		// A different mailbox has to pass a connection test again.
		if req.hasCredentials() || config.Address() != strings.ToLower(previousAddress) {
			if err := h.configurationRepository.UpdateTestStatus(ctx, config.ID, enum.TestStatusUntested, ""); err != nil {
				respondError(c, span, err)
				return
			}
			config.LastTestStatus = enum.TestStatusUntested
			config.LastTestError = ""
		}

		c.JSON(http.StatusOK, config)
	}
}

func (h *EmailConfigurationHandler) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "EmailConfigurationHandler.Delete")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		if err := h.configurationRepository.Delete(ctx, c.Param("id")); err != nil {
			respondError(c, span, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// TestConnection lists one message from the configuration's mailbox. The
// outcome is stored on the configuration and decides whether the instance
// becomes active or goes to error.
func (h *EmailConfigurationHandler) TestConnection() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "EmailConfigurationHandler.TestConnection")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		id := c.Param("id")
		config, err := h.configurationRepository.GetByID(ctx, id)
		if err != nil {
			respondError(c, span, err)
			return
		}
		if config == nil {
			notFound(c, span, "email configuration", id)
			return
		}
		tracing.TagInstance(span, config.InstanceID)

		response := TestConnectionResponse{}
		client, mailbox, err := h.services.MailboxFor(config)
		if err == nil {
			response.Mailbox = mailbox
			tracing.TagMailbox(span, mailbox)
			var messages []dto.MailboxMessage
			messages, err = client.ListMessages(ctx, mailbox, nil, 1)
			response.MessagesFound = len(messages)
		}

		testStatus, emailStatus := enum.TestStatusSuccess, enum.EmailStatusActive
		if err != nil {
			tracing.TraceErr(span, err)
			testStatus, emailStatus = enum.TestStatusFailed, enum.EmailStatusError
			response.Error = err.Error()
		}
		response.Success = err == nil

		if err := h.configurationRepository.UpdateTestStatus(ctx, config.ID, testStatus, response.Error); err != nil {
			respondError(c, span, err)
			return
		}
		if err := h.instanceRepository.UpdateEmailStatus(ctx, config.InstanceID, emailStatus); err != nil {
			respondError(c, span, err)
			return
		}

		c.JSON(http.StatusOK, response)
	}
}

func validateConfigurationRequest(req *EmailConfigurationRequest, create bool) error {
	validation := apierrors.NewMultiErrors()

	if !req.ConfigType.IsValid() {
		validation.Add("configType", "must be managed or client_hosted", nil)
	}
	if !req.AddressingMode.IsValid() {
		validation.Add("addressingMode", "must be legacy, subdomain, plus-address-custom or plus-address-legacy", nil)
	}

	address := utils.GetOrDefault(req.EmailAddress, "")
	if address != "" {
		if _, err := mail.ParseAddress(address); err != nil {
			validation.Add("emailAddress", "is not a valid address", err)
		}
	}

	if req.ConfigType == enum.ConfigClientHosted {
		if address == "" {
			validation.Add("emailAddress", "is required for client hosted mailboxes", nil)
		}
		if create || req.hasCredentials() {
			requireField(validation, "clientId", req.ClientID)
			requireField(validation, "clientSecret", req.ClientSecret)
			requireField(validation, "azureTenantId", req.AzureTenantID)
		}
	}

	if err := extraction.ValidatePatterns(req.ControlNumberPatterns); err != nil {
		validation.Add("controlNumberPatterns", err.Error(), err)
	}

	if validation.HasErrors() {
		return validation
	}
	return nil
}

func (h *EmailConfigurationHandler) apply(config *models.EmailConfiguration, req *EmailConfigurationRequest) error {
	config.AddressingMode = req.AddressingMode
	config.EmailAddress = utils.StringPtrOrNil(strings.ToLower(strings.TrimSpace(utils.GetOrDefault(req.EmailAddress, ""))))
	config.EmailPrefix = req.EmailPrefix
	config.IsDefault = req.IsDefault
	config.IsActive = utils.GetOrDefault(req.IsActive, config.IsActive)
	config.IncludeAttachments = utils.GetOrDefault(req.IncludeAttachments, config.IncludeAttachments)
	config.ControlNumberPatterns = req.ControlNumberPatterns
	config.DefaultFolderID = req.DefaultFolderID

	if config.ConfigType != enum.ConfigClientHosted || !req.hasCredentials() {
		return nil
	}

	var err error
	if config.ClientID, err = h.services.Cipher.Encrypt(req.ClientID); err != nil {
		return err
	}
	if config.ClientSecret, err = h.services.Cipher.Encrypt(req.ClientSecret); err != nil {
		return err
	}
	if config.AzureTenantID, err = h.services.Cipher.Encrypt(req.AzureTenantID); err != nil {
		return err
	}
	return nil
}
