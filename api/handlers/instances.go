package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"golang.org/x/net/idna"

	apierrors "github.com/imsportal/filingstack/api/errors"
	"github.com/imsportal/filingstack/interfaces"
	"github.com/imsportal/filingstack/internal/models"
	"github.com/imsportal/filingstack/internal/repository"
	"github.com/imsportal/filingstack/internal/tracing"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

var labelPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

type CreateInstanceRequest struct {
	Name         string  `json:"name"`
	IMSBaseURL   string  `json:"imsBaseUrl"`
	IMSUsername  string  `json:"imsUsername"`
	IMSPassword  string  `json:"imsPassword"`
	Subdomain    *string `json:"subdomain"`
	CustomDomain *string `json:"customDomain"`
}

// UpdateInstanceRequest only changes the fields that are present. An empty
// subdomain or custom domain clears it.
type UpdateInstanceRequest struct {
	Name         *string `json:"name"`
	IMSBaseURL   *string `json:"imsBaseUrl"`
	IMSUsername  *string `json:"imsUsername"`
	IMSPassword  *string `json:"imsPassword"`
	Subdomain    *string `json:"subdomain"`
	CustomDomain *string `json:"customDomain"`
}

type InstanceHandler struct {
	instanceRepository interfaces.InstanceRepository
	cipher             interfaces.CredentialCipher
}

func NewInstanceHandler(repos *repository.Repositories, cipher interfaces.CredentialCipher) *InstanceHandler {
	return &InstanceHandler{
		instanceRepository: repos.InstanceRepository,
		cipher:             cipher,
	}
}

func (h *InstanceHandler) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "InstanceHandler.Create")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req CreateInstanceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		validation := apierrors.NewMultiErrors()
		requireField(validation, "name", req.Name)
		requireField(validation, "imsUsername", req.IMSUsername)
		requireField(validation, "imsPassword", req.IMSPassword)
		validateBaseURL(validation, req.IMSBaseURL)
		validateLabel(validation, "subdomain", req.Subdomain)
		validateLabel(validation, "customDomain", req.CustomDomain)
		if validation.HasErrors() {
			respondError(c, span, validation)
			return
		}

		password, err := h.cipher.Encrypt(req.IMSPassword)
		if err != nil {
			respondError(c, span, err)
			return
		}

		instance := &models.Instance{
			Name:         strings.TrimSpace(req.Name),
			IMSBaseURL:   strings.TrimRight(strings.TrimSpace(req.IMSBaseURL), "/"),
			IMSUsername:  req.IMSUsername,
			IMSPassword:  password,
			Subdomain:    emptyToNil(req.Subdomain),
			CustomDomain: emptyToNil(req.CustomDomain),
		}
		if _, err := h.instanceRepository.Create(ctx, instance); err != nil {
			respondError(c, span, err)
			return
		}

		c.JSON(http.StatusCreated, instance)
	}
}

func (h *InstanceHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "InstanceHandler.List")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		limit, offset, err := pagination(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		instances, err := h.instanceRepository.List(ctx, limit, offset)
		if err != nil {
			respondError(c, span, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"items": instances, "limit": limit, "offset": offset})
	}
}

func (h *InstanceHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "InstanceHandler.Get")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		id := c.Param("id")
		instance, err := h.instanceRepository.GetByID(ctx, id)
		if err != nil {
			respondError(c, span, err)
			return
		}
		if instance == nil {
			notFound(c, span, "instance", id)
			return
		}

		c.JSON(http.StatusOK, instance)
	}
}

func (h *InstanceHandler) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "InstanceHandler.Update")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req UpdateInstanceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id := c.Param("id")
		instance, err := h.instanceRepository.GetByID(ctx, id)
		if err != nil {
			respondError(c, span, err)
			return
		}
		if instance == nil {
			notFound(c, span, "instance", id)
			return
		}

		validation := apierrors.NewMultiErrors()
		if req.Name != nil {
			requireField(validation, "name", *req.Name)
			instance.Name = strings.TrimSpace(*req.Name)
		}
		if req.IMSBaseURL != nil {
			validateBaseURL(validation, *req.IMSBaseURL)
			instance.IMSBaseURL = strings.TrimRight(strings.TrimSpace(*req.IMSBaseURL), "/")
		}
		if req.IMSUsername != nil {
			requireField(validation, "imsUsername", *req.IMSUsername)
			instance.IMSUsername = *req.IMSUsername
		}
		if req.Subdomain != nil {
			validateLabel(validation, "subdomain", req.Subdomain)
			instance.Subdomain = emptyToNil(req.Subdomain)
		}
		if req.CustomDomain != nil {
			validateLabel(validation, "customDomain", req.CustomDomain)
			instance.CustomDomain = emptyToNil(req.CustomDomain)
		}
		if req.IMSPassword != nil {
			requireField(validation, "imsPassword", *req.IMSPassword)
		}
		if validation.HasErrors() {
			respondError(c, span, validation)
			return
		}

		if req.IMSPassword != nil {
			if instance.IMSPassword, err = h.cipher.Encrypt(*req.IMSPassword); err != nil {
				respondError(c, span, err)
				return
			}
		}

		if err := h.instanceRepository.Update(ctx, instance); err != nil {
			respondError(c, span, err)
			return
		}

		c.JSON(http.StatusOK, instance)
	}
}

func requireField(validation *apierrors.MultiErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		validation.Add(field, "is required", nil)
	}
}

func validateBaseURL(validation *apierrors.MultiErrors, raw string) {
	if strings.TrimSpace(raw) == "" {
		validation.Add("imsBaseUrl", "is required", nil)
		return
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		validation.Add("imsBaseUrl", "must be an absolute http(s) URL", err)
	}
}

// validateLabel accepts nil, empty (cleared) or a single DNS label.
// Internationalized labels are accepted in their unicode form.
func validateLabel(validation *apierrors.MultiErrors, field string, value *string) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return
	}
	if _, err := normalizeLabel(*value); err != nil {
		validation.Add(field, "must be a single DNS label", err)
	}
}

func normalizeLabel(value string) (string, error) {
	ascii, err := idna.Lookup.ToASCII(strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return "", err
	}
	if !labelPattern.MatchString(ascii) {
		return "", fmt.Errorf("%q is not a single DNS label", value)
	}
	return ascii, nil
}

// emptyToNil returns the normalized label, or nil when value is nil or blank.
func emptyToNil(value *string) *string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	label, err := normalizeLabel(*value)
	if err != nil {
		label = strings.ToLower(strings.TrimSpace(*value))
	}
	return &label
}

func pagination(c *gin.Context) (int, int, error) {
	validation := apierrors.NewMultiErrors()

	limit := defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			validation.Add("limit", "must be a positive integer", err)
		} else {
			limit = min(v, maxPageSize)
		}
	}

	offset := 0
	if raw := c.Query("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			validation.Add("offset", "must be a non-negative integer", err)
		} else {
			offset = v
		}
	}

	if validation.HasErrors() {
		return 0, 0, validation
	}
	return limit, offset, nil
}
