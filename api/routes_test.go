package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/imsportal/filingstack/dto"
	"github.com/imsportal/filingstack/interfaces"
	"github.com/imsportal/filingstack/internal/enum"
	apperrors "github.com/imsportal/filingstack/internal/errors"
	"github.com/imsportal/filingstack/internal/models"
	"github.com/imsportal/filingstack/internal/repository"
	"github.com/imsportal/filingstack/internal/utils"
	"github.com/imsportal/filingstack/services"
)

const (
	testAPIKey         = "test-key"
	managedMailboxName = "documents@ims-portal.com"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	router    *gin.Engine
	registry  *prometheus.Registry
	instances *fakeInstances
	configs   *fakeConfigurations
	logs      *fakeLogs
	processor *mockProcessor
	managed   *fakeMailbox
	hosted    *fakeFactory
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	acme := &models.Instance{
		ID:          "inst_acme",
		Name:        "Acme",
		IMSBaseURL:  "https://ims.acme.test",
		IMSUsername: "filer",
		Subdomain:   utils.StringPtr("acme"),
		EmailStatus: enum.EmailStatusNotConfigured,
	}
	h := &harness{
		registry:  prometheus.NewRegistry(),
		instances: newFakeInstances(acme),
		configs:   newFakeConfigurations(),
		logs:      &fakeLogs{},
		processor: &mockProcessor{},
		managed:   &fakeMailbox{},
		hosted:    &fakeFactory{mailbox: &fakeMailbox{}},
	}

	repos := &repository.Repositories{
		InstanceRepository:           h.instances,
		EmailConfigurationRepository: h.configs,
		ProcessingLogRepository:      h.logs,
	}
	svcs := &services.Services{
		Cipher:             fakeCipher{},
		ManagedMailbox:     h.managed,
		ManagedMailboxName: managedMailboxName,
		ClientMailboxes:    h.hosted,
	}

	h.router = gin.New()
	h.router.UseRawPath = true
	h.router.UnescapePathValues = true
	RegisterRoutes(h.router, RouteConfig{
		APIKey:    testAPIKey,
		AppSource: "filingstack-test",
		Gatherer:  h.registry,
	}, svcs, repos, h.processor)

	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return h.doWithKey(t, method, path, body, testAPIKey)
}

func (h *harness) doWithKey(t *testing.T, method, path string, body any, key string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (h *harness) addConfiguration(config *models.EmailConfiguration) {
	h.configs.byID[config.ID] = config
}

func TestHealthAndStatus(t *testing.T) {
	h := newHarness(t)
	lastTick := &dto.TickSummary{StartedAt: time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)}
	h.processor.On("Status").Return(dto.ProcessorStatus{Running: true, LastTick: lastTick})

	w := h.doWithKey(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	w = h.doWithKey(t, http.MethodGet, "/status", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)
	assert.Equal(t, true, status["running"])
	assert.Equal(t, "2024-03-05T12:00:00Z", status["lastTick"].(map[string]any)["startedAt"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "filingstack_test_total", Help: "test"})
	h.registry.MustRegister(counter)
	counter.Inc()

	w := h.doWithKey(t, http.MethodGet, "/metrics", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "filingstack_test_total 1")
}

func TestAPIKeyRequired(t *testing.T) {
	h := newHarness(t)

	w := h.doWithKey(t, http.MethodGet, "/v1/instances", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Missing API key", decode(t, w)["error"])

	w = h.doWithKey(t, http.MethodGet, "/v1/instances", nil, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid API key", decode(t, w)["error"])

	w = h.do(t, http.MethodGet, "/v1/instances", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateInstance(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/v1/instances", map[string]any{
		"name":        "Globex",
		"imsBaseUrl":  "https://ims.globex.test/",
		"imsUsername": "svc",
		"imsPassword": "hunter2",
		"subdomain":   "Globex",
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.NotContains(t, body, "imsPassword")
	assert.Equal(t, "globex", body["subdomain"])
	assert.Equal(t, "https://ims.globex.test", body["imsBaseUrl"])
	assert.Equal(t, string(enum.EmailStatusNotConfigured), body["emailStatus"])

	stored, err := h.instances.GetByID(context.Background(), body["id"].(string))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "enc:hunter2", string(stored.IMSPassword.Ciphertext))
}

func TestCreateInstance_Validation(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/v1/instances", map[string]any{
		"imsBaseUrl":  "ftp://ims.test",
		"imsUsername": "svc",
		"imsPassword": "pw",
		"subdomain":   "not a label",
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := decode(t, w)["fields"].(map[string]any)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "imsBaseUrl")
	assert.Contains(t, fields, "subdomain")
	assert.NotContains(t, fields, "imsPassword")
}

func TestGetInstance(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/v1/instances/inst_acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Acme", decode(t, w)["name"])

	w = h.do(t, http.MethodGet, "/v1/instances/inst_missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateInstance(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPatch, "/v1/instances/inst_acme", map[string]any{
		"name":        "Acme Corp",
		"imsPassword": "rotated",
		"subdomain":   "",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stored, _ := h.instances.GetByID(context.Background(), "inst_acme")
	assert.Equal(t, "Acme Corp", stored.Name)
	assert.Equal(t, "filer", stored.IMSUsername)
	assert.Equal(t, "https://ims.acme.test", stored.IMSBaseURL)
	assert.Nil(t, stored.Subdomain)
	assert.Equal(t, "enc:rotated", string(stored.IMSPassword.Ciphertext))

	w = h.do(t, http.MethodPatch, "/v1/instances/inst_acme", map[string]any{"imsBaseUrl": "not a url"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPatch, "/v1/instances/inst_missing", map[string]any{"name": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateEmailConfiguration_ClientHosted(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/v1/instances/inst_acme/email-configurations", map[string]any{
		"configType":            "client_hosted",
		"addressingMode":        "legacy",
		"emailAddress":          "Filing@Acme.test",
		"clientId":              "app",
		"clientSecret":          "secret",
		"azureTenantId":         "tenant",
		"controlNumberPatterns": []string{`CN[-:]?(\d{4,})`},
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.NotContains(t, body, "clientSecret")
	assert.Equal(t, "filing@acme.test", body["emailAddress"])
	assert.Equal(t, true, body["isActive"])
	assert.Equal(t, true, body["includeAttachments"])

	stored := h.configs.get(body["id"].(string))
	require.NotNil(t, stored)
	assert.Equal(t, "enc:secret", string(stored.ClientSecret.Ciphertext))
	assert.Equal(t, enum.EmailStatusConfiguring, h.instances.status("inst_acme"))
}

func TestCreateEmailConfiguration_Validation(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/v1/instances/inst_acme/email-configurations", map[string]any{
		"configType":            "client_hosted",
		"addressingMode":        "sideways",
		"controlNumberPatterns": []string{`(unclosed`},
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := decode(t, w)["fields"].(map[string]any)
	for _, field := range []string{"addressingMode", "emailAddress", "clientId", "clientSecret", "azureTenantId", "controlNumberPatterns"} {
		assert.Contains(t, fields, field)
	}
	assert.Equal(t, enum.EmailStatusNotConfigured, h.instances.status("inst_acme"))

	w = h.do(t, http.MethodPost, "/v1/instances/inst_missing/email-configurations", map[string]any{
		"configType":     "managed",
		"addressingMode": "subdomain",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReplaceEmailConfiguration(t *testing.T) {
	h := newHarness(t)
	h.addConfiguration(&models.EmailConfiguration{
		ID:             "ecfg_1",
		InstanceID:     "inst_acme",
		ConfigType:     enum.ConfigClientHosted,
		AddressingMode: enum.AddressingLegacy,
		EmailAddress:   utils.StringPtr("filing@acme.test"),
		ClientID:       models.EncryptedValue{Ciphertext: []byte("enc:app"), Nonce: []byte("n")},
		ClientSecret:   models.EncryptedValue{Ciphertext: []byte("enc:secret"), Nonce: []byte("n")},
		AzureTenantID:  models.EncryptedValue{Ciphertext: []byte("enc:tenant"), Nonce: []byte("n")},
		IsActive:       true,
		LastTestStatus: enum.TestStatusSuccess,
	})

	// same mailbox, no new secrets
	w := h.do(t, http.MethodPut, "/v1/email-configurations/ecfg_1", map[string]any{
		"addressingMode":     "legacy",
		"emailAddress":       "filing@acme.test",
		"includeAttachments": false,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stored := h.configs.get("ecfg_1")
	assert.False(t, stored.IncludeAttachments)
	assert.Equal(t, "enc:secret", string(stored.ClientSecret.Ciphertext))
	assert.Equal(t, enum.TestStatusSuccess, stored.LastTestStatus)

	// a new mailbox has to be tested again
	w = h.do(t, http.MethodPut, "/v1/email-configurations/ecfg_1", map[string]any{
		"addressingMode": "legacy",
		"emailAddress":   "docs@acme.test",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, enum.TestStatusUntested, h.configs.get("ecfg_1").LastTestStatus)

	w = h.do(t, http.MethodPut, "/v1/email-configurations/ecfg_1", map[string]any{
		"configType":     "managed",
		"addressingMode": "legacy",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPut, "/v1/email-configurations/ecfg_missing", map[string]any{"addressingMode": "legacy"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteEmailConfiguration(t *testing.T) {
	h := newHarness(t)
	h.addConfiguration(&models.EmailConfiguration{ID: "ecfg_1", InstanceID: "inst_acme", ConfigType: enum.ConfigManaged})

	w := h.do(t, http.MethodDelete, "/v1/email-configurations/ecfg_1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(t, http.MethodDelete, "/v1/email-configurations/ecfg_1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListEmailConfigurations(t *testing.T) {
	h := newHarness(t)
	h.addConfiguration(&models.EmailConfiguration{ID: "ecfg_1", InstanceID: "inst_acme", ConfigType: enum.ConfigManaged})
	h.addConfiguration(&models.EmailConfiguration{ID: "ecfg_2", InstanceID: "inst_other", ConfigType: enum.ConfigManaged})

	w := h.do(t, http.MethodGet, "/v1/instances/inst_acme/email-configurations", nil)

	require.Equal(t, http.StatusOK, w.Code)
	items := decode(t, w)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "ecfg_1", items[0].(map[string]any)["id"])
}

func TestTestConnection_ManagedSuccess(t *testing.T) {
	h := newHarness(t)
	h.managed.messages = []dto.MailboxMessage{{ID: "m1"}, {ID: "m2"}}
	h.addConfiguration(&models.EmailConfiguration{
		ID:             "ecfg_1",
		InstanceID:     "inst_acme",
		ConfigType:     enum.ConfigManaged,
		AddressingMode: enum.AddressingSubdomain,
	})

	w := h.do(t, http.MethodPost, "/v1/email-configurations/ecfg_1/test", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["messagesFound"])
	assert.Equal(t, []string{managedMailboxName}, h.managed.listed)
	assert.Equal(t, testResult{status: enum.TestStatusSuccess}, h.configs.tests["ecfg_1"])
	assert.Equal(t, enum.EmailStatusActive, h.instances.status("inst_acme"))
}

func TestTestConnection_ClientHostedFailure(t *testing.T) {
	h := newHarness(t)
	h.hosted.mailbox.err = errors.New("graph 401: invalid client secret")
	h.addConfiguration(&models.EmailConfiguration{
		ID:             "ecfg_1",
		InstanceID:     "inst_acme",
		ConfigType:     enum.ConfigClientHosted,
		AddressingMode: enum.AddressingLegacy,
		EmailAddress:   utils.StringPtr("filing@acme.test"),
		ClientID:       models.EncryptedValue{Ciphertext: []byte("enc:app"), Nonce: []byte("n")},
		ClientSecret:   models.EncryptedValue{Ciphertext: []byte("enc:secret"), Nonce: []byte("n")},
		AzureTenantID:  models.EncryptedValue{Ciphertext: []byte("enc:tenant"), Nonce: []byte("n")},
	})

	w := h.do(t, http.MethodPost, "/v1/email-configurations/ecfg_1/test", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "invalid client secret")
	assert.Equal(t, []models.ClientCredentials{{ClientID: "app", ClientSecret: "secret", TenantID: "tenant"}}, h.hosted.creds)
	assert.Equal(t, []string{"filing@acme.test"}, h.hosted.mailbox.listed)
	assert.Equal(t, enum.TestStatusFailed, h.configs.tests["ecfg_1"].status)
	assert.Equal(t, enum.EmailStatusError, h.instances.status("inst_acme"))
}

func TestTestConnection_UndecryptableCredentials(t *testing.T) {
	h := newHarness(t)
	h.addConfiguration(&models.EmailConfiguration{
		ID:           "ecfg_1",
		InstanceID:   "inst_acme",
		ConfigType:   enum.ConfigClientHosted,
		EmailAddress: utils.StringPtr("filing@acme.test"),
		ClientID:     models.EncryptedValue{Ciphertext: []byte("garbage"), Nonce: []byte("n")},
	})

	w := h.do(t, http.MethodPost, "/v1/email-configurations/ecfg_1/test", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
	assert.Empty(t, h.hosted.creds)
	assert.Equal(t, enum.TestStatusFailed, h.configs.tests["ecfg_1"].status)
	assert.Equal(t, enum.EmailStatusError, h.instances.status("inst_acme"))
}

func TestProcessNow(t *testing.T) {
	h := newHarness(t)
	h.processor.On("ProcessInstanceNow", mock.Anything, "inst_acme").
		Return(&dto.TickSummary{InstanceID: "inst_acme"}, nil).Once()
	h.processor.On("ProcessInstanceNow", mock.Anything, "inst_acme").
		Return(nil, apperrors.ErrProcessingInProgress).Once()
	h.processor.On("ProcessInstanceNow", mock.Anything, "inst_missing").
		Return(nil, fmt.Errorf("instance inst_missing: %w", apperrors.ErrNotFound))
	h.processor.On("ProcessInstanceNow", mock.Anything, "inst_idle").
		Return(nil, fmt.Errorf("instance inst_idle email status is configuring: %w", apperrors.ErrInvalidInput))

	w := h.do(t, http.MethodPost, "/v1/instances/inst_acme/process", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "inst_acme", decode(t, w)["instanceId"])

	w = h.do(t, http.MethodPost, "/v1/instances/inst_acme/process", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(t, http.MethodPost, "/v1/instances/inst_missing/process", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodPost, "/v1/instances/inst_idle/process", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h.processor.AssertExpectations(t)
}

func TestListProcessingLogs(t *testing.T) {
	h := newHarness(t)
	h.logs.entries = []*models.ProcessingLog{
		{ID: "plog_1", ExternalMessageID: "m1", Status: enum.ProcessingFiled},
		{ID: "plog_2", ExternalMessageID: "m2", Status: enum.ProcessingError},
	}

	w := h.do(t, http.MethodGet, "/v1/instances/inst_acme/processing-logs?status=error&limit=5000&offset=10", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, float64(500), body["limit"])
	assert.Equal(t, interfaces.ProcessingLogFilter{
		InstanceID: "inst_acme",
		Status:     enum.ProcessingError,
		Limit:      500,
		Offset:     10,
	}, h.logs.lastFilter)

	w = h.do(t, http.MethodGet, "/v1/instances/inst_acme/processing-logs?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodGet, "/v1/instances/inst_acme/processing-logs?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRetry(t *testing.T) {
	h := newHarness(t)
	h.processor.On("RetryMessage", mock.Anything, "imap:7:42").
		Return(&models.ProcessingLog{ExternalMessageID: "imap:7:42", Status: enum.ProcessingFiled}, nil)
	h.processor.On("RetryMessage", mock.Anything, "AAMk/abc=").
		Return(nil, fmt.Errorf("message AAMk/abc= is filed: %w", apperrors.ErrNotRetryable))
	h.processor.On("RetryMessage", mock.Anything, "unknown").
		Return(nil, fmt.Errorf("processing log unknown: %w", apperrors.ErrNotFound))

	w := h.do(t, http.MethodPost, "/v1/processing-logs/imap%3A7%3A42/retry", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "filed", decode(t, w)["status"])

	w = h.do(t, http.MethodPost, "/v1/processing-logs/AAMk%2Fabc%3D/retry", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(t, http.MethodPost, "/v1/processing-logs/unknown/retry", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	h.processor.AssertExpectations(t)
}
