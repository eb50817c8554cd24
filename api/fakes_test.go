package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/imsportal/filingstack/dto"
	"github.com/imsportal/filingstack/interfaces"
	"github.com/imsportal/filingstack/internal/enum"
	apperrors "github.com/imsportal/filingstack/internal/errors"
	"github.com/imsportal/filingstack/internal/models"
)

type fakeInstances struct {
	mu       sync.Mutex
	byID     map[string]*models.Instance
	statuses []enum.EmailStatus
}

func newFakeInstances(instances ...*models.Instance) *fakeInstances {
	f := &fakeInstances{byID: map[string]*models.Instance{}}
	for _, i := range instances {
		f.byID[i.ID] = i
	}
	return f
}

func (f *fakeInstances) Create(_ context.Context, instance *models.Instance) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if instance.ID == "" {
		instance.ID = fmt.Sprintf("inst_%d", len(f.byID)+1)
	}
	if instance.EmailStatus == "" {
		instance.EmailStatus = enum.EmailStatusNotConfigured
	}
	copied := *instance
	f.byID[instance.ID] = &copied
	return instance.ID, nil
}

func (f *fakeInstances) GetByID(_ context.Context, id string) (*models.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i, ok := f.byID[id]; ok {
		copied := *i
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeInstances) GetBySubdomain(context.Context, string) (*models.Instance, error) {
	return nil, nil
}

func (f *fakeInstances) GetByCustomDomain(context.Context, string) (*models.Instance, error) {
	return nil, nil
}

func (f *fakeInstances) List(_ context.Context, limit, offset int) ([]*models.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Instance
	for _, i := range f.byID {
		out = append(out, i)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	return out[:min(limit, len(out))], nil
}

func (f *fakeInstances) Update(_ context.Context, instance *models.Instance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[instance.ID]; !ok {
		return fmt.Errorf("instance %s: %w", instance.ID, apperrors.ErrNotFound)
	}
	copied := *instance
	f.byID[instance.ID] = &copied
	return nil
}

func (f *fakeInstances) UpdateEmailStatus(_ context.Context, id string, status enum.EmailStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.byID[id]
	if !ok {
		return fmt.Errorf("instance %s: %w", id, apperrors.ErrNotFound)
	}
	i.EmailStatus = status
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeInstances) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

func (f *fakeInstances) status(id string) enum.EmailStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id].EmailStatus
}

type testResult struct {
	status  enum.TestStatus
	message string
}

type fakeConfigurations struct {
	mu    sync.Mutex
	byID  map[string]*models.EmailConfiguration
	tests map[string]testResult
}

func newFakeConfigurations(configs ...*models.EmailConfiguration) *fakeConfigurations {
	f := &fakeConfigurations{byID: map[string]*models.EmailConfiguration{}, tests: map[string]testResult{}}
	for _, c := range configs {
		f.byID[c.ID] = c
	}
	return f
}

func (f *fakeConfigurations) Create(_ context.Context, config *models.EmailConfiguration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if config.ID == "" {
		config.ID = fmt.Sprintf("ecfg_%d", len(f.byID)+1)
	}
	copied := *config
	f.byID[config.ID] = &copied
	return config.ID, nil
}

func (f *fakeConfigurations) GetByID(_ context.Context, id string) (*models.EmailConfiguration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.byID[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeConfigurations) GetByEmailAddress(context.Context, string) (*models.EmailConfiguration, error) {
	return nil, nil
}

func (f *fakeConfigurations) GetByInstanceAndPrefix(context.Context, string, string) (*models.EmailConfiguration, error) {
	return nil, nil
}

func (f *fakeConfigurations) GetDefaultForInstance(context.Context, string) (*models.EmailConfiguration, error) {
	return nil, nil
}

func (f *fakeConfigurations) ListByInstance(_ context.Context, instanceID string) ([]*models.EmailConfiguration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.EmailConfiguration
	for _, c := range f.byID {
		if c.InstanceID == instanceID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConfigurations) ListProcessable(context.Context, enum.ConfigType) ([]*models.EmailConfiguration, error) {
	return nil, nil
}

func (f *fakeConfigurations) Update(_ context.Context, config *models.EmailConfiguration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[config.ID]; !ok {
		return fmt.Errorf("email configuration %s: %w", config.ID, apperrors.ErrNotFound)
	}
	copied := *config
	f.byID[config.ID] = &copied
	return nil
}

func (f *fakeConfigurations) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return fmt.Errorf("email configuration %s: %w", id, apperrors.ErrNotFound)
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeConfigurations) AdvanceWatermark(context.Context, []string, time.Time) error {
	return nil
}

func (f *fakeConfigurations) SetLastError(context.Context, string, string) error {
	return nil
}

func (f *fakeConfigurations) UpdateTestStatus(_ context.Context, id string, status enum.TestStatus, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tests[id] = testResult{status: status, message: message}
	if c, ok := f.byID[id]; ok {
		c.LastTestStatus = status
		c.LastTestError = message
	}
	return nil
}

func (f *fakeConfigurations) get(id string) *models.EmailConfiguration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

type fakeLogs struct {
	entries    []*models.ProcessingLog
	lastFilter interfaces.ProcessingLogFilter
}

func (f *fakeLogs) Exists(context.Context, string) (bool, error) {
	return false, nil
}

func (f *fakeLogs) Upsert(_ context.Context, entry *models.ProcessingLog) (string, error) {
	return entry.ID, nil
}

func (f *fakeLogs) GetByExternalMessageID(context.Context, string) (*models.ProcessingLog, error) {
	return nil, nil
}

func (f *fakeLogs) List(_ context.Context, filter interfaces.ProcessingLogFilter) ([]*models.ProcessingLog, int64, error) {
	f.lastFilter = filter
	var out []*models.ProcessingLog
	for _, e := range f.entries {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
	}
	return out, int64(len(out)), nil
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Tick(ctx context.Context) (*dto.TickSummary, error) {
	args := m.Called(ctx)
	summary, _ := args.Get(0).(*dto.TickSummary)
	return summary, args.Error(1)
}

func (m *mockProcessor) ProcessInstanceNow(ctx context.Context, instanceID string) (*dto.TickSummary, error) {
	args := m.Called(ctx, instanceID)
	summary, _ := args.Get(0).(*dto.TickSummary)
	return summary, args.Error(1)
}

func (m *mockProcessor) RetryMessage(ctx context.Context, externalMessageID string) (*models.ProcessingLog, error) {
	args := m.Called(ctx, externalMessageID)
	entry, _ := args.Get(0).(*models.ProcessingLog)
	return entry, args.Error(1)
}

func (m *mockProcessor) Status() dto.ProcessorStatus {
	return m.Called().Get(0).(dto.ProcessorStatus)
}

// fakeCipher marks values instead of encrypting them.
type fakeCipher struct{}

func (fakeCipher) Encrypt(plaintext string) (models.EncryptedValue, error) {
	if plaintext == "" {
		return models.EncryptedValue{}, nil
	}
	return models.EncryptedValue{Ciphertext: []byte("enc:" + plaintext), Nonce: []byte("n")}, nil
}

func (fakeCipher) Decrypt(value models.EncryptedValue) (string, error) {
	if value.IsEmpty() {
		return "", nil
	}
	s := string(value.Ciphertext)
	if !strings.HasPrefix(s, "enc:") {
		return "", errors.New("message authentication failed")
	}
	return strings.TrimPrefix(s, "enc:"), nil
}

type fakeMailbox struct {
	messages []dto.MailboxMessage
	err      error
	listed   []string
}

func (f *fakeMailbox) ListMessages(_ context.Context, mailbox string, _ *time.Time, top int) ([]dto.MailboxMessage, error) {
	f.listed = append(f.listed, mailbox)
	if f.err != nil {
		return nil, f.err
	}
	return f.messages[:min(top, len(f.messages))], nil
}

func (f *fakeMailbox) GetMessage(context.Context, string, string, bool) (*dto.MessageContent, error) {
	return nil, errors.New("not implemented")
}

type fakeFactory struct {
	mailbox *fakeMailbox
	creds   []models.ClientCredentials
}

func (f *fakeFactory) ForCredentials(creds models.ClientCredentials) interfaces.MailboxClient {
	f.creds = append(f.creds, creds)
	return f.mailbox
}
