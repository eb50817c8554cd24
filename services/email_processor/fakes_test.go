package email_processor

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/imsportal/filingstack/dto"
	"github.com/imsportal/filingstack/interfaces"
	"github.com/imsportal/filingstack/internal/enum"
	"github.com/imsportal/filingstack/internal/models"
)

type fakeMailbox struct {
	mu       sync.Mutex
	messages []dto.MailboxMessage
	listErr  error
	getErr   map[string]error
	onGet    func(id string)
	listed   []time.Time
}

func (m *fakeMailbox) ListMessages(_ context.Context, _ string, since *time.Time, top int) ([]dto.MailboxMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	if since != nil {
		m.listed = append(m.listed, *since)
	}
	sorted := append([]dto.MailboxMessage(nil), m.messages...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ReceivedAt.Before(sorted[j].ReceivedAt) })

	var result []dto.MailboxMessage
	for _, msg := range sorted {
		if since != nil && msg.ReceivedAt.Before(*since) {
			continue
		}
		result = append(result, msg)
		if len(result) == top {
			break
		}
	}
	return result, nil
}

func (m *fakeMailbox) GetMessage(_ context.Context, _ string, id string, _ bool) (*dto.MessageContent, error) {
	if m.onGet != nil {
		m.onGet(id)
	}
	if err := m.getErr[id]; err != nil {
		return nil, err
	}
	for _, msg := range m.messages {
		if msg.ID == id {
			return &dto.MessageContent{
				MailboxMessage:  msg,
				Body:            "see attached",
				BodyContentType: dto.BodyText,
				Attachments: []dto.Attachment{
					{Name: "policy.pdf", Content: []byte("%PDF")},
					{Name: "logo.png", Content: []byte("png"), IsInline: true},
					{Name: "empty.txt"},
				},
			}, nil
		}
	}
	return nil, errors.New("message not found")
}

type fakeFactory struct {
	client *fakeMailbox
	creds  []models.ClientCredentials
}

func (f *fakeFactory) ForCredentials(creds models.ClientCredentials) interfaces.MailboxClient {
	f.creds = append(f.creds, creds)
	return f.client
}

// fakeStore keeps processing logs and watermarks in memory with the same
// upsert and GREATEST semantics as Postgres.
type fakeStore struct {
	mu         sync.Mutex
	logs       map[string]*models.ProcessingLog
	watermarks map[string]time.Time
	failRecord map[string]bool
	seenErr    error
	advanceErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		logs:       map[string]*models.ProcessingLog{},
		watermarks: map[string]time.Time{},
		failRecord: map[string]bool{},
	}
}

func (s *fakeStore) HasProcessed(_ context.Context, externalMessageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seenErr != nil {
		return false, s.seenErr
	}
	_, ok := s.logs[externalMessageID]
	return ok, nil
}

func (s *fakeStore) RecordAttempt(_ context.Context, entry *models.ProcessingLog) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRecord[entry.ExternalMessageID] {
		return "", errors.New("connection reset")
	}
	stored := *entry
	if existing, ok := s.logs[entry.ExternalMessageID]; ok {
		stored.ID = existing.ID
		stored.Attempts = existing.Attempts
		if entry.Status == enum.ProcessingInProgress {
			stored.Attempts++
		}
	} else {
		stored.ID = "plog_" + entry.ExternalMessageID
		stored.Attempts = 1
	}
	s.logs[entry.ExternalMessageID] = &stored
	return stored.ID, nil
}

func (s *fakeStore) AdvanceWatermark(_ context.Context, configIDs []string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.advanceErr != nil {
		return s.advanceErr
	}
	for _, id := range configIDs {
		if ts.After(s.watermarks[id]) {
			s.watermarks[id] = ts
		}
	}
	return nil
}

func (s *fakeStore) status(externalMessageID string) enum.ProcessingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.logs[externalMessageID]; ok {
		return entry.Status
	}
	return ""
}

func (s *fakeStore) watermark(configID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermarks[configID]
}

type fakeLogs struct {
	interfaces.ProcessingLogRepository
	store *fakeStore
}

func (l *fakeLogs) GetByExternalMessageID(_ context.Context, externalMessageID string) (*models.ProcessingLog, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	entry, ok := l.store.logs[externalMessageID]
	if !ok {
		return nil, nil
	}
	copied := *entry
	return &copied, nil
}

type fakeInstances struct {
	interfaces.InstanceRepository
	instances map[string]*models.Instance
}

func (f *fakeInstances) GetByID(_ context.Context, id string) (*models.Instance, error) {
	return f.instances[id], nil
}

type fakeConfigurations struct {
	interfaces.EmailConfigurationRepository
	mu         sync.Mutex
	store      *fakeStore
	instances  *fakeInstances
	configs    []*models.EmailConfiguration
	lastErrors map[string]string
}

func (f *fakeConfigurations) snapshot(config *models.EmailConfiguration) *models.EmailConfiguration {
	copied := *config
	if ts := f.store.watermark(config.ID); !ts.IsZero() {
		copied.LastProcessedAt = &ts
	}
	copied.LastError = f.lastErrors[config.ID]
	return &copied
}

func (f *fakeConfigurations) ListProcessable(_ context.Context, configType enum.ConfigType) ([]*models.EmailConfiguration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.EmailConfiguration
	for _, config := range f.configs {
		instance := f.instances.instances[config.InstanceID]
		if config.ConfigType != configType || !config.IsActive || !instance.IsEmailActive() {
			continue
		}
		copied := f.snapshot(config)
		copied.Instance = instance
		result = append(result, copied)
	}
	return result, nil
}

func (f *fakeConfigurations) ListByInstance(_ context.Context, instanceID string) ([]*models.EmailConfiguration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.EmailConfiguration
	for _, config := range f.configs {
		if config.InstanceID == instanceID {
			result = append(result, f.snapshot(config))
		}
	}
	return result, nil
}

func (f *fakeConfigurations) GetByID(_ context.Context, id string) (*models.EmailConfiguration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, config := range f.configs {
		if config.ID == id {
			return f.snapshot(config), nil
		}
	}
	return nil, nil
}

func (f *fakeConfigurations) SetLastError(_ context.Context, configID string, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if message == "" {
		delete(f.lastErrors, configID)
		return nil
	}
	f.lastErrors[configID] = message
	return nil
}

type routerFunc func(ctx context.Context, addresses []string) (*dto.RoutingResult, error)

func (f routerFunc) Route(ctx context.Context, addresses []string) (*dto.RoutingResult, error) {
	return f(ctx, addresses)
}

type fakeFiling struct {
	mu        sync.Mutex
	filed     []string
	instances []string
	errFor    map[string]error
}

func (f *fakeFiling) File(_ context.Context, instance *models.Instance, _ *models.EmailConfiguration, message *dto.MessageContent, controlNumber string) (*dto.FilingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errFor[message.ID]; err != nil {
		return &dto.FilingResult{}, err
	}
	f.filed = append(f.filed, message.ID+":"+controlNumber)
	f.instances = append(f.instances, instance.ID)
	return &dto.FilingResult{Documents: []dto.FiledDocument{{Name: "body", DocumentID: "doc-" + message.ID, IsBody: true}}}, nil
}

type fakeCipher struct{}

func (fakeCipher) Encrypt(plaintext string) (models.EncryptedValue, error) {
	return models.EncryptedValue{Ciphertext: []byte(plaintext)}, nil
}

func (fakeCipher) Decrypt(value models.EncryptedValue) (string, error) {
	if strings.HasPrefix(string(value.Ciphertext), "corrupt") {
		return "", errors.New("message authentication failed")
	}
	return string(value.Ciphertext), nil
}

type fakeEvents struct {
	mu       sync.Mutex
	statuses map[string]enum.ProcessingStatus
}

func (e *fakeEvents) PublishEmailProcessed(_ context.Context, event dto.EmailProcessed) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses[event.ExternalMessageID] = event.Status
	return nil
}

func (e *fakeEvents) Close() error {
	return nil
}
