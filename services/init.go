package services

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/imsportal/filingstack/config"
	"github.com/imsportal/filingstack/interfaces"
	"github.com/imsportal/filingstack/internal/crypto"
	"github.com/imsportal/filingstack/internal/enum"
	apperrors "github.com/imsportal/filingstack/internal/errors"
	"github.com/imsportal/filingstack/internal/logger"
	"github.com/imsportal/filingstack/internal/metrics"
	"github.com/imsportal/filingstack/internal/models"
	"github.com/imsportal/filingstack/internal/repository"
	"github.com/imsportal/filingstack/services/email_processor"
	"github.com/imsportal/filingstack/services/events"
	"github.com/imsportal/filingstack/services/extraction"
	"github.com/imsportal/filingstack/services/filing"
	"github.com/imsportal/filingstack/services/graph"
	"github.com/imsportal/filingstack/services/imap"
	"github.com/imsportal/filingstack/services/ims"
	"github.com/imsportal/filingstack/services/routing"
	"github.com/imsportal/filingstack/services/storage"
)

type Services struct {
	Metrics   *metrics.Metrics
	Cipher    interfaces.CredentialCipher
	Archive   interfaces.StorageService
	IMS       interfaces.IMSClient
	Filing    interfaces.FilingGateway
	Events    interfaces.EventPublisher
	Router    interfaces.AddressRouter
	Extractor interfaces.ControlNumberExtractor

	// Nil when no shared mailbox is configured.
	ManagedMailbox     interfaces.MailboxClient
	ManagedMailboxName string
	ClientMailboxes    interfaces.MailboxClientFactory

	closers []io.Closer
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories, reg prometheus.Registerer) (*Services, error) {
	m := metrics.NewMetrics(reg)

	cipher, err := crypto.NewCredentialCipher(cfg.Crypto.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("credential cipher: %w", err)
	}

	archive, err := storage.NewStorageServiceFromConfig(cfg.Archive)
	if err != nil {
		return nil, err
	}
	if archive == nil {
		log.Info("document archive disabled")
	}

	router, err := routing.NewAddressRouter(cfg.Routing, repos.InstanceRepository, repos.EmailConfigurationRepository)
	if err != nil {
		return nil, err
	}

	publisher, err := events.NewEventPublisher(*cfg.Events, cfg.AppConfig.AppSource, log, events.DefaultPublisherConfig())
	if err != nil {
		return nil, fmt.Errorf("event publisher: %w", err)
	}

	imsClient := ims.NewIMSClient(cfg.IMS)

	s := &Services{
		Metrics:            m,
		Cipher:             cipher,
		Archive:            archive,
		IMS:                imsClient,
		Filing:             filing.NewFilingGateway(imsClient, cipher, archive, m, log),
		Events:             publisher,
		Router:             router,
		Extractor:          extraction.NewControlNumberExtractor(),
		ManagedMailboxName: cfg.ManagedMailboxName(),
		ClientMailboxes:    graph.NewGraphClientFactory(cfg.Graph),
		closers:            []io.Closer{publisher},
	}

	if err := s.initManagedMailbox(cfg, log); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Services) initManagedMailbox(cfg *config.Config, log logger.Logger) error {
	switch cfg.AppConfig.MailboxProvider {
	case enum.MailboxProviderIMAP:
		if cfg.IMAP.Server == "" {
			log.Warn("IMAP_SERVER not set, managed mailbox disabled")
			return nil
		}
		client := imap.NewIMAPClient(cfg.IMAP)
		s.ManagedMailbox = client
		s.closers = append(s.closers, client)
	case enum.MailboxProviderGraph:
		if cfg.Graph.SharedMailbox == "" {
			log.Warn("GRAPH_SHARED_MAILBOX not set, managed mailbox disabled")
			return nil
		}
		s.ManagedMailbox = graph.NewGraphClient(cfg.Graph, cfg.Graph.SystemCredentials())
	default:
		return fmt.Errorf("unknown mailbox provider %q: %w", cfg.AppConfig.MailboxProvider, apperrors.ErrConfiguration)
	}
	return nil
}

// ProcessorServices are the collaborators handed to the email processor.
func (s *Services) ProcessorServices() email_processor.Services {
	return email_processor.Services{
		ManagedMailbox:     s.ManagedMailbox,
		ManagedMailboxName: s.ManagedMailboxName,
		ClientMailboxes:    s.ClientMailboxes,
		Router:             s.Router,
		Extractor:          s.Extractor,
		Filing:             s.Filing,
		Cipher:             s.Cipher,
		Events:             s.Events,
	}
}

// MailboxFor returns the client and mailbox name a configuration is read
// from.
func (s *Services) MailboxFor(cfg *models.EmailConfiguration) (interfaces.MailboxClient, string, error) {
	if !cfg.IsClientHosted() {
		if s.ManagedMailbox == nil {
			return nil, "", fmt.Errorf("managed mailbox is not enabled: %w", apperrors.ErrConfiguration)
		}
		return s.ManagedMailbox, s.ManagedMailboxName, nil
	}

	mailbox := cfg.Address()
	if mailbox == "" {
		return nil, "", fmt.Errorf("configuration %s has no mailbox address: %w", cfg.ID, apperrors.ErrInvalidInput)
	}
	creds, err := crypto.DecryptClientCredentials(s.Cipher, cfg)
	if err != nil {
		return nil, "", err
	}
	return s.ClientMailboxes.ForCredentials(creds), mailbox, nil
}

// Close releases connections. Errors are ignored at shutdown.
func (s *Services) Close() {
	for _, c := range s.closers {
		_ = c.Close()
	}
}
