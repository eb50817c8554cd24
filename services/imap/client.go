package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"

	"github.com/imsportal/filingstack/interfaces"
	apperrors "github.com/imsportal/filingstack/internal/errors"
	"github.com/imsportal/filingstack/internal/tracing"
)

var _ interfaces.MailboxClient = (*IMAPClient)(nil)

type IMAPClient struct {
	cfg *Config

	mu     sync.Mutex
	client *client.Client
}

func NewIMAPClient(cfg *Config) *IMAPClient {
	return &IMAPClient{cfg: cfg}
}

func (c *IMAPClient) timeout() time.Duration {
	if c.cfg.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.cfg.Timeout
}

// connect establishes a logged in connection to the configured server
func (c *IMAPClient) connect(ctx context.Context) (*client.Client, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "IMAPClient.connect")
	defer span.Finish()
	tracing.TagComponentExternalAPI(span)
	span.SetTag("server", c.cfg.Server)
	span.SetTag("port", c.cfg.Port)
	span.SetTag("tls", c.cfg.TLS)

	serverAddr := fmt.Sprintf("%s:%d", c.cfg.Server, c.cfg.Port)

	dialer := &net.Dialer{
		Timeout:   c.timeout(),
		KeepAlive: 30 * time.Second,
	}

	var (
		imapClient *client.Client
		err        error
	)
	if c.cfg.TLS {
		imapClient, err = client.DialWithDialerTLS(dialer, serverAddr, &tls.Config{ServerName: c.cfg.Server})
	} else {
		imapClient, err = client.DialWithDialer(dialer, serverAddr)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("%w: failed to connect to %s: %v", apperrors.ErrTransientIO, serverAddr, err)
	}

	imapClient.Timeout = c.timeout()
	if err := imapClient.Login(c.cfg.Username, c.cfg.Password); err != nil {
		_ = imapClient.Logout()
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to login as %s: %w", c.cfg.Username, err)
	}

	log.Printf("[imap] connected to %s as %s", serverAddr, c.cfg.Username)
	return imapClient, nil
}

// getClient returns the cached connection when it still answers NOOP,
// otherwise a fresh one. Callers hold c.mu.
func (c *IMAPClient) getClient(ctx context.Context) (*client.Client, error) {
	if c.client != nil {
		if err := c.client.Noop(); err == nil {
			return c.client, nil
		}
		log.Printf("[imap] existing connection is broken, reconnecting")
		_ = c.client.Logout()
		c.client = nil
	}

	imapClient, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	c.client = imapClient
	return imapClient, nil
}

// Close logs out, giving up after five seconds.
func (c *IMAPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	imapClient := c.client
	c.client = nil
	imapClient.Timeout = 5 * time.Second

	done := make(chan error, 1)
	go func() {
		done <- imapClient.Logout()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		log.Printf("[imap] logout timed out")
		return nil
	}
}
