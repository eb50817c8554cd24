package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/imsportal/filingstack/dto"
	"github.com/imsportal/filingstack/interfaces"
	apperrors "github.com/imsportal/filingstack/internal/errors"
	"github.com/imsportal/filingstack/internal/models"
	"github.com/imsportal/filingstack/internal/tracing"
	"github.com/imsportal/filingstack/internal/utils"
)

type graphClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGraphClient returns a mailbox client authenticated with the OAuth2
// client credentials flow. Tokens are cached and refreshed by the transport.
func NewGraphClient(cfg *Config, creds models.ClientCredentials) interfaces.MailboxClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ccConfig := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimRight(cfg.Authority, "/"), creds.TenantID),
		Scopes:       []string{cfg.Scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	// token requests use their own bounded client
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})
	httpClient := ccConfig.Client(tokenCtx)
	httpClient.Timeout = timeout

	return &graphClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
	}
}

type clientKey struct {
	tenantID string
	clientID string
}

type cachedClient struct {
	secret string
	client interfaces.MailboxClient
}

// graphClientFactory keeps one client per app registration so the token
// cached by its transport survives across ticks.
type graphClientFactory struct {
	cfg     *Config
	mu      sync.Mutex
	clients map[clientKey]cachedClient
}

func NewGraphClientFactory(cfg *Config) interfaces.MailboxClientFactory {
	return &graphClientFactory{cfg: cfg, clients: make(map[clientKey]cachedClient)}
}

// ForCredentials returns the cached client for the tenant and client id.
// A changed secret replaces the entry.
func (f *graphClientFactory) ForCredentials(creds models.ClientCredentials) interfaces.MailboxClient {
	key := clientKey{tenantID: creds.TenantID, clientID: creds.ClientID}

	f.mu.Lock()
	defer f.mu.Unlock()

	if cached, ok := f.clients[key]; ok && cached.secret == creds.ClientSecret {
		return cached.client
	}
	client := NewGraphClient(f.cfg, creds)
	f.clients[key] = cachedClient{secret: creds.ClientSecret, client: client}
	return client
}

func (c *graphClient) ListMessages(ctx context.Context, mailbox string, since *time.Time, top int) ([]dto.MailboxMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "graphClient.ListMessages")
	defer span.Finish()
	tracing.SetDefaultExternalAPISpanTags(ctx, span)
	tracing.TagMailbox(span, mailbox)
	span.SetTag("top", top)

	query := url.Values{}
	if since != nil {
		query.Set("$filter", "receivedDateTime ge "+since.UTC().Format(time.RFC3339))
		span.SetTag("since", since.UTC().Format(time.RFC3339Nano))
	}
	query.Set("$orderby", "receivedDateTime asc")
	if top > 0 {
		query.Set("$top", strconv.Itoa(top))
	}
	query.Set("$select", listSelectFields)

	endpoint := fmt.Sprintf("%s/users/%s/messages?%s", c.baseURL, url.PathEscape(mailbox), query.Encode())

	var list messageList
	if err := c.get(ctx, span, endpoint, &list); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "failed to list messages for %s", mailbox)
	}

	messages := make([]dto.MailboxMessage, 0, len(list.Value))
	for _, m := range list.Value {
		messages = append(messages, m.summary())
	}
	span.SetTag("result.count", len(messages))

	return messages, nil
}

func (c *graphClient) GetMessage(ctx context.Context, mailbox, id string, expandAttachments bool) (*dto.MessageContent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "graphClient.GetMessage")
	defer span.Finish()
	tracing.SetDefaultExternalAPISpanTags(ctx, span)
	tracing.TagMailbox(span, mailbox)
	tracing.TagEntity(span, id)

	endpoint := fmt.Sprintf("%s/users/%s/messages/%s", c.baseURL, url.PathEscape(mailbox), url.PathEscape(id))
	if expandAttachments {
		endpoint += "?" + url.Values{"$expand": []string{"attachments"}}.Encode()
	}

	var m message
	if err := c.get(ctx, span, endpoint, &m); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "failed to get message %s", id)
	}

	content := &dto.MessageContent{
		MailboxMessage:  m.summary(),
		BodyContentType: dto.BodyText,
	}
	if m.Body != nil {
		content.Body = m.Body.Content
		if strings.EqualFold(m.Body.ContentType, "html") {
			content.BodyContentType = dto.BodyHTML
		}
	}
	for _, a := range m.Attachments {
		// item and reference attachments carry no bytes
		if a.ODataType != "" && a.ODataType != fileAttachmentType {
			continue
		}
		content.Attachments = append(content.Attachments, dto.Attachment{
			Name:        a.Name,
			ContentType: a.ContentType,
			Size:        a.Size,
			Content:     a.ContentBytes,
			IsInline:    a.IsInline,
		})
	}
	span.SetTag("result.attachments", len(content.Attachments))

	return content, nil
}

func (c *graphClient) get(ctx context.Context, span opentracing.Span, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", `outlook.body-content-type="html"`)
	req = tracing.InjectSpanContextIntoHTTPRequest(req, span)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrTransientIO, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: unable to read response body: %v", apperrors.ErrTransientIO, err)
	}
	span.SetTag("http.status_code", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to unmarshal response")
	}
	return nil
}

func statusError(status int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	var graphErr errorResponse
	if json.Unmarshal(body, &graphErr) == nil && graphErr.Error.Message != "" {
		detail = graphErr.Error.Code + ": " + graphErr.Error.Message
	}

	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: graph returned %d: %s", apperrors.ErrNotFound, status, detail)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: graph returned %d: %s", apperrors.ErrTransientIO, status, detail)
	default:
		return fmt.Errorf("graph returned %d: %s", status, detail)
	}
}

func (m message) summary() dto.MailboxMessage {
	summary := dto.MailboxMessage{
		ID:             m.ID,
		Subject:        m.Subject,
		ReceivedAt:     m.ReceivedDateTime.UTC(),
		HasAttachments: m.HasAttachments,
		To:             addresses(m.ToRecipients),
		Cc:             addresses(m.CcRecipients),
	}
	if m.From != nil {
		summary.From = utils.NormalizeAddress(m.From.EmailAddress.Address)
	}
	return summary
}

func addresses(recipients []recipient) []string {
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if address := utils.NormalizeAddress(r.EmailAddress.Address); address != "" {
			out = append(out, address)
		}
	}
	return out
}
