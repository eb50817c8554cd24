package ims

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/imsportal/filingstack/dto"
	"github.com/imsportal/filingstack/interfaces"
	apperrors "github.com/imsportal/filingstack/internal/errors"
	"github.com/imsportal/filingstack/internal/tracing"
	"github.com/imsportal/filingstack/internal/utils"
)

const (
	logonService    = "Logon"
	documentService = "DocumentFunctions"
)

type imsClient struct {
	namespace  string
	httpClient *http.Client
}

func NewIMSClient(cfg *Config) interfaces.IMSClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &imsClient{
		namespace:  cfg.Namespace,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *imsClient) Login(ctx context.Context, baseURL, username, password string) (*interfaces.IMSSession, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "imsClient.Login")
	defer span.Finish()
	tracing.SetDefaultExternalAPISpanTags(ctx, span)
	span.SetTag("ims.base_url", baseURL)
	span.SetTag("ims.username", username)

	ns := serviceNamespace(c.namespace, logonService)
	request := newEnvelope(nil, loginIMSUser{
		NS:       ns,
		UserName: username,
		Password: password,
	})

	response, err := c.call(ctx, span, baseURL, logonService, ns+"/LoginIMSUser", request)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "ims login failed")
	}
	if response.Body.LoginIMSUserResponse == nil || response.Body.LoginIMSUserResponse.Result.Token == "" {
		err := fmt.Errorf("%w: ims login returned no token", apperrors.ErrFilingFailure)
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &interfaces.IMSSession{
		BaseURL: baseURL,
		Token:   response.Body.LoginIMSUserResponse.Result.Token,
	}, nil
}

func (c *imsClient) InsertAssociatedDocument(ctx context.Context, session *interfaces.IMSSession, doc dto.IMSDocument) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "imsClient.InsertAssociatedDocument")
	defer span.Finish()
	tracing.SetDefaultExternalAPISpanTags(ctx, span)
	span.SetTag("document.name", doc.Name)
	span.SetTag("document.size", len(doc.Content))
	span.SetTag("control_number", doc.ControlNumber)

	if session == nil || session.Token == "" {
		err := errors.New("ims session is not logged in")
		tracing.TraceErr(span, err)
		return "", err
	}

	ns := serviceNamespace(c.namespace, documentService)
	request := newEnvelope(
		&tokenHeader{NS: ns, Token: session.Token},
		insertAssociatedDocument{
			NS:            ns,
			FileData:      base64.StdEncoding.EncodeToString(doc.Content),
			FileName:      doc.Name,
			FileExtension: "." + utils.FileExtension(doc.Name, doc.ContentType),
			ContentType:   doc.ContentType,
			ControlNumber: doc.ControlNumber,
			FolderID:      doc.FolderID,
			Description:   doc.Description,
		},
	)

	response, err := c.call(ctx, span, session.BaseURL, documentService, ns+"/InsertAssociatedDocument", request)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrapf(err, "failed to insert document %s", doc.Name)
	}
	if response.Body.InsertAssociatedDocumentResponse == nil || response.Body.InsertAssociatedDocumentResponse.Result == "" {
		err := fmt.Errorf("%w: ims returned no document id for %s", apperrors.ErrFilingFailure, doc.Name)
		tracing.TraceErr(span, err)
		return "", err
	}

	documentID := response.Body.InsertAssociatedDocumentResponse.Result
	span.SetTag("result.document_id", documentID)
	return documentID, nil
}

func (c *imsClient) call(ctx context.Context, span opentracing.Span, baseURL, service, action string, request requestEnvelope) (*responseEnvelope, error) {
	payload, err := xml.Marshal(request)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal soap request")
	}
	payload = append([]byte(xml.Header), payload...)

	endpoint := fmt.Sprintf("%s/%s.asmx", strings.TrimRight(baseURL, "/"), service)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `"`+action+`"`)
	req = tracing.InjectSpanContextIntoHTTPRequest(req, span)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrTransientIO, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read response body: %v", apperrors.ErrTransientIO, err)
	}
	span.SetTag("http.status_code", resp.StatusCode)

	var response responseEnvelope
	decodeErr := xml.Unmarshal(body, &response)
	if decodeErr == nil && response.Body.Fault != nil {
		return nil, fmt.Errorf("%w: soap fault %s: %s", apperrors.ErrFilingFailure, response.Body.Fault.Code, response.Body.Fault.String)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: ims returned %d", apperrors.ErrTransientIO, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: ims returned %d", apperrors.ErrFilingFailure, resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, errors.Wrap(decodeErr, "failed to unmarshal soap response")
	}

	return &response, nil
}
