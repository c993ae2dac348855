// Package emailjs is a minimal client for the EmailJS REST send endpoint.
//
// The browser SDK posts the same JSON body; calling it from a server
// requires "API access from non-browser environments" to be enabled for
// the account. A non-2xx response is returned as an *APIError carrying the
// status and the plain-text reason EmailJS sends back.
package emailjs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dcmarble/stonesite/internal/contact"
	"github.com/dcmarble/stonesite/internal/logging"
	"github.com/dcmarble/stonesite/internal/version"
)

// DefaultEndpoint is the public EmailJS send URL.
const DefaultEndpoint = "https://api.emailjs.com/api/v1.0/email/send"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 1024

// Request is the JSON body accepted by the send endpoint.
type Request struct {
	ServiceID      string          `json:"service_id"`
	TemplateID     string          `json:"template_id"`
	UserID         string          `json:"user_id"`
	AccessToken    string          `json:"accessToken,omitempty"`
	TemplateParams contact.Payload `json:"template_params"`
}

// APIError is a rejected send.
type APIError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("emailjs: status %d", e.StatusCode)
	}
	return fmt.Sprintf("emailjs: status %d: %s", e.StatusCode, e.Body)
}

// Client sends contact messages through EmailJS. It implements
// contact.Sender.
type Client struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
	logger      logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the send URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithAccessToken sets the optional private key sent as accessToken.
func WithAccessToken(token string) Option {
	return func(c *Client) {
		c.accessToken = token
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds each send.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.WithComponent("emailjs")
		}
	}
}

// NewClient creates a Client with a 15 second timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ contact.Sender = (*Client)(nil)

// Send posts one message. Credentials are passed through untouched.
func (c *Client) Send(ctx context.Context, creds contact.Credentials, payload contact.Payload) error {
	body, err := json.Marshal(Request{
		ServiceID:      creds.ServiceID,
		TemplateID:     creds.TemplateID,
		UserID:         creds.PublicKey,
		AccessToken:    c.accessToken,
		TemplateParams: payload,
	})
	if err != nil {
		return fmt.Errorf("encoding emailjs request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building emailjs request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "stonesite/"+version.GetVersion())

	op := logging.StartOperation(c.logger, "emailjs.send")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("emailjs request failed: %w", err)
		op.EndWithError(ctx, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
		op.EndWithError(ctx, apiErr)
		return apiErr
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	op.End(ctx)
	return nil
}
