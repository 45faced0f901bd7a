/**
 * @description
 * This package provides a client for the NPP simulation backend's REST API and
 * its per-payment server-sent event stream. It covers payment submission, PayID
 * resolution, the registered PayID list, ISO 20022 messages and payment returns.
 *
 * @dependencies
 * - github.com/go-resty/resty/v2: HTTP client used for every request.
 * - github.com/shopspring/decimal: Amounts are sent as fixed two-place numbers.
 */
package nppclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/njabbott/npp-simulation/internal/domain"
)

// DefaultTimeout bounds every non-streaming request.
const DefaultTimeout = 30 * time.Second

// Client is a client for the NPP simulation API.
type Client struct {
	BaseURL string
	rest    *resty.Client
	// stream has no overall timeout; a status stream stays open until closed.
	stream *resty.Client
}

// NewClient creates a new NPP API client. A non-positive timeout uses DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")

	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	stream := resty.NewWithClient(&http.Client{}).
		SetBaseURL(baseURL).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Cache-Control", "no-cache")

	return &Client{BaseURL: baseURL, rest: rest, stream: stream}
}

// APIError is the error body returned by the backend for any non-2xx response.
type APIError struct {
	Timestamp  string `json:"timestamp"`
	StatusCode int    `json:"status"`
	ErrorText  string `json:"error"`
	Message    string `json:"message"`
	// StatusText is the HTTP status line, used when the body carried no message.
	StatusText string `json:"-"`
}

// Error returns the backend message verbatim so it can be shown to the user.
func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.StatusText != "" {
		return e.StatusText
	}
	if e.ErrorText != "" {
		return e.ErrorText
	}
	return "npp api error (status " + strconv.Itoa(e.StatusCode) + ")"
}

type submitPayload struct {
	Amount json.Number `json:"amount"`
	domain.PaymentRequest
}

// SubmitPayment initiates a payment and returns the created record.
func (c *Client) SubmitPayment(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentRecord, error) {
	payload := submitPayload{
		Amount:         json.Number(req.Amount.StringFixed(2)),
		PaymentRequest: req,
	}

	var record domain.PaymentRecord
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		SetResult(&record).
		SetError(&APIError{}).
		Post("/api/payments")
	if err := c.check("submit_payment", resp, err); err != nil {
		return nil, err
	}
	return &record, nil
}

// ResolvePayID looks up the account a PayID is registered to.
func (c *Client) ResolvePayID(ctx context.Context, payIDType domain.PayIDType, value string) (*domain.PayeeResolution, error) {
	var resolution domain.PayeeResolution
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"type": string(payIDType), "value": value}).
		SetResult(&resolution).
		SetError(&APIError{}).
		Get("/api/payid/resolve")
	if err := c.check("resolve_payid", resp, err); err != nil {
		return nil, err
	}
	return &resolution, nil
}

// ListPayIDs returns every PayID registered with the backend.
func (c *Client) ListPayIDs(ctx context.Context) ([]domain.PayeeResolution, error) {
	var payees []domain.PayeeResolution
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&payees).
		SetError(&APIError{}).
		Get("/api/payid")
	if err := c.check("list_payids", resp, err); err != nil {
		return nil, err
	}
	return payees, nil
}

// ListMessages returns all ISO 20022 messages the backend has generated.
func (c *Client) ListMessages(ctx context.Context) ([]domain.MessageRecord, error) {
	var messages []domain.MessageRecord
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&messages).
		SetError(&APIError{}).
		Get("/api/messages")
	if err := c.check("list_messages", resp, err); err != nil {
		return nil, err
	}
	return messages, nil
}

// ReturnPayment requests a post-settlement return for the payment with the
// given record id.
func (c *Client) ReturnPayment(ctx context.Context, id int64) (*domain.PaymentRecord, error) {
	var record domain.PaymentRecord
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatInt(id, 10)).
		SetResult(&record).
		SetError(&APIError{}).
		Post("/api/payments/{id}/return")
	if err := c.check("return_payment", resp, err); err != nil {
		return nil, err
	}
	return &record, nil
}

// GetPayment fetches the current state of a payment by its record id.
func (c *Client) GetPayment(ctx context.Context, id int64) (*domain.PaymentRecord, error) {
	var record domain.PaymentRecord
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatInt(id, 10)).
		SetResult(&record).
		SetError(&APIError{}).
		Get("/api/payments/{id}")
	if err := c.check("get_payment", resp, err); err != nil {
		return nil, err
	}
	return &record, nil
}

// check turns a transport failure or non-2xx response into an error.
func (c *Client) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	if !resp.IsError() {
		return nil
	}

	apiErr, ok := resp.Error().(*APIError)
	if !ok || apiErr == nil {
		apiErr = &APIError{}
	}
	if apiErr.StatusCode == 0 {
		apiErr.StatusCode = resp.StatusCode()
	}
	apiErr.StatusText = http.StatusText(resp.StatusCode())
	log.Printf("level=warn component=npp_client op=%s status=%d msg=%q", op, resp.StatusCode(), apiErr.Message)
	return apiErr
}
