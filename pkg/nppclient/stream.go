/**
 * @description
 * The per-payment server-sent event stream. Only "status" frames are decoded;
 * the stream is never reconnected, so a transport failure ends it.
 *
 * @dependencies
 * - github.com/go-resty/resty/v2: Opens the unparsed streaming response.
 */

package nppclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/njabbott/npp-simulation/internal/domain"
)

// statusEventName is the SSE event name the backend uses for status frames.
const statusEventName = "status"

const maxFrameBytes = 1 << 20

// ErrStreamClosed is returned by Next after Close.
var ErrStreamClosed = errors.New("status stream closed")

// StatusStream is an open server-sent event stream for one payment.
type StatusStream struct {
	paymentID string
	body      io.ReadCloser
	scanner   *bufio.Scanner
	cancel    context.CancelFunc

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// OpenStatusStream subscribes to status events for paymentID. It returns once
// the backend has accepted the subscription. The stream is never reconnected.
func (c *Client) OpenStatusStream(ctx context.Context, paymentID string) (*StatusStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	resp, err := c.stream.R().
		SetContext(streamCtx).
		SetDoNotParseResponse(true).
		SetPathParam("paymentId", paymentID).
		Get("/api/payments/{paymentId}/events")
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open status stream: %w", err)
	}

	body := resp.RawBody()
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode(), StatusText: http.StatusText(resp.StatusCode())}
		if body != nil {
			_ = json.NewDecoder(io.LimitReader(body, maxFrameBytes)).Decode(apiErr)
			body.Close()
		}
		cancel()
		log.Printf("level=warn component=npp_client op=open_status_stream payment_id=%s status=%d msg=%q", paymentID, resp.StatusCode(), apiErr.Message)
		return nil, apiErr
	}
	if body == nil {
		cancel()
		return nil, fmt.Errorf("open status stream: empty response body")
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameBytes)

	return &StatusStream{
		paymentID: paymentID,
		body:      body,
		scanner:   scanner,
		cancel:    cancel,
	}, nil
}

// Next blocks until the next status event arrives. It returns io.EOF when the
// server ends the stream and ErrStreamClosed after Close.
func (s *StatusStream) Next() (domain.StatusEvent, error) {
	var (
		eventName string
		data      strings.Builder
	)

	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			if data.Len() > 0 && eventName == statusEventName {
				var event domain.StatusEvent
				if err := json.Unmarshal([]byte(data.String()), &event); err != nil {
					log.Printf("level=warn component=npp_client op=read_status_stream payment_id=%s msg=\"discarding malformed status frame\" err=%v", s.paymentID, err)
				} else {
					return event, nil
				}
			}
			eventName = ""
			data.Reset()
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			eventName = value
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		}
	}

	if s.isClosed() {
		return domain.StatusEvent{}, ErrStreamClosed
	}
	if err := s.scanner.Err(); err != nil {
		return domain.StatusEvent{}, fmt.Errorf("read status stream: %w", err)
	}
	return domain.StatusEvent{}, io.EOF
}

// Close releases the connection. It is safe to call more than once.
func (s *StatusStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		err = s.body.Close()
	})
	return err
}

func (s *StatusStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
