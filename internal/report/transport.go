package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrTransport wraps every failure to render a report.
var ErrTransport = errors.New("report transport failed")

// Content types produced by the transports.
const (
	ContentTypeCSV  = "text/csv"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Blob is a rendered report file.
type Blob struct {
	ContentType string
	Data        []byte
}

// Transport renders report records into a file.
type Transport interface {
	Send(ctx context.Context, records []Record) (*Blob, error)
}

// DefaultHTTPTimeout bounds one report service request.
const DefaultHTTPTimeout = 60 * time.Second

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// HTTPTransport posts records to the report service.
type HTTPTransport struct {
	url    string
	client *http.Client
}

// NewHTTPTransport creates a transport for the report endpoint. A nil client
// gets one with DefaultHTTPTimeout.
func NewHTTPTransport(url string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &HTTPTransport{url: url, client: client}
}

// Send posts the records as a bare JSON array. If the service rejects that
// body, it is sent once more wrapped as {"dataArray": [...]}; older service
// versions only accept the wrapped form.
func (t *HTTPTransport) Send(ctx context.Context, records []Record) (*Blob, error) {
	blob, err := t.post(ctx, records)
	if err == nil {
		return blob, nil
	}

	var se *statusError
	if !errors.As(err, &se) {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	blob, err = t.post(ctx, map[string][]Record{"dataArray": records})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return blob, nil
}

// statusError is a non-2xx response from the report service.
type statusError struct {
	Status  int
	Message string
}

func (e *statusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("server error %d", e.Status)
}

func (t *HTTPTransport) post(ctx context.Context, body any) (*Blob, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("no response from server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &statusError{Status: resp.StatusCode, Message: errorMessage(data)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = ContentTypeXLSX
	}
	return &Blob{ContentType: contentType, Data: data}, nil
}

// errorMessage extracts {"message": ...} from an error body.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.Message)
}

// Extension returns the file extension for a report content type.
func Extension(contentType string) string {
	if strings.Contains(strings.ToLower(contentType), "csv") {
		return "csv"
	}
	return "xlsx"
}
