package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JonMunkholm/verifier/internal/core"
)

// ingestItem is the product shape the verification service matches scans
// against.
type ingestItem struct {
	ItemCode string `json:"item_code"`
	Name     string `json:"name"`
	MRP      string `json:"Mrp"`
	Batch    string `json:"Batch"`
	Pack     string `json:"Pack"`
	Expiry   string `json:"Expiry"`
}

// Publisher sends the applied CSV records to the verification service.
type Publisher struct {
	url    string
	token  string
	client *http.Client
}

// NewPublisher creates a publisher for the ingest endpoint. A nil client gets
// a 30 second timeout.
func NewPublisher(url, token string, client *http.Client) *Publisher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Publisher{url: url, token: token, client: client}
}

// Publish posts records as a JSON array.
func (p *Publisher) Publish(ctx context.Context, records []core.CanonicalRecord) error {
	items := make([]ingestItem, len(records))
	for i, rec := range records {
		items[i] = ingestItem{
			ItemCode: rec.ItemCode,
			Name:     rec.Name,
			MRP:      rec.MRP.String(),
			Batch:    rec.Batch,
			Pack:     rec.Pack,
			Expiry:   rec.Expiry,
		}
	}

	body, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("publish records: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("publish records: server error %d", resp.StatusCode)
	}
	return nil
}
