package provider

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

	"media-generation-jobs/internal/domain/model"
	"media-generation-jobs/internal/domain/ports/adapter"
)

// Compile-time assurance this client satisfies the port
var _ adapter.GenerationProvider = (*QueueClient)(nil)

// QueueClient talks to the provider's asynchronous queue endpoint: one POST
// per job carrying parameters and the callback URL, answered synchronously
// with a tracking handle or a rejection.
type QueueClient struct {
	name   string
	base   string
	apiKey string
	client *http.Client
}

func NewQueueClient(name, baseURL, apiKey string, timeout time.Duration) (*QueueClient, error) {
	if baseURL == "" {
		return nil, errors.New("provider base url empty")
	}
	if name == "" {
		name = "queue"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &QueueClient{
		name:   name,
		base:   strings.TrimRight(baseURL, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (c *QueueClient) Name() string { return c.name }

func (c *QueueClient) Submit(ctx context.Context, req adapter.SubmitRequest) (*adapter.SubmitAck, error) {
	reqBody := struct {
		Tool        model.ToolKind `json:"tool"`
		Params      map[string]any `json:"params"`
		CallbackURL string         `json:"callback_url"`
	}{Tool: req.Tool, Params: req.Params, CallbackURL: req.CallbackURL}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/queue/submit", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		return nil, &adapter.ProviderError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode provider ack: %w", err)
	}
	if payload.RequestID == "" {
		return nil, errors.New("provider ack missing request_id")
	}
	return &adapter.SubmitAck{Handle: payload.RequestID}, nil
}
