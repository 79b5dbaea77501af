package qstash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseSizeBytes = 1 << 20

type Config struct {
	URL         string        `split_words:"true" default:"https://qstash.upstash.io"`
	Token       string        `split_words:"true" required:"true"`
	Destination string        `split_words:"true"`
	Retries     int           `split_words:"true" default:"3"`
	Timeout     time.Duration `split_words:"true" default:"10s"`
}

type Client struct {
	baseURL    string
	token      string
	retries    int
	httpClient *http.Client
}

type PublishResponse struct {
	MessageID string `json:"messageId"`
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("qstash token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		retries: cfg.Retries,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	return client, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// WithHTTPClient swaps the transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// Publish enqueues body for delivery to destination. Headers are forwarded to the
// destination with the Upstash-Forward- prefix.
func (c *Client) Publish(ctx context.Context, destination string, body []byte, forward map[string]string) (PublishResponse, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return PublishResponse{}, errors.New("qstash destination is required")
	}

	endpoint := c.baseURL + "/v2/publish/" + destination
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return PublishResponse{}, fmt.Errorf("build qstash request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	if c.retries >= 0 {
		req.Header.Set("Upstash-Retries", fmt.Sprint(c.retries))
	}
	for k, v := range forward {
		req.Header.Set("Upstash-Forward-"+k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PublishResponse{}, fmt.Errorf("execute qstash request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return PublishResponse{}, fmt.Errorf("read qstash response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return PublishResponse{}, fmt.Errorf("qstash http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var out PublishResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return PublishResponse{}, fmt.Errorf("decode qstash response: %w", err)
	}
	return out, nil
}

// Sink publishes every payload to one fixed destination.
type Sink struct {
	client      *Client
	destination string
}

func NewSink(client *Client, destination string) (*Sink, error) {
	if client == nil {
		return nil, errors.New("qstash client is required")
	}
	if strings.TrimSpace(destination) == "" {
		return nil, errors.New("qstash destination is required")
	}
	return &Sink{client: client, destination: strings.TrimSpace(destination)}, nil
}

func (s *Sink) Publish(ctx context.Context, sessionID string, payload []byte) error {
	_, err := s.client.Publish(ctx, s.destination, payload, map[string]string{"Session-Id": sessionID})
	return err
}
