package openrouter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaimodel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

type LLMBuilder interface {
	New(ctx context.Context) (model.ToolCallingChatModel, error)
}

var _ LLMBuilder = (*OpenRouterConfig)(nil)

var (
	OpenRouterReasoningBlacklist = map[string]bool{
		"x-ai/grok-4.1-fast": true,
	}
)

type OpenRouterConfig struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken *int          `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`
}

type Config = OpenRouterConfig

func (c *OpenRouterConfig) New(ctx context.Context) (model.ToolCallingChatModel, error) {
	modelName := strings.TrimSpace(c.Model)

	conf := &openaimodel.ChatModelConfig{
		BaseURL:     strings.TrimRight(c.BaseURL, "/"),
		APIKey:      strings.TrimSpace(c.APIKey),
		Model:       modelName,
		MaxTokens:   c.MaxCompletionToken,
		Temperature: &c.Temperature,
		Timeout:     c.Timeout,
	}

	if headers := c.attributionHeaders(); len(headers) > 0 {
		conf.HTTPClient = &http.Client{
			Timeout:   c.Timeout,
			Transport: headerTransport{base: http.DefaultTransport, headers: headers},
		}
	}

	if OpenRouterReasoningBlacklist[modelName] {
		conf.ExtraFields = map[string]any{
			"reasoning": map[string]any{
				"exclude": true,
				"effort":  "none",
			},
		}
	}

	m, err := openaimodel.NewChatModel(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("openrouter: create chat model: %w", err)
	}

	return m, nil
}

// attributionHeaders are the optional OpenRouter app ranking headers.
func (c *OpenRouterConfig) attributionHeaders() map[string]string {
	headers := make(map[string]string, 2)
	if v := strings.TrimSpace(c.SiteURL); v != "" {
		headers["HTTP-Referer"] = v
	}
	if v := strings.TrimSpace(c.SiteName); v != "" {
		headers["X-Title"] = v
	}
	return headers
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
