// Package remote calls expert agents over A2A.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2aclient"
	"github.com/a2aproject/a2a-go/a2aclient/agentcard"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
	"github.com/tanpawarit/Chative-Agent-Routing/pkg/serialize"
)

// Config is loaded with the A2A_ prefix.
type Config struct {
	BaseURL string `envconfig:"BASE_URL" split_words:"true" required:"true"`
}

// Sender is the part of an A2A client the invoker needs.
type Sender interface {
	SendMessage(ctx context.Context, params *a2a.MessageSendParams) (a2a.SendMessageResult, error)
	Destroy() error
}

// DialFunc opens a client for one agent endpoint.
type DialFunc func(ctx context.Context, endpoint string) (Sender, error)

type Option func(*Client)

func WithDialer(dial DialFunc) Option {
	return func(c *Client) {
		if dial != nil {
			c.dial = dial
		}
	}
}

// Client implements contract.Invoker and contract.Endpointer. Each agent lives at
// BASE_URL/agents/{agent_id}; its card is resolved once and cached.
type Client struct {
	baseURL string
	cards   *xsync.MapOf[string, *a2a.AgentCard]
	dial    DialFunc
}

func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("a2a base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid a2a base url: %w", err)
	}

	c := &Client{
		baseURL: base,
		cards:   xsync.NewMapOf[string, *a2a.AgentCard](),
	}
	c.dial = c.dialCard
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func (c *Client) Endpoint(agentID string) string {
	return c.baseURL + "/agents/" + url.PathEscape(agentID)
}

func (c *Client) Invoke(ctx context.Context, req contract.InvokeRequest) (contract.ExecutionResult, error) {
	endpoint := c.Endpoint(req.AgentID)

	sender, err := c.dial(ctx, endpoint)
	if err != nil {
		return contract.ExecutionResult{}, fmt.Errorf("%w: dial %s: %w", contract.ErrInvoke, endpoint, err)
	}
	defer func() { _ = sender.Destroy() }()

	result, err := sender.SendMessage(ctx, &a2a.MessageSendParams{Message: buildMessage(req)})
	if err != nil {
		return contract.ExecutionResult{}, fmt.Errorf("%w: send to %s: %w", contract.ErrInvoke, req.AgentID, err)
	}

	res := toExecutionResult(req.SessionID, result)
	log.Debug().
		Str("agent_id", req.AgentID).
		Bool("status", res.Status).
		Int("messages", len(res.Messages)).
		Msg("a2a: response received")
	return res, nil
}

func (c *Client) dialCard(ctx context.Context, endpoint string) (Sender, error) {
	card, ok := c.cards.Load(endpoint)
	if !ok {
		resolved, err := agentcard.DefaultResolver.Resolve(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("resolve agent card: %w", err)
		}
		card = resolved
		c.cards.Store(endpoint, card)
	}
	return a2aclient.NewFromCard(ctx, card)
}

// Forget drops a cached card so the next call resolves it again.
func (c *Client) Forget(agentID string) {
	c.cards.Delete(c.Endpoint(agentID))
}

// buildMessage sends the latest user text plus the full plain history as data.
func buildMessage(req contract.InvokeRequest) *a2a.Message {
	history := make([]any, 0, len(req.Messages))
	var lastUser string
	for _, m := range req.Messages {
		history = append(history, map[string]any{"role": m.Role, "content": m.Content})
		if m.Role == "user" {
			lastUser = m.Content
		}
	}

	msg := a2a.NewMessage(a2a.MessageRoleUser,
		a2a.TextPart{Text: lastUser},
		a2a.DataPart{Data: map[string]any{
			"history":    serialize.DeepClean(history),
			"user_id":    req.UserID,
			"session_id": req.SessionID,
		}},
	)
	msg.ContextID = req.SessionID
	return msg
}
