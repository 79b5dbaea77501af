package state

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

	"github.com/tidwall/gjson"
)

const (
	defaultStoreKeyPrefix = "a2a:routing:"
	defaultStoreTTL       = 24 * time.Hour
	maxResponseSizeBytes  = 2 << 20
)

// UpstashRedisConfig is loaded with the UPSTASH_REDIS_ prefix.
type UpstashRedisConfig struct {
	URL       string        `envconfig:"URL" split_words:"true" required:"true"`
	Token     string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout   time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	KeyPrefix string        `envconfig:"KEY_PREFIX" split_words:"true" default:"a2a:routing:"`
	TTL       time.Duration `envconfig:"TTL" split_words:"true" default:"24h"`
}

// StoreOption customizes UpstashRedisStore.
type StoreOption func(*UpstashRedisStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *UpstashRedisStore) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

// WithTTL sets the idle expiry of a session. Zero keeps snapshots forever.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *UpstashRedisStore) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *UpstashRedisStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// UpstashRedisStore keeps one JSON snapshot per session in Upstash Redis over its
// REST API. Reads refresh the expiry, so a session only expires after TTL of
// inactivity.
type UpstashRedisStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

var _ Store = (*UpstashRedisStore)(nil)

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	store := &UpstashRedisStore{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		keyPrefix:  defaultStoreKeyPrefix,
		ttl:        defaultStoreTTL,
	}
	if p := strings.TrimSpace(cfg.KeyPrefix); p != "" {
		store.keyPrefix = p
	}
	if cfg.TTL != 0 {
		store.ttl = cfg.TTL
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}

	return store, nil
}

func (s *UpstashRedisStore) Load(ctx context.Context, sessionID string) (RoutingState, error) {
	key, err := s.redisKey(sessionID)
	if err != nil {
		return RoutingState{}, err
	}

	cmd := []any{"GET", key}
	if s.ttl > 0 {
		cmd = []any{"GETEX", key, "EX", ttlSeconds(s.ttl)}
	}
	result, err := s.exec(ctx, cmd)
	if err != nil {
		return RoutingState{}, err
	}
	if !result.Exists() || result.Type == gjson.Null {
		return RoutingState{}, ErrStateNotFound
	}
	if result.Type != gjson.String {
		return RoutingState{}, fmt.Errorf("decode routing payload: unexpected %s result", result.Type)
	}

	var st RoutingState
	if err := json.Unmarshal([]byte(result.Str), &st); err != nil {
		return RoutingState{}, fmt.Errorf("unmarshal routing state: %w", err)
	}
	if st.FailureCount == nil {
		st.FailureCount = make(map[string]int, 4)
	}
	if err := st.Validate(); err != nil {
		return RoutingState{}, fmt.Errorf("invalid routing state loaded from store: %w", err)
	}

	return st, nil
}

// Save writes the snapshot. Invalid state is rejected before anything is sent.
func (s *UpstashRedisStore) Save(ctx context.Context, st RoutingState) error {
	if err := st.Validate(); err != nil {
		return err
	}
	if st.Version <= 0 {
		st.Version = 1
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	st.UpdatedAt = st.UpdatedAt.UTC()

	key, err := s.redisKey(st.SessionID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal routing state: %w", err)
	}

	cmd := []any{"SET", key, string(payload)}
	if s.ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(s.ttl))
	}
	_, err = s.exec(ctx, cmd)
	return err
}

func (s *UpstashRedisStore) Delete(ctx context.Context, sessionID string) error {
	key, err := s.redisKey(sessionID)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, []any{"DEL", key})
	return err
}

func (s *UpstashRedisStore) redisKey(sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrInvalidSession
	}
	return strings.TrimSpace(s.keyPrefix) + sessionID, nil
}

// exec sends one command and returns its "result" field.
func (s *UpstashRedisStore) exec(ctx context.Context, command []any) (gjson.Result, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: read response: %v", ErrStoreUnavailable, err)
	}

	// Upstash reports command errors as {"error": "..."} with a 4xx status.
	if msg := gjson.GetBytes(raw, "error"); msg.Exists() && msg.String() != "" {
		return gjson.Result{}, fmt.Errorf("%w: %s %s", ErrStoreCommand, command[0], msg.String())
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return gjson.Result{}, fmt.Errorf("%w: http status=%d body=%s", ErrStoreUnavailable, resp.StatusCode, string(raw))
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("%w: response is not JSON", ErrStoreUnavailable)
	}
	return gjson.GetBytes(raw, "result"), nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if ttl%time.Second != 0 {
		seconds++
	}
	if seconds <= 0 {
		return 1
	}
	return int64(seconds)
}
