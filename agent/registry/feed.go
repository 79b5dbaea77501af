package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
)

// StaticFeed serves the same rows to every session.
type StaticFeed []contract.Registration

func (f StaticFeed) Registrations(context.Context, string, string) ([]contract.Registration, error) {
	return append([]contract.Registration(nil), f...), nil
}

type PostgresConfig struct {
	DSN     string        `envconfig:"DSN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"5s"`
}

type expertAgentRow struct {
	bun.BaseModel `bun:"table:expert_agents,alias:ea"`

	AgentID     string    `bun:"agent_id,pk"`
	Name        string    `bun:"name"`
	Description string    `bun:"description"`
	UserID      string    `bun:"user_id"`
	Kind        string    `bun:"kind"`
	Position    int       `bun:"position"`
	Enabled     bool      `bun:"enabled"`
	CreatedAt   time.Time `bun:"created_at"`
}

// PostgresFeed reads the expert agents a user has enabled.
type PostgresFeed struct {
	db      *bun.DB
	timeout time.Duration
}

func NewPostgresFeed(cfg PostgresConfig) (*PostgresFeed, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("registry dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return NewPostgresFeedFromDB(bun.NewDB(sqldb, pgdialect.New()), cfg.Timeout), nil
}

func NewPostgresFeedFromDB(db *bun.DB, timeout time.Duration) *PostgresFeed {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresFeed{db: db, timeout: timeout}
}

func (f *PostgresFeed) Registrations(ctx context.Context, sessionID, userID string) ([]contract.Registration, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var rows []expertAgentRow
	if err := f.selectQuery(&rows, userID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: session=%s: %v", contract.ErrFeedUnavailable, sessionID, err)
	}

	out := make([]contract.Registration, 0, len(rows))
	for _, row := range rows {
		out = append(out, contract.Registration{
			AgentID: row.AgentID,
			Name:    row.Name,
			Desc:    row.Description,
			UserID:  row.UserID,
			Kind:    row.Kind,
		})
	}
	return out, nil
}

func (f *PostgresFeed) selectQuery(rows *[]expertAgentRow, userID string) *bun.SelectQuery {
	return f.db.NewSelect().
		Model(rows).
		Where("ea.user_id = ?", userID).
		Where("ea.enabled = ?", true).
		OrderExpr("ea.position ASC, ea.agent_id ASC")
}

func (f *PostgresFeed) Close() error {
	return f.db.Close()
}
