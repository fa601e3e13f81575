// Package relational implements the five relational tables consumed by the
// core (spec §6): chats, messages, research_sessions, agent_logs,
// documents. Grounded on the teacher's internal/db connection-pool and
// circuit-breaker wiring, rebuilt on sqlx for ergonomic struct scanning.
package relational

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/thornxyz/revera/internal/circuitbreaker"
)

// Config holds the Postgres connection pool configuration (spec §6).
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	IdleConnections int
	MaxLifetime     time.Duration
}

// Client wraps the connection pool and a circuit breaker guarding the
// health check / liveness path.
type Client struct {
	db     *sqlx.DB
	wrap   *circuitbreaker.DatabaseWrapper
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 25
	}
	if cfg.IdleConnections == 0 {
		cfg.IdleConnections = 5
	}
	if cfg.MaxLifetime == 0 {
		cfg.MaxLifetime = 5 * time.Minute
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("relational: connect: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.IdleConnections)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	return &Client{
		db:     db,
		wrap:   circuitbreaker.NewDatabaseWrapper(db.DB, logger),
		logger: logger,
	}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.wrap.PingContext(ctx)
}

func (c *Client) Close() error { return c.db.Close() }

// EnsureChat creates a chat row if one doesn't already exist for the given
// id; an existing row is left unchanged.
func (c *Client) EnsureChat(ctx context.Context, chatID, userID, threadID string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO chats (id, user_id, title, thread_id)
		VALUES ($1, $2, '', $3)
		ON CONFLICT (id) DO NOTHING`, chatID, userID, threadID)
	return err
}

// UpdateChatTitle persists the derived chat title (spec §6 `title_updated`
// event).
func (c *Client) UpdateChatTitle(ctx context.Context, chatID, title string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE chats SET title = $1, updated_at = now() WHERE id = $2`, title, chatID)
	return err
}

// CreateResearchSession inserts a running session row (orchestrator
// pre-graph work step).
func (c *Client) CreateResearchSession(ctx context.Context, id, userID, chatID, threadID, query string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO research_sessions (id, user_id, chat_id, thread_id, query, status)
		VALUES ($1, $2, $3, $4, $5, $6)`, id, userID, chatID, threadID, query, SessionRunning)
	return err
}

// CompleteResearchSession marks a session completed with its result
// payload.
func (c *Client) CompleteResearchSession(ctx context.Context, id string, result interface{}) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("relational: marshal result: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		UPDATE research_sessions SET status = $1, result = $2, updated_at = now() WHERE id = $3`,
		SessionCompleted, raw, id)
	return err
}

// FailResearchSession marks a session failed (spec §7 propagation policy:
// fatal errors surface as a failed session row).
func (c *Client) FailResearchSession(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE research_sessions SET status = $1, updated_at = now() WHERE id = $2`, SessionFailed, id)
	return err
}

// InsertMessage persists the final assistant message for a session.
func (c *Client) InsertMessage(ctx context.Context, m Message) error {
	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO messages (id, chat_id, session_id, query, answer, role, sources, verification, confidence, thinking, agent_timeline)
		VALUES (:id, :chat_id, :session_id, :query, :answer, :role, :sources, :verification, :confidence, :thinking, :agent_timeline)`, m)
	return err
}

// InsertAgentLog appends one agent_logs row (orchestrator post-graph work).
func (c *Client) InsertAgentLog(ctx context.Context, l AgentLog) error {
	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO agent_logs (session_id, agent_name, events, latency_ms)
		VALUES (:session_id, :agent_name, :events, :latency_ms)`, l)
	return err
}

// InsertDocument records an uploaded/generated document row.
func (c *Client) InsertDocument(ctx context.Context, d Document) error {
	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO documents (id, user_id, chat_id, type, filename, image_url, metadata)
		VALUES (:id, :user_id, :chat_id, :type, :filename, :image_url, :metadata)`, d)
	return err
}

// ChatDocuments returns every document owned by chatID/userID, used by
// internal/policy to scope a request's document_ids (spec §8 invariant 4).
func (c *Client) ChatDocuments(ctx context.Context, userID, chatID string) ([]Document, error) {
	var docs []Document
	err := c.db.SelectContext(ctx, &docs, `
		SELECT id, user_id, chat_id, type, filename, image_url, metadata, created_at
		FROM documents WHERE user_id = $1 AND chat_id = $2`, userID, chatID)
	return docs, err
}
