package relational

import "time"

// Chat is a row of the chats table (spec §6).
type Chat struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Title     string    `db:"title"`
	ThreadID  string    `db:"thread_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SessionStatus is the research_sessions.status enum.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// ResearchSession is a row of the research_sessions table.
type ResearchSession struct {
	ID        string        `db:"id"`
	UserID    string        `db:"user_id"`
	ChatID    string        `db:"chat_id"`
	ThreadID  string        `db:"thread_id"`
	Query     string        `db:"query"`
	Status    SessionStatus `db:"status"`
	Result    []byte        `db:"result"` // JSONB
	CreatedAt time.Time     `db:"created_at"`
	UpdatedAt time.Time     `db:"updated_at"`
}

// Message is a row of the messages table.
type Message struct {
	ID            string    `db:"id"`
	ChatID        string    `db:"chat_id"`
	SessionID     string    `db:"session_id"`
	Query         string    `db:"query"`
	Answer        string    `db:"answer"`
	Role          string    `db:"role"`
	Sources       []byte    `db:"sources"`      // JSONB
	Verification  []byte    `db:"verification"` // JSONB
	Confidence    string    `db:"confidence"`
	Thinking      string    `db:"thinking"`
	AgentTimeline []byte    `db:"agent_timeline"` // JSONB
	CreatedAt     time.Time `db:"created_at"`
}

// AgentLog is a row of the agent_logs table.
type AgentLog struct {
	SessionID string    `db:"session_id"`
	AgentName string    `db:"agent_name"`
	Events    []byte    `db:"events"` // JSONB
	LatencyMs int64     `db:"latency_ms"`
	CreatedAt time.Time `db:"created_at"`
}

// DocumentType is the documents.type enum.
type DocumentType string

const (
	DocumentPDF   DocumentType = "pdf"
	DocumentImage DocumentType = "image"
)

// Document is a row of the documents table.
type Document struct {
	ID        string       `db:"id"`
	UserID    string       `db:"user_id"`
	ChatID    string       `db:"chat_id"`
	Type      DocumentType `db:"type"`
	Filename  string       `db:"filename"`
	ImageURL  *string      `db:"image_url"`
	Metadata  []byte       `db:"metadata"` // JSONB
	CreatedAt time.Time    `db:"created_at"`
}
