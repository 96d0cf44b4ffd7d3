package chat

import (
	"context"
	"time"

	"github.com/go-go-golems/datalens/pkg/mention"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// QueryKind is the flavor of query the answering service generated.
type QueryKind string

const (
	QueryKindNone     QueryKind = ""
	QueryKindSQL      QueryKind = "sql"
	QueryKindDocument QueryKind = "document"
)

// Visualization is the chart description attached to an answer. The client
// only carries it; rendering charts is the host's business.
type Visualization struct {
	ChartType string
	Title     string
	Labels    []string
	Datasets  []map[string]any
}

// Message is one transcript entry.
type Message struct {
	// ID is a client-side identifier. Optimistic user messages get a fresh one
	// so rollback can find them; server messages may leave it empty.
	ID                    string
	Role                  Role
	Content               string
	QueryText             string
	QueryKind             QueryKind
	Visualization         *Visualization
	FollowUps             []string
	ReferencedCollections []string
	Timestamp             time.Time
}

type SessionSummary struct {
	ID           string
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
}

// SessionHistory is a fetched transcript.
type SessionHistory struct {
	ID       string
	Title    string
	Messages []Message
}

// SendRequest asks the answering service for a reply. An empty SessionID
// starts a new conversation.
type SendRequest struct {
	SessionID string
	Message   string
	Model     string
}

type SendResponse struct {
	SessionID string
	Message   Message
}

type Model struct {
	ID   string
	Name string
}

type ModelList struct {
	Models  []Model
	Default string
}

// Service is the chat-history and answering backend.
type Service interface {
	SendMessage(ctx context.Context, req SendRequest) (SendResponse, error)
	ListSessions(ctx context.Context) ([]SessionSummary, error)
	GetSession(ctx context.Context, sessionID string) (SessionHistory, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// CatalogService looks up the collections a user can mention.
type CatalogService interface {
	ListCollections(ctx context.Context) (mention.Catalog, error)
}

type ModelService interface {
	ListModels(ctx context.Context) (ModelList, error)
}

// Refresher is implemented by catalog and model services that cache their
// lists. Reload calls it before fetching again.
type Refresher interface {
	Refresh()
}

// ModelStore remembers the user's model selection between runs.
type ModelStore interface {
	GetModel(ctx context.Context) (string, bool, error)
	SetModel(ctx context.Context, modelID string) error
}

// Navigator is told when the active conversation changes because the
// backend created a new one.
type Navigator interface {
	Navigate(sessionID string)
}

type NavigatorFunc func(sessionID string)

func (f NavigatorFunc) Navigate(sessionID string) { f(sessionID) }
