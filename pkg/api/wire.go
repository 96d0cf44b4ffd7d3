package api

import (
	"time"

	"github.com/go-go-golems/datalens/pkg/chat"
	"github.com/go-go-golems/datalens/pkg/mention"
)

type sendRequest struct {
	SessionID *string `json:"session_id"`
	Message   string  `json:"message"`
	Model     string  `json:"model"`
}

type visualization struct {
	ChartType string           `json:"chart_type"`
	Title     string           `json:"title"`
	Labels    []string         `json:"labels"`
	Datasets  []map[string]any `json:"datasets"`
}

type message struct {
	Role                  string         `json:"role"`
	Content               string         `json:"content"`
	Query                 *string        `json:"query"`
	QueryType             *string        `json:"query_type"`
	Visualization         *visualization `json:"visualization"`
	FollowUps             []string       `json:"follow_ups"`
	ReferencedCollections []string       `json:"referenced_collections"`
	Timestamp             time.Time      `json:"timestamp"`
}

type sendResponse struct {
	SessionID string  `json:"session_id"`
	Message   message `json:"message"`
}

type sessionSummary struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

type sessionHistory struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	Messages  []message `json:"messages"`
}

type collection struct {
	Name          string `json:"name"`
	OwnerUsername string `json:"owner_username"`
	// IsOwn is absent on backends without sharing; everything listed is then
	// the caller's own.
	IsOwn    *bool  `json:"is_own"`
	DBType   string `json:"db_type"`
	RowCount int    `json:"row_count"`
}

type modelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type modelsResponse struct {
	Models  []modelInfo `json:"models"`
	Default string      `json:"default"`
}

func queryKind(s *string) chat.QueryKind {
	if s == nil {
		return chat.QueryKindNone
	}
	switch *s {
	case "sql", "postgres", "postgresql":
		return chat.QueryKindSQL
	case "mongodb", "mongo":
		return chat.QueryKindDocument
	}
	return chat.QueryKindNone
}

func dbKind(s string) mention.DBKind {
	switch s {
	case "mongodb", "mongo":
		return mention.DBKindDocument
	}
	return mention.DBKindRelational
}

func (m message) toChat() chat.Message {
	ret := chat.Message{
		Role:                  chat.Role(m.Role),
		Content:               m.Content,
		QueryKind:             queryKind(m.QueryType),
		FollowUps:             m.FollowUps,
		ReferencedCollections: m.ReferencedCollections,
		Timestamp:             m.Timestamp,
	}
	if m.Query != nil {
		ret.QueryText = *m.Query
	}
	if v := m.Visualization; v != nil {
		ret.Visualization = &chat.Visualization{
			ChartType: v.ChartType,
			Title:     v.Title,
			Labels:    v.Labels,
			Datasets:  v.Datasets,
		}
	}
	return ret
}

func messagesToChat(ms []message) []chat.Message {
	ret := make([]chat.Message, 0, len(ms))
	for _, m := range ms {
		ret = append(ret, m.toChat())
	}
	return ret
}

func (s sessionSummary) toChat() chat.SessionSummary {
	return chat.SessionSummary{
		ID:           s.SessionID,
		Title:        s.Title,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		MessageCount: s.MessageCount,
	}
}

func (c collection) toRef() mention.CollectionRef {
	own := true
	if c.IsOwn != nil {
		own = *c.IsOwn
	}
	return mention.CollectionRef{
		Name:          c.Name,
		OwnerUsername: c.OwnerUsername,
		IsOwn:         own,
		DBKind:        dbKind(c.DBType),
		RowCount:      c.RowCount,
	}
}
