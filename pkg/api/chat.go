package api

import (
	"context"
	"net/http"
	"unicode/utf8"

	"github.com/go-go-golems/datalens/pkg/chat"
	"github.com/go-go-golems/datalens/pkg/mention"
	"github.com/pkg/errors"
)

var (
	_ chat.Service        = (*Client)(nil)
	_ chat.CatalogService = (*Client)(nil)
	_ chat.ModelService   = (*Client)(nil)
	_ chat.Refresher      = (*Client)(nil)
)

const (
	cacheKeyCollections = "collections"
	cacheKeyModels      = "models"
)

func (c *Client) SendMessage(ctx context.Context, req chat.SendRequest) (chat.SendResponse, error) {
	if utf8.RuneCountInString(req.Message) > chat.MaxMessageLength {
		return chat.SendResponse{}, chat.ErrMessageTooLong
	}
	body := sendRequest{Message: req.Message, Model: req.Model}
	if req.SessionID != "" {
		id := req.SessionID
		body.SessionID = &id
	}

	var resp sendResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint("chat", "message"), body, &resp); err != nil {
		return chat.SendResponse{}, err
	}
	if resp.SessionID == "" {
		return chat.SendResponse{}, errors.New("response is missing session_id")
	}
	msg := resp.Message.toChat()
	if msg.Role == "" {
		msg.Role = chat.RoleAssistant
	}
	return chat.SendResponse{SessionID: resp.SessionID, Message: msg}, nil
}

func (c *Client) ListSessions(ctx context.Context) ([]chat.SessionSummary, error) {
	var resp []sessionSummary
	if err := c.do(ctx, http.MethodGet, c.endpoint("chat", "sessions"), nil, &resp); err != nil {
		return nil, err
	}
	ret := make([]chat.SessionSummary, 0, len(resp))
	for _, s := range resp {
		ret = append(ret, s.toChat())
	}
	return ret, nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (chat.SessionHistory, error) {
	var resp sessionHistory
	if err := c.do(ctx, http.MethodGet, c.endpoint("chat", "sessions", sessionID), nil, &resp); err != nil {
		return chat.SessionHistory{}, err
	}
	id := resp.SessionID
	if id == "" {
		id = sessionID
	}
	return chat.SessionHistory{ID: id, Title: resp.Title, Messages: messagesToChat(resp.Messages)}, nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, c.endpoint("chat", "sessions", sessionID), nil, nil)
}

// ListCollections returns every collection the caller may mention. Results
// are cached until Refresh or the cache TTL.
func (c *Client) ListCollections(ctx context.Context) (mention.Catalog, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(cacheKeyCollections); ok {
			return v.(mention.Catalog), nil
		}
	}

	var resp []collection
	// the collections router is mounted with a trailing slash
	if err := c.do(ctx, http.MethodGet, c.endpoint("collections")+"/", nil, &resp); err != nil {
		return nil, err
	}
	catalog := make(mention.Catalog, 0, len(resp))
	for _, col := range resp {
		catalog = append(catalog, col.toRef())
	}
	if c.cache != nil {
		c.cache.SetDefault(cacheKeyCollections, catalog)
	}
	return catalog, nil
}

func (c *Client) ListModels(ctx context.Context) (chat.ModelList, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(cacheKeyModels); ok {
			return v.(chat.ModelList), nil
		}
	}

	var resp modelsResponse
	if err := c.do(ctx, http.MethodGet, c.endpoint("models"), nil, &resp); err != nil {
		return chat.ModelList{}, err
	}
	list := chat.ModelList{Default: resp.Default}
	for _, m := range resp.Models {
		list.Models = append(list.Models, chat.Model{ID: m.ID, Name: m.Name})
	}
	if c.cache != nil && len(list.Models) > 0 {
		c.cache.SetDefault(cacheKeyModels, list)
	}
	return list, nil
}
