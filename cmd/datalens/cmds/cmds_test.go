package cmds

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/datalens/pkg/chat"
	"github.com/go-go-golems/datalens/pkg/config"
	"github.com/go-go-golems/datalens/pkg/mention"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// fakeBackend serves just enough of the HTTP API for the commands.
type fakeBackend struct {
	mu      sync.Mutex
	sent    []map[string]any
	deleted []string
	// rejectToken answers every request with 401.
	rejectToken bool
}

func (b *fakeBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/message", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		b.mu.Lock()
		b.sent = append(b.sent, req)
		b.mu.Unlock()
		_, _ = io.WriteString(w, `{"session_id":"s-1","message":{"role":"assistant","content":"There are 42 orders.","query":"SELECT count(*) FROM orders","query_type":"sql","follow_ups":["By month?"]}}`)
	})
	mux.HandleFunc("GET /api/chat/sessions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"session_id":"s-1","title":"Orders","message_count":2,"updated_at":"2025-03-01T10:00:00Z"}]`)
	})
	mux.HandleFunc("GET /api/chat/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "s-1" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"Session not found"}`)
			return
		}
		_, _ = io.WriteString(w, `{"session_id":"s-1","title":"Orders","messages":[{"role":"user","content":"count @orders"},{"role":"assistant","content":"42"}]}`)
	})
	mux.HandleFunc("DELETE /api/chat/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.deleted = append(b.deleted, r.PathValue("id"))
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/collections/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[
			{"name":"orders","owner_username":"alice","is_own":true,"db_type":"postgresql","row_count":1200},
			{"name":"orders","owner_username":"bob","is_own":false,"db_type":"mongodb","row_count":5}
		]`)
	})
	mux.HandleFunc("GET /api/models", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"models":[{"id":"fast","name":"Fast"},{"id":"smart","name":"Smart"}],"default":"fast"}`)
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.rejectToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"Invalid token"}`)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

// run executes sub under a fresh root wired to a fake backend and a private
// config. It returns stdout.
func run(t *testing.T, b *fakeBackend, sub *cobra.Command, args ...string) (string, error) {
	t.Helper()
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Chdir(dir)
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "base_url: " + srv.URL + "\nprefs_db: " + filepath.Join(dir, "prefs.db") + "\nlog_file: \"\"\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	return runWithConfig(t, cfgPath, sub, args...)
}

func runWithConfig(t *testing.T, cfgPath string, sub *cobra.Command, args ...string) (string, error) {
	t.Helper()

	root := &cobra.Command{Use: "datalens", SilenceUsage: true, SilenceErrors: true}
	AddGlobalFlags(root)
	root.AddCommand(sub)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAsk(t *testing.T) {
	b := &fakeBackend{}
	out, err := run(t, b, NewAskCommand(), "ask", "how", "many", "@orders?")
	require.NoError(t, err)

	require.Contains(t, out, "There are 42 orders.")
	require.Contains(t, out, "```sql\nSELECT count(*) FROM orders\n```")
	require.Contains(t, out, "- By month?")

	require.Len(t, b.sent, 1)
	require.Equal(t, "how many @orders?", b.sent[0]["message"])
	require.Nil(t, b.sent[0]["session_id"])
	require.Equal(t, "fast", b.sent[0]["model"])
}

func TestAsk_ContinuesSession(t *testing.T) {
	b := &fakeBackend{}
	_, err := run(t, b, NewAskCommand(), "ask", "--session", "s-1", "and", "last", "week?")
	require.NoError(t, err)
	require.Equal(t, "s-1", b.sent[0]["session_id"])
}

func TestAsk_UnknownSession(t *testing.T) {
	b := &fakeBackend{}
	_, err := run(t, b, NewAskCommand(), "ask", "--session", "nope", "hi")
	require.EqualError(t, err, "conversation nope not found, see 'datalens sessions list'")
	require.Empty(t, b.sent)
}

func TestAsk_RejectedToken(t *testing.T) {
	_, err := run(t, &fakeBackend{rejectToken: true}, NewAskCommand(), "ask", "hi")
	require.EqualError(t, err, "the backend rejected the token; pass --token or set DATALENS_TOKEN")

	_, err = run(t, &fakeBackend{rejectToken: true}, NewAskCommand(), "ask", "--session", "s-1", "hi")
	require.EqualError(t, err, "the backend rejected the token; pass --token or set DATALENS_TOKEN")
}

func TestAsk_RequiresQuestion(t *testing.T) {
	_, err := run(t, &fakeBackend{}, NewAskCommand(), "ask")
	require.EqualError(t, err, "no question given")
}

func TestSessionsList(t *testing.T) {
	_, err := run(t, &fakeBackend{}, NewSessionsCommand(), "sessions", "list", "--output", "json")
	require.NoError(t, err)

	_, err = run(t, &fakeBackend{rejectToken: true}, NewSessionsCommand(), "sessions", "list")
	require.EqualError(t, err, "the backend rejected the token; pass --token or set DATALENS_TOKEN")
}

func TestSessionRow(t *testing.T) {
	updated := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	row := sessionRow(chat.SessionSummary{ID: "s-1", Title: "Orders", MessageCount: 2, UpdatedAt: updated})
	requireRow(t, row, map[string]any{
		"id":            "s-1",
		"title":         "Orders",
		"message_count": 2,
		"updated_at":    updated,
	})
}

func TestSessionsShow(t *testing.T) {
	out, err := run(t, &fakeBackend{}, NewSessionsCommand(), "sessions", "show", "s-1")
	require.NoError(t, err)
	require.Contains(t, out, "# Orders")
	require.Contains(t, out, "count @orders")
}

func TestSessionsDelete(t *testing.T) {
	b := &fakeBackend{}
	_, err := run(t, b, NewSessionsCommand(), "sessions", "delete", "s-1")
	require.Error(t, err, "stdin is not a terminal, so --yes is required")
	require.Empty(t, b.deleted)

	out, err := run(t, b, NewSessionsCommand(), "sessions", "delete", "--yes", "s-1")
	require.NoError(t, err)
	require.Contains(t, out, "Deleted s-1")
	require.Equal(t, []string{"s-1"}, b.deleted)
}

func TestCollections(t *testing.T) {
	_, err := run(t, &fakeBackend{}, NewCollectionsCommand(), "collections", "ord")
	require.NoError(t, err)
}

func TestCollectionRows_FollowMentionOrder(t *testing.T) {
	catalog := mention.Catalog{
		{Name: "orders", OwnerUsername: "bob", IsOwn: false, DBKind: mention.DBKindDocument, RowCount: 5},
		{Name: "orders", OwnerUsername: "alice", IsOwn: true, DBKind: mention.DBKindRelational, RowCount: 1200},
	}
	cands := mention.Resolve(catalog, "ord")
	require.Len(t, cands, 2)

	requireRow(t, collectionRow(cands[0]), map[string]any{
		"ref":        "@orders",
		"owner":      "alice",
		"db_kind":    "relational",
		"row_count":  1200,
		"annotation": "(yours)",
	})
	requireRow(t, collectionRow(cands[1]), map[string]any{
		"ref":        "@bob:orders",
		"owner":      "bob",
		"db_kind":    "document",
		"row_count":  5,
		"annotation": "(bob)",
	})
}

func TestModels(t *testing.T) {
	_, err := run(t, &fakeBackend{}, NewModelsCommand(), "models", "--output", "yaml")
	require.NoError(t, err)
}

func TestModelRow(t *testing.T) {
	m := chat.Model{ID: "smart", Name: "Smart"}
	requireRow(t, modelRow(m, "smart"), map[string]any{"id": "smart", "name": "Smart", "selected": true})
	requireRow(t, modelRow(m, "fast"), map[string]any{"id": "smart", "name": "Smart", "selected": false})
}

func TestModelsUse_PersistsSelection(t *testing.T) {
	b := &fakeBackend{}
	out, err := run(t, b, NewModelsCommand(), "models", "use", "smart")
	require.NoError(t, err)
	require.Contains(t, out, "Using smart")

	_, err = run(t, b, NewModelsCommand(), "models", "use", "missing")
	require.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cfgPath := filepath.Join(dir, "nested", "config.yaml")

	out, err := runWithConfig(t, cfgPath, NewConfigCommand(), "config", "init", "--base-url", "https://lens.example.com", "--model", "smart")
	require.NoError(t, err)
	require.Contains(t, out, "Wrote "+cfgPath)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, "https://lens.example.com", cfg.BaseURL)
	require.Equal(t, "smart", cfg.Model)
	require.Equal(t, "90s", cfg.Timeout)

	_, err = runWithConfig(t, cfgPath, NewConfigCommand(), "config", "init")
	require.ErrorContains(t, err, "already exists")

	_, err = runWithConfig(t, cfgPath, NewConfigCommand(), "config", "init", "--force")
	require.NoError(t, err)
	cfg, err = config.Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, config.DefaultBaseURL, cfg.BaseURL)
}

// requireRow checks that row holds exactly want, in any column order.
func requireRow(t *testing.T, row types.Row, want map[string]any) {
	t.Helper()
	got := map[string]any{}
	for pair := row.Oldest(); pair != nil; pair = pair.Next() {
		got[pair.Key] = pair.Value
	}
	require.Equal(t, want, got)
}

func TestAnswerMarkdown(t *testing.T) {
	md := answerMarkdown(chat.Message{
		Content:   "Done.",
		QueryText: "db.orders.find()",
		QueryKind: chat.QueryKindDocument,
	})
	require.Contains(t, md, "```javascript\ndb.orders.find()\n```")
	require.NotContains(t, md, "Follow-ups")
}
