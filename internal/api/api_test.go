package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/cardservice"
	"github.com/starford/cardsync/internal/cardsync"
	"github.com/starford/cardsync/internal/markdown"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/render"
	"github.com/starford/cardsync/internal/testutil"
)

// recordingNotifier collects published events.
type recordingNotifier struct {
	mu     sync.Mutex
	sent   []string
	failed []string
}

func (n *recordingNotifier) PublishSent(d models.SendDiff) {
	n.mu.Lock()
	n.sent = append(n.sent, d.DocumentID)
	n.mu.Unlock()
}

func (n *recordingNotifier) PublishRemoved(models.SendDiff) {}

func (n *recordingNotifier) PublishFailed(documentID string, _ error) {
	n.mu.Lock()
	n.failed = append(n.failed, documentID)
	n.mu.Unlock()
}

type env struct {
	router   http.Handler
	vaultDir string
	notify   *recordingNotifier
}

// testEnv sets up a temp vault, SQLite store, service, and router for testing.
// An empty authToken means auth is disabled.
func testEnv(t *testing.T, authToken string) env {
	t.Helper()
	return testEnvWithSSE(t, authToken, nil)
}

func testEnvWithSSE(t *testing.T, authToken string, sseHandler http.Handler) env {
	t.Helper()
	vaultDir, vault := testutil.TestVault(t)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	orch := cardsync.New(
		markdown.NewCompiler(render.NewGoldmark(render.Options{})),
		testutil.TestStore(t),
		cardsync.DeckConfig{Mode: cardsync.ModeStandalone},
		logger,
	)
	svc := cardservice.NewService(vault, orch)
	n := &recordingNotifier{}
	router := NewRouter(svc, authToken != "", authToken, sseHandler, n)
	return env{router: router, vaultDir: vaultDir, notify: n}
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestPreview_InlineContent(t *testing.T) {
	e := testEnv(t, "")
	content := "# Spanish\n## hola\nhello\n## <>\nreversed"
	w := do(t, e.router, http.MethodPost, "/preview", map[string]any{"document_id": "es.md", "content": content})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var p Preview
	_ = json.Unmarshal(w.Body.Bytes(), &p)
	if p.Deck != "Spanish" {
		t.Errorf("deck = %q, want Spanish", p.Deck)
	}
	if len(p.Cards) != 2 {
		t.Fatalf("cards = %+v, want 2", p.Cards)
	}
	if !p.Cards[1].Reverse || p.Cards[1].Front != "<p>reversed</p>" {
		t.Errorf("reverse card = %+v", p.Cards[1])
	}
}

func TestPreview_MissingDocumentID(t *testing.T) {
	e := testEnv(t, "")
	w := do(t, e.router, http.MethodPost, "/preview", map[string]any{"content": "# A\nb"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestPreview_NoTitleIsUnprocessable(t *testing.T) {
	e := testEnv(t, "")
	w := do(t, e.router, http.MethodPost, "/preview", map[string]any{"document_id": "x.md", "content": "intro\n## Q\nA"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (%s)", w.Code, w.Body.String())
	}
	var body errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Hint != apperr.StructuralHint {
		t.Errorf("hint = %q", body.Hint)
	}
}

func TestSendAndListCards(t *testing.T) {
	e := testEnv(t, "")
	testutil.WriteDoc(t, e.vaultDir, "geo/capitals.md", "# Capitals\n## France\nParis\n## Spain\nMadrid")

	w := do(t, e.router, http.MethodPost, "/send", map[string]string{"path": "geo/capitals.md"})
	if w.Code != http.StatusOK {
		t.Fatalf("send status = %d, body = %s", w.Code, w.Body.String())
	}
	var sr SendResponse
	_ = json.Unmarshal(w.Body.Bytes(), &sr)
	if sr.Summary.Added != 2 {
		t.Errorf("summary = %+v", sr.Summary)
	}
	if sr.Message != "geo/capitals.md (Capitals): 2 added, 0 updated, 0 removed, 0 unchanged" {
		t.Errorf("message = %q", sr.Message)
	}
	if len(e.notify.sent) != 1 {
		t.Errorf("notifications = %v", e.notify.sent)
	}

	w = do(t, e.router, http.MethodGet, "/cards/geo%2Fcapitals.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cards status = %d", w.Code)
	}
	var cr CardsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &cr)
	if len(cr.Cards) != 2 || cr.DocumentID != "geo/capitals.md" {
		t.Errorf("cards = %+v", cr)
	}
}

func TestSend_NotFound(t *testing.T) {
	e := testEnv(t, "")
	w := do(t, e.router, http.MethodPost, "/send", map[string]string{"path": "nope.md"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if len(e.notify.failed) != 1 {
		t.Errorf("failed notifications = %v", e.notify.failed)
	}
}

func TestCards_NeverSent(t *testing.T) {
	e := testEnv(t, "")
	w := do(t, e.router, http.MethodGet, "/cards/never.md", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestSendBatch_PartialFailure(t *testing.T) {
	e := testEnv(t, "")
	testutil.WriteDoc(t, e.vaultDir, "a.md", "# A\none")
	testutil.WriteDoc(t, e.vaultDir, "b.md", "no title\n## Q\nA")

	w := do(t, e.router, http.MethodPost, "/send/batch", map[string]any{"paths": []string{"a.md", "b.md"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var br BatchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &br)
	if br.Aggregate.Documents != 1 || br.Aggregate.Failed != 1 {
		t.Errorf("aggregate = %+v", br.Aggregate)
	}
	if len(br.Failures) != 1 || br.Failures[0].DocumentID != "b.md" || br.Failures[0].Hint == "" {
		t.Errorf("failures = %+v", br.Failures)
	}
	if br.Message != "1 documents: 1 added, 0 updated, 0 removed, 0 unchanged, 1 failed" {
		t.Errorf("message = %q", br.Message)
	}
}

func TestSendBatch_EmptyPathsRejected(t *testing.T) {
	e := testEnv(t, "")
	w := do(t, e.router, http.MethodPost, "/send/batch", map[string]any{"paths": []string{}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSyncAndDocuments(t *testing.T) {
	e := testEnv(t, "")
	testutil.WriteDoc(t, e.vaultDir, "a.md", "# A\none")
	testutil.WriteDoc(t, e.vaultDir, "b.md", "# B\ntwo")

	w := do(t, e.router, http.MethodPost, "/sync", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sync status = %d, body = %s", w.Code, w.Body.String())
	}
	var br BatchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &br)
	if br.Aggregate.Documents != 2 || br.Aggregate.Added != 2 {
		t.Errorf("aggregate = %+v", br.Aggregate)
	}

	w = do(t, e.router, http.MethodPost, "/sync", map[string]bool{"force": false})
	_ = json.Unmarshal(w.Body.Bytes(), &br)
	if br.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", br.Skipped)
	}

	w = do(t, e.router, http.MethodGet, "/documents", nil)
	var dr DocumentsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &dr)
	if len(dr.Documents) != 2 || !dr.Documents[0].InSync {
		t.Errorf("documents = %+v", dr.Documents)
	}
}

func TestSearchEndpoint(t *testing.T) {
	e := testEnv(t, "")
	testutil.WriteDoc(t, e.vaultDir, "s.md", "# Searchable\n## Term\nuniqueword here")
	do(t, e.router, http.MethodPost, "/sync", nil)

	w := do(t, e.router, http.MethodGet, "/search?q=uniqueword", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].DocumentID != "s.md" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	e := testEnv(t, "")
	w := do(t, e.router, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	e := testEnv(t, "secret123")
	tests := []struct {
		name   string
		header string
		target string
		want   int
	}{
		{"valid header", "Bearer secret123", "/documents", http.StatusOK},
		{"missing", "", "/documents", http.StatusUnauthorized},
		{"wrong", "Bearer wrong", "/documents", http.StatusUnauthorized},
		{"query token", "", "/documents?access_token=secret123", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			e.router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddleware_QueryTokenOnlyForGet(t *testing.T) {
	e := testEnv(t, "tok")
	w := do(t, e.router, http.MethodPost, "/sync?access_token=tok", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	dummy := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	e := testEnvWithSSE(t, "tok", dummy)
	if w := do(t, e.router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
	if w := do(t, e.router, http.MethodGet, "/events?access_token=tok", nil); w.Code != http.StatusOK {
		t.Errorf("SSE with token = %d, want 200", w.Code)
	}

	open := testEnvWithSSE(t, "", dummy)
	if w := do(t, open.router, http.MethodGet, "/events", nil); w.Code != http.StatusOK {
		t.Errorf("SSE auth disabled = %d, want 200", w.Code)
	}
}
