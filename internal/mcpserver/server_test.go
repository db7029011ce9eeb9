package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/cardservice"
	"github.com/starford/cardsync/internal/cardsync"
	"github.com/starford/cardsync/internal/markdown"
	"github.com/starford/cardsync/internal/render"
	"github.com/starford/cardsync/internal/testutil"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	vaultDir, vault := testutil.TestVault(t)
	orch := cardsync.New(
		markdown.NewCompiler(render.NewGoldmark(render.Options{})),
		testutil.TestStore(t),
		cardsync.DeckConfig{Mode: cardsync.ModeStandalone},
		slog.New(slog.NewJSONHandler(io.Discard, nil)),
	)
	return New(cardservice.NewService(vault, orch)), vaultDir
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process call helper, so dispatch to the handlers directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "preview_cards":
		result, err = srv.previewCards(ctx, req)
	case "send_document":
		result, err = srv.sendDocument(ctx, req)
	case "sync_vault":
		result, err = srv.syncVault(ctx, req)
	case "list_documents":
		result, err = srv.listDocuments(ctx, req)
	case "list_cards":
		result, err = srv.listCards(ctx, req)
	case "search_cards":
		result, err = srv.searchCards(ctx, req)
	case "get_card_format":
		result, err = srv.getCardFormat(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestPreviewCards_Draft(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "preview_cards", map[string]any{
		"path":    "draft.md",
		"content": "# Deck\n## Q\nA",
	})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	var p cardservice.Preview
	if err := json.Unmarshal([]byte(resultText(r)), &p); err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if p.Deck != "Deck" || len(p.Cards) != 1 {
		t.Errorf("preview = %+v", p)
	}
}

func TestPreviewCards_StructuralHint(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "preview_cards", map[string]any{
		"path":    "bad.md",
		"content": "preface\n## Q\nA",
	})
	if !r.IsError {
		t.Fatal("expected error for document without title")
	}
	if !strings.Contains(resultText(r), apperr.StructuralHint) {
		t.Errorf("missing hint in %q", resultText(r))
	}
}

func TestSendDocumentThenListCards(t *testing.T) {
	srv, vaultDir := testServer(t)
	testutil.WriteDoc(t, vaultDir, "a.md", "# A\n## One\n1\n## Two\n2")

	r := callTool(t, srv, "send_document", map[string]any{"path": "a.md"})
	if got := resultText(r); got != "a.md (A): 2 added, 0 updated, 0 removed, 0 unchanged" {
		t.Errorf("send result = %q", got)
	}

	r = callTool(t, srv, "list_cards", map[string]any{"path": "a.md"})
	if r.IsError || !strings.Contains(resultText(r), `"key": "A\nOne"`) {
		t.Errorf("list_cards = %q", resultText(r))
	}
}

func TestSendDocumentMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "send_document", map[string]any{"path": "nope.md"})
	if !r.IsError || resultText(r) != "not found: nope.md" {
		t.Errorf("result = %q (error=%v)", resultText(r), r.IsError)
	}
}

func TestSyncVaultAndListDocuments(t *testing.T) {
	srv, vaultDir := testServer(t)
	testutil.WriteDoc(t, vaultDir, "a.md", "# A\none")
	testutil.WriteDoc(t, vaultDir, "b.md", "orphan text\n## Q\nA")

	r := callTool(t, srv, "sync_vault", map[string]any{})
	text := resultText(r)
	if !strings.Contains(text, "a.md (A): 1 added") {
		t.Errorf("sync output missing a.md line: %q", text)
	}
	if !strings.Contains(text, "FAILED b.md") {
		t.Errorf("sync output missing failure: %q", text)
	}
	if !strings.HasSuffix(text, "1 documents: 1 added, 0 updated, 0 removed, 0 unchanged, 1 failed") {
		t.Errorf("sync output missing aggregate: %q", text)
	}

	r = callTool(t, srv, "list_documents", map[string]any{})
	var docs []cardservice.DocumentStatus
	if err := json.Unmarshal([]byte(resultText(r)), &docs); err != nil {
		t.Fatalf("decode documents: %v", err)
	}
	if len(docs) != 2 || !docs[0].InSync || docs[1].InSync {
		t.Errorf("documents = %+v", docs)
	}
}

func TestSearchCards(t *testing.T) {
	srv, vaultDir := testServer(t)
	testutil.WriteDoc(t, vaultDir, "a.md", "# Rivers\n## Longest\nNile")
	callTool(t, srv, "sync_vault", map[string]any{})

	r := callTool(t, srv, "search_cards", map[string]any{"query": "Nile"})
	if r.IsError || !strings.Contains(resultText(r), `"document_id": "a.md"`) {
		t.Errorf("search = %q", resultText(r))
	}
}

func TestGetCardFormat(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_card_format", map[string]any{})
	if !strings.Contains(resultText(r), "<>") {
		t.Error("card format does not mention the reverse marker")
	}
}
