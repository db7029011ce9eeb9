// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes cardsync tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/cardservice"
)

const cardFormatURI = "cardsync://card-format"

// Server wraps the MCP server with cardsync tools.
type Server struct {
	mcp *server.MCPServer
	svc *cardservice.Service
}

// New creates a new MCP server with all cardsync tools registered.
func New(svc *cardservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"cardsync",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("preview_cards",
		mcp.WithDescription("Compile a Markdown document into flashcards without sending them. "+
			"Pass content to preview a draft, or only path to preview a vault document. "+
			"Read the card format first via get_card_format or the "+cardFormatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Document path relative to the vault (e.g. spanish/verbs.md)")),
		mcp.WithString("content", mcp.Description("Optional Markdown to compile instead of the file on disk")),
	), s.previewCards)

	s.mcp.AddTool(mcp.NewTool("send_document",
		mcp.WithDescription("Send one vault document to its deck and report added, updated, removed and unchanged cards."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Document path relative to the vault")),
	), s.sendDocument)

	s.mcp.AddTool(mcp.NewTool("sync_vault",
		mcp.WithDescription("Send every changed vault document and remove cards of deleted documents."),
		mcp.WithBoolean("force", mcp.Description("Resend documents even if their checksum is unchanged")),
	), s.syncVault)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List vault documents and whether each is in sync with the card store."),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("list_cards",
		mcp.WithDescription("List the cards last sent for a document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Document path relative to the vault")),
	), s.listCards)

	s.mcp.AddTool(mcp.NewTool("search_cards",
		mcp.WithDescription("Search sent cards by front and back text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchCards)

	s.mcp.AddTool(mcp.NewTool("get_card_format",
		mcp.WithDescription("Returns how Markdown headers become flashcards. "+
			"Call this before writing documents meant to be sent."),
	), s.getCardFormat)

	s.mcp.AddResource(
		mcp.NewResource(cardFormatURI, "Card Format",
			mcp.WithResourceDescription("How nested Markdown headers compile into flashcards."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCardFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// errorText renders err for the model. Structural errors get the hint so the
// model fixes the document instead of retrying.
func errorText(path string, err error) string {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return fmt.Sprintf("not found: %s", path)
	case apperr.IsStructural(err):
		return fmt.Sprintf("%s: %v. %s", path, err, apperr.StructuralHint)
	default:
		return err.Error()
	}
}

func toolError(path string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(errorText(path, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) previewCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var content []byte
	if c := req.GetString("content", ""); c != "" {
		content = []byte(c)
	}
	p, err := s.svc.Preview(ctx, path, content)
	if err != nil {
		return toolError(path, err), nil
	}
	return jsonResult(p)
}

func (s *Server) sendDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.SendPath(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	return mcp.NewToolResultText(d.String()), nil
}

func (s *Server) syncVault(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := s.svc.SyncVault(ctx, req.GetBool("force", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	lines := make([]string, 0, len(r.Diffs)+len(r.Failures)+1)
	for _, d := range r.Diffs {
		lines = append(lines, d.String())
	}
	for _, f := range r.Failures {
		lines = append(lines, "FAILED "+errorText(f.DocumentID, f.Err))
	}
	lines = append(lines, r.Aggregate.String())
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) listDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.svc.Documents(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(docs)
}

func (s *Server) listCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cards, err := s.svc.Cards(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	return jsonResult(cards)
}

func (s *Server) searchCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) getCardFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CardFormatContract), nil
}

func (s *Server) readCardFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      cardFormatURI,
			MIMEType: "text/markdown",
			Text:     CardFormatContract,
		},
	}, nil
}
