package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"docchat/internal/config"
	"docchat/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing document chat tools over stdio",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return mcpserver.ServeStdio(newMCPServer(a))
}

func newMCPServer(a *app) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("docchat", "1.0.0", mcpserver.WithToolCapabilities(false))

	// Ingestion replaces the index; one batch at a time.
	var ingestMu sync.Mutex

	s.AddTool(askDocumentsTool(), makeAskHandler(a))
	s.AddTool(searchDocumentsTool(), makeSearchHandler(a))
	s.AddTool(ingestDocumentsTool(), makeIngestHandler(a, &ingestMu))
	s.AddTool(getHistoryTool(), makeHistoryHandler(a.convos))
	s.AddTool(clearHistoryTool(), makeClearHandler(a.convos))
	return s
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// --- Tool schema builders ---

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

var replacingAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(false),
	DestructiveHint: mcp.ToBoolPtr(true),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func askDocumentsTool() mcp.Tool {
	return mcp.NewTool("ask_documents",
		mcp.WithDescription("Answer a question from the processed documents. The exchange is added to the stored conversation and earlier exchanges are used as memory."),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{
			ReadOnlyHint:    mcp.ToBoolPtr(false),
			DestructiveHint: mcp.ToBoolPtr(false),
			IdempotentHint:  mcp.ToBoolPtr(false),
			OpenWorldHint:   mcp.ToBoolPtr(true),
		}),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithNumber("history",
			mcp.Description(fmt.Sprintf("Past exchanges to use as memory (%d-%d, default from configuration)", config.MinHistory, config.MaxHistory)),
		),
	)
}

func searchDocumentsTool() mcp.Tool {
	return mcp.NewTool("search_documents",
		mcp.WithDescription("Return the document chunks most similar to a query, most similar first, without generating an answer."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language query"),
		),
		mcp.WithNumber("k",
			mcp.Description("Maximum number of chunks to return (default 4)"),
		),
	)
}

func ingestDocumentsTool() mcp.Tool {
	return mcp.NewTool("ingest_documents",
		mcp.WithDescription("Replace the document index with the given files (PDF, text or markdown; directories are searched) and optional free text."),
		mcp.WithToolAnnotation(replacingAnnotation),
		mcp.WithArray("paths",
			mcp.Description("File or directory paths on the server's filesystem"),
			mcp.WithStringItems(),
		),
		mcp.WithString("text",
			mcp.Description("Free text to index alongside the files"),
		),
	)
}

func getHistoryTool() mcp.Tool {
	return mcp.NewTool("get_conversation_history",
		mcp.WithDescription("Return the stored conversation, oldest message first."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithNumber("limit",
			mcp.Description("Return only the most recent N messages (default all)"),
		),
	)
}

func clearHistoryTool() mcp.Tool {
	return mcp.NewTool("clear_conversation_history",
		mcp.WithDescription("Delete every stored message."),
		mcp.WithToolAnnotation(replacingAnnotation),
	)
}

// --- Handler factories ---

func makeAskHandler(a *app) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question := req.GetString("question", "")
		if strings.TrimSpace(question) == "" {
			return mcp.NewToolResultError("question is required"), nil
		}
		history := req.GetInt("history", a.cfg.MaxHistory)

		ans, err := a.pipeline.Ask(ctx, question, history)
		if err != nil {
			if ans != nil {
				return mcp.NewToolResultText(fmt.Sprintf("%s\n\n(warning: %v)", ans.Text, err)), nil
			}
			return mcp.NewToolResultError(describeError(err)), nil
		}
		return mcp.NewToolResultText(ans.Text), nil
	}
}

func makeSearchHandler(a *app) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		k := req.GetInt("k", a.cfg.TopK)

		results, err := a.indexer.Search(ctx, query, k)
		if err != nil {
			if errors.Is(err, store.ErrIndexNotFound) {
				return mcp.NewToolResultError(describeError(err)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatSearchResults(query, results)), nil
	}
}

func makeIngestHandler(a *app, mu *sync.Mutex) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		paths := req.GetStringSlice("paths", nil)
		text := req.GetString("text", "")

		mu.Lock()
		defer mu.Unlock()

		res, err := ingest(ctx, a, paths, text)
		var sb strings.Builder
		printIngestResult(&sb, a.indexer.Path(), res)
		if err != nil {
			if isValidation(err) {
				return mcp.NewToolResultError(strings.TrimSpace(sb.String() + "\n" + err.Error())), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("%sprocessing failed: %v", sb.String(), err)), nil
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func makeHistoryHandler(convos *store.Conversations) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		msgs, err := convos.Read(ctx, req.GetInt("limit", 0))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read history failed: %v", err)), nil
		}
		if len(msgs) == 0 {
			return mcp.NewToolResultText("No previous conversation."), nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "## Conversation (%d messages)\n\n", len(msgs))
		for _, m := range msgs {
			fmt.Fprintf(&sb, "**%s** (%s): %s\n\n", m.Role.Label(), m.Timestamp.UTC().Format("2006-01-02 15:04:05"), m.Content)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func makeClearHandler(convos *store.Conversations) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := convos.Clear(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("clear failed: %v", err)), nil
		}
		return mcp.NewToolResultText("Conversation cleared."), nil
	}
}

// --- Formatting helpers ---

func formatSearchResults(query string, results []store.SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for query: %q", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search results for %q (%d chunks)\n\n", query, len(results))
	for i, r := range results {
		fmt.Fprintf(&sb, "### Result %d (chunk %d, distance %.4f)\n\n", i+1, r.Chunk.ID, r.Distance)
		fmt.Fprintf(&sb, "%s\n\n", r.Chunk.Content)
	}
	return sb.String()
}
