// Command mcp exposes the document index and the question-answering
// pipeline as Model Context Protocol tools over stdio, so MCP-capable
// clients can search and query the same store the API serves.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/docchat/docchat/internal/config"
	"github.com/docchat/docchat/internal/domain/docmodel"
	"github.com/docchat/docchat/internal/embed"
	"github.com/docchat/docchat/internal/embed/gemini"
	"github.com/docchat/docchat/internal/embed/openaiembed"
	"github.com/docchat/docchat/internal/llm"
	"github.com/docchat/docchat/internal/llm/geminillm"
	"github.com/docchat/docchat/internal/llm/openaillm"
	"github.com/docchat/docchat/internal/responder"
	"github.com/docchat/docchat/internal/session"
	"github.com/docchat/docchat/internal/vectorindex"
	"github.com/docchat/docchat/internal/vectorindex/localindex"
	"github.com/docchat/docchat/pkg/logx"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type searchArgs struct {
	Query string `json:"query" jsonschema:"the text to search for"`
	K     int    `json:"k,omitempty" jsonschema:"number of chunks to return, defaults to 5"`
	DocID string `json:"doc_id,omitempty" jsonschema:"restrict the search to one document"`
}

type askArgs struct {
	Question  string `json:"question" jsonschema:"the question to answer from the indexed documents"`
	SessionID string `json:"session_id,omitempty" jsonschema:"conversation session id, defaults to 'mcp'"`
}

type listArgs struct{}

func main() {
	logx.Init(config.IsProd, config.LogLevelProd)
	logger := logx.New("mcp")
	ctx := context.Background()

	embedder, model, err := buildProviders(ctx)
	if err != nil {
		logger.Error("provider initialization failed", "error", err)
		os.Exit(1)
	}

	index, err := localindex.Open(config.Env("DATA_DIR", config.DataDirDefault), embedder)
	if err != nil {
		logger.Error("index initialization failed", "error", err)
		os.Exit(1)
	}
	defer index.Close()

	sessions, err := session.Open(ctx, config.Env("REDIS_ADDR", config.RedisAddr))
	if err != nil {
		logger.Error("session store initialization failed", "error", err)
		os.Exit(1)
	}
	defer sessions.Close()

	resp := responder.New(index, sessions, model)

	server := mcp.NewServer(&mcp.Implementation{Name: "docchat", Version: "1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_documents",
		Description: "Semantic search over the indexed documents, returns the best matching chunks",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args searchArgs) (*mcp.CallToolResult, any, error) {
		return handleSearch(ctx, index, args)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_documents",
		Description: "Answer a question grounded in the indexed documents",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args askArgs) (*mcp.CallToolResult, any, error) {
		sessionID := args.SessionID
		if sessionID == "" {
			sessionID = "mcp"
		}
		result := resp.Answer(ctx, args.Question, sessionID)
		return textResult(result.Response), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List the documents currently in the index",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ listArgs) (*mcp.CallToolResult, any, error) {
		docs, err := index.List(ctx)
		if err != nil {
			return nil, nil, err
		}
		data, err := json.Marshal(docs)
		if err != nil {
			return nil, nil, err
		}
		return textResult(string(data)), nil, nil
	})

	logger.Info("serving MCP over stdio")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		logger.Error("mcp server stopped", "error", err)
		os.Exit(1)
	}
}

func handleSearch(ctx context.Context, index vectorindex.Index, args searchArgs) (*mcp.CallToolResult, any, error) {
	k := args.K
	if k <= 0 {
		k = config.ChatTopK
	}

	var hits []docmodel.SearchHit
	var err error
	if args.DocID != "" {
		hits, err = index.SearchFiltered(ctx, args.Query, k, map[string]string{"doc_id": args.DocID})
	} else {
		hits, err = index.Search(ctx, args.Query, k)
	}
	if err != nil {
		return nil, nil, err
	}

	var b strings.Builder
	for i, hit := range hits {
		fmt.Fprintf(&b, "[%d] %s (chunk %d, score %.3f)\n%s\n\n",
			i+1, hit.Filename, hit.ChunkIndex, hit.Score, hit.Text)
	}
	if b.Len() == 0 {
		b.WriteString("no matching content")
	}
	return textResult(b.String()), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func buildProviders(ctx context.Context) (embed.Embedder, llm.Provider, error) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		embedder, err := gemini.New(ctx, key)
		if err != nil {
			return nil, nil, err
		}
		model, err := geminillm.New(ctx, key)
		if err != nil {
			return nil, nil, err
		}
		return embedder, model, nil
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return openaiembed.New(key), openaillm.New(key), nil
	}
	return nil, nil, fmt.Errorf("no GEMINI_API_KEY or OPENAI_API_KEY configured")
}
