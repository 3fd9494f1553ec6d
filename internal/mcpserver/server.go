package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"jira-mcp-server/internal/catalog"
	"jira-mcp-server/internal/common"
	"jira-mcp-server/internal/dispatch"
)

// New builds the MCP server with one tool per registry entry plus the
// get_server_info diagnostic tool.
func New(name string, d *dispatch.Dispatcher, logger *common.Logger, cfg *common.Config) *server.MCPServer {
	s := server.NewMCPServer(
		name,
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	count := RegisterTools(s, d, cfg)
	s.AddTool(serverInfoTool(), serverInfoHandler(d))

	logger.Info().Int("tools", count).Str("base_url", cfg.Jira.BaseURL).Msg("MCP server initialized")
	return s
}

// RegisterTools registers a tool for every operation in the registry and
// returns the count.
func RegisterTools(s *server.MCPServer, d *dispatch.Dispatcher, cfg *common.Config) int {
	reg := d.Registry()
	for _, name := range reg.Names() {
		desc, err := reg.Resolve(name)
		if err != nil {
			continue
		}
		s.AddTool(BuildTool(desc), GenericToolHandler(d, desc, cfg))
	}
	return reg.Len()
}

// GenericToolHandler routes an MCP tool call through the dispatcher. One
// handler serves every operation; the descriptor decides whether the call
// is plain, paginated, or async.
func GenericToolHandler(d *dispatch.Dispatcher, desc *catalog.Descriptor, cfg *common.Config) server.ToolHandlerFunc {
	return func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := map[string]any{}
		for k, v := range r.GetArguments() {
			args[k] = v
		}

		switch {
		case desc.Async != nil:
			return handleAsync(ctx, d, desc, args, cfg)
		case desc.Pagination != nil:
			return handlePaginated(ctx, d, desc, args)
		default:
			env, err := d.Invoke(ctx, desc.Name, args)
			if err != nil {
				return failureResult(err), nil
			}
			return envelopeResult(env), nil
		}
	}
}

// handlePaginated collects pages up to max_pages and returns the
// concatenated item list. A mid-walk failure still reports the items
// fetched so far, marked partial.
func handlePaginated(ctx context.Context, d *dispatch.Dispatcher, desc *catalog.Descriptor, args map[string]any) (*mcp.CallToolResult, error) {
	pageLimit := 0
	if v, ok := args[argMaxPages].(float64); ok && v > 0 {
		pageLimit = int(v)
	}
	delete(args, argMaxPages)

	walker, err := d.Walk(desc.Name, args, pageLimit)
	if err != nil {
		return failureResult(err), nil
	}

	var items []any
	pages := 0
	var walkErr error
	for {
		env, err := walker.Next(ctx)
		if err != nil {
			walkErr = err
			break
		}
		if env == nil {
			break
		}
		pages++
		items = append(items, walker.Items(env)...)
	}

	result := map[string]any{
		"items": items,
		"pages": pages,
	}
	if walkErr != nil {
		// At-least-delivered: the caller gets what arrived before the abort.
		result["partial"] = true
		result["error"] = walkErr.Error()
	}
	return jsonResult(result), nil
}

// handleAsync runs the initiating call and, unless wait=false, polls the
// task to completion.
func handleAsync(ctx context.Context, d *dispatch.Dispatcher, desc *catalog.Descriptor, args map[string]any, cfg *common.Config) (*mcp.CallToolResult, error) {
	wait := true
	if v, ok := args[argWait].(bool); ok {
		wait = v
	}
	pollInterval := cfg.Dispatch.GetPollInterval()
	if v, ok := args[argPollInterval].(float64); ok && v > 0 {
		pollInterval = time.Duration(v * float64(time.Second))
	}
	maxWait := cfg.Dispatch.GetMaxWait()
	if v, ok := args[argMaxWait].(float64); ok && v > 0 {
		maxWait = time.Duration(v * float64(time.Second))
	}
	delete(args, argWait)
	delete(args, argPollInterval)
	delete(args, argMaxWait)

	if !wait {
		env, err := d.Invoke(ctx, desc.Name, args)
		if err != nil {
			return failureResult(err), nil
		}
		return envelopeResult(env), nil
	}

	env, err := d.InvokeAsync(ctx, desc.Name, args, pollInterval, maxWait)
	if err != nil {
		return failureResult(err), nil
	}
	return envelopeResult(env), nil
}

// envelopeResult renders a success envelope as MCP content. Binary payloads
// come back base64-encoded with their content type; empty responses get an
// explicit marker so callers never see an ambiguous blank success.
func envelopeResult(env *dispatch.Envelope) *mcp.CallToolResult {
	switch {
	case env.Empty:
		return jsonResult(map[string]any{"status": "ok", "statusCode": env.StatusCode})
	case env.Binary:
		return jsonResult(map[string]any{
			"contentType": env.ContentType,
			"size":        len(env.Raw),
			"dataBase64":  base64.StdEncoding.EncodeToString(env.Raw),
		})
	default:
		return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(string(env.Raw))}}
	}
}

// failureResult renders a typed failure as an MCP error result, preserving
// the remote message verbatim.
func failureResult(err error) *mcp.CallToolResult {
	f := dispatch.AsFailure(err)
	return errorResult(fmt.Sprintf("Error [%s]: %s", f.Kind, f.Message))
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Sprintf("Error [decode]: failed to render result: %v", err))
	}
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(string(data))}}
}

// errorResult creates an MCP error result.
func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(message),
		},
		IsError: true,
	}
}

// serverInfoTool reports the server version and tool count; use it to
// verify connectivity.
func serverInfoTool() mcp.Tool {
	return mcp.NewTool("get_server_info",
		mcp.WithDescription("Get the jira-mcp server version and the number of registered tools. Use this to verify connectivity."),
	)
}

func serverInfoHandler(d *dispatch.Dispatcher) server.ToolHandlerFunc {
	return func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(map[string]any{
			"version": common.GetFullVersion(),
			"tools":   d.Registry().Len(),
		}), nil
	}
}
