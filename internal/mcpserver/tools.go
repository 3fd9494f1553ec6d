// Package mcpserver exposes the operation registry as MCP tools. Every
// catalogue descriptor becomes one tool; a single generic handler routes
// tools/call through the dispatcher.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"

	"jira-mcp-server/internal/catalog"
)

// Control arguments added on top of the descriptor's own parameters.
const (
	argMaxPages     = "max_pages"
	argWait         = "wait"
	argPollInterval = "poll_interval_seconds"
	argMaxWait      = "max_wait_seconds"
)

// BuildTool converts a descriptor into an mcp.Tool with a typed parameter
// schema. Paginated operations gain a max_pages argument; async-initiating
// operations gain wait/poll controls.
func BuildTool(desc *catalog.Descriptor) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(desc.Description)}

	for i := range desc.Params {
		opts = append(opts, paramOption(&desc.Params[i]))
	}

	if desc.Body != nil {
		bodyOpts := []mcp.PropertyOption{mcp.Description(desc.Body.Description + " (JSON object as a string)")}
		if desc.Body.Required {
			bodyOpts = append(bodyOpts, mcp.Required())
		}
		opts = append(opts, mcp.WithString(desc.Body.ArgName, bodyOpts...))
	}

	if desc.Pagination != nil {
		opts = append(opts, mcp.WithNumber(argMaxPages,
			mcp.Description("Maximum number of pages to fetch (default: server-configured cap)")))
	}

	if desc.Async != nil {
		opts = append(opts,
			mcp.WithBoolean(argWait,
				mcp.Description("Wait for the long-running task to finish before returning (default: true)")),
			mcp.WithNumber(argPollInterval,
				mcp.Description("Seconds between task status polls")),
			mcp.WithNumber(argMaxWait,
				mcp.Description("Maximum seconds to wait for the task before giving up")),
		)
	}

	return mcp.NewTool(desc.Name, opts...)
}

// paramOption maps a catalogue parameter to the matching mcp-go option.
func paramOption(p *catalog.Param) mcp.ToolOption {
	var opts []mcp.PropertyOption
	if p.Description != "" {
		opts = append(opts, mcp.Description(p.Description))
	}
	if p.Required {
		opts = append(opts, mcp.Required())
	}

	switch p.Type {
	case catalog.TypeInteger, catalog.TypeNumber:
		return mcp.WithNumber(p.Name, opts...)
	case catalog.TypeBoolean:
		return mcp.WithBoolean(p.Name, opts...)
	case catalog.TypeEnum:
		opts = append(opts, mcp.Enum(p.Enum...))
		return mcp.WithString(p.Name, opts...)
	default:
		return mcp.WithString(p.Name, opts...)
	}
}
