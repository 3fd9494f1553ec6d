package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"jira-mcp-server/internal/auth"
	"jira-mcp-server/internal/catalog"
	"jira-mcp-server/internal/common"
	"jira-mcp-server/internal/dispatch"
	"jira-mcp-server/internal/mcpserver"
)

func main() {
	stdio := flag.Bool("stdio", false, "Use stdio transport (for Claude Desktop)")
	configFile := flag.String("config", "jira-mcp.toml", "Path to config file")
	flag.Parse()

	cfg, err := common.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := common.NewLoggerFromConfig(cfg.Logging)

	creds, err := auth.FromConfig(cfg.Jira)
	if err != nil {
		log.Fatalf("Failed to build credential provider: %v", err)
	}

	// A malformed catalogue aborts startup; partial operation sets must
	// never exist at runtime.
	registry, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		log.Fatalf("Failed to load operation catalogue: %v", err)
	}
	logger.Info().Int("operations", registry.Len()).Msg("operation catalogue loaded")

	executor := dispatch.NewExecutor(cfg.Jira.BaseURL, creds, logger, cfg.Dispatch)
	dispatcher := dispatch.New(registry, executor, logger, cfg.Dispatch)

	mcpSrv := mcpserver.New(cfg.Server.Name, dispatcher, logger, cfg)

	if *stdio {
		// Stdio transport — reads stdin, writes stdout
		if err := server.ServeStdio(mcpSrv); err != nil {
			fmt.Fprintf(os.Stderr, "stdio server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	port := cfg.Server.Port

	// Streamable HTTP transport — listens on configured port
	httpServer := server.NewStreamableHTTPServer(mcpSrv,
		server.WithStateLess(true),
	)

	logger.Info().Str("port", port).Msg("starting MCP Streamable HTTP server")
	fmt.Fprintf(os.Stderr, "Starting MCP Streamable HTTP on :%s\n", port)

	if err := httpServer.Start(":" + port); err != nil {
		fmt.Fprintf(os.Stderr, "http server error: %v\n", err)
		os.Exit(1)
	}
}
