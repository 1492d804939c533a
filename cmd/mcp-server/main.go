// Package main MCP 服务入口，通过 stdio 暴露战役工具
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"rpg-narrative-api/internal/config"
	mcptools "rpg-narrative-api/internal/interfaces/mcp"
	einoobs "rpg-narrative-api/internal/observability/eino"
	"rpg-narrative-api/internal/wire"
	"rpg-narrative-api/pkg/logger"
)

// Version 版本信息，构建时注入
var Version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// stdout 归 MCP 协议使用，日志只写 stderr
	logger.InitWithWriter(os.Stderr, cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx := context.Background()
	app, cleanup, err := wire.InitializeApp(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize app", err)
	}
	defer cleanup()

	einoobs.Init(app.UsageRecorder)

	s := mcptools.NewServer("rpg-narrative", Version, app.Campaigns, app.Orchestrator)
	if err := server.ServeStdio(s); err != nil {
		logger.Error(ctx, "mcp server stopped", err)
		os.Exit(1)
	}
}
