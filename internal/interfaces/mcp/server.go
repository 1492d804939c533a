// Package mcp 以 MCP 工具的形式暴露战役与回合操作，供智能体客户端通过 stdio 调用
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"rpg-narrative-api/internal/application/campaign"
	"rpg-narrative-api/internal/application/turn"
	"rpg-narrative-api/internal/domain/entity"
	"rpg-narrative-api/internal/domain/repository"
	apperrors "rpg-narrative-api/pkg/errors"
)

// Campaigns 工具依赖的战役操作
type Campaigns interface {
	Create(ctx context.Context, in campaign.CreateInput) (*campaign.View, error)
	Get(ctx context.Context, id string) (*campaign.View, error)
	History(ctx context.Context, id string, p repository.Pagination) (*repository.PagedResult[*entity.Turn], error)
	End(ctx context.Context, id string) (*entity.Campaign, error)
}

// Turns 回合编排
type Turns interface {
	Process(ctx context.Context, req turn.Request) (*turn.Result, error)
}

// Tool 单个 MCP 工具
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// NewServer 创建 MCP 服务并注册全部工具
func NewServer(name, version string, campaigns Campaigns, turns Turns) *server.MCPServer {
	s := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	for _, t := range Tools(campaigns, turns) {
		s.AddTool(t.Definition(), t.Handle)
	}
	return s
}

// Tools 全部工具，按注册顺序
func Tools(campaigns Campaigns, turns Turns) []Tool {
	return []Tool{
		&createCampaignTool{campaigns: campaigns},
		&takeActionTool{turns: turns},
		&campaignStatusTool{campaigns: campaigns},
		&turnHistoryTool{campaigns: campaigns},
		&endCampaignTool{campaigns: campaigns},
	}
}

const instructions = `Narrative RPG game master. Create a campaign with campaign_create, then submit ` +
	`player actions with campaign_action. Combat actions use the forms "attack <target> with <weapon>", ` +
	`"cast <spell> at <target>", "engage <enemy>" and "flee"; append "roll=N" to use a physical die.`

func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// jsonResult 以缩进 JSON 文本返回结果
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult 领域错误作为工具错误返回给模型，其余错误交给服务端
func errorResult(err error) (*mcp.CallToolResult, error) {
	if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeUnknown {
		msg := appErr.Message
		if appErr.Detail != "" {
			msg += ": " + appErr.Detail
		}
		return mcp.NewToolResultError(msg), nil
	}
	return nil, err
}
