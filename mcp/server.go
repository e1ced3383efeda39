// Package mcp serves the orchestrator as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aschepis/backscratcher/llmcore/cache"
	"github.com/aschepis/backscratcher/llmcore/orchestrator"
	"github.com/aschepis/backscratcher/llmcore/pricing"
	"github.com/aschepis/backscratcher/llmcore/providers"
	"github.com/aschepis/backscratcher/llmcore/quota"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

const (
	serverName    = "llmcore"
	serverVersion = "1.0.0"

	toolLLMRequest  = "llm_request"
	toolQuotaStatus = "quota_status"
	toolCacheStats  = "cache_stats"

	retryMessage = "Something went wrong, please retry."
)

// Requester runs LLM requests.
type Requester interface {
	LLMRequest(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
}

// QuotaReader reports a user's quota position.
type QuotaReader interface {
	State(ctx context.Context, userID, resource string) (quota.State, error)
}

// StatsReader reports cache statistics.
type StatsReader interface {
	Stats() cache.Stats
}

// Server exposes llm_request and friends as MCP tools.
type Server struct {
	mcp       *server.MCPServer
	requester Requester
	quota     QuotaReader
	cache     StatsReader
	logger    zerolog.Logger
}

// NewServer registers the tools. quota and cache may be nil, in which case
// their tools are not offered.
func NewServer(requester Requester, quotaReader QuotaReader, stats StatsReader, logger zerolog.Logger) *Server {
	s := &Server{
		mcp:       server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false)),
		requester: requester,
		quota:     quotaReader,
		cache:     stats,
		logger:    logger.With().Str("component", "mcpServer").Logger(),
	}

	s.mcp.AddTool(llmRequestTool(), s.handleLLMRequest)
	if s.quota != nil {
		s.mcp.AddTool(mcp.NewTool(toolQuotaStatus,
			mcp.WithDescription("Show a user's quota for a resource, in cents."),
			mcp.WithString("user_id", mcp.Required(), mcp.Description("User to report on")),
			mcp.WithString("resource", mcp.Description("Billable resource, defaults to chat")),
		), s.handleQuotaStatus)
	}
	if s.cache != nil {
		s.mcp.AddTool(mcp.NewTool(toolCacheStats,
			mcp.WithDescription("Show response cache hit and miss counts since startup."),
		), s.handleCacheStats)
	}
	return s
}

func llmRequestTool() mcp.Tool {
	return mcp.NewTool(toolLLMRequest,
		mcp.WithDescription("Send a conversation to a configured language model technology."),
		mcp.WithString("tech", mcp.Required(), mcp.Description("Technology ID or variant name")),
		mcp.WithArray("messages", mcp.Required(),
			mcp.Description("Conversation turns, oldest first"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"role":    map[string]any{"type": "string", "enum": []string{"user", "assistant"}},
					"content": map[string]any{"type": "string"},
				},
				"required": []string{"role", "content"},
			}),
		),
		mcp.WithString("system_prompt", mcp.Description("Extra system instructions")),
		mcp.WithString("user_id", mcp.Description("User charged for the call")),
		mcp.WithString("conversation_id", mcp.Description("Conversation the call belongs to")),
		mcp.WithString("agent_name", mcp.Description("Name the model answers as")),
		mcp.WithString("agent_role", mcp.Description("Role the model answers as")),
		mcp.WithBoolean("anonymize", mcp.Description("Omit the agent identity line")),
		mcp.WithBoolean("json_mode", mcp.Description("Extract and repair a JSON value from the reply")),
		mcp.WithBoolean("require_array", mcp.Description("In JSON mode, require a JSON array")),
		mcp.WithBoolean("try_cache", mcp.Description("Serve identical earlier requests from the cache")),
	)
}

// llmRequestArgs is the argument object of the llm_request tool.
type llmRequestArgs struct {
	Tech           string                     `json:"tech"`
	Messages       []orchestrator.WireMessage `json:"messages"`
	SystemPrompt   string                     `json:"system_prompt"`
	UserID         string                     `json:"user_id"`
	ConversationID string                     `json:"conversation_id"`
	AgentName      string                     `json:"agent_name"`
	AgentRole      string                     `json:"agent_role"`
	Anonymize      bool                       `json:"anonymize"`
	JSONMode       bool                       `json:"json_mode"`
	RequireArray   bool                       `json:"require_array"`
	TryCache       bool                       `json:"try_cache"`
}

func bindArguments(request mcp.CallToolRequest, target any) error {
	raw, err := json.Marshal(request.GetArguments())
	if err != nil {
		return fmt.Errorf("failed to encode arguments: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (s *Server) handleLLMRequest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args llmRequestArgs
	if err := bindArguments(request, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.Tech == "" {
		return mcp.NewToolResultError("tech is required"), nil
	}
	msgs, err := orchestrator.BuildMessages(args.Messages)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.requester.LLMRequest(ctx, orchestrator.Request{
		TechRef:        args.Tech,
		UserID:         args.UserID,
		ConversationID: args.ConversationID,
		Agent:          providers.Identity{Name: args.AgentName, Role: args.AgentRole},
		Anonymize:      args.Anonymize,
		Messages:       msgs,
		SystemPrompt:   args.SystemPrompt,
		JSONMode:       args.JSONMode,
		RequireArray:   args.RequireArray,
		TryCache:       args.TryCache,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("tech", args.Tech).Msg("llm_request failed")
		return mcp.NewToolResultError(retryMessage), nil
	}

	return jsonResult(result, !result.Status)
}

func (s *Server) handleQuotaStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := request.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	resource := request.GetString("resource", pricing.ResourceChat)

	state, err := s.quota.State(ctx, userID, resource)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("quota_status failed")
		return mcp.NewToolResultError(retryMessage), nil
	}
	return jsonResult(map[string]any{
		"user_id":     state.UserID,
		"resource":    state.Resource,
		"total_quota": state.TotalQuota,
		"used_amount": state.UsedAmount,
		"remaining":   state.Remaining(),
		"has_grant":   state.HasGrant,
	}, false)
}

func (s *Server) handleCacheStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.cache.Stats(), false)
}

// jsonResult renders v as the text content of a tool result.
func jsonResult(v any, isError bool) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	result := mcp.NewToolResultText(string(data))
	result.IsError = isError
	return result, nil
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves MCP over in and out until ctx is done or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info().Msg("Serving MCP over stdio")
	stdio := server.NewStdioServer(s.mcp)
	if err := stdio.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}
