// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/telos-ai/telos/pkg/config"
	"github.com/telos-ai/telos/pkg/gateway"
)

const mcpInitTimeout = 10 * time.Second

// mcpCaller adapts the mcp-go client to the gateway's caller contract.
type mcpCaller struct {
	client *client.Client
}

func (c *mcpCaller) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return c.client.CallTool(ctx, req)
}

// connectMCPServers starts each configured stdio MCP server and registers
// its exported tools with the gateway. A server that fails to come up is
// skipped with a warning; the mission runs with whatever tools it has.
func connectMCPServers(ctx context.Context, rt *runtime, gw *gateway.Gateway, cfg config.MCPConfig, logger *slog.Logger) error {
	for _, server := range cfg.Servers {
		if server.Command == "" {
			return fmt.Errorf("mcp server %q: command is required", server.Name)
		}
		tools, caller, err := connectMCPServer(ctx, rt, server)
		if err != nil {
			logger.Warn("mcp.server.unavailable", "server", server.Name, "error", err)
			continue
		}
		if err := gateway.RegisterMCPTools(gw, tools, caller); err != nil {
			return fmt.Errorf("mcp server %q: %w", server.Name, err)
		}
		logger.Info("mcp.server.connected", "server", server.Name, "tools", len(tools))
	}
	return nil
}

func connectMCPServer(ctx context.Context, rt *runtime, server config.MCPServerConfig) ([]mcp.Tool, gateway.MCPCaller, error) {
	cli, err := client.NewStdioMCPClient(server.Command, nil, server.Args...)
	if err != nil {
		return nil, nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, mcpInitTimeout)
	defer cancel()

	if err := cli.Start(initCtx); err != nil {
		cli.Close()
		return nil, nil, err
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "telos", Version: version}
	if _, err := cli.Initialize(initCtx, initReq); err != nil {
		cli.Close()
		return nil, nil, err
	}

	listed, err := cli.ListTools(initCtx, mcp.ListToolsRequest{})
	if err != nil {
		cli.Close()
		return nil, nil, err
	}

	rt.closers = append(rt.closers, cli.Close)
	return listed.Tools, &mcpCaller{client: cli}, nil
}
