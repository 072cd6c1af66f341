// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/telos-ai/telos/pkg/capability"
	"github.com/telos-ai/telos/pkg/gateway"
)

// registerBuiltinTools registers the local toolbox every mission starts
// with. MCP servers extend it at startup; Tier-2 research extends it at
// runtime.
func registerBuiltinTools(gw *gateway.Gateway) {
	gw.Register(gateway.NewFuncTool("shell", shellTool),
		capability.ManifestEntry{
			ToolName:         "shell",
			Description:      "Run a shell command and return its combined output",
			InvocationSchema: objectSchema("command"),
			Confidence:       0.9,
		})
	gw.Register(gateway.NewFuncTool("read_file", readFileTool),
		capability.ManifestEntry{
			ToolName:         "read_file",
			Description:      "Read a file and return its contents",
			InvocationSchema: objectSchema("path"),
			Confidence:       0.95,
		})
	gw.Register(gateway.NewFuncTool("write_file", writeFileTool),
		capability.ManifestEntry{
			ToolName:         "write_file",
			Description:      "Write content to a file, creating it if needed",
			InvocationSchema: objectSchema("path", "content"),
			Confidence:       0.95,
		})
	gw.Register(gateway.NewFuncTool("list_dir", listDirTool),
		capability.ManifestEntry{
			ToolName:         "list_dir",
			Description:      "List the entries of a directory",
			InvocationSchema: objectSchema("path"),
			Confidence:       0.95,
		})
	gw.Register(gateway.NewFuncTool("http_get", httpGetTool),
		capability.ManifestEntry{
			ToolName:         "http_get",
			Description:      "Fetch a URL over HTTP GET and return the body",
			InvocationSchema: objectSchema("url"),
			Confidence:       0.8,
		})
}

func objectSchema(required ...string) map[string]any {
	fields := make([]any, len(required))
	for i, f := range required {
		fields[i] = f
	}
	return map[string]any{"type": "object", "required": fields}
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

func shellTool(ctx context.Context, args map[string]any) (string, error) {
	command, err := stringArg(args, "command")
	if err != nil {
		return "", err
	}
	out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		// keep the exit status in the observation so evaluators can read it
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("%s\nexit code %d", output, exitErr.ExitCode())
		}
		return "", fmt.Errorf("%s: %w", output, err)
	}
	if output == "" {
		output = "exit code 0"
	}
	return output, nil
}

func readFileTool(_ context.Context, args map[string]any) (string, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func writeFileTool(_ context.Context, args map[string]any) (string, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("written %d bytes to %s", len(content), path), nil
}

func listDirTool(_ context.Context, args map[string]any) (string, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}

func httpGetTool(ctx context.Context, args map[string]any) (string, error) {
	url, err := stringArg(args, "url")
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("GET %s returned %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}
