// Copyright 2026 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kadirpekel/sift/pkg/config"
)

// Common parameter names for document-converter MCP tools, tried when the
// tool schema declares no required parameter.
var mcpPathParams = []string{"file_path", "path", "input", "document", "source"}

// MCPExtractor delegates parsing to an external MCP document-converter tool
// for formats without a native extractor (pptx and friends). The subprocess
// or SSE connection is established on first use and reused.
type MCPExtractor struct {
	cfg config.MCPConfig

	mu         sync.Mutex
	client     *client.Client
	connected  bool
	toolParams map[string]string
}

// NewMCPExtractor returns an unconnected MCP extractor.
func NewMCPExtractor(cfg config.MCPConfig) *MCPExtractor {
	return &MCPExtractor{cfg: cfg, toolParams: make(map[string]string)}
}

func (e *MCPExtractor) Name() string { return "mcp" }

func (e *MCPExtractor) Priority() int { return 100 }

func (e *MCPExtractor) Supports(format Format, filename string) bool {
	if format == FormatPptx {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range e.cfg.Extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func (e *MCPExtractor) Extract(ctx context.Context, data []byte, filename string) ([]Item, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	c, err := e.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}

	// Converter tools take file paths; stage the bytes in a temp file.
	tmp, err := os.CreateTemp("", "sift-mcp-*"+filepath.Ext(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to stage temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to stage temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to stage temp file: %w", err)
	}

	var lastErr error
	for _, tool := range e.cfg.ToolNames {
		text, callErr := e.callTool(ctx, c, tool, tmp.Name())
		if callErr != nil {
			lastErr = callErr
			slog.Debug("MCP parser tool failed, trying next",
				"tool", tool,
				"filename", filename,
				"error", callErr,
			)
			continue
		}
		text = cleanText(text)
		if text == "" {
			lastErr = fmt.Errorf("tool %s returned no text", tool)
			continue
		}
		blocks := ParseBlocks(text)
		return []Item{{
			Text:     text,
			Blocks:   blocks,
			TypeHint: "generic",
			Title:    firstHeading(blocks, 1),
		}}, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no MCP parser tools configured")
	}
	return nil, lastErr
}

func (e *MCPExtractor) ensureConnected(ctx context.Context) (*client.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.connected {
		return e.client, nil
	}

	var (
		c   *client.Client
		err error
	)
	if e.cfg.Command != "" {
		c, err = client.NewStdioMCPClient(e.cfg.Command, nil, e.cfg.Args...)
	} else {
		c, err = client.NewSSEMCPClient(e.cfg.URL)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "sift",
		Version: "1.0",
	}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize MCP session: %w", err)
	}

	// Learn each tool's path parameter from its schema.
	if listResp, listErr := c.ListTools(ctx, mcp.ListToolsRequest{}); listErr == nil {
		for _, t := range listResp.Tools {
			e.toolParams[t.Name] = pathParamFor(t.InputSchema)
		}
	}

	e.client = c
	e.connected = true
	slog.Info("Connected to MCP document parser",
		"command", e.cfg.Command,
		"url", e.cfg.URL,
		"tools", e.cfg.ToolNames,
	)
	return c, nil
}

// pathParamFor picks the argument name to carry the staged file path: the
// first required property, then a known path-like name, then "file_path".
func pathParamFor(schema mcp.ToolInputSchema) string {
	if len(schema.Required) > 0 {
		return schema.Required[0]
	}
	for _, name := range mcpPathParams {
		if _, ok := schema.Properties[name]; ok {
			return name
		}
	}
	return mcpPathParams[0]
}

func (e *MCPExtractor) callTool(ctx context.Context, c *client.Client, tool, path string) (string, error) {
	param, ok := e.toolParams[tool]
	if !ok || param == "" {
		param = mcpPathParams[0]
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = map[string]any{param: path}

	resp, err := c.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("MCP call failed: %w", err)
	}

	var texts []string
	for _, content := range resp.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	joined := strings.Join(texts, "\n")
	if resp.IsError {
		if joined == "" {
			joined = "unknown error"
		}
		return "", fmt.Errorf("tool %s failed: %s", tool, joined)
	}
	return joined, nil
}

// Close terminates the MCP connection if one was established.
func (e *MCPExtractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	e.connected = false
	return err
}

var _ Extractor = (*MCPExtractor)(nil)
