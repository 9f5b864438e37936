package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/michaelbrown/crucible/internal/render"
	"github.com/michaelbrown/crucible/internal/sandbox"
)

func main() {
	s := server.NewMCPServer("crucible-snippet-runner", "0.1.0")

	s.AddTool(mcp.Tool{
		Name:        "snippet_run",
		Description: "Execute a script snippet in a capability-restricted sandbox with a wall-clock budget. Returns captured text output, an optional PNG image, and any exception.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"source": map[string]any{
					"type":        "string",
					"description": "Snippet source to execute",
				},
				"budget_ms": map[string]any{
					"type":        "number",
					"description": "Wall-clock budget in milliseconds (optional, clamped by policy)",
				},
			},
			Required: []string{"source"},
		},
	}, handleSnippetRun)

	if err := server.ServeStdio(s); err != nil {
		fmt.Printf("server error: %v\n", err)
	}
}

func handleSnippetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return errResult("error: invalid arguments"), nil
	}

	source, _ := args["source"].(string)
	if source == "" {
		return errResult("error: 'source' is required"), nil
	}

	var budget time.Duration
	if ms, ok := args["budget_ms"].(float64); ok && ms > 0 {
		budget = time.Duration(ms) * time.Millisecond
	}

	runner := sandbox.NewRunner(sandbox.DefaultPolicy(), nil)
	res, err := runner.Execute(ctx, sandbox.Request{Source: source, Budget: budget})
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}

	text := render.Truncate(render.Text(res.Text))
	if res.Failed() {
		text = render.Error(res.Err) + "\n" + text
	}
	text += fmt.Sprintf("\n(%s)", render.Duration(res.Duration))

	content := []mcp.Content{mcp.TextContent{Type: "text", Text: text}}
	if len(res.Image) > 0 {
		content = append(content, mcp.ImageContent{
			Type:     "image",
			Data:     base64.StdEncoding.EncodeToString(res.Image),
			MIMEType: "image/png",
		})
	}

	return &mcp.CallToolResult{
		Content: content,
		IsError: res.Failed(),
	}, nil
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}
