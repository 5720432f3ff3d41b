package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/workbridge/workbridge/internal/dispatch"
)

const (
	mcpServerName    = "workbridge"
	mcpServerVersion = "v0.1.0"

	workspaceHeader     = "X-Workspace-Key"
	workspaceQueryParam = "workspace"
)

type mcpPingInput struct {
	TimeoutMS *int `json:"timeout_ms,omitempty"`
}

type mcpPingOutput struct {
	Message string `json:"message"`
}

type mcpExecuteCommandInput struct {
	Command   string         `json:"command"`
	Args      map[string]any `json:"args,omitempty"`
	TimeoutMS *int           `json:"timeout_ms,omitempty"`
}

type mcpNotePathInput struct {
	Path      string `json:"path"`
	TimeoutMS *int   `json:"timeout_ms,omitempty"`
}

type mcpPutNoteInput struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	TimeoutMS *int   `json:"timeout_ms,omitempty"`
}

type mcpSearchNotesInput struct {
	Query     string `json:"query"`
	TimeoutMS *int   `json:"timeout_ms,omitempty"`
}

type mcpListCommandsOutput struct {
	Commands []dispatch.CommandSpec `json:"commands"`
}

var mcpTimeoutProperty = map[string]any{
	"type":        "integer",
	"description": "Optional end-to-end dispatch timeout in milliseconds. Zero uses the server default.",
	"minimum":     1,
}

// NewMCPHandler is the control-plane ingress for MCP clients. The handler is
// stateless; the workspace key is read per request from the X-Workspace-Key
// header (or workspace query parameter) and the tools dispatch through the
// router's direct-tenant path.
func NewMCPHandler(dispatcher *dispatch.Dispatcher, defaultTimeout time.Duration, maxTimeout time.Duration) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return newMCPServer(dispatcher, workspaceFromRequest(r), defaultTimeout, maxTimeout)
	}, &mcp.StreamableHTTPOptions{
		Stateless:    true,
		JSONResponse: true,
	})
}

func workspaceFromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(workspaceHeader)); key != "" {
		return key
	}
	return strings.TrimSpace(r.URL.Query().Get(workspaceQueryParam))
}

func newMCPServer(dispatcher *dispatch.Dispatcher, workspace string, defaultTimeout time.Duration, maxTimeout time.Duration) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    mcpServerName,
		Version: mcpServerVersion,
	}, nil)

	dispatchTool := func(ctx context.Context, command string, args any, timeoutMS *int) (map[string]any, error) {
		if workspace == "" {
			return nil, invalidParamsError("workspace key is required; set the X-Workspace-Key header")
		}
		timeout, ok := toolTimeout(timeoutMS, defaultTimeout, maxTimeout)
		if !ok {
			return nil, invalidParamsError("timeout_ms is out of range")
		}
		argsJSON, err := json.Marshal(args)
		if err != nil {
			return nil, errors.New("failed to encode command arguments")
		}
		payload, err := dispatcher.DispatchToTenant(ctx, workspace, command, argsJSON, timeout)
		if err != nil {
			return nil, mapMCPToolError(err)
		}
		decoded := map[string]any{}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &decoded); err != nil {
				return nil, errors.New("worker returned a non-object payload")
			}
		}
		return decoded, nil
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ping",
		Title:       "Ping Workspace Worker",
		Description: "Round-trips a ping through the workspace's worker plugin. Use this for connectivity checks and latency baselines; a routing error here means the plugin is not connected.",
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint:   true,
			IdempotentHint: true,
			OpenWorldHint:  boolPtr(false),
		},
		InputSchema: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"timeout_ms": mcpTimeoutProperty,
			},
		},
		OutputSchema: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []string{"message"},
			"properties": map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "Worker reply, normally \"pong\".",
				},
			},
		},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input mcpPingInput) (*mcp.CallToolResult, mcpPingOutput, error) {
		payload, err := dispatchTool(ctx, "ping", nil, input.TimeoutMS)
		if err != nil {
			return nil, mcpPingOutput{}, err
		}
		message, _ := payload["message"].(string)
		if message == "" {
			message = "pong"
		}
		return nil, mcpPingOutput{Message: message}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "execute-command",
		Title:       "Execute Workspace Command",
		Description: "Dispatches a named command with a JSON argument object to the workspace's worker plugin and returns the worker's payload. The command must exist in the command catalog; an application error from the worker is returned as tool output context, not a protocol error.",
		Annotations: &mcp.ToolAnnotations{
			DestructiveHint: boolPtr(true),
			OpenWorldHint:   boolPtr(true),
		},
		InputSchema: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []string{"command"},
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "Catalog name of the command to execute.",
				},
				"args": map[string]any{
					"type":        "object",
					"description": "Argument object forwarded to the worker unchanged.",
				},
				"timeout_ms": mcpTimeoutProperty,
			},
		},
		OutputSchema: map[string]any{
			"type":        "object",
			"description": "Worker result payload, forwarded unchanged.",
		},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input mcpExecuteCommandInput) (*mcp.CallToolResult, map[string]any, error) {
		if strings.TrimSpace(input.Command) == "" {
			return nil, nil, invalidParamsError("command is required")
		}
		payload, err := dispatchTool(ctx, input.Command, input.Args, input.TimeoutMS)
		if err != nil {
			return nil, nil, err
		}
		return nil, payload, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get-note",
		Title:       "Get Note",
		Description: "Reads one document from the workspace via its worker plugin.",
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint:   true,
			IdempotentHint: true,
		},
		InputSchema: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []string{"path"},
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Workspace-relative document path.",
				},
				"timeout_ms": mcpTimeoutProperty,
			},
		},
		OutputSchema: map[string]any{
			"type":        "object",
			"description": "Document payload as reported by the worker.",
		},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input mcpNotePathInput) (*mcp.CallToolResult, map[string]any, error) {
		if strings.TrimSpace(input.Path) == "" {
			return nil, nil, invalidParamsError("path is required")
		}
		payload, err := dispatchTool(ctx, "get-note", map[string]any{"path": input.Path}, input.TimeoutMS)
		if err != nil {
			return nil, nil, err
		}
		return nil, payload, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "put-note",
		Title:       "Put Note",
		Description: "Creates or replaces one document in the workspace via its worker plugin.",
		Annotations: &mcp.ToolAnnotations{
			DestructiveHint: boolPtr(true),
		},
		InputSchema: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []string{"path", "content"},
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Workspace-relative document path.",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "Full replacement content.",
				},
				"timeout_ms": mcpTimeoutProperty,
			},
		},
		OutputSchema: map[string]any{
			"type":        "object",
			"description": "Write confirmation as reported by the worker.",
		},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input mcpPutNoteInput) (*mcp.CallToolResult, map[string]any, error) {
		if strings.TrimSpace(input.Path) == "" {
			return nil, nil, invalidParamsError("path is required")
		}
		payload, err := dispatchTool(ctx, "put-note", map[string]any{"path": input.Path, "content": input.Content}, input.TimeoutMS)
		if err != nil {
			return nil, nil, err
		}
		return nil, payload, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search-notes",
		Title:       "Search Notes",
		Description: "Searches workspace documents via the worker plugin and returns its match payload.",
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint: true,
		},
		InputSchema: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []string{"query"},
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query forwarded to the worker.",
				},
				"timeout_ms": mcpTimeoutProperty,
			},
		},
		OutputSchema: map[string]any{
			"type":        "object",
			"description": "Match payload as reported by the worker.",
		},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input mcpSearchNotesInput) (*mcp.CallToolResult, map[string]any, error) {
		if strings.TrimSpace(input.Query) == "" {
			return nil, nil, invalidParamsError("query is required")
		}
		payload, err := dispatchTool(ctx, "search-notes", map[string]any{"query": input.Query}, input.TimeoutMS)
		if err != nil {
			return nil, nil, err
		}
		return nil, payload, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list-commands",
		Title:       "List Commands",
		Description: "Lists the command catalog the router accepts. Answered locally; no worker round trip.",
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint:   true,
			IdempotentHint: true,
			OpenWorldHint:  boolPtr(false),
		},
		InputSchema: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties":           map[string]any{},
		},
		OutputSchema: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []string{"commands"},
			"properties": map[string]any{
				"commands": map[string]any{
					"type":        "array",
					"description": "Registered command specs.",
					"items":       map[string]any{"type": "object"},
				},
			},
		},
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, mcpListCommandsOutput, error) {
		return nil, mcpListCommandsOutput{Commands: dispatcher.Catalog().List()}, nil
	})

	return server
}

func toolTimeout(timeoutMS *int, defaultTimeout time.Duration, maxTimeout time.Duration) (time.Duration, bool) {
	if timeoutMS == nil || *timeoutMS == 0 {
		return defaultTimeout, true
	}
	if *timeoutMS < 0 || time.Duration(*timeoutMS)*time.Millisecond > maxTimeout {
		return 0, false
	}
	return time.Duration(*timeoutMS) * time.Millisecond, true
}

func invalidParamsError(message string) error {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		trimmed = "invalid params"
	}
	return &jsonrpc.Error{
		Code:    jsonrpc.CodeInvalidParams,
		Message: trimmed,
	}
}

// mapMCPToolError turns dispatch failures into tool errors with actionable
// messages. Application errors from the worker pass through verbatim.
func mapMCPToolError(err error) error {
	var commandErr *dispatch.CommandError
	switch {
	case errors.As(err, &commandErr):
		return errors.New(commandErr.Error())
	case dispatch.IsValidation(err):
		return invalidParamsError(err.Error())
	case dispatch.IsRouting(err):
		return errors.New(routingMessage(err))
	case errors.Is(err, dispatch.ErrDispatchTimeout), errors.Is(err, context.DeadlineExceeded):
		return errors.New("worker did not respond before the deadline")
	case errors.Is(err, dispatch.ErrWorkerGone):
		return errors.New("worker connection closed before the command was sent")
	default:
		return errors.New("failed to execute command")
	}
}

func boolPtr(value bool) *bool {
	return &value
}
