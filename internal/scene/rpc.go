package scene

import (
	"context"
	"encoding/json"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/openworld-client/realm-runtime/internal/types"
)

// Well-known RPC methods a sandbox may call back into the host (spec §4.C,
// "change realm", "move player", "teleport", "take snapshot").
const (
	MethodChangeRealm  = "change_realm"
	MethodMovePlayer   = "move_player"
	MethodTeleport     = "teleport"
	MethodTakeSnapshot = "take_snapshot"
)

// ToolHandler executes one named RPC call for sceneID. It returns the same
// result envelope a real MCP tool call would, so a handler can report a
// soft failure (IsError) without this being a dispatch-level error.
type ToolHandler func(ctx context.Context, sceneID types.SceneId, args map[string]any) (*mcpsdk.CallToolResult, error)

// ToolDispatcher implements [RPCDispatcher] by decoding each RPCCall's
// Params as an [mcpsdk.CallToolParams] envelope and routing it to a
// registered handler by name — the same request shape the host uses to
// call a real MCP tool server, reused here for the host-bound calls a
// scene sandbox makes, rather than inventing a parallel wire format.
type ToolDispatcher struct {
	handlers map[string]ToolHandler
}

// NewToolDispatcher returns an empty dispatcher; register handlers with
// Register before wiring it into an Orchestrator.
func NewToolDispatcher() *ToolDispatcher {
	return &ToolDispatcher{handlers: make(map[string]ToolHandler)}
}

// Register installs the handler for a named RPC method, overwriting any
// previous registration.
func (d *ToolDispatcher) Register(method string, h ToolHandler) {
	d.handlers[method] = h
}

// Dispatch implements RPCDispatcher.
func (d *ToolDispatcher) Dispatch(ctx context.Context, sceneID types.SceneId, calls []RPCCall) {
	for _, call := range calls {
		var params mcpsdk.CallToolParams
		if err := json.Unmarshal(call.Params, &params); err != nil {
			slog.Warn("scene rpc: malformed call envelope", "scene_id", sceneID, "method", call.Method, "err", err)
			continue
		}
		if params.Name == "" {
			params.Name = call.Method
		}

		h, ok := d.handlers[params.Name]
		if !ok {
			slog.Warn("scene rpc: no handler registered", "scene_id", sceneID, "method", params.Name)
			continue
		}

		result, err := h(ctx, sceneID, params.Arguments)
		if err != nil {
			slog.Warn("scene rpc: handler failed", "scene_id", sceneID, "method", params.Name, "err", err)
			continue
		}
		if result != nil && result.IsError {
			slog.Warn("scene rpc: handler reported a tool-level error", "scene_id", sceneID, "method", params.Name)
		}
	}
}
