package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/openworld-client/realm-runtime/internal/scene"
	"github.com/openworld-client/realm-runtime/internal/types"
)

// registerSceneRPCs wires the four host-bound RPC calls spec §4.C names
// (change realm, move player, teleport, take snapshot) into disp, each
// grounded on a piece of the App this package already owns.
func (a *App) registerSceneRPCs(disp *scene.ToolDispatcher) {
	disp.Register(scene.MethodChangeRealm, a.handleChangeRealm)
	disp.Register(scene.MethodMovePlayer, a.handleMovePlayer)
	disp.Register(scene.MethodTeleport, a.handleTeleport)
	disp.Register(scene.MethodTakeSnapshot, a.handleTakeSnapshot)
}

// handleChangeRealm asks for a realm switch to the URL a sandbox requested.
// The actual switch happens asynchronously on the main tick loop — see
// Run's select on realmSwitchRequests — since it tears down the
// orchestrator's whole scene set and cannot safely run from inside a tick.
func (a *App) handleChangeRealm(ctx context.Context, sceneID types.SceneId, args map[string]any) (*mcpsdk.CallToolResult, error) {
	realmURL, _ := args["realm_url"].(string)
	if realmURL == "" {
		return errorResult("change_realm: missing realm_url"), nil
	}

	select {
	case a.realmSwitchRequests <- realmURL:
	default:
		slog.Warn("scene rpc: realm switch already pending, dropping request", "scene_id", sceneID, "realm_url", realmURL)
	}
	return okResult(fmt.Sprintf("realm switch to %s queued", realmURL)), nil
}

// handleMovePlayer updates the player's tracked position, which drives the
// realm coordinator's city-mode ring refresh and the avatar projector's
// scene-visibility pass for the local player's own avatar entity.
func (a *App) handleMovePlayer(ctx context.Context, sceneID types.SceneId, args map[string]any) (*mcpsdk.CallToolResult, error) {
	coord, ok := coordFromArgs(args)
	if !ok {
		return errorResult("move_player: missing or invalid x/y"), nil
	}
	if err := a.currentCoordinator().SetPosition(ctx, coord); err != nil {
		slog.Warn("scene rpc: move_player position refresh failed", "scene_id", sceneID, "err", err)
		return errorResult(err.Error()), nil
	}
	return okResult("position updated"), nil
}

// handleTeleport is move_player plus a fresh loading session: crossing
// into a newly chosen area (rather than walking into it) always produces a
// new loading-session id, per spec §4.G's "teleport into a realm" framing.
func (a *App) handleTeleport(ctx context.Context, sceneID types.SceneId, args map[string]any) (*mcpsdk.CallToolResult, error) {
	coord, ok := coordFromArgs(args)
	if !ok {
		return errorResult("teleport: missing or invalid x/y"), nil
	}

	coordinator := a.currentCoordinator()
	loadable, _, _, _ := coordinator.Snapshot()
	a.tracker.StartSession(loadable, 0, defaultSceneLoadDeadline)

	if err := coordinator.SetPosition(ctx, coord); err != nil {
		slog.Warn("scene rpc: teleport position refresh failed", "scene_id", sceneID, "err", err)
		return errorResult(err.Error()), nil
	}
	return okResult(fmt.Sprintf("teleported to %s", coord)), nil
}

// handleTakeSnapshot reports the coordinator's current derived sets and the
// orchestrator's live scene count, for sandbox-side diagnostics overlays.
func (a *App) handleTakeSnapshot(ctx context.Context, sceneID types.SceneId, args map[string]any) (*mcpsdk.CallToolResult, error) {
	loadable, keepAlive, empty, version := a.currentCoordinator().Snapshot()
	snap := struct {
		Version      uint64 `json:"version"`
		Loadable     int    `json:"loadable"`
		KeepAlive    int    `json:"keep_alive"`
		EmptyParcels int    `json:"empty_parcels"`
		LiveScenes   int    `json:"live_scenes"`
	}{
		Version:      version,
		Loadable:     len(loadable),
		KeepAlive:    len(keepAlive),
		EmptyParcels: len(empty),
		LiveScenes:   a.orchestrator.LiveSceneCount(),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return okResult(string(data)), nil
}

func coordFromArgs(args map[string]any) (types.Coord, bool) {
	x, xok := numberArg(args["x"])
	y, yok := numberArg(args["y"])
	if !xok || !yok {
		return types.Coord{}, false
	}
	return types.Coord{X: int32(x), Y: int32(y)}, true
}

// numberArg recovers a float64 from a decoded JSON argument, which may have
// arrived as float64 (the common case) or json.Number depending on how the
// sandbox encoded its RPC call.
func numberArg(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func okResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}}}
}

func errorResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{IsError: true, Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}}}
}
