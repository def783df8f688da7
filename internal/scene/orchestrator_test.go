package scene_test

import (
	"context"
	"testing"
	"time"

	"github.com/openworld-client/realm-runtime/internal/scene"
	"github.com/openworld-client/realm-runtime/internal/scene/mock"
	"github.com/openworld-client/realm-runtime/internal/types"
)

func TestRunFrameAppliesDirtyCRDTAndSendsInbound(t *testing.T) {
	t.Parallel()

	sb := mock.NewSandbox()
	orc := scene.NewOrchestrator(nil)
	s := orc.Spawn(types.SceneId(1), "H", sb)
	s.IsCurrentParcel = true

	sb.PushOutbound(scene.OutboundBatch{Logs: []string{"hello"}})

	orc.RunFrame(context.Background(), func(types.SceneId) scene.HostComponents {
		return scene.HostComponents{}
	})

	if len(sb.SendInboundCalls) != 1 {
		t.Fatalf("SendInbound called %d times, want 1", len(sb.SendInboundCalls))
	}
	if s.TickNumber() != 1 {
		t.Fatalf("TickNumber = %d, want 1", s.TickNumber())
	}
}

func TestRPCCallsDispatchedNextFrame(t *testing.T) {
	t.Parallel()

	sb := mock.NewSandbox()
	disp := &mock.RPCDispatcher{}
	orc := scene.NewOrchestrator(disp)
	s := orc.Spawn(types.SceneId(1), "H", sb)
	s.IsCurrentParcel = true

	sb.PushOutbound(scene.OutboundBatch{RPCCalls: []scene.RPCCall{{Method: "teleport"}}})

	orc.RunFrame(context.Background(), func(types.SceneId) scene.HostComponents { return scene.HostComponents{} })
	if len(disp.Calls) != 0 {
		t.Fatalf("Dispatch called during the producing frame, want 0 calls until next frame")
	}

	orc.RunFrame(context.Background(), func(types.SceneId) scene.HostComponents { return scene.HostComponents{} })
	if len(disp.Calls) != 1 {
		t.Fatalf("Dispatch called %d times on the following frame, want 1", len(disp.Calls))
	}
	if disp.Calls[0].Calls[0].Method != "teleport" {
		t.Fatalf("dispatched call = %+v, want method teleport", disp.Calls[0])
	}
}

func TestKillSceneGracefulPath(t *testing.T) {
	t.Parallel()

	sb := mock.NewSandbox()
	orc := scene.NewOrchestrator(nil)
	s := orc.Spawn(types.SceneId(1), "H", sb)
	s.IsCurrentParcel = true

	orc.KillScene(types.SceneId(1))
	if s.State() != scene.ToKill {
		t.Fatalf("State = %v, want ToKill", s.State())
	}

	orc.RunFrame(context.Background(), func(types.SceneId) scene.HostComponents { return scene.HostComponents{} })
	if sb.KillCalls != 1 {
		t.Fatalf("Kill called %d times, want 1", sb.KillCalls)
	}
	if s.State() != scene.KillSignal {
		t.Fatalf("State = %v, want KillSignal", s.State())
	}

	sb.CloseDone()
	orc.RunFrame(context.Background(), func(types.SceneId) scene.HostComponents { return scene.HostComponents{} })

	if _, ok := orc.Scene(types.SceneId(1)); ok {
		t.Fatal("scene should have been reaped after sandbox exit")
	}
}

func TestKillIsIdempotent(t *testing.T) {
	t.Parallel()

	sb := mock.NewSandbox()
	orc := scene.NewOrchestrator(nil)
	orc.Spawn(types.SceneId(1), "H", sb)

	orc.KillScene(types.SceneId(1))
	orc.KillScene(types.SceneId(1))
	orc.KillScene(types.SceneId(1))

	s, _ := orc.Scene(types.SceneId(1))
	if s.State() != scene.ToKill {
		t.Fatalf("State = %v, want ToKill after repeated KillScene calls", s.State())
	}
}

func TestRecoverPanicLogsAndReturns(t *testing.T) {
	t.Parallel()

	ran := false
	scene.RecoverPanic(types.SceneId(1), func() {
		ran = true
		panic("boom")
	})
	if !ran {
		t.Fatal("RecoverPanic should still execute fn before any panic")
	}
}

// TestWatchdogForceTerminatesAfterDeadline exercises spec §8 property 7:
// a scene whose sandbox never reads its inbound queue (never closes Done)
// is force-terminated once KillWatchdogDeadline elapses in KillSignal.
func TestWatchdogForceTerminatesAfterDeadline(t *testing.T) {
	orig := scene.KillWatchdogDeadline
	scene.KillWatchdogDeadline = 5 * time.Millisecond
	defer func() { scene.KillWatchdogDeadline = orig }()

	sb := mock.NewSandbox()
	orc := scene.NewOrchestrator(nil)
	orc.Spawn(types.SceneId(1), "H", sb)

	orc.KillScene(types.SceneId(1))
	orc.RunFrame(context.Background(), func(types.SceneId) scene.HostComponents { return scene.HostComponents{} })
	if sb.KillCalls != 1 {
		t.Fatalf("Kill called %d times, want 1", sb.KillCalls)
	}

	time.Sleep(10 * time.Millisecond)
	orc.RunFrame(context.Background(), func(types.SceneId) scene.HostComponents { return scene.HostComponents{} })

	if sb.TerminateCalls != 1 {
		t.Fatalf("Terminate called %d times, want 1 after the watchdog deadline elapsed", sb.TerminateCalls)
	}
	if _, ok := orc.Scene(types.SceneId(1)); ok {
		t.Fatal("scene should have been reaped (Dead) after forced termination")
	}
}
