package loading

import (
	"testing"
	"time"

	"github.com/openworld-client/realm-runtime/internal/types"
)

func TestCheckDeadlinesMarksReadyByTimeoutNotError(t *testing.T) {
	t.Parallel()

	clock := time.Unix(0, 0)
	tr := NewTracker(nil)
	tr.now = func() time.Time { return clock }

	const hash types.Hash = "scene-a"
	tr.StartSession([]types.Hash{hash}, 0, time.Second)

	clock = clock.Add(2 * time.Second)
	tr.CheckDeadlines()

	tr.mu.Lock()
	p := tr.current.scenes[hash]
	ready := p.ready
	fetchedTimedOut := p.fetchTimedOut
	spawnErr := p.spawnErr
	tr.mu.Unlock()

	if !ready {
		t.Fatal("scene should be marked ready after its deadline elapses")
	}
	if !fetchedTimedOut {
		t.Fatal("an unfetched scene past deadline should be marked fetch-timed-out")
	}
	if spawnErr != nil {
		t.Fatal("a deadline timeout must never be recorded as a spawn error")
	}
}
