package pool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chesslab/analysisd/internal/models"
)

// fakeEngineScript writes a tiny shell "UCI engine" that answers uci/
// isready/go, optionally sleeping before bestmove, mirroring
// internal/engine's own test helper (no real Stockfish binary needed here).
func fakeEngineScript(t *testing.T, sleepSeconds string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-engine.sh")
	body := `#!/bin/sh
while IFS= read -r line; do
  case "$line" in
    uci) echo "uciok" ;;
    isready) echo "readyok" ;;
    go*) sleep ` + sleepSeconds + `; echo "info depth 10 multipv 1 score cp 10 pv e2e4"; echo "bestmove e2e4" ;;
    quit) exit 0 ;;
  esac
done
`
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write fake engine: %v", err)
	}
	return path
}

func waitForDriverCount(t *testing.T, p *Pool, want int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if n, _ := p.Snapshot(); n >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("driver count never reached %d within %s", want, timeout)
}

func TestPoolSpawnsMinEnginesOnNew(t *testing.T) {
	p, err := New(Config{BinaryPath: fakeEngineScript(t, "0"), MinEngines: 2, MaxEngines: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Shutdown()

	n, q := p.Snapshot()
	if n != 2 {
		t.Fatalf("driver count = %d, want 2", n)
	}
	if q != 0 {
		t.Fatalf("queue depth = %d, want 0", q)
	}
}

func TestPoolFIFOOrderWithSingleDriver(t *testing.T) {
	p, err := New(Config{BinaryPath: fakeEngineScript(t, "0.05"), MinEngines: 1, MaxEngines: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Shutdown()

	const n = 4
	replies := make([]<-chan Response, n)
	for i := 0; i < n; i++ {
		replies[i] = p.Submit(context.Background(), models.AnalyzeJob{
			ID: string(rune('a' + i)), FEN: "startpos",
			SearchMode: models.SearchModeTime, DepthOrTimeMs: 10, MultiPV: 1,
		})
	}

	// With exactly one driver, FIFO dispatch runs the jobs one at a time in
	// submission order; the replies are read in that order and each job must
	// complete with the fake engine's bestmove.
	for i, r := range replies {
		select {
		case resp := <-r:
			if resp.Err != nil {
				t.Fatalf("job %d: unexpected error %v", i, resp.Err)
			}
			if resp.Result.BestMove != "e2e4" {
				t.Fatalf("job %d: bestmove = %q", i, resp.Result.BestMove)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("job %d: timed out waiting for reply", i)
		}
	}
}

func TestPoolScalesUpUnderQueuePressure(t *testing.T) {
	p, err := New(Config{
		BinaryPath: fakeEngineScript(t, "0.2"), MinEngines: 1, MaxEngines: 3,
		ScaleUpThreshold: 1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Shutdown()

	for i := 0; i < 3; i++ {
		p.Submit(context.Background(), models.AnalyzeJob{
			ID: string(rune('a' + i)), FEN: "startpos",
			SearchMode: models.SearchModeTime, DepthOrTimeMs: 10, MultiPV: 1,
		})
	}

	waitForDriverCount(t, p, 3, 2*time.Second)
}

// TestPoolMaxEnginesCapWithConcurrentSubmissions is the spec §8 scenario:
// maxEngines=2, 5 concurrent submissions, FIFO ordering, at most 2 drivers
// ever Searching. Capping len(p.drivers) at MaxEngines (enforced in
// maybeScaleUpLocked) is what keeps concurrently-searching drivers bounded,
// since only an existing driver can ever be handed a job.
func TestPoolMaxEnginesCapWithConcurrentSubmissions(t *testing.T) {
	p, err := New(Config{
		BinaryPath: fakeEngineScript(t, "0.15"), MinEngines: 1, MaxEngines: 2,
		ScaleUpThreshold: 1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Shutdown()

	const n = 5
	replies := make([]<-chan Response, n)
	for i := 0; i < n; i++ {
		replies[i] = p.Submit(context.Background(), models.AnalyzeJob{
			ID: string(rune('a' + i)), FEN: "startpos",
			SearchMode: models.SearchModeTime, DepthOrTimeMs: 10, MultiPV: 1,
		})
	}

	maxSeen := 0
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				if n, _ := p.Snapshot(); n > maxSeen {
					maxSeen = n
				}
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()

	for i, r := range replies {
		select {
		case resp := <-r:
			if resp.Err != nil {
				t.Fatalf("job %d: unexpected error %v", i, resp.Err)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("job %d: timed out waiting for reply", i)
		}
	}
	close(stop)

	if maxSeen > 2 {
		t.Fatalf("driver count exceeded MaxEngines: saw %d", maxSeen)
	}
}

func TestPoolMinEnginesInvariantAfterSweep(t *testing.T) {
	p, err := New(Config{
		BinaryPath: fakeEngineScript(t, "0"), MinEngines: 1, MaxEngines: 3,
		ScaleDownIdleTime: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Shutdown()

	if _, err := p.spawnDriver(); err != nil {
		t.Fatalf("spawnDriver: %v", err)
	}
	if _, err := p.spawnDriver(); err != nil {
		t.Fatalf("spawnDriver: %v", err)
	}
	if n, _ := p.Snapshot(); n != 3 {
		t.Fatalf("driver count before sweep = %d, want 3", n)
	}

	time.Sleep(5 * time.Millisecond)
	p.sweepOnce()

	n, _ := p.Snapshot()
	if n < p.cfg.MinEngines {
		t.Fatalf("driver count after sweep = %d, below MinEngines=%d", n, p.cfg.MinEngines)
	}
	if n != 1 {
		t.Fatalf("driver count after sweep = %d, want MinEngines=1 (all were idle past ScaleDownIdleTime)", n)
	}
}
