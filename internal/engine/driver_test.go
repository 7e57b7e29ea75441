package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chesslab/analysisd/internal/models"
)

// fakeEngineScript writes a tiny shell "UCI engine" that answers uci/
// isready/go the way Stockfish would, for driving the driver end-to-end
// without needing a real chess engine binary in the test environment.
func fakeEngineScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-engine.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write fake engine: %v", err)
	}
	return path
}

const fakeEngineLoop = `
while IFS= read -r line; do
  case "$line" in
    uci) echo "id name fake"; echo "uciok" ;;
    isready) echo "readyok" ;;
    go*) echo "info depth 10 seldepth 12 multipv 1 score cp 25 pv e2e4 e7e5"; echo "bestmove e2e4" ;;
    quit) exit 0 ;;
  esac
done
`

func TestDriverAnalyzeHappyPath(t *testing.T) {
	path := fakeEngineScript(t, fakeEngineLoop)
	d, err := New("d1", path, models.EngineOptions{HashMB: 16})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Shutdown()

	if d.State() != StateIdle {
		t.Fatalf("expected Idle after spawn, got %s", d.State())
	}

	job := models.AnalyzeJob{
		ID:            "job1",
		FEN:           "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		SearchMode:    models.SearchModeDepth,
		DepthOrTimeMs: 10,
		MultiPV:       1,
		TargetElo:     1500,
		LimitStrength: true,
		Kind:          models.KindSuggestion,
	}

	result, err := d.Analyze(context.Background(), job)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.BestMove != "e2e4" {
		t.Fatalf("bestmove = %q", result.BestMove)
	}
	if len(result.Lines) != 1 || result.Lines[0].MultiPVRank != 1 {
		t.Fatalf("lines = %+v", result.Lines)
	}
	if d.State() != StateIdle {
		t.Fatalf("expected Idle after analyze, got %s", d.State())
	}
}

// fakeEngineLoggingScript is like fakeEngineScript, but tees every line the
// driver writes to stdin into a log file so tests can assert on the option
// values actually sent, not just the driver's reported state.
func fakeEngineLoggingScript(t *testing.T) (enginePath, logPath string) {
	t.Helper()
	dir := t.TempDir()
	logPath = filepath.Join(dir, "received.log")
	body := `#!/bin/sh
while IFS= read -r line; do
  echo "$line" >> "` + logPath + `"
  case "$line" in
    uci) echo "uciok" ;;
    isready) echo "readyok" ;;
    go*) echo "info depth 10 seldepth 12 multipv 1 score cp 25 pv e2e4 e7e5"; echo "bestmove e2e4" ;;
    quit) exit 0 ;;
  esac
done
`
	enginePath = filepath.Join(dir, "fake-engine.sh")
	if err := os.WriteFile(enginePath, []byte(body), 0o755); err != nil {
		t.Fatalf("write fake engine: %v", err)
	}
	return enginePath, logPath
}

func TestConfigureForJobSendsHashOnlyOnChange(t *testing.T) {
	path, logPath := fakeEngineLoggingScript(t)
	d, err := New("d4", path, models.EngineOptions{HashMB: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Shutdown()

	job := models.AnalyzeJob{
		ID: "job4", FEN: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		SearchMode: models.SearchModeTime, DepthOrTimeMs: 10, MultiPV: 1,
		HashMB: 64, Skill: 15, ContemptCp: 10,
	}
	if _, err := d.Analyze(context.Background(), job); err != nil {
		t.Fatalf("Analyze (unchanged hash): %v", err)
	}

	job2 := job
	job2.ID = "job5"
	job2.HashMB = 256
	if _, err := d.Analyze(context.Background(), job2); err != nil {
		t.Fatalf("Analyze (changed hash): %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	log := string(data)

	if n := strings.Count(log, "setoption name Hash value 64"); n != 1 {
		t.Fatalf("expected exactly one Hash=64 (spawn only, unchanged on job1), got %d in %q", n, log)
	}
	if n := strings.Count(log, "setoption name Hash value 256"); n != 1 {
		t.Fatalf("expected exactly one Hash=256 (job2's change), got %d in %q", n, log)
	}
	if !strings.Contains(log, "setoption name Skill value 15") {
		t.Fatalf("expected Skill to be sent, got %q", log)
	}
	if !strings.Contains(log, "setoption name Contempt value 10") {
		t.Fatalf("expected Contempt to be sent, got %q", log)
	}
}

const fakeEngineHang = `
while IFS= read -r line; do
  case "$line" in
    uci) echo "uciok" ;;
    isready) echo "readyok" ;;
    go*) ;;
    stop) echo "bestmove e2e4" ;;
    quit) exit 0 ;;
  esac
done
`

func TestDriverCancellationReturnsToIdle(t *testing.T) {
	path := fakeEngineScript(t, fakeEngineHang)
	d, err := New("d2", path, models.EngineOptions{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Shutdown()

	job := models.AnalyzeJob{
		ID:            "job2",
		FEN:           "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		SearchMode:    models.SearchModeTime,
		DepthOrTimeMs: 100,
		MultiPV:       1,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err = d.Analyze(ctx, job)
	if err != ErrCanceled {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if d.State() != StateIdle {
		t.Fatalf("expected Idle after cancellation, got %s", d.State())
	}
}

const fakeEngineCrash = `
while IFS= read -r line; do
  case "$line" in
    uci) echo "uciok" ;;
    isready) echo "readyok" ;;
    go*) exit 1 ;;
  esac
done
`

func TestDriverCrashTransitionsDead(t *testing.T) {
	path := fakeEngineScript(t, fakeEngineCrash)
	d, err := New("d3", path, models.EngineOptions{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Shutdown()

	job := models.AnalyzeJob{
		ID:            "job3",
		FEN:           "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		SearchMode:    models.SearchModeTime,
		DepthOrTimeMs: 50,
		MultiPV:       1,
	}

	_, err = d.Analyze(context.Background(), job)
	if err != ErrEngineCrash {
		t.Fatalf("expected ErrEngineCrash, got %v", err)
	}
	if d.State() != StateDead {
		t.Fatalf("expected Dead, got %s", d.State())
	}
}
