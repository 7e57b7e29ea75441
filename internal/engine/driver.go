// Package engine implements the UCI engine driver (spec §4.2): it owns one
// subprocess, sequences configuration and search commands through it, and
// enforces strict state hygiene between calls. Grounded on the teacher's
// pkg/uci/engine.go (subprocess plumbing) and internal/services/stockfish.go
// (per-call option sequencing), generalized to the driver state machine and
// failure semantics spec.md §4.2/§5 require.
package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chesslab/analysisd/internal/models"
	"github.com/chesslab/analysisd/internal/uciproto"
)

// State is the driver's finite state (spec §3 EngineDriverState).
type State int

const (
	StateSpawning State = iota
	StateIdle
	StateConfiguring
	StateSearching
	StateDraining
	StateDead
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateIdle:
		return "idle"
	case StateConfiguring:
		return "configuring"
	case StateSearching:
		return "searching"
	case StateDraining:
		return "draining"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Sentinel errors surfaced to the pool/caller; these map directly onto the
// wire error kinds in spec §7.
var (
	ErrEngineCrash   = fmt.Errorf("engine_crash")
	ErrEngineTimeout = fmt.Errorf("engine_timeout")
	ErrCanceled      = fmt.Errorf("canceled") // internal only, never sent to clients
)

const readyTimeout = 5 * time.Second
const stopGrace = 500 * time.Millisecond

// Driver owns one UCI subprocess exclusively: its stdin/stdout pair and its
// single background line-reader goroutine are never touched by any other
// goroutine (spec §5). All stdout lines, from handshake through every
// subsequent Analyze call, flow through the one persistent lines channel
// so no two goroutines ever call Scan() concurrently.
type Driver struct {
	id         string
	binaryPath string

	mu    sync.Mutex
	state State

	cmd   *exec.Cmd
	stdin io.WriteCloser

	lines chan string // closed when the reader goroutine observes EOF/error

	lastHash int // last Hash option value sent; resized only on change

	lastIdleAt time.Time
}

// New spawns the subprocess and blocks until it reports readyok, or returns
// ErrEngineTimeout if it does not within readyTimeout (spec §5).
func New(id, binaryPath string, opts models.EngineOptions) (*Driver, error) {
	d := &Driver{id: id, binaryPath: binaryPath, state: StateSpawning}

	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("driver %s: stdin pipe: %w", id, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("driver %s: stdout pipe: %w", id, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("driver %s: start: %w", id, err)
	}

	d.cmd = cmd
	d.stdin = stdin
	d.lines = make(chan string, 256)
	go d.readLines(stdout)

	d.write(uciproto.WriteUCI())
	if !d.waitForLine("uciok", readyTimeout) {
		d.killLocked()
		return nil, ErrEngineTimeout
	}

	if err := d.handshake(opts); err != nil {
		d.killLocked()
		return nil, err
	}

	d.state = StateIdle
	d.lastIdleAt = time.Now()
	logrus.WithField("driverID", id).Info("engine driver ready")
	return d, nil
}

// readLines is the driver's sole reader of the subprocess stdout pipe, for
// the lifetime of the process.
func (d *Driver) readLines(stdout io.ReadCloser) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		d.lines <- scanner.Text()
	}
	close(d.lines)
}

func (d *Driver) handshake(opts models.EngineOptions) error {
	if opts.Threads > 0 {
		d.write(uciproto.WriteSetOption("Threads", fmt.Sprint(opts.Threads)))
	}
	if opts.HashMB > 0 {
		d.write(uciproto.WriteSetOption("Hash", fmt.Sprint(opts.HashMB)))
		d.lastHash = opts.HashMB
	}
	d.write(uciproto.WriteIsReady())
	if !d.waitForLine("readyok", readyTimeout) {
		return ErrEngineTimeout
	}
	return nil
}

// ID returns the driver's identity, used for logging and pool bookkeeping.
func (d *Driver) ID() string { return d.id }

// State returns the current state under lock.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// LastIdleAt returns when this driver last transitioned to Idle, used by
// the pool's scale-down sweep (spec §4.3).
func (d *Driver) LastIdleAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastIdleAt
}

// Analyze runs the full sequencing contract of spec §4.2 steps (a)-(g) and
// returns the parsed result, or an error if the driver crashed or timed
// out. Only one Analyze may be in flight per driver at a time; callers
// (the pool) enforce this by only dispatching to Idle drivers.
func (d *Driver) Analyze(ctx context.Context, job models.AnalyzeJob) (models.AnalyzeResult, error) {
	d.mu.Lock()
	if d.state != StateIdle {
		d.mu.Unlock()
		return models.AnalyzeResult{}, fmt.Errorf("driver %s: analyze called while state=%s", d.id, d.state)
	}
	d.state = StateConfiguring
	d.mu.Unlock()

	// (a) ucinewgame — mandatory, prevents transposition-table
	// contamination from the previous search (spec §4.2).
	d.write(uciproto.WriteNewGame())

	// (b) isready / readyok
	d.write(uciproto.WriteIsReady())
	if !d.waitForLine("readyok", readyTimeout) {
		d.transitionDead()
		return models.AnalyzeResult{}, ErrEngineTimeout
	}

	// (c) job-specific options in the mandated fixed order.
	d.configureForJob(job)

	d.mu.Lock()
	d.state = StateSearching
	d.mu.Unlock()

	// (d) position
	d.write(uciproto.WritePosition(job.FEN, job.Moves))

	// (e) go
	wallTimeout := 2*time.Duration(movetimeMs(job))*time.Millisecond + 5*time.Second
	if job.SearchMode == models.SearchModeDepth {
		d.write(uciproto.WriteGoDepth(job.DepthOrTimeMs))
	} else {
		d.write(uciproto.WriteGoMovetime(job.DepthOrTimeMs))
	}

	result, err := d.consumeSearch(ctx, job, wallTimeout)

	d.mu.Lock()
	if err == nil {
		d.state = StateIdle
		d.lastIdleAt = time.Now()
	}
	d.mu.Unlock()

	return result, err
}

// configureForJob applies Hash, UCI_LimitStrength, UCI_Elo, Personality,
// MultiPV, Skill, Contempt in that fixed order (spec §4.2 step c). Hash and
// Contempt come from the job itself (spec §4.5): Hash is resized against
// d.lastHash only when the job's value differs from what was last sent,
// since re-sending an unchanged Hash clears Stockfish's transposition table
// for no reason.
func (d *Driver) configureForJob(job models.AnalyzeJob) {
	if job.HashMB > 0 && job.HashMB != d.lastHash {
		d.write(uciproto.WriteSetOption("Hash", fmt.Sprint(job.HashMB)))
		d.lastHash = job.HashMB
	}
	limitStrength := job.LimitStrength
	d.write(uciproto.WriteSetOption("UCI_LimitStrength", boolStr(limitStrength)))
	if limitStrength {
		d.write(uciproto.WriteSetOption("UCI_Elo", fmt.Sprint(clampElo(job.TargetElo))))
	}
	if job.Personality != "" {
		d.write(uciproto.WriteSetOption("Personality", string(job.Personality)))
	}
	if job.MultiPV > 0 {
		d.write(uciproto.WriteSetOption("MultiPV", fmt.Sprint(job.MultiPV)))
	}
	if job.Skill > 0 {
		d.write(uciproto.WriteSetOption("Skill", fmt.Sprint(job.Skill)))
	}
	d.write(uciproto.WriteSetOption("Contempt", fmt.Sprint(job.ContemptCp)))
}

func clampElo(elo int) int {
	if elo < 500 {
		return 500
	}
	if elo > 2500 {
		return 2500
	}
	return elo
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func movetimeMs(job models.AnalyzeJob) int {
	if job.SearchMode == models.SearchModeTime {
		return job.DepthOrTimeMs
	}
	// depth-bounded searches still need a wall-clock ceiling; assume a
	// generous per-ply budget so deep searches aren't killed prematurely.
	return job.DepthOrTimeMs * 1000
}

// consumeSearch implements steps (f)-(g): fold info lines into a rolling
// per-multipv map keyed by rank, freeze it on bestmove, and apply the
// bestmove-overrides-rank-1 rule.
func (d *Driver) consumeSearch(ctx context.Context, job models.AnalyzeJob, wallTimeout time.Duration) (models.AnalyzeResult, error) {
	type pending struct {
		line  models.PVLine
		depth int
	}
	byRank := make(map[int]pending)
	maxDepth := 0

	started := time.Now()
	var bestLine string
	timer := time.NewTimer(wallTimeout)
	defer timer.Stop()
	canceling := false
	var stopDeadline <-chan time.Time

readLoop:
	for {
		select {
		case <-ctx.Done():
			if !canceling {
				canceling = true
				d.write(uciproto.WriteStop())
				stopDeadline = time.After(stopGrace)
			}
		case <-stopDeadline:
			d.transitionDead()
			return models.AnalyzeResult{}, ErrCanceled
		case <-timer.C:
			if canceling {
				d.transitionDead()
				return models.AnalyzeResult{}, ErrCanceled
			}
			d.transitionDead()
			return models.AnalyzeResult{}, ErrEngineTimeout
		case line, ok := <-d.lines:
			if !ok {
				d.transitionDead()
				return models.AnalyzeResult{}, ErrEngineCrash
			}
			trimmed := strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(trimmed, "info"):
				rec := uciproto.ParseInfoLine(trimmed)
				if !rec.HasMultiPV {
					rec.MultiPV = 1
				}
				if !rec.HasScore || !rec.HasPV {
					continue
				}
				depth := rec.Depth
				prev, exists := byRank[rec.MultiPV]
				if exists && prev.depth > depth {
					continue // keep the latest PV at the max depth seen for this rank
				}
				byRank[rec.MultiPV] = pending{
					line: models.PVLine{
						MultiPVRank: rec.MultiPV,
						Depth:       depth,
						SelDepth:    rec.SelDepth,
						Score:       rec.Score,
						Moves:       rec.PV,
					},
					depth: depth,
				}
				if depth > maxDepth {
					maxDepth = depth
				}
			case strings.HasPrefix(trimmed, "bestmove"):
				bm := uciproto.ParseBestMoveLine(trimmed)
				bestLine = bm.Move
				break readLoop
			}
		}
	}

	if canceling {
		// stop was honored before the wall timeout fired: the driver
		// returns to Idle rather than being killed (spec §5).
		d.mu.Lock()
		d.state = StateIdle
		d.lastIdleAt = time.Now()
		d.mu.Unlock()
		return models.AnalyzeResult{}, ErrCanceled
	}

	if bestLine == "" {
		d.transitionDead()
		return models.AnalyzeResult{}, ErrEngineCrash
	}

	lines := make([]models.PVLine, 0, len(byRank))
	for _, p := range byRank {
		lines = append(lines, p.line)
	}
	sortLinesByRank(lines)

	// Invariant (spec §4.2): bestmove wins over rank-1's reported move when
	// they disagree (engine-rounding edge case). The rest of that PV followed
	// the other move, so rank-1's PV becomes just the bestmove.
	if len(lines) > 0 && lines[0].MultiPVRank == 1 {
		if len(lines[0].Moves) == 0 || lines[0].Moves[0] != bestLine {
			logrus.WithFields(logrus.Fields{
				"driverID": d.id,
				"jobID":    job.ID,
			}).Warn("bestmove disagreed with rank-1 PV; overriding rank-1 move")
			lines[0].Moves = []string{bestLine}
		}
	}

	return models.AnalyzeResult{
		BestMove: bestLine,
		Lines:    lines,
		Depth:    maxDepth,
		TimeMs:   int(time.Since(started) / time.Millisecond),
	}, nil
}

func sortLinesByRank(lines []models.PVLine) {
	for i := 1; i < len(lines); i++ {
		for j := i; j > 0 && lines[j-1].MultiPVRank > lines[j].MultiPVRank; j-- {
			lines[j-1], lines[j] = lines[j], lines[j-1]
		}
	}
}

func (d *Driver) waitForLine(want string, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case line, ok := <-d.lines:
			if !ok {
				return false
			}
			if strings.TrimSpace(line) == want {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

func (d *Driver) write(cmd string) {
	fmt.Fprintln(d.stdin, cmd)
}

func (d *Driver) transitionDead() {
	d.mu.Lock()
	d.state = StateDead
	d.mu.Unlock()
	logrus.WithField("driverID", d.id).Warn("engine driver transitioned to dead")
}

func (d *Driver) killLocked() {
	if d.cmd != nil && d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	d.state = StateDead
}

// Shutdown sends quit and waits up to 2s for the subprocess to exit before
// force-killing it (spec §5, §9 graceful shutdown ceiling).
func (d *Driver) Shutdown() {
	d.mu.Lock()
	if d.state == StateDead {
		d.mu.Unlock()
		return
	}
	d.state = StateDraining
	d.mu.Unlock()

	d.write(uciproto.WriteQuit())

	done := make(chan error, 1)
	go func() { done <- d.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		d.cmd.Process.Kill()
	}

	d.mu.Lock()
	d.state = StateDead
	d.mu.Unlock()
}
