// Package pool implements the auto-scaling engine pool (spec §4.3): it
// queues analyze jobs, dispatches them FIFO to idle drivers, grows the
// driver set under sustained queue pressure, shrinks it after idle
// drivers, and replaces drivers that crash. Grounded on the teacher's
// internal/services/stockfish.go worker-pool shape (fixed-size channel of
// available engines), generalized to the dynamic min/max policy spec §3/§4.3
// mandate.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/chesslab/analysisd/internal/engine"
	"github.com/chesslab/analysisd/internal/models"
)

// Config is the autoscaling policy (spec §3 PoolState invariant, §4.3).
type Config struct {
	BinaryPath        string
	MinEngines        int
	MaxEngines        int
	ScaleUpThreshold  int
	ScaleDownIdleTime time.Duration
	EngineOptions     models.EngineOptions // Threads/HashMB; 0 means auto-size
}

type request struct {
	job   models.AnalyzeJob
	ctx   context.Context
	reply chan Response
}

// Response is delivered exactly once per submitted job that is not canceled:
// either one result or one error, never both. A canceled job gets no
// Response at all.
type Response struct {
	Result models.AnalyzeResult
	Err    error
}

// driverHandle is the pool's bookkeeping record for one driver. It never
// holds a back-pointer to a session (spec §9): results are delivered via
// the per-submission reply channel instead.
type driverHandle struct {
	driver *engine.Driver
	busy   bool
}

// Pool is the single scheduling point for the driver set and the FIFO
// queue (spec §5). The mutex guards only the ledger — {drivers, queue,
// spawning} — and is never held across an await/I/O call into a driver.
type Pool struct {
	cfg Config

	mu       sync.Mutex
	drivers  map[string]*driverHandle
	queue    []request
	spawning bool
	nextID   int
	closed   bool

	wake       chan struct{}
	done       chan struct{}
	spawnLimit *rate.Limiter
	stopSweep  chan struct{}
	sweepDone  chan struct{}
}

// New creates a pool with MinEngines drivers already spawned and running.
func New(cfg Config) (*Pool, error) {
	if cfg.MinEngines < 1 {
		cfg.MinEngines = 1
	}
	if cfg.MaxEngines < cfg.MinEngines {
		cfg.MaxEngines = cfg.MinEngines
	}
	if cfg.ScaleUpThreshold < 1 {
		cfg.ScaleUpThreshold = 1
	}
	if cfg.ScaleDownIdleTime <= 0 {
		cfg.ScaleDownIdleTime = 60 * time.Second
	}
	if cfg.EngineOptions.Threads == 0 {
		cfg.EngineOptions.Threads = autoSizeThreads()
	}
	if cfg.EngineOptions.HashMB == 0 {
		cfg.EngineOptions.HashMB = autoSizeHashMB()
	}

	p := &Pool{
		cfg:        cfg,
		drivers:    make(map[string]*driverHandle),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		spawnLimit: rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		stopSweep:  make(chan struct{}),
		sweepDone:  make(chan struct{}),
	}

	for i := 0; i < cfg.MinEngines; i++ {
		if _, err := p.spawnDriver(); err != nil {
			p.Shutdown()
			return nil, fmt.Errorf("pool: initial spawn %d/%d: %w", i+1, cfg.MinEngines, err)
		}
	}

	go p.dispatchLoop()
	go p.scaleSweep()

	return p, nil
}

func (p *Pool) spawnDriver() (*engine.Driver, error) {
	p.mu.Lock()
	id := fmt.Sprintf("engine-%d", p.nextID)
	p.nextID++
	p.mu.Unlock()

	d, err := engine.New(id, p.cfg.BinaryPath, p.cfg.EngineOptions)
	if err != nil {
		logrus.WithError(err).WithField("driverID", id).Error("failed to spawn driver")
		return nil, err
	}

	p.mu.Lock()
	p.drivers[id] = &driverHandle{driver: d}
	p.mu.Unlock()

	logrus.WithField("driverID", id).Info("driver spawned")
	p.poke()
	return d, nil
}

// Submit enqueues a job and returns a future-like channel the caller reads
// exactly once. Cancelling ctx propagates into a dispatched driver's stop
// protocol (spec §5); an undispatched job is simply dropped from the queue.
func (p *Pool) Submit(ctx context.Context, job models.AnalyzeJob) <-chan Response {
	reply := make(chan Response, 1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		reply <- Response{Err: fmt.Errorf("pool: closed")}
		return reply
	}
	p.queue = append(p.queue, request{job: job, ctx: ctx, reply: reply})
	queueLen := len(p.queue)
	p.maybeScaleUpLocked(queueLen)
	p.mu.Unlock()

	p.poke()
	return reply
}

// SubmitAndWait is the synchronous convenience form used by callers that
// don't need to interleave other work while waiting.
func (p *Pool) SubmitAndWait(ctx context.Context, job models.AnalyzeJob) (models.AnalyzeResult, error) {
	r := <-p.Submit(ctx, job)
	return r.Result, r.Err
}

func (p *Pool) maybeScaleUpLocked(queueLen int) {
	if p.spawning {
		return
	}
	if queueLen < p.cfg.ScaleUpThreshold {
		return
	}
	if len(p.drivers) >= p.cfg.MaxEngines {
		return
	}
	if !p.spawnLimit.Allow() {
		return
	}
	p.spawning = true
	go func() {
		defer func() {
			p.mu.Lock()
			p.spawning = false
			p.mu.Unlock()
			p.poke()
		}()
		if _, err := p.spawnDriver(); err != nil {
			p.maybeRespawnToMinimum()
		}
	}()
}

func (p *Pool) poke() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// dispatchLoop is the pool's single scheduling goroutine: it pulls queued
// jobs FIFO and hands them to idle drivers. No priorities, no preemption
// (spec §4.3 fairness).
func (p *Pool) dispatchLoop() {
	for {
		select {
		case <-p.done:
			return
		case <-p.wake:
		}
		for {
			p.mu.Lock()
			if p.closed || len(p.queue) == 0 {
				p.mu.Unlock()
				break
			}
			var idle *driverHandle
			var idleID string
			for id, h := range p.drivers {
				if !h.busy && h.driver.State() == engine.StateIdle {
					idle = h
					idleID = id
					break
				}
			}
			if idle == nil {
				p.mu.Unlock()
				break
			}
			req := p.queue[0]
			p.queue = p.queue[1:]
			if req.ctx.Err() != nil {
				// Canceled before dispatch: dropped without a reply, like a
				// canceled dispatched job.
				p.mu.Unlock()
				continue
			}
			idle.busy = true
			p.mu.Unlock()

			go p.run(idleID, idle, req)
		}
	}
}

func (p *Pool) run(id string, h *driverHandle, req request) {
	result, err := h.driver.Analyze(req.ctx, req.job)

	p.mu.Lock()
	h.busy = false
	if err == engine.ErrEngineCrash || err == engine.ErrEngineTimeout {
		delete(p.drivers, id)
	}
	p.mu.Unlock()

	if err == engine.ErrEngineCrash || err == engine.ErrEngineTimeout {
		logrus.WithFields(logrus.Fields{"driverID": id, "jobID": req.job.ID, "error": err}).
			Error("driver failed; removing from pool and re-checking minimum")
		p.maybeRespawnToMinimum()
	}

	switch err {
	case engine.ErrCanceled:
		// internal only; the original caller that canceled already moved
		// on and is not listening on req.reply (spec §7).
	case nil, engine.ErrEngineCrash, engine.ErrEngineTimeout:
		req.reply <- Response{Result: result, Err: mapErr(err)}
	default:
		req.reply <- Response{Result: result, Err: err}
	}

	p.poke()
}

func mapErr(err error) error {
	switch err {
	case engine.ErrEngineCrash:
		return engine.ErrEngineCrash
	case engine.ErrEngineTimeout:
		return engine.ErrEngineTimeout
	default:
		return err
	}
}

func (p *Pool) maybeRespawnToMinimum() {
	p.mu.Lock()
	need := len(p.drivers) < p.cfg.MinEngines
	p.mu.Unlock()
	if !need {
		return
	}
	if _, err := p.spawnDriver(); err != nil {
		logrus.WithError(err).Error("failed to respawn driver to minimum; will retry on next sweep")
	}
}

// scaleSweep runs every 10s (spec §4.3) and drains drivers that have been
// continuously idle longer than ScaleDownIdleTime, provided the pool stays
// at or above MinEngines.
func (p *Pool) scaleSweep() {
	defer close(p.sweepDone)
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopSweep:
			return
		case <-ticker.C:
			p.sweepOnce()
		}
	}
}

func (p *Pool) sweepOnce() {
	p.mu.Lock()
	if len(p.drivers) <= p.cfg.MinEngines {
		p.mu.Unlock()
		return
	}
	var drain []*driverHandle
	var drainIDs []string
	now := time.Now()
	for id, h := range p.drivers {
		if len(p.drivers)-len(drain) <= p.cfg.MinEngines {
			break
		}
		if h.busy {
			continue
		}
		if h.driver.State() != engine.StateIdle {
			continue
		}
		if now.Sub(h.driver.LastIdleAt()) > p.cfg.ScaleDownIdleTime {
			drain = append(drain, h)
			drainIDs = append(drainIDs, id)
		}
	}
	for _, id := range drainIDs {
		delete(p.drivers, id)
	}
	p.mu.Unlock()

	for i, h := range drain {
		logrus.WithField("driverID", drainIDs[i]).Info("draining idle driver")
		h.driver.Shutdown()
	}
}

// EngineOptions returns the pool's resolved Hash/Skill/Threads settings, so
// callers can carry Hash and Skill on each AnalyzeJob (spec §4.5: both come
// from the job, not a one-time spawn option).
func (p *Pool) EngineOptions() models.EngineOptions {
	return p.cfg.EngineOptions
}

// Snapshot returns the current driver count and queue depth, for tests and
// health/metrics reporting.
func (p *Pool) Snapshot() (driverCount, queueDepth int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.drivers), len(p.queue)
}

// Shutdown drains every driver (quit, await, 2s kill ceiling — delegated
// to engine.Driver.Shutdown) and stops background goroutines.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	handles := make([]*driverHandle, 0, len(p.drivers))
	for _, h := range p.drivers {
		handles = append(handles, h)
	}
	p.drivers = make(map[string]*driverHandle)
	p.mu.Unlock()

	close(p.stopSweep)
	<-p.sweepDone
	close(p.done)

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *driverHandle) {
			defer wg.Done()
			h.driver.Shutdown()
		}(h)
	}
	wg.Wait()
}
