// Package session implements the per-connection state machine (spec §4.7):
// {Connected, Authenticated, Closed} with a single nullable in-flight job
// slot. One goroutine reads frames off the socket serially (spec §5
// "task per session"), but analyze-family requests are dispatched
// asynchronously so a pipelined request can cancel the one in flight
// (spec §4.7 pipelining rule) without blocking the reader. Grounded on the
// teacher's gin-handler error-translation idiom
// (internal/handlers/analysis.go): internal errors are mapped to the
// closed wire error-kind set only at this boundary, never upstream.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/chesslab/analysisd/internal/authcheck"
	"github.com/chesslab/analysisd/internal/classifier"
	"github.com/chesslab/analysisd/internal/engine"
	"github.com/chesslab/analysisd/internal/models"
	"github.com/chesslab/analysisd/internal/pool"
	"github.com/chesslab/analysisd/internal/suggestion"
)

type state int

const (
	stateConnected state = iota
	stateAuthenticated
)

// Close codes for the protocol-level violations spec §4.7/§6 name.
const (
	CloseAuthTimeout  = 4001
	CloseVersionError = 4002
	CloseAuthFailed   = 4003
)

// classifierProbeDepth is the fixed search depth for both classifier engine
// probes (spec §4.6: "multi-PV=2 at depth 10" / "multi-PV=1 at depth 10").
// Unlike the suggestion builder, the classifier never scales this by the
// player's targetElo: it needs the same objective yardstick for every move
// it grades, not a search tuned to look like the player's own strength.
const classifierProbeDepth = 10

// Config bundles a session's external collaborators and policy knobs.
type Config struct {
	Pool             *pool.Pool
	Verifier         authcheck.Verifier
	MinClientVersion string
	DownloadURL      string
	AuthTimeout      time.Duration
}

// Session is one client connection's dispatcher.
type Session struct {
	id   string
	conn *websocket.Conn
	cfg  Config
	log  *logrus.Entry

	writeMu sync.Mutex

	mu             sync.Mutex
	st             state
	inFlightCancel context.CancelFunc
	inFlightGen    int
}

// New wraps an already-upgraded websocket connection in a Session.
func New(id string, conn *websocket.Conn, cfg Config) *Session {
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 10 * time.Second
	}
	return &Session{
		id:   id,
		conn: conn,
		cfg:  cfg,
		st:   stateConnected,
		log:  logrus.WithField("sessionID", id),
	}
}

// Serve runs the session to completion. It sends the ready frame, enforces
// the auth timeout, and reads frames until the socket closes or a
// protocol violation closes it. Callers own conn's lifecycle (dial/upgrade
// and eventual Close); Serve returns once the connection is done.
func (s *Session) Serve() {
	if err := s.writeJSON(models.ReadyFrame{
		Type:    models.ServerFrameReady,
		Version: models.VersionInfo{MinVersion: s.cfg.MinClientVersion, DownloadURL: s.cfg.DownloadURL},
	}); err != nil {
		return
	}

	authTimer := time.AfterFunc(s.cfg.AuthTimeout, func() {
		s.mu.Lock()
		expired := s.st == stateConnected
		s.mu.Unlock()
		if expired {
			s.closeWithCode(CloseAuthTimeout, "authentication timeout")
		}
	})
	defer authTimer.Stop()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.abandonInFlight()
			return
		}

		var raw models.RawFrame
		if err := json.Unmarshal(data, &raw); err != nil {
			s.sendError("", models.ErrInvalidJSON, "malformed frame")
			continue
		}

		s.mu.Lock()
		authenticated := s.st == stateAuthenticated
		s.mu.Unlock()

		if !authenticated {
			if raw.Type != models.ClientFrameAuth {
				s.sendError("", models.ErrUnauthenticated, "must authenticate first")
				continue
			}
			authTimer.Stop()
			if !s.handleAuth(data) {
				return
			}
			continue
		}

		switch raw.Type {
		case models.ClientFrameAnalyze, models.ClientFrameSuggestion:
			s.handleSuggestion(raw.Type, data)
		case models.ClientFrameAnalyzeNew:
			s.handleAnalyzeNew(data)
		default:
			s.sendError("", models.ErrUnknownMessageType, fmt.Sprintf("unknown message type %q", raw.Type))
		}
	}
}

func (s *Session) handleAuth(data []byte) bool {
	var f models.AuthFrame
	if err := json.Unmarshal(data, &f); err != nil {
		s.sendError("", models.ErrInvalidJSON, "malformed auth frame")
		s.closeWithCode(CloseAuthFailed, "malformed auth frame")
		return false
	}

	if f.Version != "" && compareVersions(f.Version, s.cfg.MinClientVersion) < 0 {
		s.writeJSON(models.VersionErrorFrame{Type: models.ServerFrameVersionError, MinVersion: s.cfg.MinClientVersion})
		s.closeWithCode(CloseVersionError, "client version outdated")
		return false
	}

	user, err := s.cfg.Verifier.VerifyToken(f.Token)
	if err != nil {
		s.writeJSON(models.AuthErrorFrame{Type: models.ServerFrameAuthError, Reason: "invalid token"})
		s.closeWithCode(CloseAuthFailed, "auth failed")
		return false
	}

	s.mu.Lock()
	s.st = stateAuthenticated
	s.mu.Unlock()

	s.writeJSON(models.AuthSuccessFrame{Type: models.ServerFrameAuthSuccess, User: user})
	return true
}

// startJob cancels any job already in flight (spec §4.7 pipelining rule)
// and installs a fresh context as the new in-flight slot.
func (s *Session) startJob() (context.Context, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlightCancel != nil {
		s.inFlightCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.inFlightGen++
	gen := s.inFlightGen
	s.inFlightCancel = cancel
	return ctx, gen
}

// finishJob vacates the in-flight slot, but only if a later job hasn't
// already superseded it.
func (s *Session) finishJob(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlightGen == gen {
		s.inFlightCancel = nil
	}
}

func (s *Session) abandonInFlight() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlightCancel != nil {
		s.inFlightCancel()
		s.inFlightCancel = nil
	}
}

// selectReply waits for a pool response or the job's own cancellation,
// whichever comes first. A canceled job never completes its reply read:
// the pool's run() loop, per spec §7, does not deliver a response for a
// superseded job, so the only way to stop waiting is to watch ctx.Done()
// too (the session that issued the cancel has already moved on).
func selectReply(ctx context.Context, reply <-chan pool.Response) (pool.Response, bool) {
	select {
	case r := <-reply:
		return r, true
	case <-ctx.Done():
		return pool.Response{}, false
	}
}

func (s *Session) handleSuggestion(frameType models.ClientFrameType, data []byte) {
	var f models.AnalyzeRequestFrame
	if err := json.Unmarshal(data, &f); err != nil {
		s.sendError("", models.ErrInvalidJSON, "malformed suggestion request")
		return
	}

	personality := models.Personality(f.Personality)
	if f.Personality == "" {
		personality = models.PersonalityDefault
	} else if !models.ValidPersonalities[personality] {
		s.sendError(f.RequestID, models.ErrInvalidRequest, fmt.Sprintf("unknown personality %q", f.Personality))
		return
	}

	engineOpts := s.cfg.Pool.EngineOptions()
	job := suggestion.BuildJob(suggestion.Request{
		ID:          f.RequestID,
		FEN:         f.FEN,
		Moves:       f.Moves,
		MultiPV:     f.MultiPV,
		TargetElo:   f.TargetElo,
		HashMB:      engineOpts.HashMB,
		Skill:       engineOpts.Skill,
		ContemptCp:  f.Contempt,
		Personality: personality,
	})

	ctx, gen := s.startJob()
	go func() {
		defer s.finishJob(gen)

		resp, ok := selectReply(ctx, s.cfg.Pool.Submit(ctx, job))
		if !ok {
			return
		}
		if resp.Err != nil {
			s.sendError(f.RequestID, poolErrKind(resp.Err), resp.Err.Error())
			return
		}

		result := suggestion.BuildResult(job, resp.Result)
		frame := models.SuggestionResultFrame{
			Type:         models.ServerFrameSuggestion,
			RequestID:    f.RequestID,
			FEN:          result.FEN,
			PositionEval: result.PositionEval,
			MateIn:       result.MateIn,
			WinRate:      result.WinRate,
			Suggestions:  result.Suggestions,
		}
		if frameType == models.ClientFrameAnalyze {
			frame.Type = models.ServerFrameResult
		}
		s.writeJSON(frame)
	}()
}

func (s *Session) handleAnalyzeNew(data []byte) {
	var f models.AnalyzeNewRequestFrame
	if err := json.Unmarshal(data, &f); err != nil {
		s.sendError("", models.ErrInvalidJSON, "malformed analyze_new request")
		return
	}
	if f.PlayerColor != "w" && f.PlayerColor != "b" {
		s.sendError(f.RequestID, models.ErrInvalidRequest, `playerColor must be "w" or "b"`)
		return
	}

	clReq := models.ClassifyRequest{
		FENBefore:     f.FENBefore,
		FENAfter:      f.FENAfter,
		Move:          f.Move,
		PlayedMoves:   f.Moves,
		PlayerIsWhite: f.PlayerColor == "w",
		TargetElo:     f.TargetElo,
		IsBookMove:    f.IsBookMove,
	}

	// The two classifier probes are fixed-depth, full-strength evaluations
	// (spec §4.6: "multi-PV=2 at depth 10" / "multi-PV=1 at depth 10") —
	// an elo-scaled search here would make the same played move classify
	// differently depending on the requester's own targetElo, rather than
	// on the move itself.
	engineOpts := s.cfg.Pool.EngineOptions()
	beforeJob := models.AnalyzeJob{
		FEN: f.FENBefore, MultiPV: 2, SearchMode: models.SearchModeDepth,
		DepthOrTimeMs: classifierProbeDepth, LimitStrength: false,
		HashMB: engineOpts.HashMB, Skill: engineOpts.Skill,
		Kind: models.KindStats,
	}
	afterJob := models.AnalyzeJob{
		FEN: f.FENAfter, MultiPV: 1, SearchMode: models.SearchModeDepth,
		DepthOrTimeMs: classifierProbeDepth, LimitStrength: false,
		HashMB: engineOpts.HashMB, Skill: engineOpts.Skill,
		Kind: models.KindStats,
	}

	ctx, gen := s.startJob()
	go func() {
		defer s.finishJob(gen)

		// Spec §5's two suspension points are sequential, not concurrent:
		// the second probe is only issued once the first completes.
		beforeResp, ok := selectReply(ctx, s.cfg.Pool.Submit(ctx, beforeJob))
		if !ok {
			return
		}
		if beforeResp.Err != nil {
			s.sendAnalysisError(f.RequestID, beforeResp.Err)
			return
		}
		if ctx.Err() != nil {
			return
		}

		afterResp, ok := selectReply(ctx, s.cfg.Pool.Submit(ctx, afterJob))
		if !ok {
			return
		}
		if afterResp.Err != nil {
			s.sendAnalysisError(f.RequestID, afterResp.Err)
			return
		}

		probe := classifier.BuildEngineProbe(beforeResp.Result, afterResp.Result)
		mc, err := classifier.Classify(clReq, probe)
		if err != nil {
			s.sendAnalysisErrorKind(f.RequestID, models.ErrInvalidRequest, err.Error())
			return
		}

		s.writeJSON(models.AnalysisResultFrame{
			Type:           models.ServerFrameAnalysisResult,
			RequestID:      f.RequestID,
			Move:           f.Move,
			Classification: mc.Label,
			Cpl:            mc.Cpl,
			AccuracyImpact: mc.AccuracyImpact,
			WeightedImpact: mc.WeightedImpact,
			Phase:          mc.Phase,
			BestMove:       mc.BestMove,
			EvalBefore:     mc.EvalBefore,
			EvalAfter:      mc.EvalAfter,
			MateInAfter:    mc.MateInAfter,
		})
	}()
}

func poolErrKind(err error) models.ErrorKind {
	switch {
	case errors.Is(err, engine.ErrEngineCrash):
		return models.ErrEngineCrash
	case errors.Is(err, engine.ErrEngineTimeout):
		return models.ErrEngineTimeout
	default:
		return models.ErrInternal
	}
}

func (s *Session) sendAnalysisError(requestID string, err error) {
	s.sendAnalysisErrorKind(requestID, poolErrKind(err), err.Error())
}

func (s *Session) sendAnalysisErrorKind(requestID string, kind models.ErrorKind, message string) {
	s.writeJSON(models.AnalysisErrorFrame{
		Type: models.ServerFrameAnalysisError, RequestID: requestID,
		Kind: kind, Message: message,
	})
}

func (s *Session) sendError(requestID string, kind models.ErrorKind, message string) {
	s.writeJSON(models.ErrorFrame{
		Type: models.ServerFrameError, RequestID: requestID,
		Kind: kind, Message: message,
	})
}

func (s *Session) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		s.log.WithError(err).Debug("write failed; connection likely gone")
		return err
	}
	return nil
}

func (s *Session) closeWithCode(code int, reason string) {
	s.writeMu.Lock()
	deadline := time.Now().Add(2 * time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	s.writeMu.Unlock()
	s.conn.Close()
}

// compareVersions compares two dot-separated numeric version strings,
// returning <0, 0, >0 as a < b, a == b, a > b. Missing trailing segments
// are treated as 0, so "1.2" == "1.2.0". Unparseable segments compare as
// if they were 0, which is lenient but never panics on client input.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var av, bv int
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			return av - bv
		}
	}
	return 0
}
