// Package classifier implements the move-quality classification pipeline
// (spec §4.6): a deterministic, ordered rule cascade from two engine probes
// (best/second-best before the move, the played move's own evaluation
// after it) to a single label plus the accuracy-impact numbers the rest of
// the system reports. Grounded on the teacher's
// internal/services/enhanced_ep_service.go classification thresholds
// (expected-points loss buckets) and move_categorization.go's ordered
// override cascade (book, then Great, then Brilliant), rebuilt around this
// system's win-percent-based metrics instead of the teacher's raw
// expected-points scale.
package classifier

import (
	"fmt"
	"math"

	"github.com/notnil/chess"

	"github.com/chesslab/analysisd/internal/evalmath"
	"github.com/chesslab/analysisd/internal/models"
)

// EngineProbe carries the two engine calls spec §4.6 requires: multiPV=2 at
// fenBefore (BeforeBest/BeforeSecond/BestMove), and multiPV=1 at fenAfter
// (AfterPlayed). Both scores are in their own position's side-to-move POV,
// exactly as the engine reports them — the classifier does the White-POV
// normalization. AfterPlayed is ignored when fenAfter turns out to be
// checkmate or stalemate (the classifier synthesizes it instead), so
// callers may skip that engine call entirely once they've checked
// terminality themselves; a zero Score is a valid placeholder in that case.
type EngineProbe struct {
	BeforeBest   models.Score
	BeforeSecond models.Score
	BestMove     string
	AfterPlayed  models.Score
}

// BuildEngineProbe reduces the pool's raw before/after AnalyzeResults into
// the classifier's input shape. When the before-search couldn't find a
// second line (forced or near-forced positions), BeforeSecond falls back to
// BeforeBest so the gap-based Great/Brilliant checks degrade to "no gap"
// rather than comparing against a zero-value score. Shared by the live
// request path and the offline calibration tool so a change to this
// reduction can't silently diverge between the two.
func BuildEngineProbe(before, after models.AnalyzeResult) EngineProbe {
	var p EngineProbe
	if len(before.Lines) > 0 {
		p.BeforeBest = before.Lines[0].Score
		if len(before.Lines[0].Moves) > 0 {
			p.BestMove = before.Lines[0].Moves[0]
		} else {
			p.BestMove = before.BestMove
		}
	}
	if len(before.Lines) > 1 {
		p.BeforeSecond = before.Lines[1].Score
	} else {
		p.BeforeSecond = p.BeforeBest
	}
	if len(after.Lines) > 0 {
		p.AfterPlayed = after.Lines[0].Score
	}
	return p
}

func playerColor(req models.ClassifyRequest) models.Color {
	if req.PlayerIsWhite {
		return models.White
	}
	return models.Black
}

// toPlayerPOV converts a White-POV score into a given side's POV. The flip
// is its own inverse, so this is the same operation as evalmath.ToWhitePOV
// run the other direction.
func toPlayerPOV(white models.Score, side models.Color) models.Score {
	return evalmath.ToWhitePOV(white, side)
}

func cpAxis(s models.Score) int {
	if s.IsMate() {
		return evalmath.MateToCp(s.Mate)
	}
	return s.CP
}

func mateForSide(s models.Score) bool {
	return s.IsMate() && s.Mate > 0
}

// terminalAfter reports whether fenAfter is checkmate or stalemate,
// simulated once before any engine call on it (spec §4.6 terminal
// detection) — this bypasses engine variance on positions that have no
// legal continuation at all.
func terminalAfter(fen string) (checkmate, stalemate bool, err error) {
	fenOpt, err := chess.FEN(fen)
	if err != nil {
		return false, false, fmt.Errorf("classifier: invalid FEN %q: %w", fen, err)
	}
	game := chess.NewGame(fenOpt)
	if game.Outcome() == chess.NoOutcome {
		return false, false, nil
	}
	switch game.Method() {
	case chess.Checkmate:
		return true, false, nil
	case chess.Stalemate:
		return false, true, nil
	default:
		return false, false, nil
	}
}

func baseLabel(lossWin float64, playedIsBest bool) models.ClassificationLabel {
	if playedIsBest {
		return models.ClassBest
	}
	switch {
	case lossWin <= 0.2:
		return models.ClassBest
	case lossWin <= 1:
		return models.ClassExcellent
	case lossWin <= 3:
		return models.ClassGood
	case lossWin <= 8:
		return models.ClassInaccuracy
	case lossWin <= 20:
		return models.ClassMistake
	default:
		return models.ClassBlunder
	}
}

func phaseWeight(phase models.GamePhase) float64 {
	switch phase {
	case models.PhaseOpening:
		return 0.7
	case models.PhaseMiddlegame:
		return 1.0
	default:
		return 1.3
	}
}

// computeCpl is spec §4.6's cpl rule: max(0, bestCp-playedCp) in the
// player's POV, pinned to 500 when beforeBest was a forced mate for the
// player and afterPlayed is not.
func computeCpl(playerBeforeBest, playerAfterPlayed models.Score) float64 {
	if mateForSide(playerBeforeBest) && !mateForSide(playerAfterPlayed) {
		return 500
	}
	cpl := cpAxis(playerBeforeBest) - cpAxis(playerAfterPlayed)
	if cpl < 0 {
		cpl = 0
	}
	return float64(cpl)
}

// projectForUI maps a White-POV score onto the cp axis the way UI
// evaluation bars consume it: a plain mate value doesn't scale well
// against centipawns, so mate scores pin at +/-10000 regardless of
// distance (spec §4.6), unlike the internal MateToCp axis used for cpl.
func projectForUI(white models.Score) int {
	if white.IsMate() {
		if white.Mate > 0 {
			return 10000
		}
		return -10000
	}
	return white.CP
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Classify runs the full deterministic pipeline described in spec §4.6 and
// returns the verdict for one played ply.
func Classify(req models.ClassifyRequest, probe EngineProbe) (models.MoveClassification, error) {
	player := playerColor(req)
	opponent := player.Opponent()

	whiteBeforeBest := evalmath.ToWhitePOV(probe.BeforeBest, player)
	whiteBeforeSecond := evalmath.ToWhitePOV(probe.BeforeSecond, player)

	checkmate, stalemate, err := terminalAfter(req.FENAfter)
	if err != nil {
		return models.MoveClassification{}, err
	}

	var whiteAfterPlayed models.Score
	switch {
	case checkmate:
		// The side that just moved delivered mate; sign is relative to
		// that side, not the (now mated) side to move.
		if player == models.White {
			whiteAfterPlayed = models.MateScore(1)
		} else {
			whiteAfterPlayed = models.MateScore(-1)
		}
	case stalemate:
		whiteAfterPlayed = models.CPScore(0)
	default:
		whiteAfterPlayed = evalmath.ToWhitePOV(probe.AfterPlayed, opponent)
	}

	lossWin := evalmath.LossWinForPlayer(player, whiteBeforeBest, whiteAfterPlayed)
	gapWin := evalmath.GapWinForPlayer(player, whiteBeforeBest, whiteBeforeSecond)
	swingWin := evalmath.SwingWinForPlayer(player, whiteBeforeBest, whiteAfterPlayed)

	playerBeforeBest := toPlayerPOV(whiteBeforeBest, player)
	playerAfterPlayed := toPlayerPOV(whiteAfterPlayed, player)

	playedIsBest := req.Move != "" && req.Move == probe.BestMove

	label := baseLabel(lossWin, playedIsBest)

	missedMate := mateForSide(playerBeforeBest) && !mateForSide(playerAfterPlayed)
	if missedMate {
		label = models.ClassBlunder
	} else {
		if req.IsBookMove && label != models.ClassBlunder && label != models.ClassMistake {
			label = models.ClassBook
		}
		if (label == models.ClassBest || label == models.ClassExcellent) && (swingWin >= 15 || gapWin >= 8) {
			label = models.ClassGreat
		}
		if label == models.ClassBest {
			materialDelta, mdErr := evalmath.ComputeMaterialDelta(req.FENBefore, req.Move, player)
			if mdErr == nil {
				winPctAfter := evalmath.WinPercentForPlayer(whiteAfterPlayed, player)
				if materialDelta < 0 && winPctAfter >= 60 && gapWin >= 6 {
					label = models.ClassBrilliant
				}
			}
		}
	}

	cpl := computeCpl(playerBeforeBest, playerAfterPlayed)
	accuracyImpact := round1(40 * (1 - math.Exp(-cpl/150)))

	phase, err := evalmath.DetectPhase(req.FENBefore)
	if err != nil {
		return models.MoveClassification{}, err
	}
	weighted := round1(accuracyImpact * phaseWeight(phase))

	var mateInAfter *int
	if whiteAfterPlayed.IsMate() {
		m := whiteAfterPlayed.Mate
		mateInAfter = &m
	}

	return models.MoveClassification{
		Label:          label,
		Cpl:            cpl,
		LossWinPct:     lossWin,
		GapWinPct:      gapWin,
		SwingWinPct:    swingWin,
		PlayedIsBest:   playedIsBest,
		Phase:          phase,
		AccuracyImpact: accuracyImpact,
		WeightedImpact: weighted,
		BestMove:       probe.BestMove,
		EvalBefore:     projectForUI(whiteBeforeBest),
		EvalAfter:      projectForUI(whiteAfterPlayed),
		MateInAfter:    mateInAfter,
	}, nil
}
