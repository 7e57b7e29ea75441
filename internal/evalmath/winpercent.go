// Package evalmath holds the pure scoring math shared by the suggestion
// builder and the move classifier (spec §4.4): POV normalization, the
// win-percent curve, and the loss/gap/swing metrics derived from it.
// Every exported function here is a pure function of its arguments — no
// engine I/O, no state — grounded on the teacher's LichessEvaluationService
// (internal/services/lichess_evaluation.go), trimmed to the exact formulas
// the spec calls for and dropped of the teacher's smoothing/windowing
// pipeline (that pipeline served a different, session-history shaped
// problem; nothing in this spec replays a move-by-move evaluation history).
package evalmath

import (
	"math"

	"github.com/chesslab/analysisd/internal/models"
)

// sigmoidCoefficient is Lichess's empirical constant, carried over from the
// teacher verbatim (see lichess_evaluation.go).
const sigmoidCoefficient = -0.00368208

// ToWhitePOV flips a side-to-move-relative score to White's perspective.
// Mate-N's sign flips along with the centipawn case; mate distance (the
// magnitude) never changes.
func ToWhitePOV(score models.Score, sideToMove models.Color) models.Score {
	if sideToMove == models.White {
		return score
	}
	if score.IsMate() {
		return models.MateScore(-score.Mate)
	}
	return models.CPScore(-score.CP)
}

// ScoreToWinPercent implements the exact Lichess curve (spec §4.4):
//
//	50 + 50 * (2/(1+exp(-0.00368208*cp)) - 1)
//
// for centipawn scores, and the degenerate 0/100 cases for mate. score must
// already be in White POV; the result is also White POV, in [0, 100].
func ScoreToWinPercent(score models.Score) float64 {
	if score.IsMate() {
		if score.MateForWhite() {
			return 100
		}
		return 0
	}
	cp := float64(score.CP)
	exponent := sigmoidCoefficient * cp
	switch {
	case exponent > 700:
		return 0
	case exponent < -700:
		return 100
	}
	inner := 2/(1+math.Exp(exponent)) - 1
	return 50 + 50*inner
}

// MateToCp projects a mate-in-N count onto the centipawn axis so it can be
// compared numerically against a regular centipawn score (spec §4.4):
//
//	sign(n) * (100000 - 1000*|n|)
func MateToCp(n int) int {
	dist := n
	if dist < 0 {
		dist = -dist
	}
	cp := 100000 - 1000*dist
	if n < 0 {
		return -cp
	}
	return cp
}

// WinPercentForPlayer re-orients a White-POV score to the given player's
// win-percent, so loss/gap/swing (and the classifier's Brilliant check) can
// be expressed as "this many percentage points in the player's favor"
// regardless of color.
func WinPercentForPlayer(score models.Score, player models.Color) float64 {
	whitePct := ScoreToWinPercent(score)
	if player == models.White {
		return whitePct
	}
	return 100 - whitePct
}

// LossWinForPlayer is how many win-percent points the player gave up by
// playing `played` instead of `best` — always >= 0 in a well-formed input
// (best is, by construction, at least as good as played).
func LossWinForPlayer(player models.Color, best, played models.Score) float64 {
	loss := WinPercentForPlayer(best, player) - WinPercentForPlayer(played, player)
	if loss < 0 {
		loss = 0
	}
	return loss
}

// GapWinForPlayer is the win-percent gap between the best and second-best
// line, from the player's perspective — the same computation as
// LossWinForPlayer, just over a different score pair.
func GapWinForPlayer(player models.Color, best, secondBest models.Score) float64 {
	return LossWinForPlayer(player, best, secondBest)
}

// SwingWinForPlayer is the absolute win-percent movement between the
// position before the move and the position after the played move, from the
// player's perspective — used to flag turning points regardless of sign.
func SwingWinForPlayer(player models.Color, before, afterPlayed models.Score) float64 {
	return math.Abs(WinPercentForPlayer(before, player) - WinPercentForPlayer(afterPlayed, player))
}
