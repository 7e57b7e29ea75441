// Package suggestion builds the ranked-candidate response for a
// kind=suggestion analyze job (spec §4.5): job configuration from a
// caller's request, and result assembly from the engine's multi-PV output.
// Grounded on the teacher's UCI option wiring in
// internal/services/stockfish.go (Hash/Contempt/UCI_Elo plumbing) and its
// chess.go move-to-UCI helpers for the board-simulation half.
package suggestion

import (
	"fmt"

	"github.com/notnil/chess"

	"github.com/chesslab/analysisd/internal/evalmath"
	"github.com/chesslab/analysisd/internal/models"
)

// Request is the caller-supplied input for one suggestion job.
type Request struct {
	ID                   string
	FEN                  string
	Moves                []string
	MultiPV              int
	TargetElo            int
	HashMB               int
	Skill                int
	ContemptCp           int
	Personality          models.Personality
	DisableLimitStrength bool
	IsBookMove           bool
}

// maxMultiPV is the spec §3 invariant ceiling: multiPV ∈ [1..8].
const maxMultiPV = 8

// BuildJob turns a caller Request into the AnalyzeJob the pool dispatches
// (spec §4.5 Configuration). limitStrength=true and UCI_Elo=targetElo
// unless the caller asked to disable strength limiting AND is already
// rated 2000+ — only users at expert tier may request full-strength play.
func BuildJob(req Request) models.AnalyzeJob {
	limitStrength := true
	if req.DisableLimitStrength && req.TargetElo >= 2000 {
		limitStrength = false
	}
	multiPV := req.MultiPV
	if multiPV < 1 {
		multiPV = 1
	} else if multiPV > maxMultiPV {
		multiPV = maxMultiPV
	}
	return models.AnalyzeJob{
		ID:                   req.ID,
		FEN:                  req.FEN,
		Moves:                req.Moves,
		SearchMode:           models.SearchModeTime,
		DepthOrTimeMs:        ComputeMovetimeForElo(req.TargetElo),
		MultiPV:              multiPV,
		TargetElo:            req.TargetElo,
		Personality:          req.Personality,
		HashMB:               req.HashMB,
		Skill:                req.Skill,
		ContemptCp:           req.ContemptCp,
		LimitStrength:        limitStrength,
		Kind:                 models.KindSuggestion,
		IsBookMove:           req.IsBookMove,
		DisableLimitStrength: req.DisableLimitStrength,
	}
}

// ComputeMovetimeForElo chooses search time in milliseconds, monotone
// non-decreasing in elo (spec §4.5): lower-rated players get fast, shallow
// suggestions so sessions stay responsive; higher-rated players get the
// deeper search they can actually make use of.
func ComputeMovetimeForElo(elo int) int {
	switch {
	case elo < 1000:
		return 500
	case elo < 1400:
		return 800
	case elo < 1800:
		return 1200
	case elo < 2200:
		return 1800
	default:
		return 2500
	}
}

// cpAxis projects a score onto a single comparable centipawn axis, using
// evalmath.MateToCp for mate scores (spec §4.4/§4.5 dropCp computation).
func cpAxis(s models.Score) int {
	if s.IsMate() {
		return evalmath.MateToCp(s.Mate)
	}
	return s.CP
}

// blunderRisk classifies a candidate's centipawn drop behind the best line,
// at thresholds that scale with target ELO (spec §4.5).
func blunderRisk(dropCp int, targetElo int) models.BlunderRisk {
	var low, medium int
	switch {
	case targetElo < 1200:
		low, medium = 150, 400
	case targetElo <= 1800:
		low, medium = 100, 300
	default:
		low, medium = 60, 200
	}
	switch {
	case dropCp <= low:
		return models.RiskLow
	case dropCp <= medium:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

// maxPVPlies is the spec §3 SuggestionMove.PV cap.
const maxPVPlies = 10

// truncatePV caps a reported PV at maxPVPlies; the engine's own PV can run
// much deeper than clients need to render.
func truncatePV(moves []string) []string {
	if len(moves) <= maxPVPlies {
		return moves
	}
	return moves[:maxPVPlies]
}

func promoLetter(pt chess.PieceType) string {
	switch pt {
	case chess.Queen:
		return "q"
	case chess.Rook:
		return "r"
	case chess.Bishop:
		return "b"
	case chess.Knight:
		return "n"
	default:
		return ""
	}
}

// computeFlags simulates the candidate's first move on fen and reports its
// single-ply attributes (spec §4.5 step 4). isMate is taken from the
// engine's reported score, not from the board simulation — it asks "did
// the engine say this line mates", not "is this exact ply itself mate".
func computeFlags(fen string, moveUCI string, score models.Score) (models.MoveFlags, error) {
	fenOpt, err := chess.FEN(fen)
	if err != nil {
		return models.MoveFlags{}, fmt.Errorf("suggestion: invalid FEN %q: %w", fen, err)
	}
	game := chess.NewGame(fenOpt)
	mv, err := chess.UCINotation{}.Decode(game.Position(), moveUCI)
	if err != nil {
		return models.MoveFlags{}, fmt.Errorf("suggestion: decode move %q: %w", moveUCI, err)
	}

	flags := models.MoveFlags{
		IsCheck:   mv.HasTag(chess.Check),
		IsCapture: mv.HasTag(chess.Capture) || mv.HasTag(chess.EnPassant),
		IsMate:    score.IsMate() && score.Mate > 0,
	}
	if flags.IsCapture {
		capSq := mv.S2()
		if mv.HasTag(chess.EnPassant) {
			// The captured pawn sits behind the destination square (same
			// file as S2, same rank as S1), not on S2 itself — S2 is empty
			// until the capturing pawn lands there.
			capSq = chess.NewSquare(mv.S2().File(), mv.S1().Rank())
		}
		captured := game.Position().Board().Piece(capSq)
		flags.CapturedPiece = pieceLetter(captured)
	}
	if mv.Promo() != chess.NoPieceType {
		flags.IsPromotion = true
		flags.PromotionPiece = promoLetter(mv.Promo())
	}
	return flags, nil
}

func pieceLetter(p chess.Piece) string {
	switch p.Type() {
	case chess.Pawn:
		return "p"
	case chess.Knight:
		return "n"
	case chess.Bishop:
		return "b"
	case chess.Rook:
		return "r"
	case chess.Queen:
		return "q"
	case chess.King:
		return "k"
	default:
		return ""
	}
}

// sideToMoveFromFEN returns the color to move, defaulting to White on a
// malformed FEN (callers are expected to have already validated the FEN
// before reaching this point; this keeps BuildResult total).
func sideToMoveFromFEN(fen string) models.Color {
	fenOpt, err := chess.FEN(fen)
	if err != nil {
		return models.White
	}
	pos := chess.NewGame(fenOpt).Position()
	if pos.Turn() == chess.Black {
		return models.Black
	}
	return models.White
}

// BuildResult assembles the position-level summary and ranked candidates
// for a completed suggestion job (spec §4.5). Lines must be ordered by
// MultiPVRank ascending, as internal/engine guarantees.
func BuildResult(job models.AnalyzeJob, result models.AnalyzeResult) models.SuggestionResult {
	side := sideToMoveFromFEN(job.FEN)

	out := models.SuggestionResult{FEN: job.FEN}
	if len(result.Lines) == 0 {
		return out
	}

	rank1Raw := result.Lines[0].Score
	rank1Cp := cpAxis(rank1Raw)

	if rank1Raw.IsMate() {
		mateIn := rank1Raw.Mate
		out.MateIn = &mateIn
	} else {
		eval := rank1Cp
		out.PositionEval = &eval
	}
	whiteRank1 := evalmath.ToWhitePOV(rank1Raw, side)
	winRate := evalmath.ScoreToWinPercent(whiteRank1)
	out.WinRate = &winRate

	out.Suggestions = make([]models.SuggestionMove, 0, len(result.Lines))
	for _, line := range result.Lines {
		var move string
		if len(line.Moves) > 0 {
			move = line.Moves[0]
		}

		dropCp := rank1Cp - cpAxis(line.Score)
		if dropCp < 0 {
			dropCp = 0
		}
		cpDelta := 0
		if line.MultiPVRank != 1 {
			cpDelta = -dropCp
		}

		risk := blunderRisk(dropCp, job.TargetElo)

		label := models.LabelSafe
		if line.MultiPVRank == 1 {
			label = models.LabelBest
		} else if risk != models.RiskLow {
			label = models.LabelRisky
		}

		flags, err := computeFlags(job.FEN, move, line.Score)
		if err != nil {
			// A move the engine itself reported failed to simulate — surface
			// it with zero-value flags rather than dropping the candidate.
			flags = models.MoveFlags{}
		}

		out.Suggestions = append(out.Suggestions, models.SuggestionMove{
			Rank:    line.MultiPVRank,
			Move:    move,
			Score:   evalmath.ToWhitePOV(line.Score, side),
			CpDelta: cpDelta,
			PV:      truncatePV(line.Moves),
			Depth:   line.Depth,
			Flags:   flags,
			Safety: models.MoveSafety{
				BlunderRisk: risk,
				MateThreat:  flags.IsMate,
			},
			Label: label,
		})
	}

	return out
}
