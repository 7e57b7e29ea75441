package evalmath

import (
	"fmt"

	"github.com/notnil/chess"

	"github.com/chesslab/analysisd/internal/models"
)

// pieceValues mirrors the teacher's CalculateMaterialValue table
// (internal/services/chess.go) — the conventional {P:1,N:3,B:3,R:5,Q:9,K:0}
// scale named by spec §4.4.
var pieceValues = map[chess.PieceType]int{
	chess.Pawn:   1,
	chess.Knight: 3,
	chess.Bishop: 3,
	chess.Rook:   5,
	chess.Queen:  9,
	chess.King:   0,
}

func materialFor(pos *chess.Position, color chess.Color) int {
	total := 0
	board := pos.Board()
	for sq := chess.A1; sq <= chess.H8; sq++ {
		piece := board.Piece(sq)
		if piece.Color() == color {
			total += pieceValues[piece.Type()]
		}
	}
	return total
}

func toChessColor(c models.Color) chess.Color {
	if c == models.White {
		return chess.White
	}
	return chess.Black
}

// ComputeMaterialDelta applies move (UCI notation, e.g. "e2e4" or "e7e8q")
// to fenBefore and returns newSideMaterial - oldSideMaterial for sidePlayed
// (spec §4.4). A negative delta flags a sacrifice.
func ComputeMaterialDelta(fenBefore string, move string, sidePlayed models.Color) (int, error) {
	fenOpt, err := chess.FEN(fenBefore)
	if err != nil {
		return 0, fmt.Errorf("evalmath: invalid FEN %q: %w", fenBefore, err)
	}
	game := chess.NewGame(fenOpt)
	before := materialFor(game.Position(), toChessColor(sidePlayed))

	if err := game.PushNotationMove(move, chess.UCINotation{}, nil); err != nil {
		return 0, fmt.Errorf("evalmath: apply move %q: %w", move, err)
	}
	after := materialFor(game.Position(), toChessColor(sidePlayed))

	return after - before, nil
}

// totalBoardMaterial is the denominator detectPhase scales against: the sum
// of all piece values on a full starting board excluding kings
// (2*(8*1 + 2*3 + 2*3 + 2*5 + 1*9) = 78), per spec §4.4.
const totalBoardMaterial = 78

// DetectPhase classifies a position's game phase from remaining material
// (spec §4.4): ratio of material still on the board (kings excluded) to the
// starting total, thresholds >0.85 opening, >0.35 middlegame, else endgame.
func DetectPhase(fen string) (models.GamePhase, error) {
	fenOpt, err := chess.FEN(fen)
	if err != nil {
		return "", fmt.Errorf("evalmath: invalid FEN %q: %w", fen, err)
	}
	pos := chess.NewGame(fenOpt).Position()
	remaining := materialFor(pos, chess.White) + materialFor(pos, chess.Black)
	ratio := float64(remaining) / float64(totalBoardMaterial)

	switch {
	case ratio > 0.85:
		return models.PhaseOpening, nil
	case ratio > 0.35:
		return models.PhaseMiddlegame, nil
	default:
		return models.PhaseEndgame, nil
	}
}
