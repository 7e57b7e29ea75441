package evalmath

import (
	"testing"

	"github.com/chesslab/analysisd/internal/models"
)

func TestComputeMaterialDeltaCapture(t *testing.T) {
	// White knight on e4 takes a black pawn on d6: White's own material is
	// unchanged by capturing (the captured piece was Black's), so White's
	// delta should be zero and Black's should be negative.
	fen := "4k3/8/3p4/8/4N3/8/8/4K3 w - - 0 1"
	delta, err := ComputeMaterialDelta(fen, "e4d6", models.White)
	if err != nil {
		t.Fatalf("ComputeMaterialDelta: %v", err)
	}
	if delta != 0 {
		t.Fatalf("white's own material should be unchanged by a capture, got %d", delta)
	}
}

func TestComputeMaterialDeltaQuietMove(t *testing.T) {
	// A plain non-capturing queen move leaves White's own material
	// untouched (delta 0).
	fen := "4k3/8/8/8/4Q3/8/8/4K3 w - - 0 1"
	delta, err := ComputeMaterialDelta(fen, "e4e5", models.White)
	if err != nil {
		t.Fatalf("ComputeMaterialDelta: %v", err)
	}
	if delta != 0 {
		t.Fatalf("expected no material change for a quiet queen move, got %d", delta)
	}
}

func TestComputeMaterialDeltaInvalidFEN(t *testing.T) {
	if _, err := ComputeMaterialDelta("not a fen", "e2e4", models.White); err == nil {
		t.Fatal("expected error for invalid FEN")
	}
}

func TestDetectPhaseOpening(t *testing.T) {
	phase, err := DetectPhase("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	if err != nil {
		t.Fatalf("DetectPhase: %v", err)
	}
	if phase != models.PhaseOpening {
		t.Fatalf("starting position should be opening, got %v", phase)
	}
}

func TestDetectPhaseEndgame(t *testing.T) {
	// Bare kings plus one white rook: far below the 0.35 middlegame floor.
	phase, err := DetectPhase("4k3/8/8/8/8/8/8/4K2R w K - 0 1")
	if err != nil {
		t.Fatalf("DetectPhase: %v", err)
	}
	if phase != models.PhaseEndgame {
		t.Fatalf("bare-king-plus-rook position should be endgame, got %v", phase)
	}
}

func TestDetectPhaseMiddlegame(t *testing.T) {
	// Queens, a knight, a bishop and two pawns gone from each side: 44/78
	// of starting material remains, comfortably inside (0.35, 0.85].
	fen := "r1b1k2r/ppp2ppp/2n5/8/8/2N5/PPP2PPP/R1B1K2R w KQkq - 0 1"
	phase, err := DetectPhase(fen)
	if err != nil {
		t.Fatalf("DetectPhase: %v", err)
	}
	if phase != models.PhaseMiddlegame {
		t.Fatalf("expected middlegame, got %v", phase)
	}
}
