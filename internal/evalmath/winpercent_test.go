package evalmath

import (
	"math"
	"testing"

	"github.com/chesslab/analysisd/internal/models"
)

func TestScoreToWinPercentCP(t *testing.T) {
	cases := []struct {
		cp       int
		expected float64
		toler    float64
	}{
		{0, 50.0, 0.1},
		{100, 59.1, 0.5},
		{-100, 40.9, 0.5},
		{500, 86.3, 0.5},
		{-500, 13.7, 0.5},
	}
	for _, c := range cases {
		got := ScoreToWinPercent(models.CPScore(c.cp))
		if math.Abs(got-c.expected) > c.toler {
			t.Errorf("cp=%d: want %.1f got %.1f", c.cp, c.expected, got)
		}
	}
}

func TestScoreToWinPercentMate(t *testing.T) {
	if got := ScoreToWinPercent(models.MateScore(3)); got != 100 {
		t.Fatalf("mate for white: want 100, got %v", got)
	}
	if got := ScoreToWinPercent(models.MateScore(-3)); got != 0 {
		t.Fatalf("mate for black: want 0, got %v", got)
	}
}

func TestMateToCp(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{
		{1, 99000},
		{-1, -99000},
		{10, 90000},
		{-10, -90000},
		{2, 98000},
	}
	for _, c := range cases {
		if got := MateToCp(c.n); got != c.want {
			t.Errorf("MateToCp(%d): want %d got %d", c.n, c.want, got)
		}
	}
}

func TestToWhitePOVFlipsSignKeepsMateDistance(t *testing.T) {
	got := ToWhitePOV(models.CPScore(50), models.Black)
	if got.CP != -50 {
		t.Fatalf("cp flip: got %+v", got)
	}
	same := ToWhitePOV(models.CPScore(50), models.White)
	if same.CP != 50 {
		t.Fatalf("white POV should be unchanged: got %+v", same)
	}
	mateFlip := ToWhitePOV(models.MateScore(4), models.Black)
	if !mateFlip.IsMate() || mateFlip.Mate != -4 {
		t.Fatalf("mate flip: got %+v", mateFlip)
	}
}

func TestLossWinForPlayerNeverNegative(t *testing.T) {
	// best and played equal -> loss is zero.
	loss := LossWinForPlayer(models.White, models.CPScore(100), models.CPScore(100))
	if loss != 0 {
		t.Fatalf("equal scores should give zero loss, got %v", loss)
	}
	// best better than played for White -> positive loss.
	loss = LossWinForPlayer(models.White, models.CPScore(300), models.CPScore(-100))
	if loss <= 0 {
		t.Fatalf("expected positive loss, got %v", loss)
	}
}

func TestGapWinForPlayerBlackPerspective(t *testing.T) {
	// best is a mate for black (White POV mate -2), second-best only cp 0:
	// black's gap should be large and positive.
	gap := GapWinForPlayer(models.Black, models.MateScore(-2), models.CPScore(0))
	if gap <= 0 {
		t.Fatalf("expected positive gap for black, got %v", gap)
	}
}

func TestSwingWinForPlayerIsAbsolute(t *testing.T) {
	a := SwingWinForPlayer(models.White, models.CPScore(200), models.CPScore(-200))
	b := SwingWinForPlayer(models.White, models.CPScore(-200), models.CPScore(200))
	if math.Abs(a-b) > 1e-9 {
		t.Fatalf("swing should be symmetric: %v vs %v", a, b)
	}
	if a <= 0 {
		t.Fatalf("expected positive swing, got %v", a)
	}
}
