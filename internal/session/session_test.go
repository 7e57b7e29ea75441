package session

import (
	"errors"
	"testing"

	"github.com/chesslab/analysisd/internal/engine"
	"github.com/chesslab/analysisd/internal/models"
)

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.2", "1.2.0", 0},
		{"0.9.0", "1.0.0", -1},
		{"1.1.0", "1.0.9", 1},
		{"2.0.0", "1.9.9", 1},
	}
	for _, c := range cases {
		got := compareVersions(c.a, c.b)
		if (got < 0) != (c.want < 0) || (got > 0) != (c.want > 0) || (got == 0) != (c.want == 0) {
			t.Errorf("compareVersions(%q, %q) = %d, want sign of %d", c.a, c.b, got, c.want)
		}
	}
}

func TestPoolErrKindMapsEngineSentinels(t *testing.T) {
	if got := poolErrKind(engine.ErrEngineCrash); got != models.ErrEngineCrash {
		t.Fatalf("crash: %v", got)
	}
	if got := poolErrKind(engine.ErrEngineTimeout); got != models.ErrEngineTimeout {
		t.Fatalf("timeout: %v", got)
	}
	if got := poolErrKind(errors.New("boom")); got != models.ErrInternal {
		t.Fatalf("default: %v", got)
	}
}
