// Package calibration is the offline diagnostic companion to
// internal/classifier (SPEC_FULL "Calibration tool" expansion), adapted
// from the teacher's internal/services/calibration.go: both replay a
// corpus of real moves through the engine, bucket outcomes by player
// rating, and report percentile statistics for comparison against the
// fixed thresholds the request path uses. Unlike the teacher, which fed a
// PGN archive into its own expected-points service, this tool consumes a
// directory of FEN/move records directly (no opening-book or PGN-header
// dependency) and measures this system's own centipawn-loss metric
// (internal/classifier.Cpl), since the production classifier's
// thresholds are fixed and not derived from this data at runtime — this
// is a regression/comparison aid, not a calibration feedback loop.
package calibration

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chesslab/analysisd/internal/classifier"
	"github.com/chesslab/analysisd/internal/models"
	"github.com/chesslab/analysisd/internal/pool"
)

// RatingBucket groups records by the rating of the player who made the move.
type RatingBucket string

const (
	Bucket800to1200   RatingBucket = "800-1200"
	Bucket1201to1600  RatingBucket = "1201-1600"
	Bucket1601to2000  RatingBucket = "1601-2000"
	Bucket2001Plus    RatingBucket = "2001+"
)

func bucketFor(rating int) RatingBucket {
	switch {
	case rating >= 2001:
		return Bucket2001Plus
	case rating >= 1601:
		return Bucket1601to2000
	case rating >= 1201:
		return Bucket1201to1600
	default:
		return Bucket800to1200
	}
}

// Record is one played ply in the calibration corpus.
type Record struct {
	FENBefore     string `json:"fenBefore"`
	FENAfter      string `json:"fenAfter"`
	Move          string `json:"move"`
	PlayerIsWhite bool   `json:"playerIsWhite"`
	Rating        int    `json:"rating"`
	IsBookMove    bool   `json:"isBookMove"`
}

// Thresholds is the percentile breakdown of Cpl for one rating bucket.
type Thresholds struct {
	P1  float64 `json:"p1"`
	P5  float64 `json:"p5"`
	P10 float64 `json:"p10"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
}

// LoadCorpus reads every *.json file in dir, each holding a JSON array of
// Records, and concatenates them.
func LoadCorpus(dir string) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("calibration: read corpus dir: %w", err)
	}

	var all []Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("calibration: read %s: %w", e.Name(), err)
		}
		var records []Record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("calibration: parse %s: %w", e.Name(), err)
		}
		all = append(all, records...)
	}
	return all, nil
}

// objectiveMovetimeMs is the fixed search budget used for every calibration
// probe, independent of player rating: calibration measures the player's
// own deviation from near-full engine strength, not engine play at the
// player's own target elo.
const objectiveMovetimeMs = 1000

// probe runs the classifier's two-call pipeline (spec §4.6) against the
// pool at full engine strength and returns the resulting verdict.
func probe(ctx context.Context, p *pool.Pool, r Record) (models.MoveClassification, error) {
	engineOpts := p.EngineOptions()
	beforeJob := models.AnalyzeJob{
		FEN: r.FENBefore, MultiPV: 2, SearchMode: models.SearchModeTime,
		DepthOrTimeMs: objectiveMovetimeMs, LimitStrength: false, Kind: models.KindStats,
		HashMB: engineOpts.HashMB, Skill: engineOpts.Skill,
	}
	afterJob := models.AnalyzeJob{
		FEN: r.FENAfter, MultiPV: 1, SearchMode: models.SearchModeTime,
		DepthOrTimeMs: objectiveMovetimeMs, LimitStrength: false, Kind: models.KindStats,
		HashMB: engineOpts.HashMB, Skill: engineOpts.Skill,
	}

	before, err := p.SubmitAndWait(ctx, beforeJob)
	if err != nil {
		return models.MoveClassification{}, fmt.Errorf("calibration: before-probe: %w", err)
	}
	after, err := p.SubmitAndWait(ctx, afterJob)
	if err != nil {
		return models.MoveClassification{}, fmt.Errorf("calibration: after-probe: %w", err)
	}

	ep := classifier.BuildEngineProbe(before, after)

	return classifier.Classify(models.ClassifyRequest{
		FENBefore:     r.FENBefore,
		FENAfter:      r.FENAfter,
		Move:          r.Move,
		PlayerIsWhite: r.PlayerIsWhite,
		IsBookMove:    r.IsBookMove,
	}, ep)
}

// Run replays every record through the pool and buckets the resulting Cpl
// by player rating. Records that fail to classify (malformed FEN, engine
// fault) are skipped and counted in skipped.
func Run(ctx context.Context, p *pool.Pool, records []Record) (cplByBucket map[RatingBucket][]float64, skipped int) {
	cplByBucket = make(map[RatingBucket][]float64)
	for _, r := range records {
		mc, err := probe(ctx, p, r)
		if err != nil {
			skipped++
			continue
		}
		bucket := bucketFor(r.Rating)
		cplByBucket[bucket] = append(cplByBucket[bucket], mc.Cpl)
	}
	return cplByBucket, skipped
}

// ComputeThresholds reduces per-bucket Cpl samples to percentile
// thresholds, using the teacher's linear-interpolation percentile rule.
func ComputeThresholds(cplByBucket map[RatingBucket][]float64) map[RatingBucket]Thresholds {
	out := make(map[RatingBucket]Thresholds, len(cplByBucket))
	for bucket, samples := range cplByBucket {
		sorted := append([]float64(nil), samples...)
		sort.Float64s(sorted)
		out[bucket] = Thresholds{
			P1:  percentile(sorted, 1),
			P5:  percentile(sorted, 5),
			P10: percentile(sorted, 10),
			P25: percentile(sorted, 25),
			P50: percentile(sorted, 50),
			P75: percentile(sorted, 75),
			P90: percentile(sorted, 90),
		}
	}
	return out
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper {
		return sorted[lower]
	}
	weight := idx - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// SaveThresholds writes per-bucket thresholds as indented JSON, creating
// the output directory if needed.
func SaveThresholds(path string, thresholds map[RatingBucket]Thresholds) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("calibration: mkdir %s: %w", dir, err)
		}
	}
	data, err := json.MarshalIndent(thresholds, "", "  ")
	if err != nil {
		return fmt.Errorf("calibration: marshal thresholds: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
