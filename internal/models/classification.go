package models

// ClassificationLabel is the move-quality tag attached to one played ply.
type ClassificationLabel string

const (
	ClassBrilliant  ClassificationLabel = "Brilliant"
	ClassGreat      ClassificationLabel = "Great"
	ClassBest       ClassificationLabel = "Best"
	ClassExcellent  ClassificationLabel = "Excellent"
	ClassGood       ClassificationLabel = "Good"
	ClassBook       ClassificationLabel = "Book"
	ClassInaccuracy ClassificationLabel = "Inaccuracy"
	ClassMistake    ClassificationLabel = "Mistake"
	ClassBlunder    ClassificationLabel = "Blunder"
)

// GamePhase is the coarse phase detected from remaining material.
type GamePhase string

const (
	PhaseOpening    GamePhase = "opening"
	PhaseMiddlegame GamePhase = "middlegame"
	PhaseEndgame    GamePhase = "endgame"
)

// MoveClassification is the full verdict for a single played ply.
type MoveClassification struct {
	Label          ClassificationLabel
	Cpl            float64 // >= 0
	LossWinPct     float64
	GapWinPct      float64
	SwingWinPct    float64
	PlayedIsBest   bool
	Phase          GamePhase
	AccuracyImpact float64 // [0..40]
	WeightedImpact float64
	BestMove       string
	EvalBefore     int  // White-POV cp, mate projected to +/-10000
	EvalAfter      int  // White-POV cp, mate projected to +/-10000
	MateInAfter    *int // signed mate distance, nil when AfterPlayed isn't mate
}

// ClassifyRequest bundles everything the classifier needs for one ply.
type ClassifyRequest struct {
	FENBefore     string
	FENAfter      string
	Move          string
	PlayedMoves   []string // plies up to and including Move
	PlayerIsWhite bool
	TargetElo     int
	IsBookMove    bool
}
