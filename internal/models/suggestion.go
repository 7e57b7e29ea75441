package models

// BlunderRisk classifies how dangerous a suggested alternative is relative
// to the best line, at thresholds that scale with target ELO (spec §4.5).
type BlunderRisk string

const (
	RiskLow    BlunderRisk = "low"
	RiskMedium BlunderRisk = "medium"
	RiskHigh   BlunderRisk = "high"
)

// SuggestionLabel is the human-facing tag attached to a ranked suggestion.
type SuggestionLabel string

const (
	LabelBest  SuggestionLabel = "Best"
	LabelSafe  SuggestionLabel = "Safe"
	LabelRisky SuggestionLabel = "Risky"
	LabelHuman SuggestionLabel = "Human"
	LabelAlt   SuggestionLabel = "Alt"
)

// MoveFlags are single-ply attributes computed by simulating the move on
// the board (internal/suggestion, backed by github.com/notnil/chess).
type MoveFlags struct {
	IsMate          bool
	IsCheck         bool
	IsCapture       bool
	CapturedPiece   string // empty when IsCapture is false
	IsPromotion     bool
	PromotionPiece  string // empty when IsPromotion is false
}

// MoveSafety captures the risk assessment for a suggested move.
type MoveSafety struct {
	BlunderRisk BlunderRisk
	MateThreat  bool
}

// SuggestionMove is one ranked candidate in a suggestion_result response.
// Rank 1 always has CpDelta == 0 and Label == LabelBest.
type SuggestionMove struct {
	Rank    int
	Move    string
	Score   Score // White-POV
	CpDelta int   // <= 0, gap behind best in cp, player's perspective
	PV      []string // capped at 10 plies
	Depth   int
	Flags   MoveFlags
	Safety  MoveSafety
	Label   SuggestionLabel
}

// SuggestionResult is the position-level summary plus ranked candidates
// returned for a kind=suggestion job.
type SuggestionResult struct {
	FEN          string
	PositionEval *int // side-to-move POV cp; nil when rank-1 is mate
	MateIn       *int
	WinRate      *float64
	Suggestions  []SuggestionMove
}
