package models

// SearchMode selects whether a search is bounded by depth or by wall time.
type SearchMode int

const (
	SearchModeDepth SearchMode = iota
	SearchModeTime
)

// AnalyzeKind distinguishes the two shapes of analysis the pool serves.
type AnalyzeKind int

const (
	KindSuggestion AnalyzeKind = iota
	KindStats
)

// Personality is a closed, session-validated set of engine personality
// strings. The UCI "Personality" option is free-form engine-side, but per
// spec §9 ("Open question: personality values ... not fully enumerated")
// we enumerate the set we accept and reject anything else at the session
// edge rather than pass it through.
type Personality string

const (
	PersonalityDefault    Personality = "Default"
	PersonalityAggressive Personality = "Aggressive"
	PersonalityDefensive  Personality = "Defensive"
	PersonalitySolid      Personality = "Solid"
	PersonalityActive     Personality = "Active"
)

// ValidPersonalities enumerates the closed set accepted from clients.
var ValidPersonalities = map[Personality]bool{
	PersonalityDefault:    true,
	PersonalityAggressive: true,
	PersonalityDefensive:  true,
	PersonalitySolid:      true,
	PersonalityActive:     true,
}

// AnalyzeJob is immutable once enqueued; it is the unit the pool dispatches
// to a driver.
type AnalyzeJob struct {
	ID             string
	FEN            string
	Moves          []string
	SearchMode     SearchMode
	DepthOrTimeMs  int
	MultiPV        int
	TargetElo      int
	Personality    Personality
	HashMB         int // resized on the driver only when it differs from the last value sent
	Skill          int
	ContemptCp     int
	LimitStrength  bool
	Kind           AnalyzeKind
	IsBookMove     bool // supplied by caller; no opening book is maintained server-side

	// DisableLimitStrength requests full engine strength instead of
	// UCI_Elo-capped play. Honored only when TargetElo >= 2000 (spec §4.5):
	// only callers already at expert tier may opt out of strength limiting.
	DisableLimitStrength bool
}

// PVLine is a single principal variation as reported by the engine. It is
// only valid for the lifetime of one analyze call: scores are raw,
// engine-emitted, side-to-move POV until normalized by internal/evalmath.
type PVLine struct {
	MultiPVRank int
	Depth       int
	SelDepth    int
	Score       Score
	Moves       []string
}

// AnalyzeResult is constructed by the engine driver and consumed by the
// suggestion builder / classifier, then discarded.
type AnalyzeResult struct {
	BestMove string
	Lines    []PVLine // ordered by MultiPVRank ascending
	Depth    int
	TimeMs   int
}

// EngineOptions mirrors the UCI options this server drives, applied in the
// fixed order mandated by spec §4.2: Hash, UCI_LimitStrength, UCI_Elo,
// Personality, MultiPV, Skill, Contempt.
type EngineOptions struct {
	Threads     int
	HashMB      int
	Personality Personality
	Skill       int
	Contempt    int
}
