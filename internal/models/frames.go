package models

// ClientFrameType enumerates the discriminant values accepted on the wire
// (spec §6). Any type value outside this set is rejected as
// unknown_message_type rather than silently dropped.
type ClientFrameType string

const (
	ClientFrameAuth        ClientFrameType = "auth"
	ClientFrameAnalyze     ClientFrameType = "analyze"     // legacy one-shot suggestion
	ClientFrameSuggestion  ClientFrameType = "suggestion"
	ClientFrameAnalyzeNew  ClientFrameType = "analyze_new"
)

// ServerFrameType enumerates the discriminant values this server emits.
type ServerFrameType string

const (
	ServerFrameReady           ServerFrameType = "ready"
	ServerFrameAuthSuccess     ServerFrameType = "auth_success"
	ServerFrameAuthError       ServerFrameType = "auth_error"
	ServerFrameResult          ServerFrameType = "result"
	ServerFrameSuggestion      ServerFrameType = "suggestion_result"
	ServerFrameAnalysisResult  ServerFrameType = "analysis_result"
	ServerFrameAnalysisError   ServerFrameType = "analysis_error"
	ServerFrameError           ServerFrameType = "error"
	ServerFrameVersionError    ServerFrameType = "version_error"
)

// ErrorKind is the closed set of error kinds surfaced to clients (spec §7).
// "canceled" is intentionally absent: it is internal only and never sent.
type ErrorKind string

const (
	ErrInvalidJSON         ErrorKind = "invalid_json"
	ErrUnknownMessageType  ErrorKind = "unknown_message_type"
	ErrUnauthenticated     ErrorKind = "unauthenticated"
	ErrAuthFailed          ErrorKind = "auth_failed"
	ErrVersionOutdated     ErrorKind = "version_outdated"
	ErrInvalidRequest      ErrorKind = "invalid_request"
	ErrEngineTimeout       ErrorKind = "engine_timeout"
	ErrEngineCrash         ErrorKind = "engine_crash"
	ErrInternal            ErrorKind = "internal"
)

// VersionInfo is carried on the ready frame.
type VersionInfo struct {
	MinVersion  string `json:"minVersion"`
	DownloadURL string `json:"downloadUrl"`
}

// ReadyFrame is sent unconditionally on connect.
type ReadyFrame struct {
	Type    ServerFrameType `json:"type"`
	Version VersionInfo     `json:"version"`
}

// AuthFrame is the client's credential presentation.
type AuthFrame struct {
	Type    ClientFrameType `json:"type"`
	Token   string          `json:"token"`
	Version string          `json:"version,omitempty"`
}

// UserInfo is the verified identity returned by the auth verifier.
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AuthSuccessFrame confirms authentication.
type AuthSuccessFrame struct {
	Type ServerFrameType `json:"type"`
	User UserInfo        `json:"user"`
}

// AuthErrorFrame rejects authentication; the session is then closed.
type AuthErrorFrame struct {
	Type   ServerFrameType `json:"type"`
	Reason string          `json:"reason"`
}

// ErrorFrame is the generic error envelope for requestId-scoped failures
// that are not analysis-specific.
type ErrorFrame struct {
	Type      ServerFrameType `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Kind      ErrorKind       `json:"kind"`
	Message   string          `json:"message"`
}

// AnalyzeRequestFrame covers both the legacy "analyze" and "suggestion"
// client message types, which share a schema.
type AnalyzeRequestFrame struct {
	Type        ClientFrameType `json:"type"`
	RequestID   string          `json:"requestId"`
	FEN         string          `json:"fen"`
	Moves       []string        `json:"moves"`
	TargetElo   int             `json:"targetElo"`
	Personality string          `json:"personality"`
	MultiPV     int             `json:"multiPv"`
	Contempt    int             `json:"contempt"`
}

// SuggestionResultFrame is the suggestion_result / legacy result payload.
type SuggestionResultFrame struct {
	Type         ServerFrameType  `json:"type"`
	RequestID    string           `json:"requestId"`
	FEN          string           `json:"fen"`
	PositionEval *int             `json:"positionEval,omitempty"`
	MateIn       *int             `json:"mateIn,omitempty"`
	WinRate      *float64         `json:"winRate,omitempty"`
	Suggestions  []SuggestionMove `json:"suggestions"`
}

// AnalyzeNewRequestFrame is the classification request schema.
type AnalyzeNewRequestFrame struct {
	Type          ClientFrameType `json:"type"`
	RequestID     string          `json:"requestId"`
	FENBefore     string          `json:"fenBefore"`
	FENAfter      string          `json:"fenAfter"`
	Move          string          `json:"move"`
	Moves         []string        `json:"moves"`
	PlayerColor   string          `json:"playerColor"`
	TargetElo     int             `json:"targetElo"`
	IsBookMove    bool            `json:"isBookMove,omitempty"`
}

// AnalysisResultFrame is the analysis_result payload.
type AnalysisResultFrame struct {
	Type           ServerFrameType     `json:"type"`
	RequestID      string              `json:"requestId"`
	Move           string              `json:"move"`
	Classification ClassificationLabel `json:"classification"`
	Cpl            float64             `json:"cpl"`
	AccuracyImpact float64             `json:"accuracyImpact"`
	WeightedImpact float64             `json:"weightedImpact"`
	Phase          GamePhase           `json:"phase"`
	BestMove       string              `json:"bestMove"`
	EvalBefore     int                 `json:"evalBefore"`
	EvalAfter      int                 `json:"evalAfter"`
	MateInAfter    *int                `json:"mateInAfter,omitempty"`
}

// AnalysisErrorFrame reports a classification-specific failure.
type AnalysisErrorFrame struct {
	Type      ServerFrameType `json:"type"`
	RequestID string          `json:"requestId"`
	Kind      ErrorKind       `json:"kind"`
	Message   string          `json:"message"`
}

// VersionErrorFrame closes the connection with code 4002.
type VersionErrorFrame struct {
	Type       ServerFrameType `json:"type"`
	MinVersion string          `json:"minVersion"`
}

// RawFrame is the minimal envelope used to sniff a frame's "type" before
// unmarshaling into its concrete shape.
type RawFrame struct {
	Type ClientFrameType `json:"type"`
}
