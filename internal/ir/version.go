package ir

// Version constants recorded alongside persisted history.
const (
	// HashVersion identifies the structural hash layout. Persisted history
	// written under another layout is not reused.
	HashVersion = "1"

	// EngineVersion is the Horizon engine version.
	EngineVersion = "0.1.0"
)
