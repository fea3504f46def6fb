package ir

// Version constants for the graph IR and engine.
const (
	// IRVersion is the graph description schema version.
	IRVersion = "1"

	// EngineVersion is the cortex engine version.
	EngineVersion = "0.1.0"
)
