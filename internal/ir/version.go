package ir

// Version constants for the result schema and engine.
const (
	// ResultVersion is the PipelineResult schema version.
	ResultVersion = "1"

	// EngineVersion is the trivet engine version.
	EngineVersion = "0.1.0"
)
