package trace

// EventType identifies a trace event variant.
type EventType string

const (
	EventCall        EventType = "call"
	EventReturn      EventType = "return"
	EventStateChange EventType = "state_change"
	EventCheck       EventType = "check"
	EventError       EventType = "error"
)

// Document is the on-disk trace format emitted by external collectors.
type Document struct {
	ID           string         `json:"id"`
	Name         string         `json:"name,omitempty"`
	Domain       string         `json:"domain,omitempty"`
	StartTime    int64          `json:"start_time,omitempty"`
	EndTime      int64          `json:"end_time,omitempty"`
	Events       []Event        `json:"events"`
	InitialState map[string]any `json:"initial_state,omitempty"`
	Metadata     Metadata       `json:"metadata,omitempty"`
}

// Event is a single trace event.
type Event struct {
	ID         string         `json:"id,omitempty"`
	Type       EventType      `json:"type"`
	Timestamp  int64          `json:"timestamp,omitempty"`
	Behavior   string         `json:"behavior,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
	Output     any            `json:"output,omitempty"`
	Error      *ErrorInfo     `json:"error,omitempty"`
	StateAfter map[string]any `json:"state_after,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// ErrorInfo carries the error detail of an error event.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Metadata describes the run that produced a trace.
type Metadata struct {
	TestName string `json:"test_name,omitempty"`
	Scenario string `json:"scenario,omitempty"`
	Passed   bool   `json:"passed"`
	Duration int64  `json:"duration,omitempty"`
}

// OutcomeSuccess is the outcome recorded when a behavior completed
// without an error event.
const OutcomeSuccess = "success"

// ExecutionTrace is the flattened evidence one behavior execution left
// behind: the terminal inputs/outputs plus the final observed state.
// Append-only once ingested.
type ExecutionTrace struct {
	// TraceID is the source document ID; evidence refs point at it.
	TraceID string `json:"trace_id"`

	Behavior string `json:"behavior"`

	// Outcome is OutcomeSuccess or the error code of the failing event.
	Outcome string `json:"outcome"`

	Inputs map[string]any `json:"inputs,omitempty"`

	// Outputs holds the structured return value. When the behavior
	// returned a non-object value it is stored under the "value" key so
	// bindings stay uniformly addressable.
	Outputs map[string]any `json:"outputs,omitempty"`

	State map[string]any `json:"state,omitempty"`
}
