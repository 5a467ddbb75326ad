package trace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDoc() *Document {
	return &Document{
		ID:           "trace-1",
		Domain:       "UserService",
		InitialState: map[string]any{"userCount": float64(0)},
		Events: []Event{
			{Type: EventCall, Behavior: "CreateUser", Input: map[string]any{"email": "alice@example.com", "username": "alice"}},
			{Type: EventReturn, Behavior: "CreateUser", Output: map[string]any{"id": "u-1", "status": "ACTIVE"}},
			{Type: EventStateChange, Behavior: "CreateUser", StateAfter: map[string]any{"userCount": float64(1)}},
			{Type: EventCall, Behavior: "DeleteUser", Input: map[string]any{"user_id": "u-404"}},
			{Type: EventError, Behavior: "DeleteUser", Error: &ErrorInfo{Code: "NOT_FOUND", Message: "no such user"}},
		},
	}
}

func TestFlatten_OneTracePerBehavior(t *testing.T) {
	traces := Flatten(sampleDoc())
	require.Len(t, traces, 2)

	create := traces[0]
	assert.Equal(t, "trace-1", create.TraceID)
	assert.Equal(t, "CreateUser", create.Behavior)
	assert.Equal(t, OutcomeSuccess, create.Outcome)
	assert.Equal(t, "u-1", create.Outputs["id"])
	assert.Equal(t, float64(1), create.State["userCount"])

	del := traces[1]
	assert.Equal(t, "NOT_FOUND", del.Outcome)
	assert.Nil(t, del.Outputs)
}

func TestFlatten_StateFallsBackToInitialState(t *testing.T) {
	doc := &Document{
		ID:           "t",
		InitialState: map[string]any{"count": float64(7)},
		Events: []Event{
			{Type: EventCall, Behavior: "Read", Input: map[string]any{}},
			{Type: EventReturn, Behavior: "Read", Output: map[string]any{"count": float64(7)}},
		},
	}
	traces := Flatten(doc)
	require.Len(t, traces, 1)
	assert.Equal(t, float64(7), traces[0].State["count"])
}

func TestFlatten_NonObjectOutputWrappedAsValue(t *testing.T) {
	doc := &Document{
		ID: "t",
		Events: []Event{
			{Type: EventReturn, Behavior: "Count", Output: float64(42)},
		},
	}
	traces := Flatten(doc)
	require.Len(t, traces, 1)
	assert.Equal(t, float64(42), traces[0].Outputs["value"])
}

func TestFlatten_PreservesRecordedValues(t *testing.T) {
	doc := &Document{
		ID: "t",
		Events: []Event{
			{Type: EventCall, Behavior: "Login", Input: map[string]any{
				"email": "alice@example.com",
				"ip":    "192.168.10.20",
			}},
			{Type: EventReturn, Behavior: "Login", Output: map[string]any{"ok": true}},
		},
	}
	traces := Flatten(doc)
	require.Len(t, traces, 1)

	// Ingestion must not mask evidence: a clause comparing the exact
	// recorded value has to see that value, or a satisfied clause would
	// be refuted against data the execution never produced. Masking
	// happens when results are published, not here.
	assert.Equal(t, "alice@example.com", traces[0].Inputs["email"])
	assert.Equal(t, "192.168.10.20", traces[0].Inputs["ip"])
}

func TestLoadFile_DefaultsIDFromFilename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "create-user.json")
	payload := `{"events": [{"type": "return", "behavior": "CreateUser", "output": {"id": "u-1"}}]}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	traces, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(t, "create-user", traces[0].TraceID)
}

func TestLoadDir_DeterministicOrder(t *testing.T) {
	dir := t.TempDir()
	write := func(name, behavior string) {
		payload := `{"id": "` + name + `", "events": [{"type": "return", "behavior": "` + behavior + `", "output": {}}]}`
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte(payload), 0o644))
	}
	write("b-second", "B")
	write("a-first", "A")
	// Non-JSON files are skipped.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	traces, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, traces, 2)
	assert.Equal(t, "a-first", traces[0].TraceID)
	assert.Equal(t, "b-second", traces[1].TraceID)
}

func TestLoadFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := LoadFile(path)
	assert.Error(t, err)
}
