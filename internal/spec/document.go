package spec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/trivetlabs/trivet/internal/ir"
)

// Document is a compiled specification: a tree of named behaviors, each
// carrying zero or more contract clauses, plus domain-wide invariants.
type Document struct {
	Domain           string     `json:"domain"`
	Version          string     `json:"version,omitempty"`
	Behaviors        []Behavior `json:"behaviors"`
	GlobalInvariants []string   `json:"global_invariants,omitempty"`

	// SourceFile is the path the document was loaded from. Not part of
	// the document content; excluded from the content hash.
	SourceFile string `json:"-"`

	// raw is the decoded document used for content hashing. Kept
	// alongside the typed view so the hash covers exactly the bytes'
	// structure, including fields the typed view might not model yet.
	raw map[string]any
}

// Behavior is a named operation with its contract clauses.
type Behavior struct {
	Name           string   `json:"name"`
	Preconditions  []string `json:"preconditions,omitempty"`
	Postconditions []string `json:"postconditions,omitempty"`
	Invariants     []string `json:"invariants,omitempty"`
}

// SpecError is a fatal specification problem detected at Setup.
type SpecError struct {
	Path    string
	Message string
	Err     error
}

func (e *SpecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("spec %s: %s: %v", e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("spec %s: %s", e.Path, e.Message)
}

func (e *SpecError) Unwrap() error { return e.Err }

// Load reads, schema-validates, and decodes a compiled specification
// document from a JSON file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SpecError{Path: path, Message: "read failed", Err: err}
	}
	doc, err := Parse(data)
	if err != nil {
		var se *SpecError
		if errors.As(err, &se) {
			se.Path = path
			return nil, se
		}
		return nil, &SpecError{Path: path, Message: "parse failed", Err: err}
	}
	doc.SourceFile = path
	return doc, nil
}

// Parse validates and decodes a compiled specification document from
// raw JSON bytes.
func Parse(data []byte) (*Document, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &SpecError{Message: "invalid JSON", Err: err}
	}

	// Decode again with UseNumber so the content hash does not depend
	// on float64 round-tripping of large integers.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, &SpecError{Message: "invalid JSON", Err: err}
	}
	doc.raw = raw

	if doc.Version == "" {
		doc.Version = "0.0.0"
	}
	return &doc, nil
}

// ContentHash returns the content-addressed hash of the document.
func (d *Document) ContentHash() (string, error) {
	if d.raw == nil {
		return "", fmt.Errorf("document has no raw content (not produced by Load/Parse)")
	}
	return ir.SpecHash(d.raw)
}

// Behavior returns the named behavior, or false if the document does
// not define it.
func (d *Document) Behavior(name string) (Behavior, bool) {
	for _, b := range d.Behaviors {
		if b.Name == name {
			return b, true
		}
	}
	return Behavior{}, false
}

// ClauseCount returns the total number of clauses across all behaviors
// and global invariants.
func (d *Document) ClauseCount() int {
	n := len(d.GlobalInvariants)
	for _, b := range d.Behaviors {
		n += len(b.Preconditions) + len(b.Postconditions) + len(b.Invariants)
	}
	return n
}
