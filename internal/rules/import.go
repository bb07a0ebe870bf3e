package rules

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const legacySchemaURL = "legacy-rules-v1.schema.json"

//go:embed schema/legacy-rules-v1.schema.json
var legacySchema []byte

// ErrInvalidLegacy is returned when an imported rules file does not match
// the learned_rules.json layout.
var ErrInvalidLegacy = errors.New("rules: invalid legacy rules file")

// ReadLegacy parses a learned_rules.json document. The document is
// validated against the embedded schema before it is decoded.
func ReadLegacy(r io.Reader) (Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read legacy rules: %w", err)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidLegacy, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(legacySchemaURL, bytes.NewReader(legacySchema)); err != nil {
		return Snapshot{}, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(legacySchemaURL)
	if err != nil {
		return Snapshot{}, fmt.Errorf("compile schema: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidLegacy, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidLegacy, err)
	}
	if snap.UndoCounts == nil {
		snap.UndoCounts = make(map[string]int)
	}
	return snap, nil
}
