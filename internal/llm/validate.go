package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaViolation is one place where a model response breaks its contract.
// Violations are logged and then repaired by Coerce; they never reach callers.
type SchemaViolation struct {
	Path    string
	Message string
}

func (v SchemaViolation) String() string {
	return v.Path + ": " + v.Message
}

// Compile turns the schema into a jsonschema validator.
func (s *Schema) Compile() (*jsonschema.Schema, error) {
	b, err := json.Marshal(s.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// validator compiles the schema on first use and reuses it afterwards.
func (s *Schema) validator() (*jsonschema.Schema, error) {
	s.compileOnce.Do(func() {
		s.compiled, s.compileErr = s.Compile()
	})
	return s.compiled, s.compileErr
}

// Validate checks a decoded JSON value and lists every leaf violation.
// An empty result means v already satisfies the contract.
func (s *Schema) Validate(v any) ([]SchemaViolation, error) {
	compiled, err := s.validator()
	if err != nil {
		return nil, err
	}
	err = compiled.Validate(v)
	if err == nil {
		return nil, nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, fmt.Errorf("validate: %w", err)
	}
	var out []SchemaViolation
	collectViolations(ve, &out)
	return out, nil
}

func collectViolations(ve *jsonschema.ValidationError, out *[]SchemaViolation) {
	if len(ve.Causes) == 0 {
		path := ve.InstanceLocation
		if path == "" {
			path = "/"
		}
		*out = append(*out, SchemaViolation{Path: path, Message: ve.Message})
		return
	}
	for _, c := range ve.Causes {
		collectViolations(c, out)
	}
}
