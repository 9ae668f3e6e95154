// Package structured validates the machine-readable recommendation contract
// and builds the instructions that ask a model to produce it.
package structured

import (
	"fmt"
	"sort"

	"github.com/kaptinlin/jsonschema"
)

// RecommendationSchema is the wire contract for structured replies.
const RecommendationSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": [
    "type",
    "match_id",
    "market",
    "selection",
    "odds",
    "confidence",
    "stake_recommendation",
    "rationale"
  ],
  "properties": {
    "type": {"type": "string"},
    "match_id": {"type": "string"},
    "market": {"type": "string"},
    "selection": {"type": "string"},
    "odds": {"type": "number", "minimum": 1.01},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "stake_recommendation": {"type": "string", "enum": ["small", "medium", "large"]},
    "rationale": {"type": "string"}
  }
}`

var recommendationSchema = mustCompile(RecommendationSchema)

func mustCompile(src string) *jsonschema.Schema {
	schema, err := jsonschema.NewCompiler().Compile([]byte(src))
	if err != nil {
		panic(fmt.Sprintf("structured: compile recommendation schema: %v", err))
	}
	return schema
}

// Result is the outcome of a validation
type Result struct {
	Valid  bool
	Reason string
	Errors []string
}

// Err converts an invalid result into a *ValidationError, or nil when valid
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Reason: r.Reason, Errors: r.Errors}
}

// ValidateRecommendation checks obj against the recommendation schema.
func ValidateRecommendation(obj any) Result {
	if obj == nil {
		return Result{Reason: "empty object", Errors: []string{"value is null"}}
	}

	result := recommendationSchema.Validate(obj)
	if result.Valid {
		return Result{Valid: true}
	}

	errs := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		errs = append(errs, e.Error())
	}
	sort.Strings(errs)
	return Result{
		Reason: "does not match recommendation schema",
		Errors: errs,
	}
}
