package validation

import "github.com/rendis/nodeflow/pkg/schema"

// Validator checks graph documents for correctness before loading.
// Uses JSON Schema Draft 2020-12 for structural validation.
type Validator interface {
	Validate(g *schema.Graph) *schema.ValidationResult
	ValidateDocument(raw []byte) (schema.Graph, *schema.ValidationResult)
}

// GraphValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (endpoint refs, port legality, per-kind fields)
// 3. Shape (cycles, reachability)
type GraphValidator struct {
	jsonSchema *JSONSchemaValidator
}

// NewGraphValidator creates a GraphValidator.
func NewGraphValidator() (*GraphValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &GraphValidator{jsonSchema: jsv}, nil
}

// Validate runs the full 3-stage pipeline and returns an aggregated
// result. Structural errors short-circuit: semantic and shape stages are
// skipped.
func (gv *GraphValidator) Validate(g *schema.Graph) *schema.ValidationResult {
	if g == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "graph is nil")
		return r
	}

	// Stage 1: Structural (JSON Schema).
	result := flowErrorToResult(gv.jsonSchema.ValidateGraph(g))
	if !result.Valid() {
		return result
	}

	// Stage 2: Semantic.
	result.Merge(validateSemantic(g))

	// Stage 3: Shape (skip if semantic errors, the wiring may be nonsense).
	if result.Valid() {
		result.Merge(validateShape(g))
	}

	return result
}

// ValidateDocument parses raw JSON into a Graph and runs the full
// pipeline over it. The returned graph is only meaningful when the
// result carries no errors.
func (gv *GraphValidator) ValidateDocument(raw []byte) (schema.Graph, *schema.ValidationResult) {
	g, err := gv.jsonSchema.ValidateDocument(raw)
	if err != nil {
		return schema.Graph{}, flowErrorToResult(err)
	}

	result := &schema.ValidationResult{}
	result.Merge(validateSemantic(&g))
	if result.Valid() {
		result.Merge(validateShape(&g))
	}
	return g, result
}

// flowErrorToResult converts a structural validation error into a
// ValidationResult, expanding per-location violations when present.
func flowErrorToResult(err error) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if err == nil {
		return result
	}

	flowErr, ok := err.(*schema.FlowError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if flowErr.Details != nil {
		if violations, ok := flowErr.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, flowErr.Message)
	return result
}
