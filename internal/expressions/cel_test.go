package expressions

import (
	"context"
	"testing"

	"github.com/rendis/nodeflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCEL(t *testing.T) *CELEngine {
	t.Helper()
	e, err := NewCELEngine()
	require.NoError(t, err)
	return e
}

func TestCEL_Name(t *testing.T) {
	assert.Equal(t, "cel", newCEL(t).Name())
}

func TestCEL_OperandArithmetic(t *testing.T) {
	e := newCEL(t)

	out, err := e.Evaluate(context.Background(), "a - b", map[string]any{"a": 7.5, "b": 2.5})
	require.NoError(t, err)
	assert.Equal(t, 5.0, out)
}

func TestCEL_ConditionalFormula(t *testing.T) {
	e := newCEL(t)

	out, err := e.Evaluate(context.Background(), "b == 0.0 ? 0.0 : a / b", map[string]any{"a": 9.0, "b": 0.0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, out)
}

func TestCEL_MissingOperandDefaultsToZero(t *testing.T) {
	e := newCEL(t)

	out, err := e.Evaluate(context.Background(), "a + b", map[string]any{"a": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 3.0, out)
}

func TestCEL_CompileError(t *testing.T) {
	e := newCEL(t)

	_, err := e.Evaluate(context.Background(), "a +", map[string]any{"a": 1.0})
	require.Error(t, err)
	flowErr, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, flowErr.Code)
}

func TestCEL_UnknownVariableRejected(t *testing.T) {
	e := newCEL(t)

	// Only a and b exist in the sandboxed environment.
	_, err := e.Evaluate(context.Background(), "c * 2.0", map[string]any{"a": 1.0, "b": 2.0})
	require.Error(t, err)
}

func TestCEL_NonNumericResult(t *testing.T) {
	e := newCEL(t)

	_, err := e.Evaluate(context.Background(), "a > b", map[string]any{"a": 2.0, "b": 1.0})
	require.Error(t, err)
	flowErr, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeExecution, flowErr.Code)
}
