package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, SessionID(ctx))
	assert.Empty(t, NodeID(ctx))
	assert.Empty(t, Command(ctx))

	ctx = WithSessionID(ctx, "s1")
	ctx = WithNodeID(ctx, "n1")
	ctx = WithCommand(ctx, "set_value")

	assert.Equal(t, "s1", SessionID(ctx))
	assert.Equal(t, "n1", NodeID(ctx))
	assert.Equal(t, "set_value", Command(ctx))
}

func TestCorrelationHandler_InjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithCommand(WithNodeID(context.Background(), "op7"), "connect")
	logger.InfoContext(ctx, "edge added")

	out := buf.String()
	assert.Contains(t, out, "node_id=op7")
	assert.Contains(t, out, "command=connect")
	assert.NotContains(t, out, "session_id")
}

func TestLogWith_SkipsEmptyValues(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	LogWith(WithSessionID(context.Background(), "sess"), base).Info("hello")

	out := buf.String()
	assert.Contains(t, out, "session_id=sess")
	assert.NotContains(t, out, "node_id")
}
