package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithFormat_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithFormat("production", "", &buf)

	log.Info("journal entry posted", "entry_no", "JV-000001")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "journal entry posted", line["msg"])
	assert.Equal(t, "JV-000001", line["entry_no"])
}

func TestNewWithFormat_ProductionHidesDebug(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithFormat("production", "", &buf)

	log.Debug("cache miss")
	assert.Empty(t, buf.String())
}

func TestWithContext_AddsTenantAndActor(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithFormat("development", "json", &buf)

	ctx := context.WithValue(context.Background(), TenantIDKey, "t-1")
	ctx = context.WithValue(ctx, ActorIDKey, "staff-9")
	ctx = context.WithValue(ctx, RequestIDKey, "req-1")

	log.WithContext(ctx).Info("deposit")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "t-1", line["tenant_id"])
	assert.Equal(t, "staff-9", line["actor_id"])
	assert.Equal(t, "req-1", line["request_id"])
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithFormat("development", "json", &buf)

	log.WithError(errors.New("boom")).Warn("event publish failed")
	assert.Contains(t, buf.String(), `"error":"boom"`)

	assert.Same(t, log, log.WithError(nil))
}
