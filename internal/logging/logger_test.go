package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/aretw0/errand/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON_RenamesErrorKey(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewJSON(&buf, slog.LevelInfo)
	logger.Error("boom", "error", errors.New("bad"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "bad", line["err"])
	assert.NotContains(t, line, "error")
}

func TestParseLevel(t *testing.T) {
	level, err := logging.ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = logging.ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)

	_, err = logging.ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewFormat(t *testing.T) {
	_, err := logging.NewFormat("json", slog.LevelInfo)
	assert.NoError(t, err)
	_, err = logging.NewFormat("xml", slog.LevelInfo)
	assert.Error(t, err)
}
