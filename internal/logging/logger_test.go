package logging_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/aretw0/stride/internal/logging"
	"github.com/stretchr/testify/assert"
)

func TestNewJSON_RenamesErrorKeyAndTagsCategory(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.WithCategory(logging.NewJSON(&buf, slog.LevelInfo), logging.CategoryRemote)

	logger.Warn("attempt failed", "error", errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, `"err":"boom"`)
	assert.Contains(t, out, `"category":"remote"`)
	assert.NotContains(t, out, `"error":`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logging.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logging.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, logging.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel("nonsense"))
}
