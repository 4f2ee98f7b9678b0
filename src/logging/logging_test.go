package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSONToStdoutAndRotatedFile(t *testing.T) {
	var stdout bytes.Buffer
	path := filepath.Join(t.TempDir(), "engine.log")
	log := logrus.New()

	closer := setup(log, Config{LogLevel: "warn", LogFormat: "json", LogFile: path, LogMaxSizeMB: 1}, &stdout)

	log.Info("dropped")
	log.WithField("agent_id", 7).Warn("kept")
	require.NoError(t, closer.Close())

	assert.Equal(t, logrus.WarnLevel, log.GetLevel())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, float64(7), entry["agent_id"])

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"kept"`)
	assert.NotContains(t, string(raw), "dropped")
}

func TestSetup_InvalidLevelFallsBackToInfo(t *testing.T) {
	var stdout bytes.Buffer
	log := logrus.New()

	closer := setup(log, Config{LogLevel: "loud"}, &stdout)
	defer closer.Close()

	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	_, isText := log.Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)
}
