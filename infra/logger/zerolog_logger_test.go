package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	assert.NoError(t, os.Setenv("APP_ENV", "dev"))
	defer func() { assert.NoError(t, os.Unsetenv("APP_ENV")) }()
	l := NewZerologLogger("test")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Errorf("error")
}

func TestComponentFieldAndLevel(t *testing.T) {
	defer SetLevel("info")
	require.True(t, SetLevel("warn"))
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "scheduler")
	l.Infof("dropped")
	l.Warnf("charger %s skipped", "c1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "scheduler", entry["component"])
	assert.Equal(t, "charger c1 skipped", entry["message"])
	assert.Equal(t, "warn", entry["level"])
}

func TestSetLevelRejectsUnknown(t *testing.T) {
	assert.False(t, SetLevel("loud"))
	assert.False(t, SetLevel(""))
}

func TestSetFileMirrorsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "dobi.log")
	closer, err := SetFile(FileOptions{Path: path, MaxSizeMB: 1})
	require.NoError(t, err)
	defer func() {
		_, _ = SetFile(FileOptions{})
		assert.NoError(t, closer.Close())
	}()

	New("registry").Infof("registered charger %s", "C1")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "registered charger C1")
	assert.Contains(t, string(data), `"component":"registry"`)
}
