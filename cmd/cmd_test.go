package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	seed := filepath.Join(dir, "chargers.json")
	require.NoError(t, os.WriteFile(seed, []byte(`[
		{"id_charger": "C1", "owner_address": "0x57e56B49dcF7540a991ac6B4C9597eBa892A7168", "status": "active"}
	]`), 0o600))
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(
		"store:\n  path: "+filepath.Join(dir, "chargers.db")+"\n"+
			"simulation:\n  seed_file: "+seed+"\n"), 0o600))
	return cfg
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestSeedThenList(t *testing.T) {
	cfg := writeConfig(t)

	assert.Equal(t, "1 chargers created\n", execute(t, "seed", "-c", cfg))
	assert.Equal(t, "0 chargers created\n", execute(t, "seed", "-c", cfg))

	out := execute(t, "chargers", "ls", "-c", cfg)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	fields := strings.Fields(lines[1])
	require.Len(t, fields, 7)
	assert.Equal(t, "C1", fields[0])
	assert.Equal(t, "active", fields[1])
	assert.Equal(t, "0", fields[3])
}
