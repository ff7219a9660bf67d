package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	StateDir string   `json:"state_dir"`
	MaxPages int      `json:"max_pages"`
	Seeds    []string `json:"seeds"`
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	err := os.WriteFile(path, []byte(contents), 0600)
	if err != nil {
		t.Fatal(err)
	}
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "comebackwatch.json5")
	writeFile(t, name, `{
		// comments are allowed
		state_dir: "/tmp/state",
		max_pages: 6,
		seeds: ["https://example.com/a"],
	}`)
	writeFile(t, filepath.Join(dir, "comebackwatch.local.json5"), `{max_pages: 2}`)

	cfg, err := ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, "/tmp/state", cfg.StateDir)
	require.Equal(t, 2, cfg.MaxPages)
	require.Equal(t, []string{"https://example.com/a"}, cfg.Seeds)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "missing.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadOptional(t *testing.T) {
	dir := t.TempDir()
	fallback := testConfig{StateDir: "/default", MaxPages: 6}

	cfg, err := ReadOptional(filepath.Join(dir, "missing.json5"), fallback)
	require.NoError(t, err)
	require.Equal(t, fallback, cfg)

	name := filepath.Join(dir, "present.json5")
	writeFile(t, name, `{max_pages: 3}`)
	cfg, err = ReadOptional(name, fallback)
	require.NoError(t, err)
	require.Equal(t, "/default", cfg.StateDir)
	require.Equal(t, 3, cfg.MaxPages)
}

func TestLocalPath(t *testing.T) {
	require.Equal(t, filepath.Join("a", "b.local.json5"), LocalPath(filepath.Join("a", "b.json5")))
}

func TestEnvOr(t *testing.T) {
	t.Setenv("COMEBACKWATCH_TEST_ENV", "")
	require.Equal(t, "x", EnvOr("COMEBACKWATCH_TEST_ENV", "x"))
	t.Setenv("COMEBACKWATCH_TEST_ENV", "y")
	require.Equal(t, "y", EnvOr("COMEBACKWATCH_TEST_ENV", "x"))
}
