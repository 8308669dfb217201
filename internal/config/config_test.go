package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StinkyLord/binary-sbom-builder/internal/model"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadJSON(t *testing.T) {
	p := writeConfig(t, "config.json", `[
  {"extractPaths": ["/mnt/rootfs"], "installPrefix": "/"},
  {"extractPaths": ["/tmp/a", "/tmp/b"], "archive": "/images/fw.zip", "includeAllFiles": true}
]`)

	got, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, []model.Context{
		{ExtractPaths: []string{"/mnt/rootfs"}, InstallPrefix: "/"},
		{ExtractPaths: []string{"/tmp/a", "/tmp/b"}, Archive: "/images/fw.zip", IncludeAllFiles: true},
	}, got)
}

func TestLoadYAML(t *testing.T) {
	p := writeConfig(t, "config.yaml", `
- extractPaths:
    - /mnt/rootfs
  installPrefix: /opt/app/
`)

	got, err := Load(p)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/opt/app/", got[0].InstallPrefix)
	assert.Equal(t, []string{"/mnt/rootfs"}, got[0].ExtractPaths)
}

func TestLoadSingleEntry(t *testing.T) {
	p := writeConfig(t, "config.json", `{"extractPaths": ["/x"]}`)

	got, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, []model.Context{{ExtractPaths: []string{"/x"}}}, got)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()

	got, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, got, 1)
	want := filepath.ToSlash(dir)
	assert.Equal(t, []string{want}, got[0].ExtractPaths)
	assert.Equal(t, want+"/", got[0].InstallPrefix)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrInvalidPath)

	tests := map[string]string{
		"empty":  "   \n",
		"scalar": `"just a string"`,
		"broken": `[{"extractPaths": [`,
		"types":  `[{"extractPaths": {"a": 1}}]`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.json", body))
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "fw.zip")
	require.NoError(t, os.WriteFile(archive, []byte("PK"), 0o644))

	assert.NoError(t, Validate([]model.Context{
		{ExtractPaths: []string{dir}},
		{ExtractPaths: []string{dir}, Archive: archive},
	}))

	tests := map[string]model.Context{
		"no extract paths": {},
		"missing path":     {ExtractPaths: []string{filepath.Join(dir, "nope")}},
		"missing archive":  {ExtractPaths: []string{dir}, Archive: filepath.Join(dir, "nope.zip")},
	}
	for name, c := range tests {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, Validate([]model.Context{c}), ErrInvalidPath)
		})
	}
}

func TestLoadSettings(t *testing.T) {
	t.Setenv("SBOM_RECORDED_INSTITUTION", "LLNL")
	t.Setenv("SBOM_OUTPUT_FORMAT", "cyclonedx")
	t.Setenv("SBOM_INCLUDE_ALL_FILES", "true")
	t.Setenv("SBOM_HASH_CACHE_SIZE", "64")

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, Settings{
		RecordedInstitution: "LLNL",
		OutputFormat:        "cyclonedx",
		IncludeAllFiles:     true,
		HashCacheSize:       64,
	}, s)
}

func TestLoadSettingsDefaults(t *testing.T) {
	for _, k := range []string{"SBOM_RECORDED_INSTITUTION", "SBOM_OUTPUT_FORMAT", "SBOM_INCLUDE_ALL_FILES", "SBOM_HASH_CACHE_SIZE"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, Settings{OutputFormat: "native"}, s)
}

func TestLoadSettingsInvalid(t *testing.T) {
	t.Setenv("SBOM_INCLUDE_ALL_FILES", "maybe")
	_, err := LoadSettings()
	assert.ErrorContains(t, err, "SBOM_INCLUDE_ALL_FILES")

	t.Setenv("SBOM_INCLUDE_ALL_FILES", "")
	t.Setenv("SBOM_HASH_CACHE_SIZE", "lots")
	_, err = LoadSettings()
	assert.ErrorContains(t, err, "SBOM_HASH_CACHE_SIZE")
}
