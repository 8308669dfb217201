package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StinkyLord/binary-sbom-builder/internal/output"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, k := range []string{"SBOM_RECORDED_INSTITUTION", "SBOM_OUTPUT_FORMAT", "SBOM_INCLUDE_ALL_FILES", "SBOM_HASH_CACHE_SIZE"} {
		t.Setenv(k, "")
	}
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags puts every flag back to its default; cobra keeps flag state
// between Execute calls.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func writeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin", "a.dat"), []byte("same"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.dat"), []byte("same"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "c.dat"), []byte("other"), 0o644))
	return root
}

func TestGenerateDirectory(t *testing.T) {
	root := writeTree(t)
	outFile := filepath.Join(t.TempDir(), "sbom.json")

	_, err := run(t, "generate", root, outFile, "--format", "native", "--include-all-files", "--recorded-institution", "ACME", "--log-level", "error")
	require.NoError(t, err)

	sbom, err := output.ReadNativeFile(outFile)
	require.NoError(t, err)
	require.Len(t, sbom.Software, 2)

	var same = sbom.Software[0]
	if len(same.FileName) != 2 {
		same = sbom.Software[1]
	}
	assert.ElementsMatch(t, []string{"a.dat", "b.dat"}, same.FileName)
	prefix := filepath.ToSlash(root) + "/"
	assert.ElementsMatch(t, []string{prefix + "bin/a.dat", prefix + "b.dat"}, same.InstallPath)
	assert.Equal(t, "ACME", same.RecordedInstitution)
}

func TestGenerateWithInputAndMerge(t *testing.T) {
	root := writeTree(t)
	dir := t.TempDir()
	first := filepath.Join(dir, "first.json")
	second := filepath.Join(dir, "second.json")

	_, err := run(t, "generate", root, first, "--format", "native", "--include-all-files", "--log-level", "error")
	require.NoError(t, err)

	// Starting from the first SBOM and scanning the same tree adds nothing new.
	_, err = run(t, "generate", root, second, first, "--format", "native", "--include-all-files", "--log-level", "error")
	require.NoError(t, err)
	sbom, err := output.ReadNativeFile(second)
	require.NoError(t, err)
	assert.Len(t, sbom.Software, 2)

	merged := filepath.Join(dir, "merged.json")
	_, err = run(t, "merge", first, second, "-o", merged, "--format", "native", "--log-level", "error")
	require.NoError(t, err)
	sbom, err = output.ReadNativeFile(merged)
	require.NoError(t, err)
	assert.Len(t, sbom.Software, 2)
}

func TestGenerateSkipGather(t *testing.T) {
	root := writeTree(t)
	dir := t.TempDir()
	native := filepath.Join(dir, "sbom.json")
	csvFile := filepath.Join(dir, "sbom.csv")

	_, err := run(t, "generate", root, native, "--format", "native", "--include-all-files", "--log-level", "error")
	require.NoError(t, err)

	_, err = run(t, "generate", "unused", csvFile, native, "--skip-gather", "--format", "csv", "--log-level", "error")
	require.NoError(t, err)

	data, err := os.ReadFile(csvFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	// header + three install paths
	assert.Len(t, lines, 4)
}

func TestGenerateInvalidConfig(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "sbom.json")

	_, err := run(t, "generate", filepath.Join(t.TempDir(), "missing.json"), outFile, "--format", "native", "--log-level", "error")
	require.Error(t, err)
	assert.NoFileExists(t, outFile)
}

func TestGenerateBadFormat(t *testing.T) {
	_, err := run(t, "generate", writeTree(t), filepath.Join(t.TempDir(), "x"), "--format", "spdx", "--log-level", "error")
	assert.ErrorContains(t, err, `unsupported format "spdx"`)
}

func TestFormatsCommand(t *testing.T) {
	out, err := run(t, "formats", "--log-level", "error")
	require.NoError(t, err)
	for _, f := range output.Formats() {
		assert.Contains(t, out, f.Name)
	}
	assert.Contains(t, out, "* native")
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := run(t, "formats", "--log-level", "loud")
	assert.ErrorContains(t, err, "invalid log level")
}
