package scanner

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/StinkyLord/binary-sbom-builder/internal/extractors"
	"github.com/StinkyLord/binary-sbom-builder/internal/hashing"
	"github.com/StinkyLord/binary-sbom-builder/internal/model"
)

// ============================================================
// Helpers
// ============================================================

type funcExtractor struct {
	name  string
	types []string
	fn    func(*extractors.Request) (model.Metadata, error)
}

func (f *funcExtractor) Name() string        { return f.name }
func (f *funcExtractor) FileTypes() []string { return f.types }
func (f *funcExtractor) Extract(r *extractors.Request) (model.Metadata, error) {
	return f.fn(r)
}

func newTestScanner(t *testing.T, opts Options, registry *extractors.Registry) (*Scanner, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	h, err := hashing.NewHasher(0)
	require.NoError(t, err)
	if opts.ScratchDir == "" {
		opts.ScratchDir = t.TempDir()
	}
	return New(zap.New(core), registry, h, opts), logs
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func symlinkOrSkip(t *testing.T, target, link string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(link), 0o755))
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
}

func sha(t *testing.T, p string) string {
	t.Helper()
	d, err := hashing.SumFile(p)
	require.NoError(t, err)
	return d.SHA256
}

func countRelationships(sbom *model.SBOM, y, typ string) int {
	n := 0
	for _, r := range sbom.Relationships {
		if r.YUUID == y && r.Relationship == typ {
			n++
		}
	}
	return n
}

func metadataValue(sw *model.Software, key string) any {
	for _, md := range sw.Metadata {
		if v, ok := md[key]; ok {
			return v
		}
	}
	return nil
}

// ============================================================
// End-to-end scenarios
// ============================================================

func TestScan_IdenticalContentIsOneEntity(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.bin"), "same bytes")
	writeFile(t, filepath.Join(root, "sub", "b.bin"), "same bytes")

	s, _ := newTestScanner(t, Options{IncludeAllFiles: true}, nil)
	res, err := s.Scan([]model.Context{{ExtractPaths: []string{root}}}, nil)
	require.NoError(t, err)

	require.Len(t, res.SBOM.Software, 1)
	sw := res.SBOM.Software[0]
	assert.Equal(t, []string{"a.bin", "b.bin"}, sw.FileName)
	assert.Equal(t, []string{
		filepath.ToSlash(filepath.Join(root, "a.bin")),
		filepath.ToSlash(filepath.Join(root, "sub", "b.bin")),
	}, sw.InstallPath)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 1, res.Merged)
	assert.Zero(t, res.Collisions)
}

func TestScan_DanglingSymlinkIsSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "real.bin"), "data")
	symlinkOrSkip(t, "missing_target", filepath.Join(root, "link"))

	s, logs := newTestScanner(t, Options{IncludeAllFiles: true}, nil)
	res, err := s.Scan([]model.Context{{ExtractPaths: []string{root}}}, nil)
	require.NoError(t, err)

	require.Len(t, res.SBOM.Software, 1)
	assert.Equal(t, []string{"real.bin"}, res.SBOM.Software[0].FileName)
	assert.Equal(t, 1, res.SkippedLinks)
	assert.Equal(t, 1, logs.FilterMessage("Skipping dangling symlink").Len())
}

func TestScan_SameFileUnderTwoArchives(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "X"), "payload")
	containers := t.TempDir()
	iso1 := filepath.Join(containers, "container.iso")
	iso2 := filepath.Join(containers, "container2.iso")
	writeFile(t, iso1, "iso one")
	writeFile(t, iso2, "iso two")

	s, _ := newTestScanner(t, Options{IncludeAllFiles: true}, nil)
	res, err := s.Scan([]model.Context{
		{ExtractPaths: []string{root}, Archive: iso1},
		{ExtractPaths: []string{root}, Archive: iso2},
	}, nil)
	require.NoError(t, err)

	sbom := res.SBOM
	require.Len(t, sbom.Software, 3)
	x := sbom.FindSoftware(sha(t, filepath.Join(root, "X")))
	p1 := sbom.FindSoftware(sha(t, iso1))
	p2 := sbom.FindSoftware(sha(t, iso2))
	require.NotNil(t, x)
	require.NotNil(t, p1)
	require.NotNil(t, p2)

	assert.True(t, sbom.FindRelationship(p1.UUID, x.UUID, model.Contains))
	assert.True(t, sbom.FindRelationship(p2.UUID, x.UUID, model.Contains))
	assert.Equal(t, 2, countRelationships(sbom, x.UUID, model.Contains))
	assert.ElementsMatch(t, []string{p1.UUID + "/X", p2.UUID + "/X"}, x.ContainerPath)
	// Configured archive contexts still record where the file was found.
	assert.Equal(t, []string{filepath.ToSlash(filepath.Join(root, "X"))}, x.InstallPath)
	require.NoError(t, sbom.Validate())
}

func TestScan_DirectorySymlinkAddsInstallPath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "real_dir", "f"), "f contents")
	symlinkOrSkip(t, "real_dir", filepath.Join(root, "alias_dir"))

	s, _ := newTestScanner(t, Options{IncludeAllFiles: true}, nil)
	res, err := s.Scan([]model.Context{{ExtractPaths: []string{root}, InstallPrefix: "/install/"}}, nil)
	require.NoError(t, err)

	require.Len(t, res.SBOM.Software, 1)
	f := res.SBOM.Software[0]
	assert.Equal(t, []string{"/install/real_dir/f", "/install/alias_dir/f"}, f.InstallPath)
	assert.Equal(t, []string{"/install/alias_dir/f"}, metadataValue(f, installPathSymlinksKey))
}

// ============================================================
// Symlink handling
// ============================================================

func TestScan_FileSymlinkBecomesAlias(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "lib", "libz.so.1.3"), "zlib")
	symlinkOrSkip(t, "libz.so.1.3", filepath.Join(root, "lib", "libz.so.1"))
	symlinkOrSkip(t, "/opt/app/lib/libz.so.1", filepath.Join(root, "libz.so"))

	s, _ := newTestScanner(t, Options{IncludeAllFiles: true}, nil)
	res, err := s.Scan([]model.Context{{ExtractPaths: []string{root}, InstallPrefix: "/opt/app"}}, nil)
	require.NoError(t, err)

	require.Len(t, res.SBOM.Software, 1)
	sw := res.SBOM.Software[0]
	// lib/libz.so.1 sorts before lib/libz.so.1.3; both come before libz.so.
	assert.Equal(t, []string{"libz.so.1.3", "libz.so.1", "libz.so"}, sw.FileName)
	assert.Equal(t, []string{"/opt/app/lib/libz.so.1.3", "/opt/app/lib/libz.so.1", "/opt/app/libz.so"}, sw.InstallPath)
	assert.Equal(t, []string{"libz.so.1", "libz.so"}, metadataValue(sw, fileNameSymlinksKey))
	assert.Zero(t, res.SkippedLinks)
}

func TestScan_SymlinkCycleDoesNotStopWalk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "c.bin"), "c")
	symlinkOrSkip(t, "b", filepath.Join(root, "a"))
	symlinkOrSkip(t, "a", filepath.Join(root, "b"))

	s, logs := newTestScanner(t, Options{IncludeAllFiles: true}, nil)
	res, err := s.Scan([]model.Context{{ExtractPaths: []string{root}}}, nil)
	require.NoError(t, err)

	assert.Len(t, res.SBOM.Software, 1)
	assert.Equal(t, 2, res.SkippedLinks)
	assert.Equal(t, 2, logs.FilterMessage("Skipping symlink loop").Len())
}

func TestScan_EscapingSymlinkIsFlagged(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "x"), "inside")
	link := filepath.Join(root, "sub", "link")
	symlinkOrSkip(t, "../../x", link)

	s, logs := newTestScanner(t, Options{IncludeAllFiles: true}, nil)
	res, err := s.Scan([]model.Context{{ExtractPaths: []string{root}}}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{link}, res.EscapedLinks)
	assert.Equal(t, 1, logs.FilterMessage("Symlink points outside the extraction root; clamped to the root").Len())
	require.Len(t, res.SBOM.Software, 1)
	assert.Equal(t, []string{"x", "link"}, res.SBOM.Software[0].FileName)
}

// ============================================================
// Graph store interaction
// ============================================================

func TestScan_SameArchiveTwiceHasOneContainsEdge(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "X"), "payload")
	iso := filepath.Join(t.TempDir(), "container.iso")
	writeFile(t, iso, "iso")

	s, _ := newTestScanner(t, Options{IncludeAllFiles: true}, nil)
	ctx := model.Context{ExtractPaths: []string{root}, Archive: iso}
	res, err := s.Scan([]model.Context{ctx, ctx}, nil)
	require.NoError(t, err)

	x := res.SBOM.FindSoftware(sha(t, filepath.Join(root, "X")))
	require.NotNil(t, x)
	assert.Equal(t, 1, countRelationships(res.SBOM, x.UUID, model.Contains))
	assert.Len(t, res.SBOM.Relationships, 1)
}

func TestScan_MergesIntoBaseSBOM(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "new.bin")
	writeFile(t, p, "shared")

	base := model.New()
	parent := model.NewSoftware()
	parent.Name = "installer"
	existing := model.NewSoftware()
	existing.SHA256 = sha(t, p)
	existing.Size = int64(len("shared"))
	existing.FileName = []string{"old.bin"}
	base.AddSoftware(parent)
	base.AddSoftware(existing)
	require.True(t, base.CreateRelationship(parent.UUID, existing.UUID, model.Contains))

	s, _ := newTestScanner(t, Options{IncludeAllFiles: true, SkipInstallPath: true}, nil)
	res, err := s.Scan([]model.Context{{ExtractPaths: []string{root}}}, base)
	require.NoError(t, err)

	require.Same(t, base, res.SBOM)
	require.Len(t, base.Software, 2)
	assert.Equal(t, []string{"old.bin", "new.bin"}, existing.FileName)
	assert.Empty(t, existing.InstallPath)
	assert.NotEmpty(t, existing.SHA1)
	assert.True(t, base.FindRelationship(parent.UUID, existing.UUID, model.Contains))
	require.NoError(t, base.Validate())
}

func TestScan_UnknownFilesSkippedByDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "notes.txt"), "plain text")
	writeFile(t, filepath.Join(root, "tool"), "\x7fELF\x02\x01\x01")

	s, _ := newTestScanner(t, Options{}, nil)
	res, err := s.Scan([]model.Context{{ExtractPaths: []string{root}}}, nil)
	require.NoError(t, err)
	require.Len(t, res.SBOM.Software, 1)
	assert.Equal(t, []string{"tool"}, res.SBOM.Software[0].FileName)

	res, err = s.Scan([]model.Context{{ExtractPaths: []string{root}, IncludeAllFiles: true}}, nil)
	require.NoError(t, err)
	assert.Len(t, res.SBOM.Software, 2)
}

// ============================================================
// Entity builder
// ============================================================

func TestScan_ExtractorFailureIsFatal(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "bad.bin")
	writeFile(t, p, "x")

	boom := errors.New("parser exploded")
	reg := extractors.NewRegistry(&funcExtractor{
		name:  "boom",
		types: []string{extractors.AnyType},
		fn:    func(*extractors.Request) (model.Metadata, error) { return nil, boom },
	})
	s, _ := newTestScanner(t, Options{IncludeAllFiles: true}, reg)
	res, err := s.Scan([]model.Context{{ExtractPaths: []string{root}}}, nil)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
	assert.True(t, strings.HasPrefix(err.Error(), "unable to process "+p))
}

func TestScan_MetadataFolding(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "widget.dll"), "w")

	reg := extractors.NewRegistry(&funcExtractor{
		name:  "fake",
		types: []string{extractors.AnyType},
		fn: func(r *extractors.Request) (model.Metadata, error) {
			return model.Metadata{
				"fingerprint": map[string]any{"name": "zlib", "vendor": "zlib authors", "description": "compression"},
				"FileInfo":    map[string]any{"ProductName": "Widget", "CompanyName": "Acme", "FileVersion": "2.0.1"},
				"ole":         map[string]any{"subject": "Installer", "author": "Jane", "comments": "signed"},
			}, nil
		},
	})
	s, _ := newTestScanner(t, Options{IncludeAllFiles: true, RecordedInstitution: "LLNL"}, reg)
	res, err := s.Scan([]model.Context{{ExtractPaths: []string{root}}}, nil)
	require.NoError(t, err)

	require.Len(t, res.SBOM.Software, 1)
	sw := res.SBOM.Software[0]
	assert.Equal(t, "Widget", sw.Name)
	assert.Equal(t, "2.0.1", sw.Version)
	assert.Equal(t, []string{"Acme", "Jane"}, sw.Vendor)
	assert.Equal(t, "compression", sw.Description)
	assert.Equal(t, "signed", sw.Comments)
	assert.Equal(t, "LLNL", sw.RecordedInstitution)
	assert.Len(t, sw.Metadata, 1)
}

func TestScan_ExtractorChildrenAreContained(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "bundle.bin"), "bundle")
	iso := filepath.Join(t.TempDir(), "media.iso")
	writeFile(t, iso, "media")

	reg := extractors.NewRegistry(&funcExtractor{
		name:  "children",
		types: []string{extractors.AnyType},
		fn: func(r *extractors.Request) (model.Metadata, error) {
			if r.FileType == "" && filepath.Base(r.Path) == "bundle.bin" {
				child := model.NewSoftware()
				child.SHA256 = "embedded"
				child.Name = "embedded"
				r.AddChild(child)
			}
			return nil, nil
		},
	})
	s, _ := newTestScanner(t, Options{IncludeAllFiles: true}, reg)
	res, err := s.Scan([]model.Context{{ExtractPaths: []string{root}, Archive: iso}}, nil)
	require.NoError(t, err)

	child := res.SBOM.FindSoftware("embedded")
	require.NotNil(t, child)
	parent := res.SBOM.FindSoftware(sha(t, iso))
	require.NotNil(t, parent)
	assert.True(t, res.SBOM.FindRelationship(parent.UUID, child.UUID, model.Contains))
}

func TestScan_UnpacksArchives(t *testing.T) {
	root := t.TempDir()
	zipPath := filepath.Join(root, "bundle.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("bin/tool")
	require.NoError(t, err)
	_, err = w.Write([]byte("tool"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	reg := extractors.Default(extractors.Options{UnpackArchives: true})
	s, _ := newTestScanner(t, Options{IncludeAllFiles: true}, reg)
	res, err := s.Scan([]model.Context{{ExtractPaths: []string{root}}}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Contexts)
	require.Len(t, res.SBOM.Software, 2)
	archive := res.SBOM.FindSoftware(sha(t, zipPath))
	require.NotNil(t, archive)
	assert.Equal(t, []string{"bundle.zip"}, archive.FileName)

	var tool *model.Software
	for _, sw := range res.SBOM.Software {
		if sw != archive {
			tool = sw
		}
	}
	require.NotNil(t, tool)
	assert.Equal(t, []string{archive.UUID + "/bin/tool"}, tool.ContainerPath)
	assert.Empty(t, tool.InstallPath)
	assert.True(t, res.SBOM.FindRelationship(archive.UUID, tool.UUID, model.Contains))
}

func TestScan_ArchiveContextWithoutPrefixKeepsRealPath(t *testing.T) {
	root := t.TempDir()
	tool := filepath.Join(root, "bin", "tool")
	writeFile(t, tool, "tool")
	iso := filepath.Join(t.TempDir(), "container.iso")
	writeFile(t, iso, "iso")

	s, _ := newTestScanner(t, Options{IncludeAllFiles: true}, nil)
	res, err := s.Scan([]model.Context{{ExtractPaths: []string{root}, Archive: iso}}, nil)
	require.NoError(t, err)

	sw := res.SBOM.FindSoftware(sha(t, tool))
	require.NotNil(t, sw)
	parent := res.SBOM.FindSoftware(sha(t, iso))
	require.NotNil(t, parent)
	assert.Equal(t, []string{filepath.ToSlash(tool)}, sw.InstallPath)
	assert.Equal(t, []string{parent.UUID + "/bin/tool"}, sw.ContainerPath)

	// --skip-install-path still suppresses it.
	s, _ = newTestScanner(t, Options{IncludeAllFiles: true, SkipInstallPath: true}, nil)
	res, err = s.Scan([]model.Context{{ExtractPaths: []string{root}, Archive: iso}}, nil)
	require.NoError(t, err)
	sw = res.SBOM.FindSoftware(sha(t, tool))
	require.NotNil(t, sw)
	assert.Empty(t, sw.InstallPath)
}

func TestScan_InvalidRoot(t *testing.T) {
	s, _ := newTestScanner(t, Options{}, nil)
	_, err := s.Scan([]model.Context{{ExtractPaths: []string{filepath.Join(t.TempDir(), "nope")}}}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
