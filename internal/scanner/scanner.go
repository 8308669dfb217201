// Package scanner drains the context queue: it walks every extraction root,
// builds Software entities for the files it finds, merges them into the SBOM
// by content identity and finally applies the symlink aliases seen on the way.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/StinkyLord/binary-sbom-builder/internal/extractors"
	"github.com/StinkyLord/binary-sbom-builder/internal/hashing"
	"github.com/StinkyLord/binary-sbom-builder/internal/model"
)

// Options tune what the scanner records.
type Options struct {
	// IncludeAllFiles records files of unknown type too.
	IncludeAllFiles bool

	// SkipInstallPath leaves installPath empty for contexts that have no
	// install prefix, instead of using the real path.
	SkipInstallPath bool

	// RecordedInstitution is copied to every entity built.
	RecordedInstitution string

	// ScratchDir is where archives are unpacked. Empty means os.TempDir().
	ScratchDir string
}

// Result holds the finished graph and what happened while building it.
type Result struct {
	SBOM *model.SBOM

	Contexts   int // contexts drained, including ones queued by extractors
	Files      int // entities built
	Merged     int // entities folded into an existing one
	Collisions int

	// SkippedLinks counts cyclic, dangling or unreadable symlinks.
	SkippedLinks int

	// EscapedLinks lists symlinks whose target pointed above the extraction
	// root and was clamped to it.
	EscapedLinks []string
}

// Scanner turns scan contexts into an SBOM.
type Scanner struct {
	logger   *zap.Logger
	registry *extractors.Registry
	hasher   *hashing.Hasher
	opts     Options
}

// New creates a Scanner. A nil logger discards log output.
func New(logger *zap.Logger, registry *extractors.Registry, hasher *hashing.Hasher, opts Options) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = extractors.NewRegistry()
	}
	return &Scanner{logger: logger, registry: registry, hasher: hasher, opts: opts}
}

// scanState is everything that lives for one Scan call.
type scanState struct {
	sbom    *model.SBOM
	queue   *Queue
	aliases *aliasTable
	scratch string
	result  *Result
}

// Scan processes contexts, and every context queued while processing them,
// into base (or a new SBOM when base is nil). The first fatal error aborts
// the scan and no result is returned.
func (s *Scanner) Scan(contexts []model.Context, base *model.SBOM) (*Result, error) {
	if s.hasher == nil {
		h, err := hashing.NewHasher(0)
		if err != nil {
			return nil, err
		}
		s.hasher = h
	}
	if base == nil {
		base = model.New()
	}

	scratch, err := os.MkdirTemp(s.opts.ScratchDir, "sbom-scratch-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			s.logger.Warn("Unable to remove scratch directory", zap.String("dir", scratch), zap.Error(err))
		}
	}()

	st := &scanState{
		sbom:    base,
		queue:   NewQueue(contexts...),
		aliases: newAliasTable(),
		scratch: scratch,
		result:  &Result{SBOM: base},
	}

	for st.queue.Len() > 0 {
		entry, _ := st.queue.Pop()
		if err := s.processContext(st, entry); err != nil {
			return nil, err
		}
	}

	if n := st.aliases.apply(st.sbom); n > 0 {
		s.logger.Info("Applied symlink aliases", zap.Int("added", n))
	}
	return st.result, nil
}

func (s *Scanner) processContext(st *scanState, entry model.Context) error {
	st.result.Contexts++
	for _, w := range entry.Normalize() {
		s.logger.Warn("Fixing context entry", zap.String("installPrefix", entry.InstallPrefix), zap.String("reason", w))
	}

	var parentUUID string
	if entry.Archive != "" {
		s.logger.Info("Processing parent container", zap.String("archive", entry.Archive))
		parent, err := s.addArchive(st, entry)
		if err != nil {
			return err
		}
		parentUUID = parent.UUID
	}

	for _, root := range entry.ExtractPaths {
		root, err := realRoot(root)
		if err != nil {
			return err
		}
		loc := location{
			entry:      entry,
			root:       root,
			parentUUID: parentUUID,
			unpacked:   withinDir(root, st.scratch),
		}
		if err := s.walkRoot(st, loc); err != nil {
			return err
		}
	}
	return nil
}

// addArchive finds or adds the entity for the context's archive. No file
// type is passed to the extractors, so the archive is not unpacked again.
func (s *Scanner) addArchive(st *scanState, entry model.Context) (*model.Software, error) {
	sw, _, err := s.buildSoftware(st, entry.Archive, "", location{entry: entry})
	if err != nil {
		return nil, err
	}
	return s.add(st, sw, ""), nil
}

// add inserts e or merges it into the entity with the same content, and
// returns the entity now holding e's data.
func (s *Scanner) add(st *scanState, e *model.Software, parentUUID string) *model.Software {
	res := st.sbom.AddOrMerge(e, parentUUID)
	st.result.Files++
	if res.Collision {
		st.result.Collisions++
		s.logger.Warn("Hash collision; unexpected results may occur",
			zap.String("existing", res.Software.DisplayName()),
			zap.String("candidate", e.DisplayName()))
	}
	if res.Merged {
		st.result.Merged++
		s.logger.Debug("Merged duplicate content",
			zap.String("sha256", res.Software.SHA256),
			zap.String("survivor", res.Software.UUID),
			zap.String("retired", res.RetiredUUID))
	}
	return res.Software
}

// withinDir reports whether p is dir or lies below it.
func withinDir(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// realRoot cleans root and follows it if the root itself is a symlink, so
// the walk starts in a real directory.
func realRoot(root string) (string, error) {
	root = filepath.Clean(root)
	info, err := os.Lstat(root)
	if err != nil {
		return "", fmt.Errorf("invalid extract path %s: %w", root, err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return root, nil
	}
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("invalid extract path %s: %w", root, err)
	}
	return resolved, nil
}
