package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/StinkyLord/binary-sbom-builder/internal/filetype"
	"github.com/StinkyLord/binary-sbom-builder/internal/model"
	"github.com/StinkyLord/binary-sbom-builder/internal/symlink"
)

// walkRoot visits every entry below loc.root in lexical order. Symlinks are
// never followed: links to files become aliases of their target and links to
// directories become directory aliases, both applied after the scan.
func (s *Scanner) walkRoot(st *scanState, loc location) error {
	return filepath.WalkDir(loc.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == loc.root {
				return fmt.Errorf("failed to walk %s: %w", loc.root, err)
			}
			s.logger.Warn("Unable to read directory entry", zap.String("path", p), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			s.recordLink(st, loc, p)
			return nil
		case d.IsDir():
			s.logger.Debug("Processing directory", zap.String("dir", p))
			return nil
		case !d.Type().IsRegular():
			return nil
		}
		return s.visitFile(st, loc, p)
	})
}

// visitFile identifies a regular file and, when it is worth recording,
// builds it and adds it (and its children) to the graph.
func (s *Scanner) visitFile(st *scanState, loc location, p string) error {
	fileType, err := filetype.Identify(p)
	if err != nil {
		return fmt.Errorf("unable to process %s: %w", p, err)
	}
	if fileType == "" && !s.opts.IncludeAllFiles && !loc.entry.IncludeAllFiles {
		return nil
	}

	sw, children, err := s.buildSoftware(st, p, fileType, loc)
	if err != nil {
		return err
	}
	for _, e := range append([]*model.Software{sw}, children...) {
		s.add(st, e, loc.parentUUID)
	}
	return nil
}

// recordLink resolves the symlink at p and records it as an alias. Cycles
// and dangling links are logged and skipped.
func (s *Scanner) recordLink(st *scanState, loc location, p string) {
	res, err := symlink.Resolve(p, filepath.Dir(p), loc.root, loc.entry.InstallPrefix)
	if err != nil {
		st.result.SkippedLinks++
		switch {
		case errors.Is(err, symlink.ErrCycle):
			s.logger.Warn("Skipping symlink loop", zap.String("path", p), zap.Error(err))
		case errors.Is(err, symlink.ErrDangling):
			s.logger.Warn("Skipping dangling symlink", zap.String("path", p), zap.Error(err))
		default:
			s.logger.Warn("Unable to resolve symlink", zap.String("path", p), zap.Error(err))
		}
		return
	}
	if res.Escaped {
		s.logger.Warn("Symlink points outside the extraction root; clamped to the root",
			zap.String("path", p), zap.String("target", res.Path))
		st.result.EscapedLinks = append(st.result.EscapedLinks, p)
	}

	info, err := os.Stat(res.Path)
	if err != nil {
		st.result.SkippedLinks++
		s.logger.Warn("Unable to stat symlink target", zap.String("path", p), zap.String("target", res.Path), zap.Error(err))
		return
	}

	if info.IsDir() {
		src, ok := s.installPath(loc, p)
		if !ok {
			return
		}
		dst, _ := s.installPath(loc, res.Path)
		st.aliases.addDirLink(src, dst)
		return
	}

	if !info.Mode().IsRegular() {
		st.result.SkippedLinks++
		s.logger.Warn("Skipping symlink to a special file", zap.String("path", p), zap.String("target", res.Path),
			zap.String("mode", info.Mode().String()))
		return
	}

	sha, err := s.hasher.SHA256(res.Path)
	if err != nil {
		st.result.SkippedLinks++
		s.logger.Warn("Unable to open symlink target", zap.String("path", p), zap.String("target", res.Path), zap.Error(err))
		return
	}
	st.aliases.addFileName(sha, filepath.Base(p))
	if src, ok := s.installPath(loc, p); ok {
		st.aliases.addInstallPath(sha, src)
	}
}
