// Package symlink resolves symbolic links found inside an extraction root as
// if the root were the filesystem root of the scanned system.
package symlink

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrCycle is returned when a link chain revisits a link.
	ErrCycle = errors.New("symlink cycle")

	// ErrDangling is returned when the terminal target does not exist.
	ErrDangling = errors.New("dangling symlink")
)

// Resolution is the outcome of a successful Resolve.
type Resolution struct {
	// Path is the cleaned real path of the terminal target.
	Path string

	// Escaped is set when some link in the chain pointed above the
	// extraction root. The target was clamped to the root.
	Escaped bool

	// Hops is the number of links followed.
	Hops int
}

// Resolve follows the link at linkPath one level at a time.
//
// curDir is the directory being walked (the directory holding linkPath) and
// extractDir is the extraction root. Relative targets are rebased onto the
// link's directory as seen from the root; absolute targets are taken to be
// absolute inside the root. A target that starts with installPrefix has the
// prefix removed, since install prefixes describe the layout after
// installation, not the layout being scanned.
//
// A path that is not a symlink comes back cleaned and otherwise unchanged.
func Resolve(linkPath, curDir, extractDir, installPrefix string) (Resolution, error) {
	res := Resolution{}
	seen := map[string]bool{}
	current := linkPath

	for {
		info, err := os.Lstat(current)
		if err != nil || info.Mode()&os.ModeSymlink == 0 {
			break
		}
		if seen[current] {
			return res, fmt.Errorf("%w: resolving %s looped at %s", ErrCycle, linkPath, current)
		}
		seen[current] = true

		raw, err := os.Readlink(current)
		if err != nil {
			return res, fmt.Errorf("failed to read link %s: %w", current, err)
		}
		raw = filepath.ToSlash(raw)

		var dest string
		if path.IsAbs(raw) {
			dest = raw
		} else {
			dest = localDir(curDir, extractDir) + "/" + raw
		}
		if escapes(dest) {
			res.Escaped = true
		}
		dest = path.Clean("/" + strings.TrimPrefix(dest, "/"))

		if installPrefix != "" && strings.HasPrefix(dest, installPrefix) {
			dest = dest[len(installPrefix):]
		}
		dest = strings.TrimPrefix(dest, "/")

		current = filepath.Join(extractDir, filepath.FromSlash(dest))
		curDir = filepath.Dir(current)
		res.Hops++
	}

	if _, err := os.Stat(current); err != nil {
		return res, fmt.Errorf("%w: %s resolved to %s", ErrDangling, linkPath, current)
	}
	res.Path = filepath.Clean(current)
	return res, nil
}

// localDir returns curDir as an absolute slash path relative to extractDir,
// e.g. "/usr/lib" for extractDir/usr/lib.
func localDir(curDir, extractDir string) string {
	rel, err := filepath.Rel(extractDir, curDir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return "/" + filepath.ToSlash(rel)
}

// escapes reports whether the slash path climbs above "/" before cleaning.
func escapes(p string) bool {
	rel := path.Clean(strings.TrimPrefix(p, "/"))
	return rel == ".." || strings.HasPrefix(rel, "../")
}
