package scanner

import (
	"strings"

	"github.com/StinkyLord/binary-sbom-builder/internal/model"
)

const (
	fileNameSymlinksKey    = "fileNameSymlinks"
	installPathSymlinksKey = "installPathSymlinks"
)

// dirLink is a directory symlink seen during the walk, in install paths.
type dirLink struct {
	source string // where the link lives
	dest   string // where it points
}

// aliasTable accumulates symlink aliases during the walk. Entities are keyed
// by sha256 because the target may not have been built yet, or may still be
// merged into another entity, when the link is seen.
type aliasTable struct {
	fileNames    map[string][]string
	installPaths map[string][]string
	dirLinks     []dirLink
}

func newAliasTable() *aliasTable {
	return &aliasTable{
		fileNames:    map[string][]string{},
		installPaths: map[string][]string{},
	}
}

func (t *aliasTable) addFileName(sha256, name string) {
	t.fileNames[sha256] = model.AppendUnique(t.fileNames[sha256], name)
}

func (t *aliasTable) addInstallPath(sha256, p string) {
	t.installPaths[sha256] = model.AppendUnique(t.installPaths[sha256], p)
}

func (t *aliasTable) addDirLink(source, dest string) {
	l := dirLink{
		source: strings.TrimSuffix(source, "/"),
		dest:   strings.TrimSuffix(dest, "/"),
	}
	for _, have := range t.dirLinks {
		if have == l {
			return
		}
	}
	t.dirLinks = append(t.dirLinks, l)
}

// apply adds the recorded aliases to sbom and returns the number of paths
// and names added. It runs once, after the context queue has drained.
func (t *aliasTable) apply(sbom *model.SBOM) int {
	added := 0
	for _, sw := range sbom.Software {
		if names := newValues(sw.FileName, t.fileNames[sw.SHA256]); len(names) > 0 {
			sw.FileName = append(sw.FileName, names...)
			sw.Metadata = append(sw.Metadata, model.Metadata{fileNameSymlinksKey: names})
			added += len(names)
		}
		if paths := newValues(sw.InstallPath, t.installPaths[sw.SHA256]); len(paths) > 0 {
			sw.InstallPath = append(sw.InstallPath, paths...)
			sw.Metadata = append(sw.Metadata, model.Metadata{installPathSymlinksKey: paths})
			added += len(paths)
		}
	}

	if len(t.dirLinks) == 0 {
		return added
	}
	for _, sw := range sbom.Software {
		var rebased []string
		sw.ContainerPath, rebased = t.rebase(sw.ContainerPath, rebased)
		sw.InstallPath, rebased = t.rebase(sw.InstallPath, rebased)
		if len(rebased) == 0 {
			continue
		}
		noteInstallPathSymlinks(sw, rebased)
		added += len(rebased)
	}
	return added
}

// rebase returns paths plus, for every path under a directory link
// destination, the same path seen through the link source. The new paths
// are also appended to rebased.
func (t *aliasTable) rebase(paths, rebased []string) ([]string, []string) {
	var extra []string
	for _, p := range paths {
		for _, l := range t.dirLinks {
			rest, ok := under(p, l.dest)
			if !ok {
				continue
			}
			alias := l.source + rest
			if !contains(paths, alias) && !contains(extra, alias) {
				extra = append(extra, alias)
			}
		}
	}
	return append(paths, extra...), append(rebased, extra...)
}

// under reports whether p is dir or lies below it, and returns the part of
// p after dir (empty or starting with "/").
func under(p, dir string) (string, bool) {
	if dir == "" {
		return p, strings.HasPrefix(p, "/")
	}
	if p == dir {
		return "", true
	}
	if strings.HasPrefix(p, dir+"/") {
		return p[len(dir):], true
	}
	return "", false
}

// noteInstallPathSymlinks extends an existing installPathSymlinks record or
// appends a new one.
func noteInstallPathSymlinks(sw *model.Software, paths []string) {
	for _, md := range sw.Metadata {
		prev, ok := md[installPathSymlinksKey]
		if !ok {
			continue
		}
		md[installPathSymlinksKey] = model.AppendUnique(toStrings(prev), paths...)
		return
	}
	sw.Metadata = append(sw.Metadata, model.Metadata{installPathSymlinksKey: paths})
}

// toStrings accepts both []string and the []any produced by decoding JSON.
func toStrings(v any) []string {
	switch vv := v.(type) {
	case []string:
		return append([]string(nil), vv...)
	case []any:
		out := make([]string, 0, len(vv))
		for _, x := range vv {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func newValues(have, candidates []string) []string {
	var out []string
	for _, c := range candidates {
		if !contains(have, c) && !contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
