package scanner

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/StinkyLord/binary-sbom-builder/internal/extractors"
	"github.com/StinkyLord/binary-sbom-builder/internal/model"
)

// location is where a file was found: the context it came from, the
// extraction root it was walked under and the UUID of the archive that
// produced the context, if any. unpacked is set when the root is a scratch
// directory the scanner unpacked an archive into.
type location struct {
	entry      model.Context
	root       string
	parentUUID string
	unpacked   bool
}

// rel returns p relative to the extraction root as a slash path, "" for
// the root itself.
func (l location) rel(p string) string {
	r, err := filepath.Rel(l.root, p)
	if err != nil || r == "." {
		return ""
	}
	return filepath.ToSlash(r)
}

// installPath maps a real path to the path it has once installed. Without
// an install prefix the real path is used, unless install paths are
// suppressed or the file only exists in the scanner's scratch directory.
func (s *Scanner) installPath(loc location, p string) (string, bool) {
	if loc.root == "" {
		return "", false
	}
	if loc.entry.InstallPrefix != "" {
		return loc.entry.InstallPrefix + loc.rel(p), true
	}
	if s.opts.SkipInstallPath || loc.unpacked {
		return "", false
	}
	return filepath.ToSlash(p), true
}

// containerPath scopes p by the UUID of the enclosing archive.
func containerPath(loc location, p string) (string, bool) {
	if loc.root == "" || loc.parentUUID == "" {
		return "", false
	}
	return loc.parentUUID + "/" + loc.rel(p), true
}

// buildSoftware creates the entity for the regular file at p and returns it
// together with any child entities the extractors discovered. Extractor
// errors are fatal and carry the path.
func (s *Scanner) buildSoftware(st *scanState, p, fileType string, loc location) (*model.Software, []*model.Software, error) {
	d, err := s.hasher.Sum(p)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to process %s: %w", p, err)
	}

	sw := model.NewSoftware()
	sw.SHA256 = d.SHA256
	sw.SHA1 = d.SHA1
	sw.MD5 = d.MD5
	sw.Size = d.Size
	sw.FileName = []string{filepath.Base(p)}
	sw.RecordedInstitution = s.opts.RecordedInstitution
	if ip, ok := s.installPath(loc, p); ok {
		sw.InstallPath = []string{ip}
	}
	if cp, ok := containerPath(loc, p); ok {
		sw.ContainerPath = []string{cp}
	}

	var children []*model.Software
	req := &extractors.Request{
		SBOM:            st.sbom,
		Software:        sw,
		Path:            p,
		FileType:        fileType,
		Context:         loc.entry,
		Queue:           st.queue,
		IncludeAllFiles: s.opts.IncludeAllFiles || loc.entry.IncludeAllFiles,
		Children:        &children,
		ScratchDir:      st.scratch,
	}
	records, err := s.registry.Run(req)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to process %s: %w", p, err)
	}
	sw.Metadata = append(sw.Metadata, records...)
	foldMetadata(sw, records)

	return sw, children, nil
}

// Metadata dialects folded into top-level fields, highest precedence first.
// A field is taken from the first dialect that supplies it; vendors from
// every dialect are kept, except that a fingerprint vendor is only a
// fallback.
var dialects = []struct {
	key                                          string
	name, version, vendor, description, comments string
}{
	{key: "FileInfo", name: "ProductName", version: "FileVersion", vendor: "CompanyName", description: "FileDescription", comments: "Comments"},
	{key: "ole", name: "subject", version: "revision_number", vendor: "author", comments: "comments"},
	{key: "fingerprint", name: "name", vendor: "vendor", description: "description"},
}

func foldMetadata(sw *model.Software, records []model.Metadata) {
	for _, d := range dialects {
		for _, md := range records {
			fields, ok := md[d.key].(map[string]any)
			if !ok {
				continue
			}
			sw.Name = fill(sw.Name, fields, d.name)
			sw.Version = fill(sw.Version, fields, d.version)
			sw.Description = fill(sw.Description, fields, d.description)
			sw.Comments = fill(sw.Comments, fields, d.comments)
			if v := str(fields, d.vendor); v != "" {
				if d.key != "fingerprint" || len(sw.Vendor) == 0 {
					sw.Vendor = model.AppendUnique(sw.Vendor, v)
				}
			}
		}
	}
}

func fill(cur string, fields map[string]any, key string) string {
	if cur != "" {
		return cur
	}
	return str(fields, key)
}

func str(fields map[string]any, key string) string {
	if key == "" {
		return ""
	}
	switch v := fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
