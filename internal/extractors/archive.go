package extractors

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/StinkyLord/binary-sbom-builder/internal/filetype"
	"github.com/StinkyLord/binary-sbom-builder/internal/model"
)

// DefaultMaxUnpackBytes caps how much a single archive may expand to.
const DefaultMaxUnpackBytes int64 = 4 << 30

var (
	errUnpackLimit  = errors.New("archive exceeds unpack limit")
	errUnsafeMember = errors.New("member path is blocked by an earlier member")
)

// ArchiveExtractor unpacks ZIP, TAR and gzip files into the scan's scratch
// directory and queues the unpacked tree as a new context whose archive
// parent is the file itself.
type ArchiveExtractor struct {
	Logger   *zap.Logger
	MaxBytes int64
}

// NewArchiveExtractor returns an ArchiveExtractor with the default limit.
func NewArchiveExtractor(logger *zap.Logger) *ArchiveExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveExtractor{Logger: logger, MaxBytes: DefaultMaxUnpackBytes}
}

func (e *ArchiveExtractor) Name() string { return "archive" }

func (e *ArchiveExtractor) FileTypes() []string {
	return []string{filetype.ZIP, filetype.TAR, filetype.GZIP}
}

func (e *ArchiveExtractor) Extract(req *Request) (model.Metadata, error) {
	if req.Queue == nil || req.ScratchDir == "" {
		return nil, nil
	}

	dest, err := os.MkdirTemp(req.ScratchDir, "unpack-")
	if err != nil {
		return nil, fmt.Errorf("failed to create unpack directory: %w", err)
	}

	u := &unpacker{dest: dest, budget: e.MaxBytes, logger: e.Logger}
	var format string
	switch req.FileType {
	case filetype.ZIP:
		format = "zip"
		err = u.unzip(req.Path)
	case filetype.TAR:
		format = "tar"
		err = u.untarFile(req.Path)
	case filetype.GZIP:
		format, err = u.gunzip(req.Path)
	default:
		return nil, nil
	}

	if err != nil {
		e.Logger.Warn("Unable to unpack archive", zap.String("path", req.Path), zap.Error(err))
		//nolint:errcheck // best effort, the scratch dir is removed at the end anyway
		os.RemoveAll(dest)
		return model.Metadata{"archive": map[string]any{"format": format, "parseError": err.Error()}}, nil
	}

	if u.entries > 0 {
		req.Queue.Push(model.Context{
			ExtractPaths:    []string{dest},
			Archive:         req.Path,
			IncludeAllFiles: req.Context.IncludeAllFiles,
		})
	}

	return model.Metadata{"archive": map[string]any{
		"format":  format,
		"entries": u.entries,
		"skipped": u.skipped,
	}}, nil
}

type unpacker struct {
	dest    string
	budget  int64
	entries int
	skipped int
	logger  *zap.Logger
}

// target maps an archive member name to a path under dest, or "" when the
// name is absolute or climbs out of the archive.
func (u *unpacker) target(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if path.IsAbs(name) {
		return ""
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return ""
	}
	return filepath.Join(u.dest, filepath.FromSlash(clean))
}

func (u *unpacker) skip(name, reason string) {
	u.skipped++
	u.logger.Debug("Skipping archive member", zap.String("member", name), zap.String("reason", reason))
}

// mkdirs creates dir and its missing parents below dest one component at a
// time. It never follows a symlink planted by an earlier member.
func (u *unpacker) mkdirs(dir string) error {
	rel, err := filepath.Rel(u.dest, dir)
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}
	cur := u.dest
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if err := os.Mkdir(cur, 0o755); err != nil {
				return err
			}
		case err != nil:
			return err
		case info.Mode()&os.ModeSymlink != 0:
			return fmt.Errorf("%w: %s is a symlink", errUnsafeMember, cur)
		case !info.IsDir():
			return fmt.Errorf("%w: %s is not a directory", errUnsafeMember, cur)
		}
	}
	return nil
}

func (u *unpacker) writeFile(dst string, r io.Reader, mode os.FileMode) error {
	if err := u.mkdirs(filepath.Dir(dst)); err != nil {
		return err
	}
	// Never write through an existing link or onto a directory.
	if info, err := os.Lstat(dst); err == nil && !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s already exists", errUnsafeMember, dst)
	}
	//nolint:gosec // G304: dst is confined to the unpack directory by target()
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0o600)
	if err != nil {
		return err
	}
	n, err := io.CopyN(f, r, u.budget+1)
	closeErr := f.Close()
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if closeErr != nil {
		return closeErr
	}
	u.budget -= n
	if u.budget < 0 {
		return errUnpackLimit
	}
	u.entries++
	return nil
}

func (u *unpacker) unzip(archive string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	//nolint:errcheck // Defer close on read-only file
	defer zr.Close()

	for _, zf := range zr.File {
		dst := u.target(zf.Name)
		if dst == "" {
			u.skip(zf.Name, "path escapes archive")
			continue
		}
		if zf.FileInfo().IsDir() {
			if err := u.mkdirs(dst); err != nil {
				if errors.Is(err, errUnsafeMember) {
					u.skip(zf.Name, err.Error())
					continue
				}
				return err
			}
			continue
		}
		if zf.Mode()&os.ModeSymlink != 0 {
			u.skip(zf.Name, "symlink")
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return err
		}
		err = u.writeFile(dst, rc, zf.Mode())
		//nolint:errcheck // read side
		rc.Close()
		if errors.Is(err, errUnsafeMember) {
			u.skip(zf.Name, err.Error())
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (u *unpacker) untarFile(archive string) error {
	//nolint:gosec // G304: path comes from the configured extraction roots
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()
	return u.untar(f)
}

func (u *unpacker) untar(r io.Reader) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		dst := u.target(hdr.Name)
		if dst == "" {
			u.skip(hdr.Name, "path escapes archive")
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			err = u.mkdirs(dst)
		case tar.TypeReg:
			err = u.writeFile(dst, tr, os.FileMode(hdr.Mode))
		case tar.TypeSymlink:
			// Links are kept as links; the walker resolves them inside the
			// unpacked root like any other symlink.
			if err = u.mkdirs(filepath.Dir(dst)); err == nil {
				if linkErr := os.Symlink(hdr.Linkname, dst); linkErr != nil {
					u.skip(hdr.Name, linkErr.Error())
				}
			}
		default:
			u.skip(hdr.Name, fmt.Sprintf("unsupported tar entry type %q", hdr.Typeflag))
		}
		if errors.Is(err, errUnsafeMember) {
			u.skip(hdr.Name, err.Error())
			continue
		}
		if err != nil {
			return err
		}
	}
}

// gunzip unpacks a .tar.gz into dest, or decompresses a plain .gz into a
// single file named after the archive without its extension.
func (u *unpacker) gunzip(archive string) (string, error) {
	//nolint:gosec // G304: path comes from the configured extraction roots
	f, err := os.Open(archive)
	if err != nil {
		return "gzip", err
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return "gzip", err
	}
	//nolint:errcheck // read side
	defer zr.Close()

	br := bufio.NewReaderSize(zr, 1024)
	peek, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "gzip", err
	}
	if filetype.IdentifyBytes(peek) == filetype.TAR {
		return "tar.gz", u.untar(br)
	}

	name := strings.TrimSuffix(filepath.Base(archive), ".gz")
	if zr.Name != "" {
		name = filepath.Base(zr.Name)
	}
	if name == "" || name == "." || name == "/" {
		name = "contents"
	}
	return "gzip", u.writeFile(filepath.Join(u.dest, name), br, 0o644)
}
