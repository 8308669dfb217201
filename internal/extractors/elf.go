package extractors

import (
	"debug/elf"
	"fmt"
	"os"

	"github.com/StinkyLord/binary-sbom-builder/internal/filetype"
	"github.com/StinkyLord/binary-sbom-builder/internal/model"
)

// ELFExtractor records the dynamic linking details of ELF objects:
// DT_NEEDED entries, SONAME and search paths (Go stdlib: debug/elf).
type ELFExtractor struct{}

func (e *ELFExtractor) Name() string        { return "elf" }
func (e *ELFExtractor) FileTypes() []string { return []string{filetype.ELF} }

func (e *ELFExtractor) Extract(req *Request) (model.Metadata, error) {
	//nolint:gosec // G304: path comes from the configured extraction roots
	f, err := os.Open(req.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	ef, err := elf.NewFile(f)
	if err != nil {
		// A truncated or corrupt object is still inventoried; keep the reason.
		return model.Metadata{"elf": map[string]any{"parseError": err.Error()}}, nil
	}
	//nolint:errcheck // Defer close on read-only file
	defer ef.Close()

	info := map[string]any{
		"class":   ef.Class.String(),
		"machine": ef.Machine.String(),
		"type":    ef.Type.String(),
		"osABI":   ef.OSABI.String(),
	}

	// Static executables and relocatable objects have no dynamic section.
	if needed, err := ef.DynString(elf.DT_NEEDED); err == nil && len(needed) > 0 {
		info["needed"] = needed
	}
	if soname, err := ef.DynString(elf.DT_SONAME); err == nil && len(soname) > 0 {
		info["soname"] = soname[0]
	}
	if rpath, err := ef.DynString(elf.DT_RPATH); err == nil && len(rpath) > 0 {
		info["rpath"] = rpath
	}
	if runpath, err := ef.DynString(elf.DT_RUNPATH); err == nil && len(runpath) > 0 {
		info["runpath"] = runpath
	}
	if interp := ef.Section(".interp"); interp != nil {
		if data, err := interp.Data(); err == nil && len(data) > 0 {
			info["interpreter"] = trimNUL(string(data))
		}
	}

	return model.Metadata{"elf": info}, nil
}

func trimNUL(s string) string {
	for len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	return s
}
