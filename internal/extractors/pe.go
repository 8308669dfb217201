package extractors

import (
	"debug/pe"
	"fmt"
	"os"

	"github.com/StinkyLord/binary-sbom-builder/internal/filetype"
	"github.com/StinkyLord/binary-sbom-builder/internal/model"
)

// PEExtractor records the import directory of PE images (Go stdlib:
// debug/pe) and the string table of their version resource, which lands
// under the "FileInfo" key.
type PEExtractor struct{}

func (e *PEExtractor) Name() string        { return "pe" }
func (e *PEExtractor) FileTypes() []string { return []string{filetype.PE} }

func (e *PEExtractor) Extract(req *Request) (model.Metadata, error) {
	//nolint:gosec // G304: path comes from the configured extraction roots
	f, err := os.Open(req.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PE file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	pf, err := pe.NewFile(f)
	if err != nil {
		return model.Metadata{"pe": map[string]any{"parseError": err.Error()}}, nil
	}
	//nolint:errcheck // Defer close on read-only file
	defer pf.Close()

	info := map[string]any{
		"machine":         fmt.Sprintf("0x%04x", pf.FileHeader.Machine),
		"characteristics": fmt.Sprintf("0x%04x", pf.FileHeader.Characteristics),
		"dll":             pf.FileHeader.Characteristics&pe.IMAGE_FILE_DLL != 0,
	}
	switch hdr := pf.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		info["subsystem"] = hdr.Subsystem
	case *pe.OptionalHeader64:
		info["subsystem"] = hdr.Subsystem
	}
	if imports, err := pf.ImportedLibraries(); err == nil && len(imports) > 0 {
		info["imports"] = imports
	}

	md := model.Metadata{"pe": info}

	if rsrc := pf.Section(".rsrc"); rsrc != nil {
		if data, err := rsrc.Data(); err == nil {
			if fi := parseVersionInfo(data); len(fi) > 0 {
				md["FileInfo"] = fi
			}
		}
	}
	return md, nil
}
