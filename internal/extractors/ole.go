package extractors

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/StinkyLord/binary-sbom-builder/internal/filetype"
	"github.com/StinkyLord/binary-sbom-builder/internal/model"
)

// OLEExtractor records the compound file header of OLE documents and MSI
// installers under the "ole" key. Summary-information properties (subject,
// author, revision_number, comments) are folded by the entity builder when
// an extractor supplies them.
type OLEExtractor struct{}

func (e *OLEExtractor) Name() string        { return "ole" }
func (e *OLEExtractor) FileTypes() []string { return []string{filetype.OLE} }

func (e *OLEExtractor) Extract(req *Request) (model.Metadata, error) {
	//nolint:gosec // G304: path comes from the configured extraction roots
	f, err := os.Open(req.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open OLE file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	hdr := make([]byte, 0x30)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return model.Metadata{"ole": map[string]any{"parseError": err.Error()}}, nil
	}

	sectorShift := binary.LittleEndian.Uint16(hdr[0x1e:])
	info := map[string]any{
		"minorVersion": binary.LittleEndian.Uint16(hdr[0x18:]),
		"majorVersion": binary.LittleEndian.Uint16(hdr[0x1a:]),
		"sectorSize":   1 << sectorShift,
		"fatSectors":   binary.LittleEndian.Uint32(hdr[0x2c:]),
	}
	return model.Metadata{"ole": info}, nil
}
