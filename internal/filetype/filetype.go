// Package filetype identifies files by their leading magic bytes.
//
// Identification never depends on the file name, so renamed binaries and
// versioned shared objects (libssl.so.3.1.4) are recognised the same way.
package filetype

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Type tags returned by Identify.
const (
	ELF       = "ELF"
	PE        = "PE"
	OLE       = "OLE"
	ZIP       = "ZIP"
	TAR       = "TAR"
	GZIP      = "GZIP"
	AR        = "AR"
	MACHO     = "MACHO"
	JavaClass = "JAVACLASS"
	Shebang   = "SHEBANG"
)

const headerSize = 512

var (
	magicELF     = []byte{0x7f, 'E', 'L', 'F'}
	magicOLE     = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}
	magicZIP     = []byte("PK\x03\x04")
	magicZIPNone = []byte("PK\x05\x06")
	magicGZIP    = []byte{0x1f, 0x8b}
	magicAR      = []byte("!<arch>\n")
	magicCAFE    = []byte{0xca, 0xfe, 0xba, 0xbe}
	machoMagics  = [][]byte{
		{0xfe, 0xed, 0xfa, 0xce},
		{0xce, 0xfa, 0xed, 0xfe},
		{0xfe, 0xed, 0xfa, 0xcf},
		{0xcf, 0xfa, 0xed, 0xfe},
	}
)

// Identify returns the type tag of the file at path, or "" when the format
// is not recognised. It only reads the first few hundred bytes.
func Identify(path string) (string, error) {
	//nolint:gosec // G304: path comes from the configured extraction roots
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	hdr := make([]byte, headerSize)
	n, err := io.ReadFull(f, hdr)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read header: %w", err)
	}
	return IdentifyBytes(hdr[:n]), nil
}

// IdentifyBytes classifies a file header.
func IdentifyBytes(hdr []byte) string {
	switch {
	case bytes.HasPrefix(hdr, magicELF):
		return ELF
	case bytes.HasPrefix(hdr, []byte("MZ")):
		if isPE(hdr) {
			return PE
		}
		return ""
	case bytes.HasPrefix(hdr, magicOLE):
		return OLE
	case bytes.HasPrefix(hdr, magicZIP), bytes.HasPrefix(hdr, magicZIPNone):
		return ZIP
	case bytes.HasPrefix(hdr, magicGZIP):
		return GZIP
	case bytes.HasPrefix(hdr, magicAR):
		return AR
	case bytes.HasPrefix(hdr, magicCAFE):
		// Fat Mach-O and Java class files share a magic; the next word is
		// an arch count for the former and a class version (>= 45) for the latter.
		if len(hdr) >= 8 && binary.BigEndian.Uint32(hdr[4:8]) >= 45 {
			return JavaClass
		}
		return MACHO
	case bytes.HasPrefix(hdr, []byte("#!")):
		return Shebang
	}

	for _, m := range machoMagics {
		if bytes.HasPrefix(hdr, m) {
			return MACHO
		}
	}
	if len(hdr) >= 262 && bytes.Equal(hdr[257:262], []byte("ustar")) {
		return TAR
	}
	return ""
}

// isPE checks the "PE\0\0" signature at the offset stored at 0x3c.
func isPE(hdr []byte) bool {
	if len(hdr) < 0x40 {
		return false
	}
	off := int(binary.LittleEndian.Uint32(hdr[0x3c:0x40]))
	if off < 0 || off+4 > len(hdr) {
		return false
	}
	return bytes.Equal(hdr[off:off+4], []byte("PE\x00\x00"))
}
