package extractors

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"
)

// vsNode is one block of a VS_VERSIONINFO tree: wLength, wValueLength,
// wType, a NUL-terminated UTF-16 key, a value and child blocks, each part
// aligned to 32 bits.
type vsNode struct {
	key      string
	text     string
	children []vsNode
}

var vsVersionInfoKey = utf16le("VS_VERSION_INFO")

// parseVersionInfo finds the version resource in a .rsrc section and
// returns the entries of its first StringTable (ProductName, FileVersion,
// CompanyName, ...). It returns nil when there is none.
func parseVersionInfo(rsrc []byte) map[string]any {
	idx := bytes.Index(rsrc, vsVersionInfoKey)
	if idx < 6 {
		return nil
	}
	root, ok := parseVSNode(rsrc, idx-6, 0)
	if !ok {
		return nil
	}

	for _, block := range root.children {
		if block.key != "StringFileInfo" {
			continue
		}
		for _, table := range block.children {
			out := map[string]any{}
			for _, s := range table.children {
				if s.key != "" && s.text != "" {
					out[s.key] = s.text
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

// parseVSNode decodes the block at off. Offsets are aligned relative to the
// start of data, which holds for section data since sections are aligned.
func parseVSNode(data []byte, off, depth int) (vsNode, bool) {
	var n vsNode
	if depth > 4 || off < 0 || off+6 > len(data) {
		return n, false
	}
	length := int(binary.LittleEndian.Uint16(data[off:]))
	valueLen := int(binary.LittleEndian.Uint16(data[off+2:]))
	isText := binary.LittleEndian.Uint16(data[off+4:]) == 1
	end := off + length
	if length < 6 || end > len(data) {
		return n, false
	}

	p := off + 6
	key, p, ok := readUTF16Z(data, p, end)
	if !ok {
		return n, false
	}
	n.key = key
	p = align4(p)

	valueBytes := valueLen
	if isText {
		valueBytes = valueLen * 2
	}
	if valueBytes > 0 {
		if p+valueBytes > end {
			valueBytes = end - p
		}
		if isText && valueBytes > 0 {
			n.text = decodeUTF16(data[p : p+valueBytes])
		}
		p = align4(p + valueBytes)
	}

	for p+6 <= end {
		child, ok := parseVSNode(data, p, depth+1)
		if !ok {
			break
		}
		n.children = append(n.children, child)
		p = align4(p + int(binary.LittleEndian.Uint16(data[p:])))
	}
	return n, true
}

func readUTF16Z(data []byte, p, end int) (string, int, bool) {
	start := p
	for p+1 < end {
		if data[p] == 0 && data[p+1] == 0 {
			return decodeUTF16(data[start:p]), p + 2, true
		}
		p += 2
	}
	return "", p, false
}

func decodeUTF16(b []byte) string {
	u := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		c := binary.LittleEndian.Uint16(b[i:])
		if c == 0 {
			break
		}
		u = append(u, c)
	}
	return string(utf16.Decode(u))
}

func utf16le(s string) []byte {
	u := utf16.Encode([]rune(s))
	b := make([]byte, len(u)*2)
	for i, c := range u {
		binary.LittleEndian.PutUint16(b[i*2:], c)
	}
	return b
}

func align4(p int) int {
	return (p + 3) &^ 3
}
