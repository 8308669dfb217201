package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/StinkyLord/binary-sbom-builder/internal/model"
)

// nativeDocument is the persisted layout of an SBOM. It round-trips the
// whole graph.
type nativeDocument struct {
	Software      []*model.Software     `json:"software"`
	Relationships []*model.Relationship `json:"relationships"`
}

// WriteNative encodes sbom as a native JSON document.
func WriteNative(w io.Writer, sbom *model.SBOM) error {
	doc := nativeDocument{
		Software:      sbom.Software,
		Relationships: sbom.Relationships,
	}
	if doc.Software == nil {
		doc.Software = []*model.Software{}
	}
	if doc.Relationships == nil {
		doc.Relationships = []*model.Relationship{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode SBOM: %w", err)
	}
	return nil
}

func writeNativeFile(sbom *model.SBOM, outputPath string, _ Options) error {
	return toFile(outputPath, func(w io.Writer) error {
		return WriteNative(w, sbom)
	})
}

// ReadNative decodes a native JSON document and rebuilds the SBOM indexes.
// Entries that share a hash are folded into one entity and their
// relationships repointed, the same way a scan merges duplicate content.
func ReadNative(r io.Reader) (*model.SBOM, error) {
	var doc nativeDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode SBOM: %w", err)
	}

	byUUID := make(map[string]*model.Software, len(doc.Software))
	for i, sw := range doc.Software {
		if sw == nil {
			return nil, fmt.Errorf("software entry %d is null", i)
		}
		if sw.UUID == "" {
			return nil, fmt.Errorf("software entry %d has no UUID", i)
		}
		if prev, ok := byUUID[sw.UUID]; ok && !sharesHash(prev, sw) {
			return nil, fmt.Errorf("software entry %d reuses UUID %s of a different entity", i, sw.UUID)
		}
		byUUID[sw.UUID] = sw
	}
	rels := make([]*model.Relationship, 0, len(doc.Relationships))
	for _, r := range doc.Relationships {
		if r != nil {
			rels = append(rels, r)
		}
	}

	sbom := model.New()
	sbom.Merge(&model.SBOM{Software: doc.Software, Relationships: rels})
	return sbom, nil
}

func sharesHash(a, b *model.Software) bool {
	return (a.SHA256 != "" && a.SHA256 == b.SHA256) ||
		(a.SHA1 != "" && a.SHA1 == b.SHA1) ||
		(a.MD5 != "" && a.MD5 == b.MD5)
}

// ReadNativeFile reads a native JSON SBOM from path, or stdin if path is "-".
func ReadNativeFile(path string) (*model.SBOM, error) {
	if path == "-" {
		return ReadNative(os.Stdin)
	}
	//nolint:gosec // G304: input path is chosen by the user
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input SBOM: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	sbom, err := ReadNative(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sbom, nil
}
