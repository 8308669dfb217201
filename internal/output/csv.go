package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/StinkyLord/binary-sbom-builder/internal/model"
)

var csvFields = []string{"Path", "SHA1", "Supplier", "Product", "Version", "Description", "Copyright"}

// WriteCSV writes one row per install path of every entity. Entities with no
// install path use their container paths, minus the leading archive UUID.
func WriteCSV(sbom *model.SBOM, outputPath string, _ Options) error {
	return toFile(outputPath, func(w io.Writer) error {
		return writeCSV(w, sbom)
	})
}

func writeCSV(w io.Writer, sbom *model.SBOM) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvFields); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, sw := range sbom.Software {
		for _, p := range csvPaths(sw) {
			row := []string{
				p,
				sw.SHA1,
				strings.Join(sw.Vendor, "; "),
				sw.Name,
				sw.Version,
				sw.Description,
				copyright(sw),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvPaths(sw *model.Software) []string {
	if len(sw.InstallPath) > 0 {
		return sw.InstallPath
	}
	out := make([]string, 0, len(sw.ContainerPath))
	for _, p := range sw.ContainerPath {
		if _, rest, ok := strings.Cut(p, "/"); ok {
			p = rest
		}
		out = append(out, p)
	}
	return out
}

// copyright is only known from the PE version resource.
func copyright(sw *model.Software) string {
	for _, md := range sw.Metadata {
		fi, ok := md["FileInfo"].(map[string]any)
		if !ok {
			continue
		}
		if c, ok := fi["LegalCopyright"].(string); ok {
			return c
		}
	}
	return ""
}
