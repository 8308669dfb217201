// Package output provides SBOM serializers.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/StinkyLord/binary-sbom-builder/internal/model"
)

// DefaultFormat is the format written when none is requested.
const DefaultFormat = "native"

// Options carry what some writers need besides the SBOM itself.
type Options struct {
	ToolVersion string
}

// Format is one registered output writer.
type Format struct {
	Name        string
	Description string

	// write receives the output path; "-" means stdout for stream formats.
	write func(sbom *model.SBOM, outputPath string, opts Options) error
}

var formats = map[string]Format{}

func register(f Format) {
	formats[f.Name] = f
}

func init() {
	register(Format{Name: "native", Description: "native JSON document (software + relationships), readable as input", write: writeNativeFile})
	register(Format{Name: "cyclonedx", Description: "CycloneDX 1.4 JSON", write: WriteCycloneDX})
	register(Format{Name: "csv", Description: "one row per installed path: Path, SHA1, Supplier, Product, Version, Description, Copyright", write: WriteCSV})
	register(Format{Name: "dot", Description: "Graphviz digraph of entities and relationships", write: WriteDOT})
	register(Format{Name: "tree", Description: "recursive containment tree JSON", write: WriteContainmentTree})
	register(Format{Name: "sqlite", Description: "SQLite database with software, paths and relationships tables", write: WriteSQLite})
}

// Formats lists the registered formats sorted by name.
func Formats() []Format {
	out := make([]Format, 0, len(formats))
	for _, f := range formats {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Write serialises sbom in the named format to outputPath.
func Write(format string, sbom *model.SBOM, outputPath string, opts Options) error {
	if format == "cdx" {
		format = "cyclonedx"
	}
	f, ok := formats[format]
	if !ok {
		names := make([]string, 0, len(formats))
		for _, f := range Formats() {
			names = append(names, f.Name)
		}
		return fmt.Errorf("unsupported format %q (supported: %v)", format, names)
	}
	return f.write(sbom, outputPath, opts)
}

// toFile runs fn against outputPath, or stdout if outputPath is "-".
func toFile(outputPath string, fn func(w io.Writer) error) error {
	if outputPath == "-" {
		return fn(os.Stdout)
	}

	//nolint:gosec // G304: output path is chosen by the user
	f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	if err := fn(f); err != nil {
		//nolint:errcheck // the write error is the one worth reporting
		f.Close()
		return err
	}
	return f.Close()
}

// writeJSON marshals v as indented JSON and writes it to outputPath (or stdout if "-").
func writeJSON(outputPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return toFile(outputPath, func(w io.Writer) error {
		_, err := w.Write(append(data, '\n'))
		return err
	})
}
