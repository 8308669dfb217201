package output

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/StinkyLord/binary-sbom-builder/internal/model"
)

// WriteDOT writes the SBOM graph in Graphviz DOT syntax: one node per entity
// labelled with its display name and one labelled edge per relationship.
func WriteDOT(sbom *model.SBOM, outputPath string, _ Options) error {
	return toFile(outputPath, func(w io.Writer) error {
		return writeDOT(w, sbom)
	})
}

func writeDOT(w io.Writer, sbom *model.SBOM) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph G {")
	for _, sw := range sbom.Software {
		fmt.Fprintf(bw, "  %s [label=%s];\n", strconv.Quote(sw.UUID), strconv.Quote(sw.DisplayName()))
	}
	for _, r := range sbom.Relationships {
		fmt.Fprintf(bw, "  %s -> %s [label=%s];\n",
			strconv.Quote(r.XUUID), strconv.Quote(r.YUUID), strconv.Quote(r.Relationship))
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
