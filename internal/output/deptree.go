package output

import (
	"github.com/StinkyLord/binary-sbom-builder/internal/model"
)

// WriteContainmentTree serialises the SBOM's Contains hierarchy as a pure
// tree JSON and writes it to the given output path. If outputPath is "-", it
// writes to stdout.
//
// The output is a JSON array of entities that nothing contains. Each node
// carries its name, version, sha256 and paths plus a "children" array that
// recursively holds what it contains.
//
// Example output:
//
//	[
//	  {
//	    "UUID": "0b9e…",
//	    "name": "firmware.zip",
//	    "sha256": "9f86…",
//	    "paths": ["/opt/firmware.zip"],
//	    "children": [
//	      {
//	        "UUID": "5c1a…",
//	        "name": "openssl",
//	        "version": "3.0.2",
//	        "paths": ["0b9e…/lib/libssl.so.3"]
//	      }
//	    ]
//	  }
//	]
func WriteContainmentTree(sbom *model.SBOM, outputPath string, _ Options) error {
	tree := model.BuildContainmentTree(sbom)
	if len(tree.Roots) == 0 {
		// Emit an empty array rather than null
		return writeJSON(outputPath, []struct{}{})
	}

	return writeJSON(outputPath, tree.Roots)
}
