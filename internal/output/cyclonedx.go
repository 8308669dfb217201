package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/package-url/packageurl-go"

	"github.com/StinkyLord/binary-sbom-builder/internal/model"
)

// ---- CycloneDX 1.4 JSON schema types ----

type cdxBOM struct {
	BOMFormat     string          `json:"bomFormat"`
	SpecVersion   string          `json:"specVersion"`
	Version       int             `json:"version"`
	SerialNumber  string          `json:"serialNumber"`
	Metadata      cdxMetadata     `json:"metadata"`
	Components    []cdxComponent  `json:"components"`
	Dependencies  []cdxDependency `json:"dependencies,omitempty"`
	ContainerTree []*cdxTreeNode  `json:"x-containmentTree,omitempty"`
}

// cdxTreeNode is a recursive tree node for the x-containmentTree extension.
// Only entities that nothing contains appear at the root; each node carries
// its full subtree inline.
//
// Example:
//
//	[
//	  { "name":"firmware.iso", "bom-ref":"…", "children": [
//	      { "name":"rootfs.tar", "bom-ref":"…", "children": [
//	          { "name":"openssl", "version":"3.0.2", "bom-ref":"…" }
//	      ]}
//	  ]}
//	]
type cdxTreeNode struct {
	Name     string         `json:"name"`
	Version  string         `json:"version,omitempty"`
	BOMRef   string         `json:"bom-ref"`
	Children []*cdxTreeNode `json:"children,omitempty"`
}

type cdxMetadata struct {
	Timestamp string    `json:"timestamp"`
	Tools     []cdxTool `json:"tools"`
}

type cdxTool struct {
	Vendor  string `json:"vendor"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

type cdxComponent struct {
	Type        string        `json:"type"`
	BOMRef      string        `json:"bom-ref"`
	Supplier    *cdxSupplier  `json:"supplier,omitempty"`
	Name        string        `json:"name"`
	Version     string        `json:"version,omitempty"`
	Description string        `json:"description,omitempty"`
	Hashes      []cdxHash     `json:"hashes,omitempty"`
	PURL        string        `json:"purl,omitempty"`
	Properties  []cdxProperty `json:"properties,omitempty"`
}

type cdxSupplier struct {
	Name string `json:"name"`
}

type cdxHash struct {
	Alg     string `json:"alg"`
	Content string `json:"content"`
}

type cdxProperty struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// cdxDependency represents one node in the CycloneDX dependency graph.
// "ref" is the bom-ref (the entity UUID); "dependsOn" lists what it contains.
type cdxDependency struct {
	Ref       string   `json:"ref"`
	DependsOn []string `json:"dependsOn"`
}

// WriteCycloneDX serialises the SBOM as a CycloneDX 1.4 JSON document and
// writes it to the given output path. If outputPath is "-", it writes to stdout.
func WriteCycloneDX(sbom *model.SBOM, outputPath string, opts Options) error {
	bom := buildCycloneDX(sbom, opts.ToolVersion)
	return toFile(outputPath, func(w io.Writer) error {
		data, err := json.MarshalIndent(bom, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal CycloneDX JSON: %w", err)
		}
		_, err = w.Write(append(data, '\n'))
		return err
	})
}

func buildCycloneDX(sbom *model.SBOM, toolVersion string) cdxBOM {
	// Sort components by name for deterministic output
	sws := make([]*model.Software, len(sbom.Software))
	copy(sws, sbom.Software)
	sort.SliceStable(sws, func(i, j int) bool {
		return sws[i].DisplayName() < sws[j].DisplayName()
	})

	cdxComps := make([]cdxComponent, 0, len(sws))
	for _, sw := range sws {
		cdxComps = append(cdxComps, toComponent(sw))
	}

	// Contains edges become the dependency graph; other edge types are kept
	// as properties on the source component.
	children := map[string][]string{}
	for _, r := range sbom.Relationships {
		if r.Relationship == model.Contains {
			children[r.XUUID] = model.AppendUnique(children[r.XUUID], r.YUUID)
		}
	}
	cdxDeps := make([]cdxDependency, 0, len(children))
	for _, sw := range sws {
		kids, ok := children[sw.UUID]
		if !ok {
			continue
		}
		dep := cdxDependency{Ref: sw.UUID, DependsOn: append([]string{}, kids...)}
		sort.Strings(dep.DependsOn)
		cdxDeps = append(cdxDeps, dep)
	}
	addRelationshipProperties(cdxComps, sbom.Relationships)

	var tree []*cdxTreeNode
	for _, root := range model.BuildContainmentTree(sbom).Roots {
		// Only roots that actually contain something are interesting here.
		if len(root.Children) > 0 {
			tree = append(tree, modelNodeToCDX(root))
		}
	}

	return cdxBOM{
		BOMFormat:    "CycloneDX",
		SpecVersion:  "1.4",
		Version:      1,
		SerialNumber: "urn:uuid:" + uuid.NewString(),
		Metadata: cdxMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Tools: []cdxTool{
				{
					Vendor:  "StinkyLord",
					Name:    "binary-sbom-builder",
					Version: toolVersion,
				},
			},
		},
		Components:    cdxComps,
		Dependencies:  cdxDeps,
		ContainerTree: tree,
	}
}

func toComponent(sw *model.Software) cdxComponent {
	comp := cdxComponent{
		Type:        "file",
		BOMRef:      sw.UUID,
		Name:        sw.DisplayName(),
		Version:     sw.Version,
		Description: sw.Description,
		PURL:        softwarePURL(sw),
	}
	if len(sw.Vendor) > 0 {
		comp.Supplier = &cdxSupplier{Name: sw.Vendor[0]}
	}
	if isLibrary(sw) {
		comp.Type = "library"
	}

	if sw.SHA1 != "" {
		comp.Hashes = append(comp.Hashes, cdxHash{Alg: "SHA-1", Content: sw.SHA1})
	}
	if sw.SHA256 != "" {
		comp.Hashes = append(comp.Hashes, cdxHash{Alg: "SHA-256", Content: sw.SHA256})
	}
	if sw.MD5 != "" {
		comp.Hashes = append(comp.Hashes, cdxHash{Alg: "MD5", Content: sw.MD5})
	}

	for _, fn := range sw.FileName {
		comp.Properties = append(comp.Properties, cdxProperty{Name: "sbom:fileName", Value: fn})
	}
	for _, p := range sw.InstallPath {
		comp.Properties = append(comp.Properties, cdxProperty{Name: "sbom:installPath", Value: p})
	}
	for _, p := range sw.ContainerPath {
		comp.Properties = append(comp.Properties, cdxProperty{Name: "sbom:containerPath", Value: p})
	}
	for _, v := range sw.Vendor[min(1, len(sw.Vendor)):] {
		comp.Properties = append(comp.Properties, cdxProperty{Name: "sbom:vendor", Value: v})
	}
	if sw.Comments != "" {
		comp.Properties = append(comp.Properties, cdxProperty{Name: "sbom:comments", Value: sw.Comments})
	}
	if sw.RecordedInstitution != "" {
		comp.Properties = append(comp.Properties, cdxProperty{Name: "sbom:recordedInstitution", Value: sw.RecordedInstitution})
	}
	return comp
}

func addRelationshipProperties(comps []cdxComponent, rels []*model.Relationship) {
	idx := make(map[string]int, len(comps))
	for i, c := range comps {
		idx[c.BOMRef] = i
	}
	for _, r := range rels {
		if r.Relationship == model.Contains {
			continue
		}
		i, ok := idx[r.XUUID]
		if !ok {
			continue
		}
		comps[i].Properties = append(comps[i].Properties, cdxProperty{
			Name:  "sbom:relationship:" + r.Relationship,
			Value: r.YUUID,
		})
	}
}

// softwarePURL builds pkg:generic/<name>@<version>?checksum=sha256:<hash>.
// Entities without a sha256 only get a PURL when they have a version.
func softwarePURL(sw *model.Software) string {
	var qualifiers packageurl.Qualifiers
	if sw.SHA256 != "" {
		qualifiers = packageurl.QualifiersFromMap(map[string]string{"checksum": "sha256:" + sw.SHA256})
	} else if sw.Version == "" {
		return ""
	}
	p := packageurl.NewPackageURL(packageurl.TypeGeneric, "", sw.DisplayName(), sw.Version, qualifiers, "")
	return p.ToString()
}

// isLibrary reports whether a fingerprint or an ELF SONAME named the entity.
func isLibrary(sw *model.Software) bool {
	for _, md := range sw.Metadata {
		if _, ok := md["fingerprint"]; ok {
			return true
		}
		if elf, ok := md["elf"].(map[string]any); ok {
			if _, ok := elf["soname"]; ok {
				return true
			}
		}
	}
	return false
}

// modelNodeToCDX converts a model.TreeNode to a cdxTreeNode recursively.
func modelNodeToCDX(n *model.TreeNode) *cdxTreeNode {
	node := &cdxTreeNode{
		Name:    n.Name,
		Version: n.Version,
		BOMRef:  n.UUID,
	}
	for _, child := range n.Children {
		node.Children = append(node.Children, modelNodeToCDX(child))
	}
	return node
}
