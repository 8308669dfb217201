// Package extractors defines the metadata-extraction plugin boundary and the
// built-in extractors. Each extractor handles one or more file type tags
// from package filetype; the registry resolves them once, at startup.
package extractors

import (
	"fmt"
	"sort"

	"github.com/StinkyLord/binary-sbom-builder/internal/model"
)

// AnyType registers an extractor for every identified (or included) file.
const AnyType = "*"

// ContextQueue accepts new scan contexts discovered during extraction,
// e.g. the unpacked contents of an archive.
type ContextQueue interface {
	Push(ctx model.Context)
}

// Request is everything an extractor may look at or add to.
type Request struct {
	// SBOM is the in-progress graph, for cross-referencing only.
	SBOM *model.SBOM

	// Software is the entity being built for Path. Extractors may read it;
	// top-level fields are folded in by the caller from the returned records.
	Software *model.Software

	Path     string
	FileType string
	Context  model.Context
	Queue    ContextQueue

	IncludeAllFiles bool

	// Children collects additional entities discovered inside the file.
	Children *[]*model.Software

	// ScratchDir is a scanner-owned directory removed when the scan ends.
	ScratchDir string
}

// AddChild appends sw to the request's children list.
func (r *Request) AddChild(sw *model.Software) {
	if r.Children != nil {
		*r.Children = append(*r.Children, sw)
	}
}

// Extractor inspects one file and returns an opaque metadata record, or nil
// when it has nothing to say. A returned error aborts the scan.
type Extractor interface {
	Name() string
	FileTypes() []string
	Extract(req *Request) (model.Metadata, error)
}

// Registry maps type tags to extractors in registration order.
type Registry struct {
	byType map[string][]Extractor
	all    []Extractor
}

// NewRegistry returns a registry holding the given extractors.
func NewRegistry(exts ...Extractor) *Registry {
	r := &Registry{byType: map[string][]Extractor{}}
	for _, e := range exts {
		r.Register(e)
	}
	return r
}

// Register adds e under each of its file types.
func (r *Registry) Register(e Extractor) {
	r.all = append(r.all, e)
	for _, t := range e.FileTypes() {
		r.byType[t] = append(r.byType[t], e)
	}
}

// For returns the extractors for fileType followed by the AnyType ones.
func (r *Registry) For(fileType string) []Extractor {
	var out []Extractor
	if fileType != "" && fileType != AnyType {
		out = append(out, r.byType[fileType]...)
	}
	return append(out, r.byType[AnyType]...)
}

// Names lists registered extractor names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.all))
	for _, e := range r.all {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// Run invokes every extractor for req.FileType and collects their records.
func (r *Registry) Run(req *Request) ([]model.Metadata, error) {
	var records []model.Metadata
	for _, e := range r.For(req.FileType) {
		md, err := e.Extract(req)
		if err != nil {
			return records, fmt.Errorf("%s extractor: %w", e.Name(), err)
		}
		if len(md) > 0 {
			records = append(records, md)
		}
	}
	return records, nil
}
