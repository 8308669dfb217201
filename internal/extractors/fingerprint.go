package extractors

import (
	"path/filepath"

	"github.com/StinkyLord/binary-sbom-builder/internal/filetype"
	"github.com/StinkyLord/binary-sbom-builder/internal/fingerprints"
	"github.com/StinkyLord/binary-sbom-builder/internal/model"
)

// FingerprintExtractor names well-known libraries from their file name.
type FingerprintExtractor struct{}

func (e *FingerprintExtractor) Name() string { return "fingerprint" }

func (e *FingerprintExtractor) FileTypes() []string {
	return []string{filetype.ELF, filetype.PE, filetype.MACHO, filetype.AR}
}

func (e *FingerprintExtractor) Extract(req *Request) (model.Metadata, error) {
	fp := fingerprints.MatchFile(filepath.Base(req.Path))
	if fp == nil {
		return nil, nil
	}
	info := map[string]any{
		"name":        fp.Name,
		"description": fp.Description,
	}
	if fp.Vendor != "" {
		info["vendor"] = fp.Vendor
	}
	return model.Metadata{"fingerprint": info}, nil
}
