package extractors

import "go.uber.org/zap"

// Options selects the built-in extractors.
type Options struct {
	// UnpackArchives enables the archive extractor.
	UnpackArchives bool

	// MaxUnpackBytes overrides DefaultMaxUnpackBytes when > 0.
	MaxUnpackBytes int64

	Logger *zap.Logger
}

// Default returns a registry with every built-in extractor.
func Default(opts Options) *Registry {
	r := NewRegistry(
		&PEExtractor{},
		&ELFExtractor{},
		&OLEExtractor{},
		&FingerprintExtractor{},
	)
	if opts.UnpackArchives {
		a := NewArchiveExtractor(opts.Logger)
		if opts.MaxUnpackBytes > 0 {
			a.MaxBytes = opts.MaxUnpackBytes
		}
		r.Register(a)
	}
	return r
}
