// Package fingerprints maps well-known shared library file names to the
// product they belong to. It is used to name binaries that carry no version
// resource of their own (most ELF shared objects).
package fingerprints

import "strings"

// LibraryFingerprint describes how to recognise a known library by file name.
type LibraryFingerprint struct {
	Name        string   // Canonical product name
	Vendor      string   // Publisher, if well known
	Stems       []string // File name stems, without "lib" prefix or extension
	Description string
}

// KnownLibraries is the built-in fingerprint database.
var KnownLibraries = []LibraryFingerprint{
	{
		Name:        "openssl",
		Vendor:      "OpenSSL Project",
		Stems:       []string{"ssl", "crypto", "ssleay32", "eay32", "ssl-3", "crypto-3", "ssl-1_1", "crypto-1_1"},
		Description: "OpenSSL cryptography library",
	},
	{
		Name:        "zlib",
		Vendor:      "Jean-loup Gailly and Mark Adler",
		Stems:       []string{"z", "zlib", "zlib1", "zlibwapi"},
		Description: "zlib compression library",
	},
	{
		Name:        "glibc",
		Vendor:      "GNU Project",
		Stems:       []string{"c", "m", "pthread", "dl", "rt", "resolv", "ld-linux", "ld-linux-x86-64", "ld-linux-aarch64"},
		Description: "GNU C Library",
	},
	{
		Name:        "libstdc++",
		Vendor:      "GNU Project",
		Stems:       []string{"stdc++", "gcc_s"},
		Description: "GNU Standard C++ Library",
	},
	{
		Name:        "curl",
		Vendor:      "curl project",
		Stems:       []string{"curl", "libcurl"},
		Description: "Client-side URL transfer library",
	},
	{
		Name:        "sqlite",
		Vendor:      "SQLite Consortium",
		Stems:       []string{"sqlite3"},
		Description: "SQLite embedded database",
	},
	{
		Name:        "libpng",
		Stems:       []string{"png", "png16"},
		Description: "PNG reference library",
	},
	{
		Name:        "libjpeg",
		Stems:       []string{"jpeg", "turbojpeg"},
		Description: "JPEG image codec",
	},
	{
		Name:        "libxml2",
		Stems:       []string{"xml2"},
		Description: "XML C parser and toolkit",
	},
	{
		Name:        "expat",
		Stems:       []string{"expat"},
		Description: "Stream-oriented XML parser",
	},
	{
		Name:        "pcre",
		Stems:       []string{"pcre", "pcre2-8"},
		Description: "Perl Compatible Regular Expressions",
	},
	{
		Name:        "libffi",
		Stems:       []string{"ffi"},
		Description: "Foreign function interface library",
	},
	{
		Name:        "bzip2",
		Stems:       []string{"bz2"},
		Description: "bzip2 compression library",
	},
	{
		Name:        "xz",
		Stems:       []string{"lzma"},
		Description: "XZ Utils LZMA compression library",
	},
	{
		Name:        "zstd",
		Vendor:      "Meta Platforms",
		Stems:       []string{"zstd"},
		Description: "Zstandard compression library",
	},
	{
		Name:        "boost",
		Stems:       []string{"boost_system", "boost_filesystem", "boost_thread", "boost_regex", "boost_program_options"},
		Description: "Boost C++ Libraries",
	},
	{
		Name:        "protobuf",
		Vendor:      "Google",
		Stems:       []string{"protobuf", "protobuf-lite"},
		Description: "Protocol Buffers runtime",
	},
	{
		Name:        "msvc-runtime",
		Vendor:      "Microsoft Corporation",
		Stems:       []string{"msvcrt", "msvcp140", "vcruntime140", "vcruntime140_1", "ucrtbase"},
		Description: "Microsoft Visual C++ runtime",
	},
}

// Stem reduces a library file name to its bare stem:
// "libssl.so.3" -> "ssl", "zlib1.dll" -> "zlib1", "libcrypto-3-x64.dll" -> "crypto-3-x64".
func Stem(fileName string) string {
	base := strings.ToLower(fileName)

	// Remove .so and any version suffix: libssl.so.3.1.4 -> libssl
	if idx := strings.Index(base, ".so"); idx != -1 && (idx+3 == len(base) || base[idx+3] == '.') {
		base = base[:idx]
	}
	for _, ext := range []string{".dll", ".lib", ".a", ".dylib", ".exe"} {
		base = strings.TrimSuffix(base, ext)
	}
	return strings.TrimPrefix(base, "lib")
}

// MatchFile returns the fingerprint whose stems match the file name, or nil.
func MatchFile(fileName string) *LibraryFingerprint {
	stem := Stem(fileName)
	if stem == "" {
		return nil
	}
	for i := range KnownLibraries {
		fp := &KnownLibraries[i]
		for _, s := range fp.Stems {
			if stem == s {
				return fp
			}
		}
	}
	// Windows builds often carry an architecture suffix: libcrypto-3-x64.dll
	for _, suffix := range []string{"-x64", "-x86", "-arm64", "64", "32"} {
		if trimmed := strings.TrimSuffix(stem, suffix); trimmed != stem {
			if fp := MatchFile(trimmed); fp != nil {
				return fp
			}
		}
	}
	return nil
}
