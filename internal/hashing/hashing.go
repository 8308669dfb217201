// Package hashing computes the content identity of files: a sha256 used as
// the dedup key plus sha1 and md5 kept for compatibility with other tools.
package hashing

import (
	"crypto/md5" //nolint:gosec // legacy identity hash, not used for security
	"crypto/sha1" //nolint:gosec // legacy identity hash, not used for security
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of digests kept by NewHasher when size <= 0.
const DefaultCacheSize = 4096

// Digest is the content identity of one file.
type Digest struct {
	SHA256 string
	SHA1   string
	MD5    string
	Size   int64
}

// cacheKey identifies a file revision; a change in size or mtime misses.
type cacheKey struct {
	path  string
	size  int64
	mtime time.Time
}

// Hasher computes digests and remembers recent results. Symlink targets are
// hashed during the walk and again when the real file is visited, so the
// cache saves a second read of every aliased file.
//
// Results are keyed by path, size and mtime only. A file rewritten with the
// same size inside the filesystem's mtime granularity still hits the old
// entry and gets a stale digest, so a Hasher should live for a single scan
// of trees that are not being modified.
type Hasher struct {
	cache *lru.Cache[cacheKey, Digest]
}

// NewHasher returns a Hasher with an LRU cache of the given size.
func NewHasher(size int) (*Hasher, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, Digest](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create digest cache: %w", err)
	}
	return &Hasher{cache: cache}, nil
}

// Sum returns the digest of the file at path, following symlinks.
func (h *Hasher) Sum(path string) (Digest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Digest{}, err
	}
	if info.IsDir() {
		return Digest{}, fmt.Errorf("%s is a directory", path)
	}

	key := cacheKey{path: path, size: info.Size(), mtime: info.ModTime()}
	if d, ok := h.cache.Get(key); ok {
		return d, nil
	}

	d, err := SumFile(path)
	if err != nil {
		return Digest{}, err
	}
	h.cache.Add(key, d)
	return d, nil
}

// SHA256 is a convenience wrapper returning only the dedup key.
func (h *Hasher) SHA256(path string) (string, error) {
	d, err := h.Sum(path)
	if err != nil {
		return "", err
	}
	return d.SHA256, nil
}

// SumFile streams the file once through all three hash functions.
func SumFile(path string) (Digest, error) {
	//nolint:gosec // G304: path comes from the configured extraction roots
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("failed to open file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	return SumReader(f)
}

// SumReader hashes everything read from r.
func SumReader(r io.Reader) (Digest, error) {
	s256 := sha256.New()
	s1 := sha1.New() //nolint:gosec
	m5 := md5.New()  //nolint:gosec

	n, err := io.Copy(io.MultiWriter(s256, s1, m5), r)
	if err != nil {
		return Digest{}, fmt.Errorf("failed to hash file: %w", err)
	}

	return Digest{
		SHA256: hex.EncodeToString(s256.Sum(nil)),
		SHA1:   hex.EncodeToString(s1.Sum(nil)),
		MD5:    hex.EncodeToString(m5.Sum(nil)),
		Size:   n,
	}, nil
}
