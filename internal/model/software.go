// Package model defines the internal data structures used by the SBOM engine.
package model

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Metadata is an opaque record produced by an extractor (or by the symlink
// post-pass). Keys name the dialect, e.g. "FileInfo", "ole", "elf".
type Metadata map[string]any

// Software is a deduplicated artifact. SHA256 is the dedup key; UUID is the
// stable handle that relationships point at.
type Software struct {
	UUID                string     `json:"UUID"`
	Name                string     `json:"name,omitempty"`
	Size                int64      `json:"size"`
	SHA1                string     `json:"sha1,omitempty"`
	SHA256              string     `json:"sha256,omitempty"`
	MD5                 string     `json:"md5,omitempty"`
	FileName            []string   `json:"fileName"`
	InstallPath         []string   `json:"installPath"`
	ContainerPath       []string   `json:"containerPath"`
	CaptureTime         int64      `json:"captureTime,omitempty"`
	Version             string     `json:"version,omitempty"`
	Vendor              []string   `json:"vendor"`
	Description         string     `json:"description,omitempty"`
	Comments            string     `json:"comments,omitempty"`
	RecordedInstitution string     `json:"recordedInstitution,omitempty"`
	Metadata            []Metadata `json:"metadata"`
}

// NewSoftware returns an empty Software with a fresh UUID.
func NewSoftware() *Software {
	return &Software{
		UUID:        uuid.NewString(),
		CaptureTime: time.Now().Unix(),
	}
}

// DisplayName returns the product name, falling back to the first file name.
func (s *Software) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if len(s.FileName) > 0 {
		return s.FileName[0]
	}
	return s.UUID
}

// Merge folds other into s and returns (survivingUUID, retiredUUID).
//
// Scalars keep the first non-empty value, hashes are only filled when
// missing, and list fields become first-seen-order unions.
func (s *Software) Merge(other *Software) (string, string) {
	if other == nil || other == s {
		return s.UUID, s.UUID
	}

	s.Name = firstNonEmpty(s.Name, other.Name)
	s.Version = firstNonEmpty(s.Version, other.Version)
	s.Description = firstNonEmpty(s.Description, other.Description)
	s.Comments = firstNonEmpty(s.Comments, other.Comments)
	s.RecordedInstitution = firstNonEmpty(s.RecordedInstitution, other.RecordedInstitution)
	s.SHA1 = firstNonEmpty(s.SHA1, other.SHA1)
	s.SHA256 = firstNonEmpty(s.SHA256, other.SHA256)
	s.MD5 = firstNonEmpty(s.MD5, other.MD5)
	if s.Size == 0 {
		s.Size = other.Size
	}
	if s.CaptureTime == 0 {
		s.CaptureTime = other.CaptureTime
	}

	s.Vendor = AppendUnique(s.Vendor, other.Vendor...)
	s.FileName = AppendUnique(s.FileName, other.FileName...)
	s.InstallPath = AppendUnique(s.InstallPath, other.InstallPath...)
	s.ContainerPath = AppendUnique(s.ContainerPath, other.ContainerPath...)
	for _, md := range other.Metadata {
		if !containsMetadata(s.Metadata, md) {
			s.Metadata = append(s.Metadata, md)
		}
	}

	return s.UUID, other.UUID
}

// HashCollision reports whether a and b look like the same content by one
// hash but disagree on another hash or on size.
func HashCollision(a, b *Software) bool {
	if a == nil || b == nil {
		return false
	}
	anyMatch := (a.SHA256 != "" && a.SHA256 == b.SHA256) ||
		(a.SHA1 != "" && a.SHA1 == b.SHA1) ||
		(a.MD5 != "" && a.MD5 == b.MD5)
	if !anyMatch {
		return false
	}
	switch {
	case differs(a.SHA256, b.SHA256):
		return true
	case differs(a.SHA1, b.SHA1):
		return true
	case differs(a.MD5, b.MD5):
		return true
	}
	return a.Size != b.Size
}

// differs is true only when both hashes are known and unequal.
func differs(x, y string) bool {
	return x != "" && y != "" && x != y
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func containsMetadata(list []Metadata, md Metadata) bool {
	for _, m := range list {
		if reflect.DeepEqual(m, md) {
			return true
		}
	}
	return false
}

// AppendUnique appends each value not already present in slice.
func AppendUnique(slice []string, values ...string) []string {
	for _, s := range values {
		found := false
		for _, v := range slice {
			if v == s {
				found = true
				break
			}
		}
		if !found {
			slice = append(slice, s)
		}
	}
	return slice
}
