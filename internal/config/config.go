// Package config loads scan contexts and environment settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/StinkyLord/binary-sbom-builder/internal/model"
)

// ErrInvalidPath is returned when a context names a path that does not exist.
var ErrInvalidPath = errors.New("invalid path")

// Load reads the context list at path. A JSON document is valid YAML, so both
// are parsed by the YAML decoder. The file holds a list of context entries; a
// single entry without the surrounding list is accepted too.
//
// If path is a directory it is scanned as one context whose install prefix is
// the directory itself.
func Load(path string) ([]model.Context, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPath, path, err)
	}
	if info.IsDir() {
		dir := filepath.ToSlash(filepath.Clean(path))
		prefix := dir
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		return []model.Context{{
			ExtractPaths:  []string{dir},
			InstallPrefix: prefix,
		}}, nil
	}

	//nolint:gosec // G304: config path is chosen by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	contexts, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return contexts, nil
}

// Parse decodes a context list from JSON or YAML.
func Parse(data []byte) ([]model.Context, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("config is empty")
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, errors.New("config is empty")
	}

	var contexts []model.Context
	switch root := node.Content[0]; root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&contexts); err != nil {
			return nil, err
		}
	case yaml.MappingNode:
		var c model.Context
		if err := root.Decode(&c); err != nil {
			return nil, err
		}
		contexts = append(contexts, c)
	default:
		return nil, fmt.Errorf("line %d: expected a list of contexts", root.Line)
	}
	return contexts, nil
}

// Validate checks that every context has at least one extract path and that
// every extract path and archive exists.
func Validate(contexts []model.Context) error {
	for i, c := range contexts {
		if len(c.ExtractPaths) == 0 {
			return fmt.Errorf("context %d: %w: no extractPaths", i, ErrInvalidPath)
		}
		for _, p := range c.ExtractPaths {
			if _, err := os.Stat(p); err != nil {
				return fmt.Errorf("context %d: %w: %s", i, ErrInvalidPath, p)
			}
		}
		if c.Archive != "" {
			if _, err := os.Stat(c.Archive); err != nil {
				return fmt.Errorf("context %d: %w: archive %s", i, ErrInvalidPath, c.Archive)
			}
		}
	}
	return nil
}

// Settings are defaults taken from the environment. Command line flags
// override them.
type Settings struct {
	RecordedInstitution string
	OutputFormat        string
	IncludeAllFiles     bool
	HashCacheSize       int
}

// LoadSettings reads Settings from the environment after loading any .env
// file in the working directory.
func LoadSettings() (Settings, error) {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	s := Settings{
		RecordedInstitution: GetEnvDefault("SBOM_RECORDED_INSTITUTION", ""),
		OutputFormat:        GetEnvDefault("SBOM_OUTPUT_FORMAT", "native"),
	}

	var err error
	if s.IncludeAllFiles, err = envBool("SBOM_INCLUDE_ALL_FILES"); err != nil {
		return s, err
	}
	if raw := strings.TrimSpace(GetEnvDefault("SBOM_HASH_CACHE_SIZE", "")); raw != "" {
		if s.HashCacheSize, err = strconv.Atoi(raw); err != nil {
			return s, fmt.Errorf("SBOM_HASH_CACHE_SIZE: %w", err)
		}
	}
	return s, nil
}

// GetEnvDefault returns the value of key, or defVal when it is unset.
func GetEnvDefault(key, defVal string) string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defVal
	}
	return val
}

func envBool(key string) (bool, error) {
	raw := strings.TrimSpace(GetEnvDefault(key, ""))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
