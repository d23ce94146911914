package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

// Manifest describes a model served by the inference service.
type Manifest struct {
	Architecture string   `json:"architecture"`
	Variant      string   `json:"variant"`
	Width        int      `json:"width"`
	Height       int      `json:"height"`
	Classes      []string `json:"classes"`
}

// Validate checks that the manifest can be used to count people.
func (m Manifest) Validate(variant string) error {
	if strings.TrimSpace(m.Variant) != "" && m.Variant != variant {
		return fmt.Errorf("manifest variant %q does not match requested %q", m.Variant, variant)
	}
	if !slices.Contains(m.Classes, "person") {
		return errors.New("model does not provide a person class")
	}
	return nil
}

// CachedManifest pairs a cached manifest with its file location.
type CachedManifest struct {
	Manifest
	Path string
}

// ListCached returns every manifest cached under dir, ordered by variant.
// A missing directory yields an empty list.
func ListCached(dir string) ([]CachedManifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read model cache: %w", err)
	}
	var out []CachedManifest
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		if m.Variant == "" {
			m.Variant = strings.TrimSuffix(entry.Name(), ".json")
		}
		out = append(out, CachedManifest{Manifest: m, Path: path})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Variant < out[j].Variant })
	return out, nil
}
