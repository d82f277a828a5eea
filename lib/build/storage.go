package build

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/kilnproject/kiln/lib/paths"
)

// writeRecord persists a build record atomically via temp file + rename.
func writeRecord(p *paths.Paths, b *Build) error {
	if err := os.MkdirAll(p.BuildDir(b.ID), 0o755); err != nil {
		return fmt.Errorf("create build directory: %w", err)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal build record: %w", err)
	}

	final := p.BuildMetadata(b.ID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write build record: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename build record: %w", err)
	}
	return nil
}

func readRecord(p *paths.Paths, id string) (*Build, error) {
	if !p.ValidBuildID(id) {
		return nil, fmt.Errorf("build %s: %w", id, ErrNotFound)
	}
	data, err := os.ReadFile(p.BuildMetadata(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("build %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("read build record: %w", err)
	}

	var b Build
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("unmarshal build record: %w", err)
	}
	return &b, nil
}

// listRecords returns all build records, newest first. Entries that fail
// to parse are skipped rather than failing the listing.
func listRecords(p *paths.Paths) ([]*Build, error) {
	entries, err := os.ReadDir(p.BuildsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read builds directory: %w", err)
	}

	var builds []*Build
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		b, err := readRecord(p, entry.Name())
		if err != nil {
			continue
		}
		builds = append(builds, b)
	}

	sort.Slice(builds, func(i, j int) bool {
		if builds[i].CreatedAt.Equal(builds[j].CreatedAt) {
			return builds[i].ID > builds[j].ID
		}
		return builds[i].CreatedAt.After(builds[j].CreatedAt)
	})
	return builds, nil
}

func deleteRecord(p *paths.Paths, id string) error {
	if !p.ValidBuildID(id) {
		return fmt.Errorf("build %s: %w", id, ErrNotFound)
	}
	dir := p.BuildDir(id)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("build %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("stat build directory: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove build directory: %w", err)
	}
	return nil
}
