// Package image works on baked images without an engine: loading saved
// tarballs, inspecting configuration, verifying the payload against the
// build context snapshot, and exporting to OCI layouts and root
// filesystems.
package image

import (
	"fmt"
	"time"

	"github.com/c2h5oh/datasize"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
)

// Summary is the stored configuration of a baked image.
type Summary struct {
	Digest     string            `json:"digest"`
	Created    time.Time         `json:"created"`
	Entrypoint []string          `json:"entrypoint"`
	Cmd        []string          `json:"cmd,omitempty"`
	Env        []string          `json:"env,omitempty"`
	WorkingDir string            `json:"working_dir"`
	Labels     map[string]string `json:"labels,omitempty"`
	Layers     int               `json:"layers"`
	SizeBytes  int64             `json:"size_bytes"`
}

// HumanSize renders SizeBytes for people.
func (s *Summary) HumanSize() string {
	return datasize.ByteSize(s.SizeBytes).HumanReadable()
}

// LoadTarball reads an engine-saved docker-archive tarball.
func LoadTarball(path string) (v1.Image, error) {
	img, err := tarball.ImageFromPath(path, nil)
	if err != nil {
		return nil, fmt.Errorf("load image tarball %s: %w", path, err)
	}
	return img, nil
}

// Inspect summarizes the image configuration and size.
func Inspect(img v1.Image) (*Summary, error) {
	digest, err := img.Digest()
	if err != nil {
		return nil, fmt.Errorf("image digest: %w", err)
	}
	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, fmt.Errorf("image config: %w", err)
	}
	layers, err := img.Layers()
	if err != nil {
		return nil, fmt.Errorf("image layers: %w", err)
	}

	var size int64
	for _, l := range layers {
		n, err := l.Size()
		if err != nil {
			return nil, fmt.Errorf("layer size: %w", err)
		}
		size += n
	}

	return &Summary{
		Digest:     digest.String(),
		Created:    cfg.Created.Time,
		Entrypoint: cfg.Config.Entrypoint,
		Cmd:        cfg.Config.Cmd,
		Env:        cfg.Config.Env,
		WorkingDir: cfg.Config.WorkingDir,
		Labels:     cfg.Config.Labels,
		Layers:     len(layers),
		SizeBytes:  size,
	}, nil
}
