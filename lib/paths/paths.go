// Package paths centralizes the kiln data directory layout. Every component
// that touches disk goes through here so the layout only exists in one place.
//
//	<base>/
//	  builds/<id>/metadata.json   build record
//	  builds/<id>/build.log       engine output
//	  builds/<id>/staging/        rendered plan, never inside the context
//	  exports/                    default destination for exports
package paths

import (
	"fmt"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
	"golang.org/x/sys/unix"
)

type Paths struct {
	base string
}

func New(dataDir string) *Paths {
	return &Paths{base: dataDir}
}

func (p *Paths) Base() string { return p.base }

// EnsureBase creates the directory skeleton. Safe to call repeatedly.
func (p *Paths) EnsureBase() error {
	for _, dir := range []string{p.base, p.BuildsDir(), p.ExportsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir %s: %w", dir, err)
		}
	}
	return nil
}

func (p *Paths) BuildsDir() string  { return filepath.Join(p.base, "builds") }
func (p *Paths) ExportsDir() string { return filepath.Join(p.base, "exports") }

func (p *Paths) BuildDir(id string) string {
	return filepath.Join(p.BuildsDir(), id)
}

// ValidBuildID reports whether id names a directory directly under the
// builds root. Ids arriving from the command line go through here before
// they are joined into a path; "..", separators, and anything else that
// would land outside the root are rejected.
func (p *Paths) ValidBuildID(id string) bool {
	if id == "" || id != filepath.Base(id) {
		return false
	}
	root := filepath.Clean(p.BuildsDir())
	dir, err := securejoin.SecureJoin(root, id)
	if err != nil {
		return false
	}
	return dir != root && filepath.Dir(dir) == root
}

func (p *Paths) BuildMetadata(id string) string {
	return filepath.Join(p.BuildDir(id), "metadata.json")
}

func (p *Paths) BuildLog(id string) string {
	return filepath.Join(p.BuildDir(id), "build.log")
}

func (p *Paths) BuildStagingDir(id string) string {
	return filepath.Join(p.BuildDir(id), "staging")
}

func (p *Paths) BuildDockerfile(id string) string {
	return filepath.Join(p.BuildStagingDir(id), "Dockerfile")
}

// FreeBytes reports the free space on the filesystem holding the data dir.
func (p *Paths) FreeBytes() (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(p.base, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", p.base, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}
