package buildctx

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FileRecord describes one entry of the build context.
type FileRecord struct {
	// Path is slash-separated and relative to the context root.
	Path string `json:"path"`
	Size int64  `json:"size"`
	Mode uint32 `json:"mode"`
	// Digest is the sha256 of the file contents. Empty for directories and
	// symlinks.
	Digest string `json:"digest,omitempty"`
	// LinkTarget is set for symlinks.
	LinkTarget string `json:"link_target,omitempty"`
	IsDir      bool   `json:"is_dir,omitempty"`
	IsSymlink  bool   `json:"is_symlink,omitempty"`
}

// Snapshot is a content census of a build context taken before the build.
// The payload step copies the context wholesale, so the snapshot is the
// ground truth for what must end up in the image working directory.
type Snapshot struct {
	Dir        string       `json:"dir"`
	FileCount  int          `json:"file_count"`
	TotalBytes int64        `json:"total_bytes"`
	Digest     string       `json:"digest"`
	Files      []FileRecord `json:"files"`
}

// Take walks the context directory and records every entry. The walk order is
// sorted, so identical trees produce identical snapshots and an identical
// snapshot digest. Unreadable entries fail the snapshot: a context that
// cannot be read completely cannot be copied completely either.
func Take(dir string) (*Snapshot, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve context dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat context dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("context %s: not a directory", abs)
	}

	snap := &Snapshot{Dir: abs}

	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", p, err)
		}
		if p == abs {
			return nil
		}

		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", p, err)
		}
		rec := FileRecord{Path: filepath.ToSlash(rel)}

		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		rec.Mode = uint32(fi.Mode().Perm())

		switch {
		case d.IsDir():
			rec.IsDir = true
		case fi.Mode()&fs.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return fmt.Errorf("readlink %s: %w", p, err)
			}
			rec.IsSymlink = true
			rec.LinkTarget = target
		case fi.Mode().IsRegular():
			digest, err := hashFile(p)
			if err != nil {
				return err
			}
			rec.Size = fi.Size()
			rec.Digest = digest
			snap.FileCount++
			snap.TotalBytes += fi.Size()
		default:
			// Sockets, devices and the like cannot be copied into an image.
			return fmt.Errorf("context entry %s: unsupported file type %s", rel, fi.Mode().Type())
		}

		snap.Files = append(snap.Files, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(snap.Files, func(i, j int) bool { return snap.Files[i].Path < snap.Files[j].Path })
	snap.Digest = manifestDigest(snap.Files)
	return snap, nil
}

// Lookup returns the record for a slash-separated relative path.
func (s *Snapshot) Lookup(path string) (FileRecord, bool) {
	i := sort.Search(len(s.Files), func(i int) bool { return s.Files[i].Path >= path })
	if i < len(s.Files) && s.Files[i].Path == path {
		return s.Files[i], true
	}
	return FileRecord{}, false
}

// Has reports whether the context contains a regular file at path.
func (s *Snapshot) Has(path string) bool {
	rec, ok := s.Lookup(path)
	return ok && !rec.IsDir
}

// manifestDigest hashes the sorted walk manifest. File contents are already
// folded in through each record's content digest.
func manifestDigest(files []FileRecord) string {
	h := sha256.New()
	for _, f := range files {
		// One line per entry keeps the encoding unambiguous.
		fmt.Fprintf(h, "%s\x00%d\x00%o\x00%s\x00%s\x00%t\x00%t\n",
			f.Path, f.Size, f.Mode, f.Digest, f.LinkTarget, f.IsDir, f.IsSymlink)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DeriveTag builds the content-addressed default image tag from the recipe
// fingerprint and the snapshot digest. Identical inputs always derive the
// identical tag.
func DeriveTag(recipeFingerprint, snapshotDigest string) string {
	h := sha256.New()
	io.WriteString(h, recipeFingerprint)
	io.WriteString(h, "\x00")
	io.WriteString(h, snapshotDigest)
	sum := hex.EncodeToString(h.Sum(nil))
	return "kiln:" + sum[:12]
}
