package image

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/mutate"

	"github.com/kilnproject/kiln/lib/buildctx"
)

// PayloadReport lists every way the image working directory differs from
// the build context snapshot. An empty report means the payload arrived
// byte for byte.
type PayloadReport struct {
	Missing    []string `json:"missing,omitempty"`
	Extra      []string `json:"extra,omitempty"`
	Mismatched []string `json:"mismatched,omitempty"`
}

// Clean reports a byte-for-byte match.
func (r *PayloadReport) Clean() bool {
	return len(r.Missing) == 0 && len(r.Extra) == 0 && len(r.Mismatched) == 0
}

func (r *PayloadReport) String() string {
	if r.Clean() {
		return "payload matches snapshot"
	}
	return fmt.Sprintf("missing=%d extra=%d mismatched=%d",
		len(r.Missing), len(r.Extra), len(r.Mismatched))
}

// VerifyPayload flattens the image filesystem and compares everything
// under workdir against the snapshot taken before the build. Regular
// files are compared by content digest, symlinks by target.
func VerifyPayload(ctx context.Context, img v1.Image, workdir string, snap *buildctx.Snapshot) (*PayloadReport, error) {
	prefix := strings.TrimSuffix(path.Clean(workdir), "/") + "/"

	rc := mutate.Extract(img)
	defer rc.Close()

	files := make(map[string]string)
	links := make(map[string]string)

	tr := tar.NewReader(rc)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read image filesystem: %w", err)
		}

		// Layer entry names come without a leading slash.
		name := path.Clean("/" + hdr.Name)
		rel, ok := strings.CutPrefix(name, prefix)
		if !ok || rel == "" {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeReg:
			h := sha256.New()
			if _, err := io.Copy(h, tr); err != nil {
				return nil, fmt.Errorf("hash %s: %w", name, err)
			}
			files[rel] = hex.EncodeToString(h.Sum(nil))
		case tar.TypeSymlink:
			links[rel] = hdr.Linkname
		}
	}

	report := &PayloadReport{}
	for _, rec := range snap.Files {
		switch {
		case rec.IsDir:
			continue
		case rec.IsSymlink:
			target, ok := links[rec.Path]
			if !ok {
				report.Missing = append(report.Missing, rec.Path)
				continue
			}
			if target != rec.LinkTarget {
				report.Mismatched = append(report.Mismatched, rec.Path)
			}
			delete(links, rec.Path)
		default:
			digest, ok := files[rec.Path]
			if !ok {
				report.Missing = append(report.Missing, rec.Path)
				continue
			}
			if digest != rec.Digest {
				report.Mismatched = append(report.Mismatched, rec.Path)
			}
			delete(files, rec.Path)
		}
	}
	for name := range files {
		report.Extra = append(report.Extra, name)
	}
	for name := range links {
		report.Extra = append(report.Extra, name)
	}

	sort.Strings(report.Missing)
	sort.Strings(report.Extra)
	sort.Strings(report.Mismatched)
	return report, nil
}
