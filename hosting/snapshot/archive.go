/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package snapshot

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"chainguard.dev/bugfixer/workspace/patch"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/klauspost/compress/gzip"
)

// extract unpacks a gzipped tarball into dest, dropping the archive's single
// top-level directory. It returns the git blob id of every regular file,
// keyed by its slash-separated path relative to dest.
//
// Symlinks are created after every other entry, and only when their target
// stays inside dest without passing through another symlink. All writes go
// through an os.Root on dest.
func extract(ctx context.Context, r io.Reader, dest string) (map[string]plumbing.Hash, error) {
	log := clog.FromContext(ctx)

	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer zr.Close()

	root, err := os.OpenRoot(dest)
	if err != nil {
		return nil, fmt.Errorf("opening workspace: %w", err)
	}
	defer root.Close()

	hashes := make(map[string]plumbing.Hash)
	links := make(map[string]string)
	var linkOrder []string
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return nil, fmt.Errorf("reading archive: %w", err)
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		rel, ok := stripTopLevel(hdr.Name)
		if !ok {
			continue
		}
		rel, err = patch.CleanPath(rel)
		if err != nil {
			return nil, fmt.Errorf("archive entry %q: %w", hdr.Name, err)
		}
		if _, err := patch.Resolve(dest, rel); err != nil {
			return nil, fmt.Errorf("archive entry %q: %w", hdr.Name, err)
		}
		name := filepath.FromSlash(rel)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := root.MkdirAll(name, 0o755); err != nil {
				return nil, err
			}

		case tar.TypeReg:
			content, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", rel, err)
			}
			if err := mkdirParent(root, name); err != nil {
				return nil, err
			}
			mode := os.FileMode(hdr.Mode).Perm() | 0o600
			if err := root.WriteFile(name, content, mode); err != nil {
				return nil, err
			}
			hashes[rel] = plumbing.ComputeHash(plumbing.BlobObject, content)

		case tar.TypeSymlink:
			if path.IsAbs(hdr.Linkname) {
				log.With("path", rel).Debugf("Skipping absolute symlink to %s", hdr.Linkname)
				continue
			}
			if _, ok := links[rel]; !ok {
				linkOrder = append(linkOrder, rel)
			}
			links[rel] = hdr.Linkname

		default:
			log.With("path", rel).Debugf("Skipping archive entry of type %q", hdr.Typeflag)
		}
	}

	for _, rel := range linkOrder {
		target := links[rel]
		if !containedLink(rel, target, links) {
			log.With("path", rel).Debugf("Skipping symlink leaving the repository: %s", target)
			continue
		}
		name := filepath.FromSlash(rel)
		if err := mkdirParent(root, name); err != nil {
			return nil, err
		}
		if err := root.Symlink(target, name); errors.Is(err, fs.ErrExist) {
			log.With("path", rel).Debug("Skipping symlink shadowed by another entry")
		} else if err != nil {
			return nil, err
		}
	}
	return hashes, nil
}

// containedLink walks target from the directory holding link and reports
// whether it stays inside the root. A link under a symlinked directory, or a
// target passing through another symlink, counts as leaving.
func containedLink(link, target string, links map[string]string) bool {
	var cur []string
	if dir := path.Dir(link); dir != "." {
		cur = strings.Split(dir, "/")
	}
	for i := range cur {
		if _, ok := links[strings.Join(cur[:i+1], "/")]; ok {
			return false
		}
	}
	segs := strings.Split(target, "/")
	for i, seg := range segs {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(cur) == 0 {
				return false
			}
			cur = cur[:len(cur)-1]
			continue
		}
		cur = append(cur, seg)
		if i == len(segs)-1 {
			break
		}
		if _, ok := links[strings.Join(cur, "/")]; ok {
			return false
		}
	}
	return len(cur) > 0
}

func mkdirParent(root *os.Root, name string) error {
	if dir := filepath.Dir(name); dir != "." {
		return root.MkdirAll(dir, 0o755)
	}
	return nil
}

// stripTopLevel removes the "<owner>-<repo>-<sha>/" prefix hosting providers
// put in front of every archive entry.
func stripTopLevel(name string) (string, bool) {
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			rest := name[i+1:]
			return rest, rest != ""
		}
	}
	return "", false
}
