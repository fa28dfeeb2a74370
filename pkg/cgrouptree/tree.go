// Copyright 2024 The Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cgrouptree presents a caller's own cgroup subtree as a
// read/write directory tree, proxying every backing control file
// verbatim except for the visibility and permission rules a container
// shouldn't be able to see past.
package cgrouptree

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mtstickney/lxcfs/pkg/cverr"
)

// Credentials is the identity pkg/dispatch resolved for the calling
// process; Tree checks writes against it the way the kernel would check
// them against a task's creds, without attempting any userns remapping
// of its own.
type Credentials struct {
	UID uint32
	GID uint32
}

// Attr is the subset of file metadata a caller needs to render GetAttr
// or a Readdir entry.
type Attr struct {
	Name    string
	IsDir   bool
	Mode    os.FileMode
	Size    int64
	UID     uint32
	GID     uint32
}

// Tree presents the backing cgroup directory rooted at root as a
// filesystem tree. root must be the caller's own resolved cgroup path;
// every operation rejects any relative path that would resolve outside
// of it.
type Tree struct {
	root string
}

// New returns a Tree rooted at the given absolute backing directory.
func New(root string) *Tree {
	return &Tree{root: filepath.Clean(root)}
}

// resolve maps a tree-relative path to its backing absolute path,
// enforcing the visibility rule: the result must still have root as a
// path prefix, so "../" components can't walk a caller out of its own
// cgroup subtree into a sibling's or the host's.
func (t *Tree) resolve(relPath string) (string, error) {
	abs := filepath.Join(t.root, relPath)
	if abs != t.root && !strings.HasPrefix(abs, t.root+string(filepath.Separator)) {
		return "", cverr.New(cverr.Permission, "cgrouptree.resolve", relPath)
	}
	return abs, nil
}

// Lookup reports whether relPath exists within the tree and returns its
// attributes.
func (t *Tree) Lookup(relPath string) (Attr, error) {
	return t.GetAttr(relPath)
}

// GetAttr stats the backing file for relPath.
func (t *Tree) GetAttr(relPath string) (Attr, error) {
	abs, err := t.resolve(relPath)
	if err != nil {
		return Attr{}, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return Attr{}, wrapStatErr(abs, err)
	}
	return attrFromFileInfo(fi), nil
}

// Readdir lists the backing directory for relPath.
func (t *Tree) Readdir(relPath string) ([]Attr, error) {
	abs, err := t.resolve(relPath)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, wrapStatErr(abs, err)
	}
	out := make([]Attr, 0, len(entries))
	for _, e := range entries {
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, attrFromFileInfo(fi))
	}
	return out, nil
}

// ReadFile returns the full contents of the backing file for relPath.
// Kernel errors (ENOENT for a controller the host doesn't support,
// EACCES for a file outside this reader's credentials) propagate
// verbatim rather than being translated.
func (t *Tree) ReadFile(relPath string) ([]byte, error) {
	abs, err := t.resolve(relPath)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		return nil, wrapStatErr(abs, err)
	}
	return b, nil
}

// WriteFile writes data to the backing file for relPath, first checking
// that creds would be permitted to write to the backing file's mode,
// uid and gid the way the kernel's own permission check would.
func (t *Tree) WriteFile(relPath string, data []byte, creds Credentials) (int, error) {
	abs, err := t.resolve(relPath)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return 0, wrapStatErr(abs, err)
	}
	if !writable(fi, creds) {
		return 0, cverr.New(cverr.Permission, "cgrouptree.WriteFile", abs)
	}
	f, err := os.OpenFile(abs, os.O_WRONLY, 0)
	if err != nil {
		return 0, wrapStatErr(abs, err)
	}
	defer f.Close()
	n, err := f.Write(data)
	if err != nil {
		return n, wrapStatErr(abs, err)
	}
	return n, nil
}

func attrFromFileInfo(fi os.FileInfo) Attr {
	a := Attr{
		Name:  fi.Name(),
		IsDir: fi.IsDir(),
		Mode:  fi.Mode(),
		Size:  fi.Size(),
	}
	if st, ok := statOwner(fi); ok {
		a.UID, a.GID = st.uid, st.gid
	}
	return a
}
