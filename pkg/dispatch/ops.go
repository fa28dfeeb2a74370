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

// Package dispatch routes filesystem operations coming from a FUSE
// transport (out of scope, external) to whichever sub-component owns
// the path: the read-only virtualized files in pkg/procview, or the
// read/write cgroup subtree proxy in pkg/cgrouptree.
package dispatch

import "os"

// Handle identifies one open file across Read/Write/Release calls. The
// transport owns the handle's lifetime in the kernel-facing direction;
// Router only hands one back from Open and expects it unchanged later.
type Handle uint64

// Attr is the metadata Lookup/GetAttr/Readdir return, unified across
// the synthetic virtualized files and the proxied cgroup tree.
type Attr struct {
	Name  string
	IsDir bool
	Mode  os.FileMode
	Size  int64
	UID   uint32
	GID   uint32
}

// Credentials identifies the calling process for permission checks,
// mirrored from pkg/cgrouptree so callers of Ops don't need to import
// it just to build one.
type Credentials struct {
	UID uint32
	GID uint32
}

// Ops is the set of operations a FUSE transport drives against this
// filesystem. Every call carries the calling process's PID so the
// implementation can resolve its cgroup membership, and its
// credentials so writes can be permission-checked against them.
type Ops interface {
	Lookup(pid int, creds Credentials, path string) (Attr, error)
	GetAttr(pid int, creds Credentials, path string) (Attr, error)
	Open(pid int, creds Credentials, path string, writable bool) (Handle, error)
	Read(pid int, creds Credentials, h Handle) ([]byte, error)
	Readdir(pid int, creds Credentials, path string) ([]Attr, error)
	Write(pid int, creds Credentials, h Handle, data []byte) (int, error)
	Release(h Handle) error
}
