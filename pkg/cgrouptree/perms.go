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

package cgrouptree

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/mtstickney/lxcfs/pkg/cverr"
)

type ownerInfo struct {
	uid, gid uint32
}

func statOwner(fi os.FileInfo) (ownerInfo, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return ownerInfo{}, false
	}
	return ownerInfo{uid: st.Uid, gid: st.Gid}, true
}

// writable reports whether creds would be allowed to write the backing
// file, following the same owner/group/other precedence the kernel
// applies: root bypasses the check entirely.
func writable(fi os.FileInfo, creds Credentials) bool {
	if creds.UID == 0 {
		return true
	}
	owner, ok := statOwner(fi)
	if !ok {
		return false
	}
	mode := fi.Mode()
	if creds.UID == owner.uid {
		return mode&0200 != 0
	}
	if creds.GID == owner.gid {
		return mode&0020 != 0
	}
	return mode&0002 != 0
}

// wrapStatErr classifies an *os.PathError from a filesystem syscall into
// the daemon's error taxonomy via its underlying errno.
func wrapStatErr(path string, err error) error {
	var perr *os.PathError
	if !errors.As(err, &perr) {
		return cverr.Wrap(cverr.Fatal, "cgrouptree", path, err)
	}
	errno, ok := perr.Err.(syscall.Errno)
	if !ok {
		return cverr.Wrap(cverr.Fatal, "cgrouptree", path, err)
	}
	return cverr.Wrap(cverr.FromErrno(unix.Errno(errno)), "cgrouptree", path, err)
}
