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

package devfilter

import (
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/cilium/ebpf/link"
	"golang.org/x/sys/unix"

	"github.com/mtstickney/lxcfs/pkg/cverr"
)

// AttachFlags mirrors the override/multi flags a cgroup-device program
// attachment carries.
type AttachFlags struct {
	Override bool
	Multi    bool
}

// attachment tracks one live program attached to one cgroup directory,
// so a later Attach at the same path can decide between atomic replace
// and "busy".
type attachment struct {
	link  link.Link
	path  string
	flags AttachFlags
}

// Loader owns the set of live cgroup-device attachments for this
// process. One mutex guards the whole map, so operations on different
// attachment paths are serialized against each other as well.
type Loader struct {
	mu          sync.Mutex
	attachments map[string]*attachment
}

// NewLoader returns a Loader with no live attachments.
func NewLoader() *Loader {
	return &Loader{attachments: make(map[string]*attachment)}
}

// Probe runs the two-instruction capability check before any real
// program is built: a program that unconditionally permits every
// access, loaded and immediately discarded. ENOSYS or EPERM here means
// the host kernel can't load cgroup-device programs at all.
func (l *Loader) Probe() error {
	insns := asm.Instructions{
		asm.Mov.Imm(asm.R0, 1),
		asm.Return(),
	}
	prog, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Type:         ebpf.CGroupDevice,
		Instructions: insns,
		License:      "GPL",
	})
	if err != nil {
		return classifyLoadErr(err)
	}
	prog.Close()
	return nil
}

// Load loads insns into the kernel, yielding a program handle. The
// program is not attached to any cgroup until Attach is called.
func (l *Loader) Load(insns asm.Instructions) (*ebpf.Program, error) {
	prog, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Type:         ebpf.CGroupDevice,
		Instructions: insns,
		License:      "GPL",
	})
	if err != nil {
		return nil, classifyLoadErr(err)
	}
	return prog, nil
}

// Attach attaches prog to cgroupPath. If a program is already attached
// at the same path, the attach replaces it atomically only when both
// the existing and the new attachment set Override; any other flag
// mismatch fails with cverr.Busy without touching the existing
// attachment.
func (l *Loader) Attach(prog *ebpf.Program, cgroupPath string, flags AttachFlags) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.attachments[cgroupPath]; ok {
		if !existing.flags.Override || !flags.Override {
			return cverr.New(cverr.Busy, "devfilter.Attach", cgroupPath)
		}
		// Swap the program behind the live link in one kernel call, so the
		// cgroup is never left without a filter in between.
		if err := existing.link.Update(prog); err != nil {
			return classifyLoadErr(err)
		}
		existing.flags = flags
		return nil
	}

	// link.AttachCgroup takes the path itself and opens it internally, so
	// this fd isn't passed to it; opening it here is a pre-flight check
	// that cgroupPath exists and is accessible, so a bad path is reported
	// as NotFound/Permission rather than surfacing from inside the link
	// package's own open call.
	f, err := openCgroupDir(cgroupPath)
	if err != nil {
		return err
	}
	f.Close()

	// A concurrent detach/attach on the same cgroup directory can make
	// the kernel's attach call race and return EAGAIN; retry a bounded
	// number of times the same way pkg/hierarchy retries controller-file
	// reads, rather than surfacing a transient race as a hard failure.
	var lk link.Link
	op := func() error {
		var attachErr error
		lk, attachErr = link.AttachCgroup(link.CgroupOptions{
			Path:    cgroupPath,
			Attach:  ebpf.AttachCGroupDevice,
			Program: prog,
		})
		if attachErr == nil {
			return nil
		}
		if errors.Is(attachErr, unix.EAGAIN) || errors.Is(attachErr, unix.EINTR) {
			return attachErr
		}
		return backoff.Permanent(attachErr)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxElapsedTime = 50 * time.Millisecond
	if err := backoff.Retry(op, b); err != nil {
		return classifyLoadErr(err)
	}
	l.attachments[cgroupPath] = &attachment{link: lk, path: cgroupPath, flags: flags}
	return nil
}

// Detach removes any attachment at cgroupPath. It is idempotent: a
// cgroup directory that's already gone, or never had an attachment,
// is not an error.
func (l *Loader) Detach(cgroupPath string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.attachments[cgroupPath]
	if !ok {
		return nil
	}
	delete(l.attachments, cgroupPath)
	return a.link.Close()
}

func openCgroupDir(path string) (*osFile, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		if errno, ok := err.(unix.Errno); ok {
			return nil, cverr.Wrap(cverr.FromErrno(errno), "devfilter.openCgroupDir", path, err)
		}
		return nil, cverr.Wrap(cverr.Fatal, "devfilter.openCgroupDir", path, err)
	}
	return &osFile{fd: fd}, nil
}

// osFile is a thin fd wrapper so openCgroupDir doesn't need to import
// os just to get a Closer.
type osFile struct{ fd int }

func (f *osFile) Close() error { return unix.Close(f.fd) }

func classifyLoadErr(err error) error {
	if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EPERM) {
		return cverr.Wrap(cverr.NotSupported, "devfilter", "", err)
	}
	return cverr.Wrap(cverr.Fatal, "devfilter", "", err)
}
