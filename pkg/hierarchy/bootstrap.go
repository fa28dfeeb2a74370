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

package hierarchy

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/mtstickney/lxcfs/pkg/cverr"
	"github.com/mtstickney/lxcfs/pkg/cvlog"
)

// Snapshot is an immutable, reference-counted view of the host's cgroup
// layout, published by Manager.Refresh. Readers Acquire it before use and
// Release it when done; the refcount stays >= 1 for as long as any reader
// holds a reference.
type Snapshot struct {
	controllers map[key]Controller
	refs        atomic.Int32
}

// Acquire increments the snapshot's reference count and returns it, so
// call sites can write `s := mgr.Current().Acquire()`.
func (s *Snapshot) Acquire() *Snapshot {
	s.refs.Add(1)
	return s
}

// Release decrements the reference count. Snapshots aren't pooled or
// freed explicitly; Release exists so the refcount stays observable and
// testable.
func (s *Snapshot) Release() {
	s.refs.Add(-1)
}

// RefCount reports the current reference count, for tests.
func (s *Snapshot) RefCount() int32 { return s.refs.Load() }

// Controllers returns every discovered controller, both v1 and v2.
func (s *Snapshot) Controllers() []Controller {
	out := make([]Controller, 0, len(s.controllers))
	for _, c := range s.controllers {
		out = append(out, c)
	}
	return out
}

// Lookup finds the controller of the given name and version, if any.
func (s *Snapshot) Lookup(name string, v Version) (Controller, bool) {
	c, ok := s.controllers[key{name, v}]
	return c, ok
}

// Bootstrap enumerates /proc/self/mountinfo and /proc/cgroups to build a
// fresh Snapshot of every mounted v1 controller and the v2 unified
// hierarchy.
func Bootstrap() (*Snapshot, error) {
	mounts, err := parseMountinfoControllers("/proc/self/mountinfo")
	if err != nil {
		return nil, cverr.Wrap(cverr.Fatal, "hierarchy.Bootstrap", "/proc/self/mountinfo", err)
	}

	snap := &Snapshot{controllers: make(map[key]Controller)}
	for _, m := range mounts {
		if m.isUnified {
			snap.controllers[key{UnifiedToken, V2}] = Controller{
				Name:       UnifiedToken,
				Version:    V2,
				Mountpoint: m.mountpoint,
				IsUnified:  true,
			}
			// Every controller enabled in this hierarchy's cgroup.controllers
			// resolves through the same unified mountpoint.
			for _, name := range enabledControllers(m.mountpoint) {
				snap.controllers[key{name, V2}] = Controller{
					Name:       name,
					Version:    V2,
					Mountpoint: m.mountpoint,
				}
			}
			continue
		}
		for _, name := range m.controllerNames {
			snap.controllers[key{name, V1}] = Controller{
				Name:       name,
				Version:    V1,
				Mountpoint: m.mountpoint,
			}
		}
	}
	snap.refs.Store(1)
	cvlog.Infof("hierarchy: bootstrap found %d controllers", len(snap.controllers))
	return snap, nil
}

type mountEntry struct {
	mountpoint      string
	isUnified       bool
	controllerNames []string
}

// parseMountinfoControllers scans a /proc/<pid>/mountinfo-formatted file
// for cgroup ("v1") and cgroup2 ("v2") mounts, following the same
// " - fstype ..." tail convention as mountinfo(5).
func parseMountinfoControllers(path string) ([]mountEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []mountEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		sep := " - "
		i := strings.LastIndex(line, sep)
		if i < 0 {
			continue
		}
		tail := strings.Fields(line[i+len(sep):])
		if len(tail) < 1 {
			continue
		}
		fstype := tail[0]

		pre := strings.Fields(line[:i])
		if len(pre) < 5 {
			continue
		}
		mountPoint := pre[4]

		switch fstype {
		case "cgroup2":
			entries = append(entries, mountEntry{mountpoint: mountPoint, isUnified: true})
		case "cgroup":
			// superopts (last field of pre-separator part in some kernels,
			// or of the fstype tail, depending on vintage) lists the
			// controllers bound to this hierarchy as comma-joined flags.
			names := controllerNamesFromSuperOpts(tail)
			if len(names) > 0 {
				entries = append(entries, mountEntry{mountpoint: mountPoint, controllerNames: names})
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

var knownV1Controllers = map[string]bool{
	"cpu": true, "cpuacct": true, "cpuset": true, "memory": true,
	"devices": true, "freezer": true, "net_cls": true, "net_prio": true,
	"blkio": true, "perf_event": true, "hugetlb": true, "pids": true,
	"rdma": true, "misc": true,
}

// controllerNamesFromSuperOpts extracts the known controller names out of
// a mountinfo fstype tail ("cgroup rw,... name,cpu,cpuacct").
func controllerNamesFromSuperOpts(tail []string) []string {
	var names []string
	for _, field := range tail[2:] {
		for _, opt := range strings.Split(field, ",") {
			opt = strings.TrimPrefix(opt, "name=")
			if knownV1Controllers[opt] {
				names = append(names, opt)
			}
		}
	}
	return names
}

// enabledControllers reads cgroup.controllers at the unified hierarchy's
// root to learn which controllers are actually enabled, rather than
// assuming every known v2 controller is present.
func enabledControllers(unifiedRoot string) []string {
	data, err := os.ReadFile(unifiedRoot + "/cgroup.controllers")
	if err != nil {
		cvlog.Debugf("hierarchy: cgroup.controllers unreadable at %s: %v", unifiedRoot, err)
		return nil
	}
	return strings.Fields(strings.TrimSpace(string(data)))
}

// Manager owns the currently published Snapshot and atomically replaces
// it on Refresh.
type Manager struct {
	current atomic.Pointer[Snapshot]
}

// NewManager bootstraps an initial snapshot and returns a Manager
// publishing it.
func NewManager() (*Manager, error) {
	snap, err := Bootstrap()
	if err != nil {
		return nil, err
	}
	m := &Manager{}
	m.current.Store(snap)
	return m, nil
}

// Current returns the currently published snapshot.
func (m *Manager) Current() *Snapshot {
	return m.current.Load()
}

// Refresh rebuilds the snapshot from the host and publishes it via
// pointer swap, so in-flight readers holding the old snapshot see a
// stable view. The daemon's SIGUSR1 handling (out of scope) calls this.
func (m *Manager) Refresh() error {
	snap, err := Bootstrap()
	if err != nil {
		return fmt.Errorf("hierarchy: refresh failed: %w", err)
	}
	m.current.Store(snap)
	return nil
}
