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

package dispatch

import (
	"os"
	"sync"
	"time"

	"github.com/mtstickney/lxcfs/pkg/cgparse"
	"github.com/mtstickney/lxcfs/pkg/cgrouptree"
	"github.com/mtstickney/lxcfs/pkg/cpuacct"
	"github.com/mtstickney/lxcfs/pkg/cvconfig"
	"github.com/mtstickney/lxcfs/pkg/cverr"
	"github.com/mtstickney/lxcfs/pkg/hierarchy"
	"github.com/mtstickney/lxcfs/pkg/procview"
)

// openHandle records what Open bound a Handle to, so later Read/Write
// calls don't need the path repeated.
type openHandle struct {
	path     string
	writable bool
}

// Router implements Ops by path-prefix dispatch: paths under
// cgroupTreeRoot delegate to a pkg/cgrouptree.Tree rooted at the
// caller's own resolved cgroup path; the fixed set of virtualized files
// are rendered directly from pkg/procview. Each operation resolves the
// caller's cgroup membership itself — Router never caches a PID's
// cgroup path across calls, since a container's placement can change
// between them.
type Router struct {
	Hierarchy  *hierarchy.Manager
	Accounting *cpuacct.Cache
	Loadavg    *procview.LoadavgTracker
	Config     cvconfig.Config
	Host       HostReader
	Now        func() time.Time

	mu      sync.Mutex
	handles map[Handle]openHandle
	nextID  uint64
}

// NewRouter wires a Router against the real host filesystem and wall
// clock.
func NewRouter(mgr *hierarchy.Manager, accounting *cpuacct.Cache, loadavg *procview.LoadavgTracker, cfg cvconfig.Config) *Router {
	return &Router{
		Hierarchy:  mgr,
		Accounting: accounting,
		Loadavg:    loadavg,
		Config:     cfg,
		Host:       osHostReader{},
		Now:        time.Now,
	}
}

func (r *Router) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Router) treeFor(pid int, controller string) (*cgrouptree.Tree, error) {
	snap := r.Hierarchy.Current().Acquire()
	defer snap.Release()

	p, ok, err := hierarchy.Resolve(snap, pid, controller)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, cverr.New(cverr.NotFound, "dispatch.treeFor", controller)
	}
	return cgrouptree.New(p.Abs()), nil
}

// Lookup is equivalent to GetAttr: the transport (out of scope) owns
// pathname walking and always hands Router a fully-resolved path.
func (r *Router) Lookup(pid int, creds Credentials, path string) (Attr, error) {
	return r.GetAttr(pid, creds, path)
}

func (r *Router) GetAttr(pid int, creds Credentials, path string) (Attr, error) {
	if controller, rel, ok := splitCgroupTreePath(path); ok {
		tree, err := r.treeFor(pid, controller)
		if err != nil {
			return Attr{}, err
		}
		a, err := tree.GetAttr(rel)
		if err != nil {
			return Attr{}, err
		}
		return attrFromTree(a), nil
	}
	if path == cgroupTreeRoot {
		return Attr{Name: "cgroup", IsDir: true, Mode: os.ModeDir | 0555}, nil
	}
	if virtualFiles[path] {
		return Attr{Name: baseName(path), Mode: 0444}, nil
	}
	return Attr{}, cverr.New(cverr.NotFound, "dispatch.GetAttr", path)
}

func (r *Router) Readdir(pid int, creds Credentials, path string) ([]Attr, error) {
	if controller, rel, ok := splitCgroupTreePath(path); ok {
		tree, err := r.treeFor(pid, controller)
		if err != nil {
			return nil, err
		}
		entries, err := tree.Readdir(rel)
		if err != nil {
			return nil, err
		}
		out := make([]Attr, 0, len(entries))
		for _, e := range entries {
			out = append(out, attrFromTree(e))
		}
		return out, nil
	}
	if path == cgroupTreeRoot {
		snap := r.Hierarchy.Current().Acquire()
		defer snap.Release()

		seen := make(map[string]bool)
		var out []Attr
		for _, c := range snap.Controllers() {
			if seen[c.Name] {
				continue
			}
			seen[c.Name] = true
			out = append(out, Attr{Name: c.Name, IsDir: true, Mode: os.ModeDir | 0555})
		}
		return out, nil
	}
	return nil, cverr.New(cverr.NotSupported, "dispatch.Readdir", path)
}

func (r *Router) Open(pid int, creds Credentials, path string, writable bool) (Handle, error) {
	if writable {
		if _, _, ok := splitCgroupTreePath(path); !ok {
			return 0, cverr.New(cverr.Permission, "dispatch.Open", path)
		}
	} else if _, _, ok := splitCgroupTreePath(path); !ok && !virtualFiles[path] {
		return 0, cverr.New(cverr.NotFound, "dispatch.Open", path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handles == nil {
		r.handles = make(map[Handle]openHandle)
	}
	r.nextID++
	h := Handle(r.nextID)
	r.handles[h] = openHandle{path: path, writable: writable}
	return h, nil
}

func (r *Router) handleInfo(h Handle) (openHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	oh, ok := r.handles[h]
	if !ok {
		return openHandle{}, cverr.New(cverr.Invalid, "dispatch.handleInfo", "")
	}
	return oh, nil
}

func (r *Router) Release(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, h)
	return nil
}

func (r *Router) Read(pid int, creds Credentials, h Handle) ([]byte, error) {
	oh, err := r.handleInfo(h)
	if err != nil {
		return nil, err
	}
	return r.readPath(pid, oh.path)
}

func (r *Router) Write(pid int, creds Credentials, h Handle, data []byte) (int, error) {
	oh, err := r.handleInfo(h)
	if err != nil {
		return 0, err
	}
	if !oh.writable {
		return 0, cverr.New(cverr.Permission, "dispatch.Write", oh.path)
	}
	controller, rel, ok := splitCgroupTreePath(oh.path)
	if !ok {
		return 0, cverr.New(cverr.Permission, "dispatch.Write", oh.path)
	}
	tree, err := r.treeFor(pid, controller)
	if err != nil {
		return 0, err
	}
	return tree.WriteFile(rel, data, cgrouptree.Credentials{UID: creds.UID, GID: creds.GID})
}

// readPath does the real work behind Read: it dispatches by path, and
// for every virtualized file it resolves the caller's cpuset before
// touching any host data file — the one fixed ordering rule Router is
// responsible for keeping, so every renderer that depends on cpuset
// membership (cpuinfo, stat, cpuonline) sees a set resolved no later
// than, never after, the file it's about to render.
func (r *Router) readPath(pid int, path string) ([]byte, error) {
	if controller, rel, ok := splitCgroupTreePath(path); ok {
		tree, err := r.treeFor(pid, controller)
		if err != nil {
			return nil, err
		}
		return tree.ReadFile(rel)
	}
	if !virtualFiles[path] {
		return nil, cverr.New(cverr.NotFound, "dispatch.Read", path)
	}

	snap := r.Hierarchy.Current().Acquire()
	defer snap.Release()

	cpusetPath, cpusetOK, err := hierarchy.Resolve(snap, pid, "cpuset")
	if err != nil {
		return nil, err
	}
	cs := hierarchy.BuildConstraintSet(snap, pid)

	switch path {
	case PathCPUOnline:
		return procview.RenderCPUOnline(r.onlineIntersection(cs)), nil

	case PathCPUInfo:
		host, err := r.Host.ReadHostFile(PathCPUInfo)
		if err != nil {
			return nil, err
		}
		return procview.RenderCPUInfo(host, r.onlineIntersection(cs))

	case PathStat:
		host, err := r.Host.ReadHostFile(PathStat)
		if err != nil {
			return nil, err
		}
		ids := r.onlineIntersection(cs)
		return procview.RenderStat(r.Accounting, cacheKey(cpusetPath, cpusetOK), host, ids, r.now())

	case PathMemInfo:
		host, err := r.Host.ReadHostFile(PathMemInfo)
		if err != nil {
			return nil, err
		}
		usage := procview.MemUsage{}
		if memPath, ok, err := hierarchy.Resolve(snap, pid, "memory"); ok && err == nil {
			usage = memoryUsage(memPath)
		}
		return procview.RenderMemInfo(host, cs.MemLimitBytes, cs.MemSwLimitBytes, usage)

	case PathSwaps:
		host, err := r.Host.ReadHostFile(PathSwaps)
		if err != nil {
			return nil, err
		}
		return procview.RenderSwaps(host, cs.MemSwLimitBytes, cs.MemLimitBytes), nil

	case PathDiskstats:
		host, err := r.Host.ReadHostFile(PathDiskstats)
		if err != nil {
			return nil, err
		}
		var stats procview.BlkioDeviceStats
		if blkioPath, ok, err := hierarchy.Resolve(snap, pid, "blkio"); ok && err == nil {
			stats = blkioStats(blkioPath)
		}
		return procview.RenderDiskstats(host, stats), nil

	case PathUptime:
		statLines := r.processStatLines(cpusetPath, cpusetOK)
		host, err := r.Host.ReadHostFile(PathStat)
		if err != nil {
			return nil, err
		}
		boot, _ := bootTimeSec(host)
		earliest, hasAny := earliestStartSec(statLines, boot)
		virtCount := len(r.onlineIntersection(cs))
		if virtCount == 0 {
			virtCount = 1
		}
		return procview.RenderUptime(float64(r.now().Unix()), earliest, hasAny, virtCount), nil

	case PathLoadavg:
		if !r.Config.CgroupLoadavg {
			host, err := r.Host.ReadHostFile(PathLoadavg)
			if err != nil {
				return nil, err
			}
			return procview.RenderLoadavgHostProxy(host), nil
		}
		key := cacheKey(cpusetPath, cpusetOK)
		pids := processesIn(readCgroupProcs(cpusetPath, cpusetOK))
		statLines := r.statLinesFor(pids)
		running, total, lastPID := taskCounts(pids, statLines)
		r.Loadavg.Sample(key, running, r.now(), r.Config.LoadavgSamplePeriod)
		return r.Loadavg.RenderLoadavgCgroup(key, running, total, lastPID), nil
	}

	return nil, cverr.New(cverr.NotFound, "dispatch.Read", path)
}

func (r *Router) onlineIntersection(cs hierarchy.ConstraintSet) cgparse.CPUSet {
	online, err := r.Host.ReadHostFile(PathCPUOnline)
	if err != nil {
		return cs.CPUSet
	}
	onlineSet, err := cgparse.ParseCPUSet(online)
	if err != nil {
		return cs.CPUSet
	}
	return cgparse.Intersect(cs.CPUSet, onlineSet)
}

func (r *Router) processStatLines(p hierarchy.CgroupPath, ok bool) []string {
	pids := processesIn(readCgroupProcs(p, ok))
	return r.statLinesFor(pids)
}

func (r *Router) statLinesFor(pids []int) []string {
	lines := make([]string, 0, len(pids))
	for _, pid := range pids {
		s, err := readProcessStat(r.Host, pid)
		if err != nil {
			continue
		}
		lines = append(lines, s)
	}
	return lines
}

func readCgroupProcs(p hierarchy.CgroupPath, ok bool) string {
	if !ok {
		return ""
	}
	s, err := hierarchy.ReadControllerFile(p.Abs() + "/cgroup.procs")
	if err != nil {
		return ""
	}
	return s
}

func cacheKey(p hierarchy.CgroupPath, ok bool) string {
	if !ok {
		return "unconstrained"
	}
	return p.Key()
}

func attrFromTree(a cgrouptree.Attr) Attr {
	return Attr{Name: a.Name, IsDir: a.IsDir, Mode: a.Mode, Size: a.Size, UID: a.UID, GID: a.GID}
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

var _ Ops = (*Router)(nil)
