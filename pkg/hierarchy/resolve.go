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
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mtstickney/lxcfs/pkg/cverr"
)

// CgroupPath is a (controller, relative path beneath the controller root)
// pair. It is derived on demand from a PID and never cached past one
// operation, except as a key into pkg/cpuacct.
type CgroupPath struct {
	Controller Controller
	Rel        string
}

// Abs returns the absolute host path this CgroupPath refers to.
func (p CgroupPath) Abs() string {
	return filepath.Join(p.Controller.Mountpoint, p.Rel)
}

// Key returns a string suitable for use as a pkg/cpuacct cache key: the
// controller version is irrelevant to accounting, so it is deliberately
// excluded, and only the absolute path is kept.
func (p CgroupPath) Key() string {
	return p.Abs()
}

// cgroupLine is one parsed record from /proc/<pid>/cgroup.
type cgroupLine struct {
	hierarchyID int
	controllers []string
	path        string
}

func readProcCgroup(pid int) ([]cgroupLine, error) {
	path := fmt.Sprintf("/proc/%d/cgroup", pid)
	f, err := os.Open(path)
	if err != nil {
		return nil, cverr.Wrap(cverr.Fatal, "hierarchy.Resolve", path, err)
	}
	defer f.Close()

	lines, err := parseProcCgroup(f)
	if err != nil {
		return nil, cverr.Wrap(cverr.Fatal, "hierarchy.Resolve", path, err)
	}
	return lines, nil
}

// parseProcCgroup parses /proc/<pid>/cgroup content, skipping records
// that are not hierarchy-id:controllers:path with a numeric id.
func parseProcCgroup(r io.Reader) ([]cgroupLine, error) {
	var lines []cgroupLine
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		// Format: hierarchy-id:controllers:path
		tok := strings.SplitN(sc.Text(), ":", 3)
		if len(tok) != 3 {
			continue
		}
		id, err := strconv.Atoi(tok[0])
		if err != nil {
			continue
		}
		var ctrls []string
		if tok[1] != "" {
			for _, c := range strings.Split(tok[1], ",") {
				ctrls = append(ctrls, strings.TrimPrefix(c, "name="))
			}
		}
		lines = append(lines, cgroupLine{hierarchyID: id, controllers: ctrls, path: tok[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// Resolve maps pid's membership in controllerName to an absolute
// CgroupPath. On a hybrid host where the controller is visible on both
// v1 and v2, it prefers v2 when the reader's v2 path is non-root,
// falling back to v1 otherwise.
//
// A missing or unresolvable controller is not an error: the caller is
// treated as unconstrained.
func Resolve(snap *Snapshot, pid int, controllerName string) (CgroupPath, bool, error) {
	lines, err := readProcCgroup(pid)
	if err != nil {
		return CgroupPath{}, false, err
	}
	p, ok := resolveLines(snap, lines, controllerName)
	return p, ok, nil
}

// resolveLines applies Resolve's controller matching and v2-over-v1
// preference to already parsed /proc/<pid>/cgroup records.
func resolveLines(snap *Snapshot, lines []cgroupLine, controllerName string) (CgroupPath, bool) {
	var v1Path, v2Path string
	var haveV1, haveV2 bool
	for _, l := range lines {
		if l.hierarchyID == 0 {
			// v2 unified line: controllers list is empty in the kernel's
			// own /proc/<pid>/cgroup record.
			if _, ok := snap.Lookup(controllerName, V2); ok {
				v2Path = l.path
				haveV2 = true
			}
			continue
		}
		for _, c := range l.controllers {
			if c == controllerName {
				v1Path = l.path
				haveV1 = true
			}
		}
	}

	if haveV2 && v2Path != "/" && v2Path != "" {
		ctl, ok := snap.Lookup(controllerName, V2)
		if ok {
			return CgroupPath{Controller: ctl, Rel: v2Path}, true
		}
	}
	if haveV1 {
		ctl, ok := snap.Lookup(controllerName, V1)
		if ok {
			return CgroupPath{Controller: ctl, Rel: v1Path}, true
		}
	}
	if haveV2 {
		ctl, ok := snap.Lookup(controllerName, V2)
		if ok {
			return CgroupPath{Controller: ctl, Rel: v2Path}, true
		}
	}
	return CgroupPath{}, false
}
