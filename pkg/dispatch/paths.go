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

import "strings"

// cgroupTreeRoot is the mount-relative directory under which the whole
// cgroup subtree proxy lives.
const cgroupTreeRoot = "/sys/fs/cgroup"

// The fixed set of virtualized files Router renders itself, without any
// cgroup-tree delegation.
const (
	PathCPUInfo   = "/proc/cpuinfo"
	PathStat      = "/proc/stat"
	PathMemInfo   = "/proc/meminfo"
	PathUptime    = "/proc/uptime"
	PathLoadavg   = "/proc/loadavg"
	PathDiskstats = "/proc/diskstats"
	PathSwaps     = "/proc/swaps"
	PathCPUOnline = "/sys/devices/system/cpu/online"
)

var virtualFiles = map[string]bool{
	PathCPUInfo:   true,
	PathStat:      true,
	PathMemInfo:   true,
	PathUptime:    true,
	PathLoadavg:   true,
	PathDiskstats: true,
	PathSwaps:     true,
	PathCPUOnline: true,
}

// splitCgroupTreePath recognizes a path under cgroupTreeRoot and splits
// it into the controller name and the path relative to that
// controller's root within the caller's own cgroup subtree. "ok" is
// false for any path that isn't under cgroupTreeRoot at all, including
// cgroupTreeRoot itself.
func splitCgroupTreePath(path string) (controller, rel string, ok bool) {
	trimmed := strings.TrimPrefix(path, cgroupTreeRoot+"/")
	if trimmed == path {
		return "", "", false
	}
	i := strings.IndexByte(trimmed, '/')
	if i < 0 {
		return trimmed, "", true
	}
	return trimmed[:i], trimmed[i+1:], true
}
