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

// Package procview synthesizes the container-relative contents of the
// virtualized host files: cpuinfo, stat, meminfo, uptime, loadavg,
// diskstats, swaps, and /sys/devices/system/cpu/online. Every renderer
// here is pure over its inputs and produces the full file content on
// every call, since the files aren't seekable beyond what the FUSE
// transport re-reads.
package procview

import "github.com/mtstickney/lxcfs/pkg/cgparse"

// RenderCPUOnline emits "0-(N-1)" where N is the number of CPUs in the
// intersection of the caller's cpuset and the host's online set, or an
// empty string if N is 0.
func RenderCPUOnline(intersection cgparse.CPUSet) []byte {
	n := len(intersection)
	if n == 0 {
		return []byte{}
	}
	return []byte(cgparse.CPUSet(rangeOfLen(n)).String() + "\n")
}

func rangeOfLen(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
