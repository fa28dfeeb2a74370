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
	"strconv"
	"strings"

	"github.com/mtstickney/lxcfs/pkg/hierarchy"
	"github.com/mtstickney/lxcfs/pkg/procview"
)

// memoryUsage assembles the usage figures pkg/procview's meminfo
// renderer needs from whichever memory-controller files are present,
// degrading every individual read failure to zero rather than failing
// the whole /proc/meminfo render.
func memoryUsage(p hierarchy.CgroupPath) procview.MemUsage {
	var usage procview.MemUsage
	if p.Controller.Version == hierarchy.V2 {
		usage.UsageBytes = readControllerUint(p.Abs() + "/memory.current")
		usage.CachedKB = statFieldKB(p.Abs()+"/memory.stat", "file")
		usage.SwapUsedKB = readControllerUint(p.Abs()+"/memory.swap.current") / 1024
		return usage
	}

	usage.UsageBytes = readControllerUint(p.Abs() + "/memory.usage_in_bytes")
	usage.CachedKB = statFieldKB(p.Abs()+"/memory.stat", "cache")
	if memsw := readControllerUint(p.Abs() + "/memory.memsw.usage_in_bytes"); memsw > usage.UsageBytes {
		usage.SwapUsedKB = (memsw - usage.UsageBytes) / 1024
	}
	return usage
}

func readControllerUint(path string) uint64 {
	s, err := hierarchy.ReadControllerFile(path)
	if err != nil {
		return 0
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// statFieldKB reads a "key value\n"-per-line controller file (the
// memory.stat format, value in bytes) and returns the named key's value
// in KiB, or 0 if the file or key is absent.
func statFieldKB(path, key string) uint64 {
	s, err := hierarchy.ReadControllerFile(path)
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(s, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == key {
			n, err := strconv.ParseUint(fields[1], 10, 64)
			if err == nil {
				return n / 1024
			}
		}
	}
	return 0
}

// blkioStats reads the v1 blkio.throttle.* counters for p's controller
// directory into pkg/procview's per-device shape. A missing or
// unreadable file yields no stats, which RenderDiskstats treats as
// "pass everything through unchanged".
func blkioStats(p hierarchy.CgroupPath) procview.BlkioDeviceStats {
	serviced, err1 := hierarchy.ReadControllerFile(p.Abs() + "/blkio.throttle.io_serviced")
	bytesCounters, err2 := hierarchy.ReadControllerFile(p.Abs() + "/blkio.throttle.io_service_bytes")
	if err1 != nil && err2 != nil {
		return nil
	}
	out := make(procview.BlkioDeviceStats)
	applyBlkioLines(out, serviced, true)
	applyBlkioLines(out, bytesCounters, false)
	if len(out) == 0 {
		return nil
	}
	return out
}

// applyBlkioLines folds one blkio.throttle.* file's "MAJOR:MINOR Op N"
// lines into out. counts selects between the io_serviced (IOs) and
// io_service_bytes (sectors, after converting the reported bytes to the
// 512-byte sectors /proc/diskstats uses) interpretation of the value.
func applyBlkioLines(out procview.BlkioDeviceStats, content string, counts bool) {
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		dev, op, valStr := fields[0], fields[1], fields[2]
		val, err := strconv.ParseUint(valStr, 10, 64)
		if err != nil {
			continue
		}
		entry := out[dev]
		switch {
		case counts && op == "Read":
			entry.ReadIOs = val
		case counts && op == "Write":
			entry.WriteIOs = val
		case !counts && op == "Read":
			entry.ReadSectors = val / 512
		case !counts && op == "Write":
			entry.WriteSectors = val / 512
		}
		out[dev] = entry
	}
}
