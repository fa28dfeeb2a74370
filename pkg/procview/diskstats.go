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

package procview

import (
	"bufio"
	"bytes"
	"strings"
)

// BlkioDeviceStats is the per-device figures a blkio/io controller can
// supply for a cgroup; keyed by "major:minor" the way blkio.throttle.*
// files key their lines.
type BlkioDeviceStats map[string]struct {
	ReadIOs, WriteIOs     uint64
	ReadSectors, WriteSectors uint64
}

// RenderDiskstats rewrites /proc/diskstats with per-device blkio
// statistics when they're available for the caller's cgroup: the
// read/write counters on each device line are replaced with those. A
// device with no cgroup statistic, or no statistics available at all, is
// passed through unchanged rather than treated as an error.
func RenderDiskstats(hostDiskstats string, stats BlkioDeviceStats) []byte {
	if len(stats) == 0 {
		return []byte(hostDiskstats)
	}

	var out bytes.Buffer
	sc := bufio.NewScanner(strings.NewReader(hostDiskstats))
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) < 14 {
			out.WriteString(line)
			out.WriteString("\n")
			continue
		}
		key := fields[0] + ":" + fields[1]
		dev, ok := stats[key]
		if !ok {
			out.WriteString(line)
			out.WriteString("\n")
			continue
		}
		fields[3] = uitoa(dev.ReadIOs)
		fields[5] = uitoa(dev.ReadSectors)
		fields[7] = uitoa(dev.WriteIOs)
		fields[9] = uitoa(dev.WriteSectors)
		out.WriteString(strings.Join(fields, " "))
		out.WriteString("\n")
	}
	return out.Bytes()
}

func uitoa(n uint64) string {
	const digits = "0123456789"
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = digits[n%10]
		n /= 10
	}
	return string(buf[i:])
}
