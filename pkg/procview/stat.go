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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mtstickney/lxcfs/pkg/cpuacct"
)

// ParseHostStat extracts the per-CPU "cpuN ..." lines from a host
// /proc/stat dump, plus every other line verbatim for passthrough.
func ParseHostStat(hostStat string) (perCPU []cpuacct.HostCPUStat, passthrough []string, err error) {
	sc := bufio.NewScanner(strings.NewReader(hostStat))
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "cpu" {
			continue // aggregate line is recomputed, not passed through
		}
		if strings.HasPrefix(fields[0], "cpu") {
			id, convErr := strconv.Atoi(strings.TrimPrefix(fields[0], "cpu"))
			if convErr != nil {
				passthrough = append(passthrough, line)
				continue
			}
			hs := cpuacct.HostCPUStat{ID: id}
			vals := make([]uint64, 0, 10)
			for _, f := range fields[1:] {
				n, _ := strconv.ParseUint(f, 10, 64)
				vals = append(vals, n)
			}
			for len(vals) < 10 {
				vals = append(vals, 0)
			}
			hs.User, hs.Nice, hs.System, hs.Idle, hs.Iowait = vals[0], vals[1], vals[2], vals[3], vals[4]
			hs.Irq, hs.SoftIrq, hs.Steal, hs.Guest, hs.GuestNice = vals[5], vals[6], vals[7], vals[8], vals[9]
			perCPU = append(perCPU, hs)
			continue
		}
		passthrough = append(passthrough, line)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	return perCPU, passthrough, nil
}

// RenderStat produces a container-scoped /proc/stat: the aggregate "cpu"
// line plus one line per virtual CPU from pkg/cpuacct, and every other
// host line (intr, ctxt, btime, processes, procs_running, procs_blocked,
// softirq) passed through verbatim.
func RenderStat(cache *cpuacct.Cache, cgroupKey string, hostStat string, orderedHostIDs []int, now time.Time) ([]byte, error) {
	perCPU, passthrough, err := ParseHostStat(hostStat)
	if err != nil {
		return nil, err
	}

	view := cache.Sample(cgroupKey, perCPU, orderedHostIDs, now)

	var out bytes.Buffer
	// The kernel emits the aggregate line as "cpu  " (two spaces,
	// seq_put_decimal_ull(p, "cpu  ", ...)); per-CPU lines get one.
	writeStatLine(&out, "cpu ", view.Aggregate)
	for i, v := range view.Virt {
		writeStatLine(&out, fmt.Sprintf("cpu%d", i), v)
	}
	for _, line := range passthrough {
		out.WriteString(line)
		out.WriteString("\n")
	}
	return out.Bytes(), nil
}

func writeStatLine(out *bytes.Buffer, label string, v cpuacct.VirtCPU) {
	fmt.Fprintf(out, "%s %d %d %d %d %d %d %d %d %d %d\n",
		label, v.UserTicks, v.Nice, v.SystemTicks, v.IdleTicks, v.IowaitTicks,
		v.Irq, v.SoftIrq, v.Steal, v.Guest, v.GuestNice)
}
