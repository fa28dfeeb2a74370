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

	"github.com/mtstickney/lxcfs/pkg/cgparse"
)

// memCapacityKeys are the keys rewritten from the memory cgroup's usage
// and limit rather than passed through from the host.
var memCapacityKeys = map[string]bool{
	"MemTotal": true, "MemFree": true, "MemAvailable": true,
	"Buffers": true, "Cached": true, "SwapTotal": true, "SwapFree": true,
}

// MemUsage is the subset of memory.stat/memory.usage_in_bytes the
// meminfo renderer needs.
type MemUsage struct {
	UsageBytes uint64
	CachedKB   uint64
	BuffersKB  uint64
	SwapUsedKB uint64
}

// RenderMemInfo rewrites /proc/meminfo for the caller's cgroup: every key
// in the host meminfo is preserved in field order and exact column
// alignment, and the capacity keys are rewritten from the memory
// cgroup's limit and usage. MemTotal = min(host MemTotal, mem limit);
// MemFree = MemTotal - usage, clamped to zero.
func RenderMemInfo(hostMemInfo string, memLimit cgparse.Quantity, swLimit cgparse.Quantity, usage MemUsage) ([]byte, error) {
	hostTotalKB, err := firstFieldKB(hostMemInfo, "MemTotal")
	if err != nil {
		return nil, err
	}

	limitKB := memLimit.Bytes() / 1024
	totalKB := hostTotalKB
	if memLimit.Bytes() != ^uint64(0) && limitKB < hostTotalKB {
		totalKB = limitKB
	}

	usageKB := usage.UsageBytes / 1024
	freeKB := int64(totalKB) - int64(usageKB)
	if freeKB < 0 {
		freeKB = 0
	}

	swapTotalKB, _ := firstFieldKB(hostMemInfo, "SwapTotal")
	if swLimit.Bytes() != ^uint64(0) {
		swKB := swLimit.Bytes() / 1024
		if swKB < swapTotalKB {
			swapTotalKB = swKB
		}
	}
	swapFreeKB := int64(swapTotalKB) - int64(usage.SwapUsedKB)
	if swapFreeKB < 0 {
		swapFreeKB = 0
	}

	rewrites := map[string]uint64{
		"MemTotal":     totalKB,
		"MemFree":      uint64(freeKB),
		"MemAvailable": uint64(freeKB),
		"Buffers":      usage.BuffersKB,
		"Cached":       usage.CachedKB,
		"SwapTotal":    swapTotalKB,
		"SwapFree":     uint64(swapFreeKB),
	}

	var out bytes.Buffer
	sc := bufio.NewScanner(strings.NewReader(hostMemInfo))
	for sc.Scan() {
		line := sc.Text()
		key, width, unit, ok := parseMemInfoLine(line)
		if !ok {
			out.WriteString(line)
			out.WriteString("\n")
			continue
		}
		if v, rewrite := rewrites[key]; rewrite && memCapacityKeys[key] {
			fmt.Fprintf(&out, "%s:%*d %s\n", key, width, v, unit)
			continue
		}
		out.WriteString(line)
		out.WriteString("\n")
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// parseMemInfoLine splits a "Key:        123456 kB" host line into its
// key, the column width used for the value (so the rewritten line keeps
// the host's exact alignment), and the unit suffix.
func parseMemInfoLine(line string) (key string, width int, unit string, ok bool) {
	i := strings.Index(line, ":")
	if i < 0 {
		return "", 0, "", false
	}
	key = line[:i]
	rest := line[i+1:]
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", 0, "", false
	}
	if _, err := strconv.ParseUint(fields[0], 10, 64); err != nil {
		return "", 0, "", false
	}
	if len(fields) > 1 {
		unit = fields[1]
	}
	// Column width is everything between the colon and the first
	// non-space char of the value, plus the digits, as a single %*d
	// field width — recover it by measuring the original numeric field.
	valueStart := strings.Index(rest, fields[0])
	width = valueStart + len(fields[0])
	return key, width, unit, true
}

func firstFieldKB(hostMemInfo, key string) (uint64, error) {
	prefix := key + ":"
	sc := bufio.NewScanner(strings.NewReader(hostMemInfo))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, prefix) {
			fields := strings.Fields(line[len(prefix):])
			if len(fields) == 0 {
				return 0, fmt.Errorf("procview: %s line has no value", key)
			}
			return strconv.ParseUint(fields[0], 10, 64)
		}
	}
	return 0, fmt.Errorf("procview: host meminfo missing %s", key)
}
