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
	"strconv"
	"strings"

	"github.com/mtstickney/lxcfs/pkg/cgparse"
)

// ConstraintSet is the resource picture for one cgroup path: cpuset
// membership plus CPU and memory limits. Any controller that's absent,
// or whose file is missing, yields the unlimited/inherit value;
// ConstraintSet assembly never fails on absence.
type ConstraintSet struct {
	CPUSet            cgparse.CPUSet
	CPUQuotaUs        cgparse.Quantity
	CPUPeriodUs       uint64
	CPUShares         uint64
	MemLimitBytes     cgparse.Quantity
	MemSoftLimitBytes cgparse.Quantity
	MemSwLimitBytes   cgparse.Quantity
	PidsMax           cgparse.Quantity
}

// BuildConstraintSet resolves pid's cgroup path on every controller the
// spec cares about and parses the relevant files through pkg/cgparse,
// defaulting anything unreadable or absent to unlimited/inherit.
func BuildConstraintSet(snap *Snapshot, pid int) ConstraintSet {
	cs := ConstraintSet{
		CPUQuotaUs:        cgparse.Unlimited,
		CPUPeriodUs:       100000,
		CPUShares:         1024,
		MemLimitBytes:     cgparse.Unlimited,
		MemSoftLimitBytes: cgparse.Unlimited,
		MemSwLimitBytes:   cgparse.Unlimited,
		PidsMax:           cgparse.Unlimited,
	}

	if p, ok, err := Resolve(snap, pid, "cpuset"); ok && err == nil {
		cs.CPUSet = readCPUSet(p)
	}
	if p, ok, err := Resolve(snap, pid, "cpu"); ok && err == nil {
		readCPULimits(p, &cs)
	}
	if p, ok, err := Resolve(snap, pid, "memory"); ok && err == nil {
		readMemoryLimits(p, &cs)
	}
	if p, ok, err := Resolve(snap, pid, "pids"); ok && err == nil {
		if s, err := ReadControllerFile(p.Abs() + "/pids.max"); err == nil {
			if q, err := cgparse.ParseQuantity(s); err == nil {
				cs.PidsMax = q
			}
		}
	}
	return cs
}

func readCPUSet(p CgroupPath) cgparse.CPUSet {
	file := "cpuset.cpus.effective"
	if p.Controller.Version == V1 {
		file = "cpuset.cpus"
	}
	s, err := ReadControllerFile(p.Abs() + "/" + file)
	if err != nil {
		if p.Controller.Version == V2 {
			// Some kernels don't expose cpuset.cpus.effective; fall back.
			s, err = ReadControllerFile(p.Abs() + "/cpuset.cpus")
		}
		if err != nil {
			return nil
		}
	}
	set, err := cgparse.ParseCPUSet(s)
	if err != nil {
		return nil
	}
	return set
}

func readCPULimits(p CgroupPath, cs *ConstraintSet) {
	if p.Controller.Version == V2 {
		raw, err := ReadControllerFile(p.Abs() + "/cpu.max")
		if err == nil {
			fields := strings.Fields(raw)
			if len(fields) == 2 {
				if q, err := cgparse.ParseQuantity(fields[0]); err == nil {
					cs.CPUQuotaUs = q
				}
				if period, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
					cs.CPUPeriodUs = period
				}
			}
		}
		if raw, err := ReadControllerFile(p.Abs() + "/cpu.weight"); err == nil {
			if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
				// cgroup v2 weight (1-10000) isn't cgroup v1 shares; callers
				// comparing across versions should use CPUQuotaUs/Period
				// instead, this is kept for byte-compatible passthrough only.
				cs.CPUShares = n
			}
		}
		return
	}

	if raw, err := ReadControllerFile(p.Abs() + "/cpu.cfs_quota_us"); err == nil {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			if n < 0 {
				cs.CPUQuotaUs = cgparse.Unlimited
			} else {
				cs.CPUQuotaUs = cgparse.Quantity{Value: uint64(n)}
			}
		}
	}
	if raw, err := ReadControllerFile(p.Abs() + "/cpu.cfs_period_us"); err == nil {
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			cs.CPUPeriodUs = n
		}
	}
	if raw, err := ReadControllerFile(p.Abs() + "/cpu.shares"); err == nil {
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			cs.CPUShares = n
		}
	}
}

func readMemoryLimits(p CgroupPath, cs *ConstraintSet) {
	if p.Controller.Version == V2 {
		if raw, err := ReadControllerFile(p.Abs() + "/memory.max"); err == nil {
			if q, err := cgparse.ParseQuantity(raw); err == nil {
				cs.MemLimitBytes = q
			}
		}
		if raw, err := ReadControllerFile(p.Abs() + "/memory.low"); err == nil {
			if q, err := cgparse.ParseQuantity(raw); err == nil {
				cs.MemSoftLimitBytes = q
			}
		}
		if raw, err := ReadControllerFile(p.Abs() + "/memory.swap.max"); err == nil {
			if q, err := cgparse.ParseQuantity(raw); err == nil {
				cs.MemSwLimitBytes = q
			}
		}
		return
	}

	if raw, err := ReadControllerFile(p.Abs() + "/memory.limit_in_bytes"); err == nil {
		if q, err := cgparse.ParseQuantity(raw); err == nil {
			cs.MemLimitBytes = q
		}
	}
	if raw, err := ReadControllerFile(p.Abs() + "/memory.soft_limit_in_bytes"); err == nil {
		if q, err := cgparse.ParseQuantity(raw); err == nil {
			cs.MemSoftLimitBytes = q
		}
	}
	if raw, err := ReadControllerFile(p.Abs() + "/memory.memsw.limit_in_bytes"); err == nil {
		if q, err := cgparse.ParseQuantity(raw); err == nil {
			cs.MemSwLimitBytes = q
		}
	}
}
