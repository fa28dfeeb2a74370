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

// Package cpuacct keeps monotonic per-cgroup CPU-time counters stable
// across cgroup rewrites and container migration, so that a container's
// view of /proc/stat never appears to regress even though the host CPUs
// backing its virtual CPUs can change between reads.
package cpuacct

import "time"

// HostCPUStat is one host CPU's raw tick counters, as read from
// /proc/stat. Field order matches the kernel's own /proc/stat columns.
type HostCPUStat struct {
	ID        int
	User      uint64
	Nice      uint64
	System    uint64
	Idle      uint64
	Iowait    uint64
	Irq       uint64
	SoftIrq   uint64
	Steal     uint64
	Guest     uint64
	GuestNice uint64
}

// VirtCPU is the tick counters reported for one virtual CPU inside a
// container's view of /proc/stat: the corresponding host CPU's raw
// counters plus a monotonic offset that keeps the reported value from
// ever regressing across cpuset rewrites or host counter resets.
type VirtCPU struct {
	UserTicks   uint64
	Nice        uint64
	SystemTicks uint64
	IdleTicks   uint64
	IowaitTicks uint64
	Irq         uint64
	SoftIrq     uint64
	Steal       uint64
	Guest       uint64
	GuestNice   uint64
}

func (v VirtCPU) add(o VirtCPU) VirtCPU {
	return VirtCPU{
		UserTicks:   v.UserTicks + o.UserTicks,
		Nice:        v.Nice + o.Nice,
		SystemTicks: v.SystemTicks + o.SystemTicks,
		IdleTicks:   v.IdleTicks + o.IdleTicks,
		IowaitTicks: v.IowaitTicks + o.IowaitTicks,
		Irq:         v.Irq + o.Irq,
		SoftIrq:     v.SoftIrq + o.SoftIrq,
		Steal:       v.Steal + o.Steal,
		Guest:       v.Guest + o.Guest,
		GuestNice:   v.GuestNice + o.GuestNice,
	}
}

func (v VirtCPU) sub(o VirtCPU) VirtCPU {
	return VirtCPU{
		UserTicks:   v.UserTicks - o.UserTicks,
		Nice:        v.Nice - o.Nice,
		SystemTicks: v.SystemTicks - o.SystemTicks,
		IdleTicks:   v.IdleTicks - o.IdleTicks,
		IowaitTicks: v.IowaitTicks - o.IowaitTicks,
		Irq:         v.Irq - o.Irq,
		SoftIrq:     v.SoftIrq - o.SoftIrq,
		Steal:       v.Steal - o.Steal,
		Guest:       v.Guest - o.Guest,
		GuestNice:   v.GuestNice - o.GuestNice,
	}
}

func fromHost(h HostCPUStat) VirtCPU {
	return VirtCPU{
		UserTicks: h.User, Nice: h.Nice, SystemTicks: h.System, IdleTicks: h.Idle,
		IowaitTicks: h.Iowait, Irq: h.Irq, SoftIrq: h.SoftIrq, Steal: h.Steal,
		Guest: h.Guest, GuestNice: h.GuestNice,
	}
}

// Entry is the per-cgroup accounting record the cache keeps between
// samples, tracking the virtual CPU mapping and continuity offsets.
type Entry struct {
	LastSampledAt  time.Time
	VirtCPUCount   int
	LastHostCPUSet []int // host CPU ids, in virtual-index order
	ViewSequence   uint64

	// last holds the most recently reported value per virtual index;
	// offset holds the amount added to each host counter to keep last
	// non-decreasing across cpuset rewrites.
	last   []VirtCPU
	offset []VirtCPU
}

// View is the rendered output of one Sample call: per-virtual-CPU ticks
// plus their sum, ready for pkg/procview to format into /proc/stat.
type View struct {
	Virt      []VirtCPU
	Aggregate VirtCPU
}

// Aggregate sums a set of virtual CPU lines into the /proc/stat "cpu"
// aggregate line.
func Aggregate(virt []VirtCPU) VirtCPU {
	var sum VirtCPU
	for _, v := range virt {
		sum = sum.add(v)
	}
	return sum
}
