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

package cpuacct

import (
	"testing"
	"time"
)

func TestSampleTicksNeverRegress(t *testing.T) {
	c := NewCache()
	path := "/sys/fs/cgroup/cpu/docker/abc"
	base := time.Now()

	hostStats := func(user0, user1, user2, user3 uint64) []HostCPUStat {
		return []HostCPUStat{
			{ID: 0, User: user0, System: user0, Idle: user0, Iowait: user0},
			{ID: 1, User: user1, System: user1, Idle: user1, Iowait: user1},
			{ID: 2, User: user2, System: user2, Idle: user2, Iowait: user2},
			{ID: 3, User: user3, System: user3, Idle: user3, Iowait: user3},
		}
	}

	v1 := c.Sample(path, hostStats(100, 200, 300, 400), []int{0, 1, 2, 3}, base)
	if len(v1.Virt) != 4 {
		t.Fatalf("len(Virt) = %d, want 4", len(v1.Virt))
	}

	// cpuset shrinks from {0,1,2,3} to {0,1} one second later; host
	// counters for 0 and 1 still advance.
	v2 := c.Sample(path, hostStats(150, 250, 999, 999), []int{0, 1}, base.Add(time.Second))
	if len(v2.Virt) != 2 {
		t.Fatalf("len(Virt) = %d, want 2", len(v2.Virt))
	}
	for i := range v2.Virt {
		if v2.Virt[i].UserTicks < v1.Virt[i].UserTicks {
			t.Errorf("virt cpu %d UserTicks regressed: %d -> %d", i, v1.Virt[i].UserTicks, v2.Virt[i].UserTicks)
		}
	}
}

func TestSampleRenumberingPreservesContinuity(t *testing.T) {
	c := NewCache()
	path := "/sys/fs/cgroup/cpu/docker/def"
	base := time.Now()

	// Virtual cpu0 maps to host cpu 5 first...
	v1 := c.Sample(path, []HostCPUStat{
		{ID: 2, User: 10, System: 10, Idle: 10, Iowait: 10},
		{ID: 5, User: 500, System: 500, Idle: 500, Iowait: 500},
	}, []int{2, 5}, base)

	// ...then the cgroup's cpuset is rewritten so cpu0 maps to host cpu 2
	// instead (order swap). Reported ticks for virtual cpu0 must not drop
	// below what was already reported.
	v2 := c.Sample(path, []HostCPUStat{
		{ID: 2, User: 11, System: 11, Idle: 11, Iowait: 11},
		{ID: 5, User: 501, System: 501, Idle: 501, Iowait: 501},
	}, []int{5, 2}, base.Add(time.Second))

	if v2.Virt[0].UserTicks < v1.Virt[0].UserTicks {
		t.Errorf("virtual cpu0 regressed after renumbering: %d -> %d", v1.Virt[0].UserTicks, v2.Virt[0].UserTicks)
	}
	if v2.Virt[1].UserTicks < v1.Virt[1].UserTicks {
		t.Errorf("virtual cpu1 regressed after renumbering: %d -> %d", v1.Virt[1].UserTicks, v2.Virt[1].UserTicks)
	}
}

func TestSampleHostCounterReset(t *testing.T) {
	c := NewCache()
	path := "/sys/fs/cgroup/cpu/docker/ghi"
	base := time.Now()

	v1 := c.Sample(path, []HostCPUStat{{ID: 0, User: 1000}}, []int{0}, base)
	// Host CPU went offline and back online: its raw counter resets to 0.
	v2 := c.Sample(path, []HostCPUStat{{ID: 0, User: 0}}, []int{0}, base.Add(time.Second))
	if v2.Virt[0].UserTicks < v1.Virt[0].UserTicks {
		t.Errorf("reported ticks regressed across host counter reset: %d -> %d", v1.Virt[0].UserTicks, v2.Virt[0].UserTicks)
	}
}

func TestAggregateSumsVirtualCPUs(t *testing.T) {
	c := NewCache()
	view := c.Sample("/x", []HostCPUStat{
		{ID: 0, User: 10, System: 1, Idle: 2, Iowait: 3},
		{ID: 1, User: 20, System: 4, Idle: 5, Iowait: 6},
	}, []int{0, 1}, time.Now())

	if view.Aggregate.UserTicks != 30 {
		t.Errorf("Aggregate.UserTicks = %d, want 30", view.Aggregate.UserTicks)
	}
	if view.Aggregate.SystemTicks != 5 {
		t.Errorf("Aggregate.SystemTicks = %d, want 5", view.Aggregate.SystemTicks)
	}
}

func TestSweepReapsUnlinkedCgroups(t *testing.T) {
	c := NewCache()
	c.Sample("/x/alive", []HostCPUStat{{ID: 0, User: 1}}, []int{0}, time.Now())
	c.Sample("/x/gone", []HostCPUStat{{ID: 0, User: 1}}, []int{0}, time.Now())

	reaped := c.Sweep(func(path string) bool { return path != "/x/gone" })
	if reaped != 1 {
		t.Fatalf("Sweep() reaped %d, want 1", reaped)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}
