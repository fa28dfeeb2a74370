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
	"hash/fnv"
	"sync"
	"time"

	"github.com/mtstickney/lxcfs/pkg/cvlog"
)

const shardCount = 256

// Cache is a sharded map from cgroup path to Entry, each shard guarded
// independently by its own mutex so samples for unrelated cgroups never
// contend.
type Cache struct {
	shards [shardCount]shard
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewCache returns an empty accounting cache.
func NewCache() *Cache {
	c := &Cache{}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]*Entry)
	}
	return c
}

func shardFor(c *Cache, path string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	return &c.shards[h.Sum32()%shardCount]
}

// Sample takes the host's full /proc/stat snapshot and the caller's
// cpuset intersected with the online set, looks up (or creates) the
// cache entry for path, and returns the per-virtual-CPU view, folding in
// whatever offset is needed to keep ticks non-decreasing across cpuset
// rewrites and host counter resets.
func (c *Cache) Sample(path string, hostStats []HostCPUStat, orderedHostIDs []int, now time.Time) View {
	sh := shardFor(c, path)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[path]
	if !ok {
		e = &Entry{}
		sh.entries[path] = e
	}

	byID := make(map[int]HostCPUStat, len(hostStats))
	for _, hs := range hostStats {
		byID[hs.ID] = hs
	}

	raw := make([]VirtCPU, len(orderedHostIDs))
	for i, hostID := range orderedHostIDs {
		raw[i] = fromHost(byID[hostID])
	}

	changed := !sameOrder(e.LastHostCPUSet, orderedHostIDs)
	newOffset := make([]VirtCPU, len(orderedHostIDs))
	newLast := make([]VirtCPU, len(orderedHostIDs))

	// regressed reports whether any host counter went backwards since the
	// previous sample.
	regressed := func(cur, prev VirtCPU) bool {
		return cur.UserTicks < prev.UserTicks || cur.Nice < prev.Nice ||
			cur.SystemTicks < prev.SystemTicks || cur.IdleTicks < prev.IdleTicks ||
			cur.IowaitTicks < prev.IowaitTicks || cur.Irq < prev.Irq ||
			cur.SoftIrq < prev.SoftIrq || cur.Steal < prev.Steal ||
			cur.Guest < prev.Guest || cur.GuestNice < prev.GuestNice
	}

	for i := range orderedHostIDs {
		if !changed && i < len(e.offset) && !regressed(raw[i], e.last[i].sub(e.offset[i])) {
			// Mapping for this virtual index is unchanged and no host
			// counter went backwards: keep the same offset.
			newOffset[i] = e.offset[i]
			newLast[i] = raw[i].add(newOffset[i])
			continue
		}
		if i < len(e.last) {
			// Surviving virtual index after a cpuset change, or after a
			// host counter went backwards: pin the offset so the
			// reported value continues exactly where it left off, never
			// stepping backwards even if the new host counter is smaller
			// (e.g. after a host CPU offline/online reset).
			prev := e.last[i]
			newOffset[i] = prev.sub(raw[i])
			newLast[i] = prev
			continue
		}
		// Brand new virtual index: start from the host's current raw
		// value with no offset.
		newOffset[i] = VirtCPU{}
		newLast[i] = raw[i]
	}

	e.offset = newOffset
	e.last = newLast
	e.LastHostCPUSet = append([]int(nil), orderedHostIDs...)
	e.LastSampledAt = now
	e.VirtCPUCount = len(orderedHostIDs)
	e.ViewSequence++

	out := append([]VirtCPU(nil), newLast...)
	return View{Virt: out, Aggregate: Aggregate(out)}
}

func sameOrder(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Sweep drops cache entries whose backing cgroup directory no longer
// exists. exists is called with the cgroup path key; it should be cheap
// (a stat, not a full re-resolution).
func (c *Cache) Sweep(exists func(path string) bool) int {
	var reaped int
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.Lock()
		for path := range sh.entries {
			if !exists(path) {
				delete(sh.entries, path)
				reaped++
			}
		}
		sh.mu.Unlock()
	}
	if reaped > 0 {
		cvlog.Debugf("cpuacct: reaped %d stale entries", reaped)
	}
	return reaped
}

// RunSweeper starts a goroutine that calls Sweep every interval until the
// returned stop function is called.
func (c *Cache) RunSweeper(interval time.Duration, exists func(path string) bool) (stop func()) {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				c.Sweep(exists)
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

// Len reports the number of entries currently cached, for tests.
func (c *Cache) Len() int {
	n := 0
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}
