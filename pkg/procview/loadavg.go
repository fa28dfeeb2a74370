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
	"fmt"
	"sync"
	"time"
)

// loadavg decay constants, matching the kernel's own fixed-point EMA:
// exp(-5/60), exp(-5/300), exp(-5/900) (a 5-second sample against 1, 5
// and 15 minutes), expressed as integer numerators over 2048.
const (
	emaDecay1  = 1884.0 / 2048.0
	emaDecay5  = 2014.0 / 2048.0
	emaDecay15 = 2037.0 / 2048.0
)

// LoadavgTracker maintains the 1/5/15-minute EMAs for cgroups that opt
// into cgroup-scoped loadavg (pkg/cvconfig's CgroupLoadavg). It is
// process-wide shared state, like pkg/cpuacct's cache, not a pure
// function of its inputs — which is why it lives alongside, rather than
// inside, the stateless Render* functions.
type LoadavgTracker struct {
	mu      sync.Mutex
	entries map[string]*loadavgEntry
}

type loadavgEntry struct {
	avg1, avg5, avg15 float64
	lastSample        time.Time
}

// NewLoadavgTracker returns an empty tracker.
func NewLoadavgTracker() *LoadavgTracker {
	return &LoadavgTracker{entries: make(map[string]*loadavgEntry)}
}

// Sample folds one observation of runnable+uninterruptible task count
// into the cgroup's EMAs, if at least samplePeriod has elapsed since the
// last sample; otherwise it's a no-op and the previous averages stand.
func (t *LoadavgTracker) Sample(cgroupPath string, runnable int, now time.Time, samplePeriod time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[cgroupPath]
	if !ok {
		e = &loadavgEntry{}
		t.entries[cgroupPath] = e
	}
	if !e.lastSample.IsZero() && now.Sub(e.lastSample) < samplePeriod {
		return
	}
	load := float64(runnable)
	e.avg1 = e.avg1*emaDecay1 + load*(1-emaDecay1)
	e.avg5 = e.avg5*emaDecay5 + load*(1-emaDecay5)
	e.avg15 = e.avg15*emaDecay15 + load*(1-emaDecay15)
	e.lastSample = now
}

// RenderLoadavgCgroup renders the EMA-tracked loadavg for cgroupPath,
// filling in the running/total process counts and last pid fields.
func (t *LoadavgTracker) RenderLoadavgCgroup(cgroupPath string, running, total, lastPID int) []byte {
	t.mu.Lock()
	e, ok := t.entries[cgroupPath]
	t.mu.Unlock()
	if !ok {
		e = &loadavgEntry{}
	}
	return []byte(fmt.Sprintf("%.2f %.2f %.2f %d/%d %d\n", e.avg1, e.avg5, e.avg15, running, total, lastPID))
}

// RenderLoadavgHostProxy is the fallback when cgroup loadavg isn't
// enabled: the host's own /proc/loadavg content is passed straight
// through.
func RenderLoadavgHostProxy(hostLoadavg string) []byte {
	return []byte(hostLoadavg)
}
