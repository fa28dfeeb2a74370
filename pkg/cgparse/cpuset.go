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

// Package cgparse parses the small set of textual formats cgroup
// controller files use: cpuset range lists and byte/memory quantities.
package cgparse

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CPUSet is a canonical, sorted, duplicate-free set of logical CPU ids.
type CPUSet []int

// ParseCPUSet parses a cpuset range string of the form accepted by
// cpuset.cpus / cpuset.cpus.effective: comma-separated tokens that are
// either "N" or "A-B" with A <= B, both >= 0. An empty string is the
// empty set ("inherit host").
func ParseCPUSet(s string) (CPUSet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CPUSet{}, nil
	}

	seen := make(map[int]struct{})
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return nil, fmt.Errorf("cgparse: empty token in cpuset %q", s)
		}
		parts := strings.SplitN(tok, "-", 2)
		switch len(parts) {
		case 1:
			n, err := strconv.Atoi(parts[0])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("cgparse: invalid cpuset token %q", tok)
			}
			seen[n] = struct{}{}
		case 2:
			a, err1 := strconv.Atoi(parts[0])
			b, err2 := strconv.Atoi(parts[1])
			if err1 != nil || err2 != nil || a < 0 || b < 0 || a > b {
				return nil, fmt.Errorf("cgparse: invalid cpuset range %q", tok)
			}
			for i := a; i <= b; i++ {
				seen[i] = struct{}{}
			}
		}
	}

	out := make(CPUSet, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// String renders the set back into the canonical "a-b,c" form, merging
// adjacent runs into ranges. parse ∘ canonicalize is idempotent:
// ParseCPUSet(s.String()) == s for any canonical s.
func (s CPUSet) String() string {
	if len(s) == 0 {
		return ""
	}
	sorted := append(CPUSet(nil), s...)
	sort.Ints(sorted)

	var parts []string
	start := sorted[0]
	prev := sorted[0]
	flush := func(end int) {
		if start == end {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, end))
		}
	}
	for _, n := range sorted[1:] {
		if n == prev+1 {
			prev = n
			continue
		}
		flush(prev)
		start, prev = n, n
	}
	flush(prev)
	return strings.Join(parts, ",")
}

// Contains reports whether id is a member of the set.
func (s CPUSet) Contains(id int) bool {
	for _, n := range s {
		if n == id {
			return true
		}
	}
	return false
}

// Intersect returns the subset of a that is also present in online,
// preserving a's ascending order. Used when a cgroup's cpuset lists CPUs
// that are currently offline on the host.
func Intersect(a, online CPUSet) CPUSet {
	if len(a) == 0 {
		// Empty means "inherit host": the whole online set applies.
		out := append(CPUSet(nil), online...)
		sort.Ints(out)
		return out
	}
	onlineSet := make(map[int]struct{}, len(online))
	for _, n := range online {
		onlineSet[n] = struct{}{}
	}
	out := make(CPUSet, 0, len(a))
	for _, n := range a {
		if _, ok := onlineSet[n]; ok {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}
