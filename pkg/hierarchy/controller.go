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

// Package hierarchy discovers mounted cgroup v1 controllers and the v2
// unified hierarchy, and resolves a PID to its controller-specific path.
// Both layouts are supported concurrently, matching hybrid hosts.
package hierarchy

// Version distinguishes the two cgroup implementations a controller can
// belong to.
type Version int

const (
	V1 Version = iota
	V2
)

func (v Version) String() string {
	if v == V2 {
		return "v2"
	}
	return "v1"
}

// Controller is a named kernel resource manager with a host mountpoint.
// At most one Controller exists per (Name, Version) pair in a Snapshot.
type Controller struct {
	Name       string
	Version    Version
	Mountpoint string
	IsUnified  bool
}

// key identifies a Controller within a Snapshot's controller map.
type key struct {
	name    string
	version Version
}

// UnifiedToken is the pseudo-controller name used to look up the v2
// unified hierarchy's own mountpoint (/proc/<pid>/cgroup reports
// "0::/path" for it).
const UnifiedToken = ""
