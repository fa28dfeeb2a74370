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
	cdcgroups "github.com/containerd/cgroups"
	"github.com/mtstickney/lxcfs/pkg/cvlog"
)

// ProbeMode is a startup sanity cross-check against the hand-rolled
// mountinfo scan in Bootstrap: containerd/cgroups.Mode() answers the same
// "v1, v2, or both" question from its own, independent probe of
// /sys/fs/cgroup. It is never the source of truth for resolution — it
// only logs the mode and returns it; it asserts nothing — because Resolve needs the
// exact per-controller mountpoints Bootstrap derives, not just a mode.
func ProbeMode() cdcgroups.CGMode {
	mode := cdcgroups.Mode()
	cvlog.Debugf("hierarchy: containerd/cgroups reports mode %v", mode)
	return mode
}

// IsHybrid reports whether the host exposes both v1 and v2 controllers.
func (s *Snapshot) IsHybrid() bool {
	var haveV1, haveV2NonUnified bool
	for k := range s.controllers {
		if k.version == V1 {
			haveV1 = true
		} else if k.name != UnifiedToken {
			haveV2NonUnified = true
		}
	}
	return haveV1 && haveV2NonUnified
}
